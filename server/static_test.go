package server

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require_NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestResolveStaticPathServesIndexForRoot(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "index.html", "<html></html>")

	resolved := resolveStaticPath("/", dir)
	require_True(t, resolved != "")
	require_Equal(t, filepath.Base(resolved), "index.html")
}

func TestResolveStaticPathServesNamedFile(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "app.js", "console.log(1)")

	resolved := resolveStaticPath("/app.js", dir)
	require_True(t, resolved != "")
	require_Equal(t, filepath.Base(resolved), "app.js")
}

func TestResolveStaticPathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	resolved := resolveStaticPath("/../../etc/passwd", dir)
	require_Equal(t, resolved, "")
}

func TestResolveStaticPathRejectsEncodedTraversal(t *testing.T) {
	dir := t.TempDir()
	resolved := resolveStaticPath("/%2e%2e/%2e%2e/etc/passwd", dir)
	require_Equal(t, resolved, "")
}

func TestServeStaticReturns404ForMissingFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	err := serveStatic(&buf, "/missing.html", dir)
	require_NoError(t, err)
	require_True(t, bytes.Contains(buf.Bytes(), []byte("404")))
}

func TestServeStaticSetsContentTypeFromExtension(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "style.css", "body{}")

	var buf bytes.Buffer
	err := serveStatic(&buf, "/style.css", dir)
	require_NoError(t, err)
	require_True(t, bytes.Contains(buf.Bytes(), []byte("text/css")))
	require_True(t, bytes.Contains(buf.Bytes(), []byte("Cache-Control: no-store")))
}

func TestServeStaticUnknownExtensionFallsBackToOctetStream(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "data.bin", "binary")

	var buf bytes.Buffer
	err := serveStatic(&buf, "/data.bin", dir)
	require_NoError(t, err)
	require_True(t, bytes.Contains(buf.Bytes(), []byte("application/octet-stream")))
}
