package server

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// staticContentTypes mirrors http_utils.py's CONTENT_TYPES table.
var staticContentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript; charset=utf-8",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".png":   "image/png",
	".woff2": "font/woff2",
}

const defaultStaticContentType = "application/octet-stream"

// resolveStaticPath resolves a request target's path portion against
// root using canonical path resolution, rejecting any result that
// would escape root (path traversal). Returns "" when the target does
// not resolve to a safe path.
func resolveStaticPath(target, root string) string {
	u, err := url.ParseRequestURI(target)
	var p string
	if err != nil {
		p = target
	} else {
		p = u.Path
	}
	if p == "" || p == "/" {
		p = "/index.html"
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return ""
	}
	joined := filepath.Join(rootAbs, filepath.FromSlash(strings.TrimPrefix(p, "/")))

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		// File may not exist yet (caller checks that separately);
		// fall back to the lexically-cleaned join so a missing file
		// still resolves to "not found" rather than "escaped root".
		resolved = joined
	}

	rootResolved, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		rootResolved = rootAbs
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return resolved
}

// serveStatic serves a single static file from staticDir in response
// to a GET for target: 200 with the file's bytes and Cache-Control:
// no-store, 404 when missing, 500 on read failure.
func serveStatic(w io.Writer, target, staticDir string) error {
	resolved := resolveStaticPath(target, staticDir)
	if resolved == "" {
		return writePlainText(w, 404, "Not Found")
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return writePlainText(w, 404, "Not Found")
	}

	body, err := os.ReadFile(resolved)
	if err != nil {
		return writePlainText(w, 500, "Internal Server Error")
	}

	contentType, ok := staticContentTypes[strings.ToLower(filepath.Ext(resolved))]
	if !ok {
		contentType = defaultStaticContentType
	}

	return writeHTTPResponse(w, 200, map[string]string{
		"Content-Type":   contentType,
		"Content-Length": strconv.Itoa(len(body)),
		"Cache-Control":  "no-store",
	}, body)
}
