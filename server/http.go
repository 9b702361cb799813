package server

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	defaultMaxHeaderBytes = 64 * 1024
	defaultMaxBodyBytes   = 64 * 1024
)

// httpHeaders stores header values with lower-cased names, the way
// http_utils.py's read_http_request does.
type httpHeaders map[string]string

func (h httpHeaders) get(name string) string {
	return h[strings.ToLower(name)]
}

// hasToken reports whether the comma-separated value of header name
// contains token, case-insensitively, ignoring surrounding whitespace.
func (h httpHeaders) hasToken(name, token string) bool {
	value := h.get(name)
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// httpRequest is a parsed HTTP/1.1 request: start line, headers, and a
// fully-read, bounded body.
type httpRequest struct {
	method  string
	target  string
	version string
	headers httpHeaders
	body    []byte
}

// readHTTPRequest reads one HTTP/1.1 request from r: the start line,
// headers up to the blank-line sentinel (bounded by maxHeaderBytes),
// and, if Content-Length is present and within maxBodyBytes, exactly
// that many body bytes. A malformed start line or oversize input
// returns a nil request and no error — the caller (dispatcher) closes
// the connection.
func readHTTPRequest(r *bufio.Reader, maxHeaderBytes, maxBodyBytes int) (*httpRequest, error) {
	if maxHeaderBytes <= 0 {
		maxHeaderBytes = defaultMaxHeaderBytes
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	headerBytes, err := readUntilDoubleCRLF(r, maxHeaderBytes)
	if err != nil {
		if err == errHeaderTooLarge {
			return nil, nil
		}
		return nil, err
	}
	if headerBytes == nil {
		return nil, nil
	}

	lines := strings.Split(string(headerBytes), "\r\n")
	if len(lines) == 0 {
		return nil, nil
	}
	startLine := strings.SplitN(lines[0], " ", 3)
	if len(startLine) != 3 {
		return nil, nil
	}
	method, target, version := startLine[0], startLine[1], startLine[2]
	if method == "" || target == "" || !strings.HasPrefix(version, "HTTP/") {
		return nil, nil
	}

	headers := httpHeaders{}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		headers[name] = value
	}

	var body []byte
	if cl := headers.get("content-length"); cl != "" {
		length, err := strconv.Atoi(cl)
		if err != nil {
			length = 0
		}
		if length > maxBodyBytes {
			return nil, nil
		}
		if length > 0 {
			body = make([]byte, length)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, nil
			}
		}
	}

	return &httpRequest{method: method, target: target, version: version, headers: headers, body: body}, nil
}

var errHeaderTooLarge = fmt.Errorf("http: header section exceeds limit")

// readUntilDoubleCRLF reads from r until it has seen "\r\n\r\n",
// returning the bytes before the sentinel (not including it). It
// returns (nil, nil) on a clean EOF with no bytes read at all, and
// errHeaderTooLarge if the header section would exceed limit.
func readUntilDoubleCRLF(r *bufio.Reader, limit int) ([]byte, error) {
	var buf bytes.Buffer
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			buf.Write(line)
			if buf.Len() > limit {
				return nil, errHeaderTooLarge
			}
		}
		if err != nil {
			if buf.Len() == 0 {
				return nil, nil
			}
			return nil, nil
		}
		if sentinel := bytes.Index(buf.Bytes(), []byte("\r\n\r\n")); sentinel >= 0 {
			return buf.Bytes()[:sentinel], nil
		}
	}
}

// httpReasonPhrase mirrors http_utils.py's HTTP_REASONS table.
var httpReasonPhrase = map[int]string{
	101: "Switching Protocols",
	200: "OK",
	400: "Bad Request",
	404: "Not Found",
	405: "Method Not Allowed",
	409: "Conflict",
	500: "Internal Server Error",
}

// writeHTTPResponse writes a full HTTP/1.1 response: status line,
// headers, blank line, body.
func writeHTTPResponse(w io.Writer, status int, headers map[string]string, body []byte) error {
	reason := httpReasonPhrase[status]
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reason)
	for name, value := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", name, value)
	}
	b.WriteString("\r\n")
	b.Write(body)
	_, err := w.Write(b.Bytes())
	return err
}

// writePlainText writes a short plain-text response body, used for
// error statuses (405, 409, ...).
func writePlainText(w io.Writer, status int, body string) error {
	return writeHTTPResponse(w, status, map[string]string{
		"Content-Type":   "text/plain; charset=utf-8",
		"Content-Length": strconv.Itoa(len(body)),
	}, []byte(body))
}
