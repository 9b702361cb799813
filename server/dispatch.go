package server

import (
	"bufio"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nuid"
	"golang.org/x/time/rate"
)

// requestReadTimeout bounds the HTTP request phase of a connection.
// It is cleared after a successful dispatch.
const requestReadTimeout = 5 * time.Second

// admissionBurst and admissionRate bound how many new connections a
// single remote address may open in quick succession, protecting the
// single embedded device from a connection flood.
const (
	admissionRate  = 5
	admissionBurst = 10
)

// dispatcher owns the accept loop: one loop accepts connections,
// handing each to its own goroutine. Per connection it reads one
// HTTP/1.1 request and routes it: WebSocket-upgrade-looking headers
// targeting /ws go through the handshake and into a bridge; any other
// GET is served as a static file; anything else is rejected.
type dispatcher struct {
	listener net.Listener
	opts     *Options
	registry *registry
	log      *logger

	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex
}

func newDispatcher(listener net.Listener, opts *Options, reg *registry, log *logger) *dispatcher {
	return &dispatcher{
		listener: listener,
		opts:     opts,
		registry: reg,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
}

// serve runs the accept loop until the listener is closed.
func (d *dispatcher) serve() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			d.log.Noticef("dispatcher: accept loop ending: %v", err)
			return
		}
		go d.handleConnection(conn)
	}
}

func (d *dispatcher) limiterFor(addr string) *rate.Limiter {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}

	d.limitersMu.Lock()
	defer d.limitersMu.Unlock()
	lim, ok := d.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(admissionRate), admissionBurst)
		d.limiters[host] = lim
	}
	return lim
}

// handleConnection applies a short read timeout for the request
// phase, reads one request, and dispatches by upgrade-looking
// headers + path + method.
func (d *dispatcher) handleConnection(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	if !d.limiterFor(remote).Allow() {
		d.log.Warnf("dispatcher: rejecting connection from %s: rate limited", remote)
		return
	}

	reqID := nuid.Next()[:8]

	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))
	reader := bufio.NewReader(conn)
	req, err := readHTTPRequest(reader, defaultMaxHeaderBytes, defaultMaxBodyBytes)
	if err != nil {
		d.log.Warnf("[%s] dispatcher: request read error from %s: %v", reqID, remote, err)
		return
	}
	if req == nil {
		d.log.Debugf("[%s] dispatcher: malformed or oversize request from %s", reqID, remote)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	upgradeLooking := isWebSocketUpgrade(req.headers)
	path := requestPath(req.target)

	switch {
	case upgradeLooking && path == "/ws":
		if req.method != "GET" {
			_ = writePlainText(conn, 405, "Method Not Allowed")
			return
		}
		d.handleUpgrade(conn, req, reqID, remote)
	case upgradeLooking:
		// Upgrade-looking headers aimed anywhere but /ws get 404,
		// distinct from the plain-static-miss case.
		_ = writePlainText(conn, 404, "Not Found")
	case req.method == "GET":
		if err := serveStatic(conn, req.target, d.opts.StaticDir); err != nil {
			d.log.Debugf("[%s] dispatcher: static serve error: %v", reqID, err)
		}
	default:
		_ = writePlainText(conn, 405, "Method Not Allowed")
	}
}

// requestPath returns just the path portion of a request target,
// stripping any query string.
func requestPath(target string) string {
	if u, err := url.ParseRequestURI(target); err == nil {
		return u.Path
	}
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		return target[:idx]
	}
	return target
}

// extractSessionID pulls the "session" query parameter out of a /ws
// request target and sanitizes it.
func extractSessionID(target string) (id string, ok bool) {
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return "", false
	}
	raw := u.Query().Get("session")
	if raw == "" {
		return "", false
	}
	return sanitizeSessionID(raw)
}

// handleUpgrade performs the WebSocket upgrade dance for a /ws GET:
// extract the session id, pre-sweep the registry if resume is
// enabled, attach-or-create, reject with 409 if busy, perform the
// handshake, then hand off to a bridge.
func (d *dispatcher) handleUpgrade(conn net.Conn, req *httpRequest, reqID, remote string) {
	id, _ := extractSessionID(req.target)

	if d.opts.SessionResume {
		d.registry.sweep(time.Duration(d.opts.SessionTTL) * time.Second)
	}

	res, err := d.registry.attachOrCreate(d.opts, id, d.opts.SessionResume)
	if err != nil {
		if _, busy := err.(*errSessionBusy); busy {
			d.log.Noticef("[%s] dispatcher: session %q busy", reqID, id)
			_ = writePlainText(conn, 409, "Session Busy")
			return
		}
		d.log.Errorf("[%s] dispatcher: attach failed: %v", reqID, err)
		_ = writePlainText(conn, 500, "Internal Server Error")
		return
	}

	resp, err := wsHandshakeResponse(req.headers)
	if err != nil {
		d.log.Warnf("[%s] dispatcher: handshake rejected: %v", reqID, err)
		_ = writePlainText(conn, 400, "Bad Request")
		d.registry.finalize(res)
		return
	}
	if _, err := conn.Write(resp); err != nil {
		d.log.Debugf("[%s] dispatcher: handshake write failed: %v", reqID, err)
		d.registry.finalize(res)
		return
	}

	d.log.Noticef("[%s] dispatcher: websocket attached from %s (session=%q pid=%d)", reqID, remote, id, res.record.pid)

	var logFile *os.File
	if d.opts.SessionLogDir != "" {
		logFile = openSessionLog(d.opts.SessionLogDir, id, res.record.pid, d.log)
	}

	br := newBridge(conn, res.record.master, d.log, logFile)
	br.run()
	br.Close()

	d.registry.finalize(res)
	d.log.Noticef("[%s] dispatcher: bridge ended (session=%q pid=%d)", reqID, id, res.record.pid)
}
