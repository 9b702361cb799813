package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// ptyReadChunk is the read size used on the PTY->socket half.
const ptyReadChunk = 4096

// ptyReadinessTimeout bounds each read attempt on the PTY master so the
// loop can periodically check the shared cancellation flag.
const ptyReadinessTimeout = 500 * time.Millisecond

// resizeControlMessage is the one recognized JSON control schema a
// TEXT frame may carry. Any other shape is a no-op.
type resizeControlMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// bridge is the duplex byte pump between an attached WebSocket
// connection and a PTY master. Two halves run concurrently and share a
// single cancellation flag; either raising it causes both to exit.
type bridge struct {
	conn    net.Conn
	session *ptySession
	log     *logger
	logFile *os.File

	cancelled int32
	closeOnce sync.Once
}

func newBridge(conn net.Conn, session *ptySession, log *logger, logFile *os.File) *bridge {
	return &bridge{conn: conn, session: session, log: log, logFile: logFile}
}

func (b *bridge) cancel() {
	atomic.StoreInt32(&b.cancelled, 1)
	// Unblock a socket read in progress so the socket half sees the flag.
	if b.conn != nil {
		_ = b.conn.SetReadDeadline(time.Now())
	}
}

func (b *bridge) isCancelled() bool {
	return atomic.LoadInt32(&b.cancelled) == 1
}

// run drives the bridge to completion: it forces the PTY to a default
// geometry, starts both halves, and blocks until both have exited.
func (b *bridge) run() {
	if err := resizePTY(b.session.master, b.session.pid, defaultRows, defaultCols); err != nil {
		b.log.Warnf("bridge: initial resize failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		b.socketToPTY()
	}()
	go func() {
		defer wg.Done()
		b.ptyToSocket()
	}()
	wg.Wait()
}

// socketToPTY is the client->PTY half: it decodes frames from the
// socket and, per message, writes BINARY payloads to the PTY, applies
// resize control TEXT messages, answers PING with PONG, and on CLOSE
// replies with CLOSE and cancels the bridge.
func (b *bridge) socketToPTY() {
	defer b.cancel()

	buf := newWSBuffer()
	raw := make([]byte, 4096)
	for !b.isCancelled() {
		n, err := b.conn.Read(raw)
		if n > 0 {
			messages, decodeErr := buf.feed(raw[:n])
			for _, m := range messages {
				if b.handleMessage(m) {
					return
				}
			}
			if decodeErr != nil {
				b.log.Warnf("bridge: frame decode error: %v", decodeErr)
				b.sendClose()
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.log.Debugf("bridge: socket read error: %v", err)
			}
			return
		}
	}
}

// handleMessage applies a single decoded message and reports whether
// the bridge should terminate (a CLOSE was processed, or writing to the
// PTY or the socket failed).
func (b *bridge) handleMessage(m wsMessage) (done bool) {
	switch m.opcode {
	case wsBinaryFrame:
		if _, err := b.session.master.Write(m.payload); err != nil {
			b.log.Debugf("bridge: pty write error: %v", err)
			return true
		}
	case wsTextFrame:
		b.handleControlMessage(m.payload)
	case wsPingFrame:
		if err := b.writeFrame(buildPongFrame(m.payload)); err != nil {
			return true
		}
	case wsCloseFrame:
		b.sendClose()
		return true
	}
	return false
}

// handleControlMessage parses a TEXT payload as JSON and applies it if
// it matches the resize schema; malformed JSON or any other shape is
// silently ignored.
func (b *bridge) handleControlMessage(payload []byte) {
	var msg resizeControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}
	if msg.Type != "resize" {
		return
	}
	if msg.Cols <= 0 || msg.Rows <= 0 {
		return
	}
	if err := resizePTY(b.session.master, b.session.pid, msg.Rows, msg.Cols); err != nil {
		b.log.Warnf("bridge: resize failed: %v", err)
	}
}

// ptyToSocket is the PTY->client half: it reads from the PTY master
// using a bounded-timeout readiness primitive so it can observe
// cancellation, wraps non-empty reads in a single BINARY frame,
// forwards them to the socket, and appends the same bytes to the
// optional session log with no buffering.
func (b *bridge) ptyToSocket() {
	defer b.cancel()

	buf := make([]byte, ptyReadChunk)
	for !b.isCancelled() {
		_ = b.session.master.SetReadDeadline(time.Now().Add(ptyReadinessTimeout))
		n, err := b.session.master.Read(buf)
		if n > 0 {
			if werr := b.writeFrame(buildBinaryFrame(buf[:n])); werr != nil {
				return
			}
			b.appendLog(buf[:n])
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			// Any other error (including EOF) ends the bridge.
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func (b *bridge) appendLog(data []byte) {
	if b.logFile == nil {
		return
	}
	if _, err := b.logFile.Write(data); err != nil {
		b.log.Warnf("bridge: session log write failed: %v", err)
		_ = b.logFile.Close()
		b.logFile = nil
	}
}

func (b *bridge) sendClose() {
	if err := b.writeFrame(buildCloseFrame()); err != nil {
		b.log.Debugf("bridge: close frame send failed: %v", err)
	}
}

func (b *bridge) writeFrame(frame []byte) error {
	_, err := b.conn.Write(frame)
	if err != nil {
		return pkgerrors.Wrap(err, "bridge: write frame")
	}
	return nil
}

func (b *bridge) Close() {
	b.closeOnce.Do(func() {
		if b.logFile != nil {
			_ = b.logFile.Close()
		}
	})
}
