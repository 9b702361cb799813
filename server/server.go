package server

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Server owns the listener, the session registry, and the background
// sweep timer — the top-level object cmd/zerotermd/main.go runs.
type Server struct {
	opts     *Options
	log      *logger
	registry *registry

	mu       sync.Mutex
	listener net.Listener
	quit     chan struct{}
	grWG     sync.WaitGroup
}

// New constructs a Server from already-loaded Options.
func New(opts *Options) *Server {
	log := newLogger(parseLogLevel(opts.LogLevel))
	return &Server{
		opts:     opts,
		log:      log,
		registry: newRegistry(log),
		quit:     make(chan struct{}),
	}
}

// startGoRoutine launches fn tracked by the server's WaitGroup, so
// Shutdown can wait for background work to wind down.
func (s *Server) startGoRoutine(fn func()) {
	s.grWG.Add(1)
	go func() {
		defer s.grWG.Done()
		fn()
	}()
}

// ListenAndServe binds the configured address, starts the periodic
// TTL sweep, and runs the accept loop until Shutdown is called.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.opts.Bind, s.opts.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.log.Noticef("zerotermd listening on %s", listener.Addr())

	if s.opts.SessionResume && s.opts.SessionTTL > 0 {
		s.startGoRoutine(s.runSweepTimer)
	}

	disp := newDispatcher(listener, s.opts, s.registry, s.log)
	disp.serve()
	return nil
}

// runSweepTimer periodically sweeps the registry for expired detached
// sessions, independent of the opportunistic pre-attach sweep the
// dispatcher also runs.
func (s *Server) runSweepTimer() {
	ttl := time.Duration(s.opts.SessionTTL) * time.Second
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.registry.sweep(ttl)
		}
	}
}

// Shutdown closes the listener and waits for background goroutines
// (the sweep timer) to exit. In-flight connections are not forcibly
// terminated; each dispatcher goroutine ends on its own when its
// bridge (if any) terminates.
func (s *Server) Shutdown() {
	close(s.quit)
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l != nil {
		_ = l.Close()
	}
	s.grWG.Wait()
}

// Logger exposes the server's logger for callers that want to log in
// the same stream (e.g. cmd/zerotermd/main.go before the server starts).
func (s *Server) Logger() *logger { return s.log }
