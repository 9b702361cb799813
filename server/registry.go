package server

import (
	"regexp"
	"sync"
	"time"
)

// sessionIDPattern is the accepted shape of a caller-supplied session
// id: 1-64 characters of letters, digits, underscore, or hyphen.
// Anything else means an anonymous, non-resumable session.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// sanitizeSessionID validates id against sessionIDPattern, returning
// ("", false) when it doesn't qualify.
func sanitizeSessionID(id string) (string, bool) {
	if sessionIDPattern.MatchString(id) {
		return id, true
	}
	return "", false
}

// sessionRecord is the per-id persistent state: the shell child's pid,
// the PTY master, whether a bridge currently owns it, and when it was
// last detached.
type sessionRecord struct {
	id         string
	pid        int
	master     *ptySession
	attached   bool
	lastDetach time.Time
}

// errSessionBusy is returned by attachOrCreate when the named session
// already has a live bridge attached.
type errSessionBusy struct{ id string }

func (e *errSessionBusy) Error() string { return "session busy: " + e.id }

// registry is the named-session table: a mapping from session id to
// sessionRecord, with the at-most-one-attachment invariant enforced
// under mu, and a detach-retention TTL sweep.
//
// The mutex protects only bookkeeping. Spawning a PTY (which
// forks+execs) always happens with the lock released; a double-check
// under the lock on return reconciles races between concurrent
// attachers for the same id.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionRecord
	log      *logger
}

func newRegistry(log *logger) *registry {
	return &registry{sessions: make(map[string]*sessionRecord), log: log}
}

// attachResult is returned by attachOrCreate.
type attachResult struct {
	// record is non-nil on success. For anonymous sessions it is a
	// fresh, non-persistent record never stored in the registry.
	record *sessionRecord
	// persistent is true when record lives in the registry (named,
	// resumable session) and finalize should detach rather than
	// discard it.
	persistent bool
}

// attachOrCreate resolves an attach request: with no id (or resume
// disabled), it always spawns a fresh, non-persistent session. With an
// id, it resumes a detached record, rejects an already-attached one
// with errSessionBusy, or creates and registers a new one — spawning
// the PTY outside the lock and reconciling a possible race under the
// lock on return.
func (r *registry) attachOrCreate(o *Options, id string, resumeEnabled bool) (*attachResult, error) {
	if id == "" || !resumeEnabled {
		sess, err := spawnPTY(o)
		if err != nil {
			return nil, err
		}
		return &attachResult{record: &sessionRecord{id: "", pid: sess.pid, master: sess, attached: true}}, nil
	}

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		if existing.attached {
			r.mu.Unlock()
			return nil, &errSessionBusy{id: id}
		}
		existing.attached = true
		existing.lastDetach = time.Time{}
		r.mu.Unlock()
		return &attachResult{record: existing, persistent: true}, nil
	}
	r.mu.Unlock()

	// Spawn outside the lock: fork+exec never happens under mu.
	sess, err := spawnPTY(o)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[id]; ok {
		// Another attacher won the race while we were spawning.
		discard := sess
		if existing.attached {
			go reap(discard.pid, discard.master)
			return nil, &errSessionBusy{id: id}
		}
		existing.attached = true
		existing.lastDetach = time.Time{}
		go reap(discard.pid, discard.master)
		return &attachResult{record: existing, persistent: true}, nil
	}

	rec := &sessionRecord{id: id, pid: sess.pid, master: sess, attached: true}
	r.sessions[id] = rec
	return &attachResult{record: rec, persistent: true}, nil
}

// finalize is called after a bridge ends. Non-persistent (anonymous)
// records are always reaped and dropped. Persistent records whose
// child has already exited are reaped and removed; otherwise the
// record is marked detached with last_detach set to now, ready for a
// future resume or TTL sweep.
//
// Whether the child has already exited is decided with a non-blocking
// wait, not a liveness probe: a shell that exited normally is an
// unreaped zombie until waited on, and a liveness probe reports a
// zombie as still alive. Reaping the dead child's fd/pid happens after
// the lock is released, since it can close a descriptor and must not
// block other attachers.
func (r *registry) finalize(res *attachResult) {
	rec := res.record
	if !res.persistent {
		reap(rec.pid, rec.master)
		return
	}

	r.mu.Lock()
	dead := tryWait(rec.pid)
	if dead {
		delete(r.sessions, rec.id)
	} else {
		rec.attached = false
		rec.lastDetach = time.Now()
	}
	r.mu.Unlock()

	if dead {
		reap(rec.pid, rec.master)
	}
}

// sweep scans detached records and reaps+removes any whose retention
// has expired: now - last_detach >= ttl. ttl <= 0 disables sweeping
// entirely.
func (r *registry) sweep(ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	r.mu.Lock()
	var expired []*sessionRecord
	now := time.Now()
	for id, rec := range r.sessions {
		if rec.attached {
			continue
		}
		if now.Sub(rec.lastDetach) >= ttl {
			expired = append(expired, rec)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, rec := range expired {
		reap(rec.pid, rec.master)
	}
}

// count returns the number of records currently tracked, for tests and
// diagnostics.
func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
