package server

import (
	"time"

	"golang.org/x/sys/unix"
)

// reapPollInterval is the granularity reap polls at while waiting for
// a child to die after a signal.
const reapPollInterval = 50 * time.Millisecond

// reapEscalationWait is how long reap waits for the child to exit
// after each signal in the HUP -> TERM -> KILL escalation before
// sending the next one.
const reapEscalationWait = 500 * time.Millisecond

// reap closes the PTY master (ignoring failure), then attempts a
// non-blocking wait; if the child hasn't died on its own, it escalates
// SIGHUP -> SIGTERM -> SIGKILL, waiting up to reapEscalationWait after
// each before trying the next. "No such process" at any step is
// treated as success (the child is already gone).
func reap(pid int, sess *ptySession) {
	if sess != nil && sess.master != nil {
		_ = sess.master.Close()
	}

	if tryWait(pid) {
		return
	}

	for _, sig := range []unix.Signal{unix.SIGHUP, unix.SIGTERM, unix.SIGKILL} {
		if err := unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
			// Unexpected error delivering the signal; still attempt
			// the non-blocking wait below in case the child exited
			// for an unrelated reason.
		}
		if waitUpTo(pid, reapEscalationWait) {
			return
		}
	}
}

// tryWait performs a single non-blocking wait4(WNOHANG) for pid,
// returning true if the child has already been reaped (either just
// now, or because it no longer exists).
func tryWait(pid int) bool {
	var ws unix.WaitStatus
	got, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	if err == unix.ESRCH || err == unix.ECHILD {
		return true
	}
	return got == pid
}

// waitUpTo polls tryWait at reapPollInterval granularity until pid is
// reaped or d elapses.
func waitUpTo(pid int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if tryWait(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(reapPollInterval)
	}
}
