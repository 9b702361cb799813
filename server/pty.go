package server

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ptySession is a spawned PTY-backed child shell: the parent-side
// handle for a session record's (pid, master fd) pair.
type ptySession struct {
	pid    int
	master *os.File
	cmd    *exec.Cmd
}

// spawnPTY forks and execs a login shell (or an explicit argv vector)
// attached to a new PTY. TERM and the working directory are applied to
// the child; argv is either shellCmd verbatim or [shell, "-l"] as a
// login shell.
func spawnPTY(o *Options) (*ptySession, error) {
	var cmd *exec.Cmd
	if len(o.ShellCmd) > 0 {
		cmd = exec.Command(o.ShellCmd[0], o.ShellCmd[1:]...)
	} else {
		cmd = exec.Command(o.Shell, "-l")
		cmd.Args[0] = o.Shell
	}

	cmd.Env = append(os.Environ(), "TERM="+o.Term)
	if o.CWD != "" {
		cmd.Dir = o.CWD
	}

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "spawn pty for %q", cmd.Path)
	}

	return &ptySession{pid: cmd.Process.Pid, master: master, cmd: cmd}, nil
}

// resizePTY applies rows/cols to the PTY's window size and signals the
// child with SIGWINCH so it notices. Non-positive dimensions are
// ignored. A "no such process" error delivering the signal is treated
// as a benign race with teardown.
func resizePTY(master *os.File, pid int, rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	if err := pty.Setsize(master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return errors.Wrap(err, "set pty window size")
	}
	if pid <= 0 {
		return nil
	}
	if err := unix.Kill(pid, unix.SIGWINCH); err != nil && err != unix.ESRCH {
		return errors.Wrap(err, "signal SIGWINCH")
	}
	return nil
}

// defaultRows and defaultCols are the window size the bridge applies
// immediately after attach, so the shell starts in a known geometry.
const (
	defaultRows = 24
	defaultCols = 80
)

// processAlive reports whether pid still exists by sending the null
// signal (0), which performs existence/permission checks without
// actually delivering a signal.
func processAlive(pid int) bool {
	err := unix.Kill(pid, syscall.Signal(0))
	return err == nil
}
