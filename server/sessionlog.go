package server

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// makeLogPath builds the per-session log file path:
// "zeroterm-session-<YYYYMMDD-HHMMSS>-<id-or-anonymous>-<pid>.log".
func makeLogPath(dir, id string, pid int) string {
	label := id
	if label == "" {
		label = "anonymous"
	}
	name := fmt.Sprintf("zeroterm-session-%s-%s-%d.log", time.Now().Format("20060102-150405"), label, pid)
	return filepath.Join(dir, name)
}

// openSessionLog opens (creating if needed) the append-only,
// unbuffered sink for a bridged session's PTY output. A failure to
// open is logged and the bridge proceeds without logging.
func openSessionLog(dir, id string, pid int, log *logger) *os.File {
	path := makeLogPath(dir, id, pid)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warnf("session log: failed to open %s: %v", path, err)
		return nil
	}
	return f
}
