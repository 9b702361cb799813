package server

import (
	"strconv"
	"strings"
)

// Options configures a Server. Every field is sourced from an
// environment variable; there is no flag or config-file parser.
type Options struct {
	// Bind is the TCP address the listener binds to.
	Bind string
	// Port is the TCP port the listener binds to. A non-integer
	// ZEROTERM_PORT falls back to 8080.
	Port int
	// Shell is the login shell executed when ShellCmd is empty.
	Shell string
	// ShellCmd, when non-empty, is executed verbatim instead of Shell.
	ShellCmd []string
	// Term is the TERM environment variable set for the child shell.
	Term string
	// CWD is the working directory of the child shell; empty means
	// inherit the daemon's own working directory.
	CWD string
	// LogLevel is one of error/warn/info/debug/trace.
	LogLevel string
	// StaticDir is the root directory served for non-upgrade GETs.
	StaticDir string
	// SessionLogDir, when non-empty, enables per-session PTY-output
	// logging to files under this directory.
	SessionLogDir string
	// SessionResume enables the named-session registry (attach/detach/
	// TTL). When false every connection is anonymous.
	SessionResume bool
	// SessionTTL is the detach-retention grace period in seconds. A
	// value of 0 disables the TTL sweep (sessions persist until the
	// process exits or are explicitly reattached and end with the
	// child dead).
	SessionTTL int
}

// envLookup abstracts os.LookupEnv so tests can supply a fake
// environment without mutating process-global state.
type envLookup func(name string) (string, bool)

func envValue(lookup envLookup, name, def string) string {
	if v, ok := lookup(name); ok && v != "" {
		return v
	}
	return def
}

func envInt(lookup envLookup, name string, def int) int {
	v, ok := lookup(name)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(lookup envLookup, name string, def bool) bool {
	v, ok := lookup(name)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// shellQuoteSplit splits a shell-quoted argv vector given in
// ZEROTERM_SHELL_CMD: whitespace-separated tokens, with single or
// double quoted spans kept intact.
func shellQuoteSplit(s string) []string {
	var out []string
	var cur strings.Builder
	var inQuote rune
	hasCur := false

	flush := func() {
		if hasCur {
			out = append(out, cur.String())
			cur.Reset()
			hasCur = false
		}
	}

	for _, r := range s {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				cur.WriteRune(r)
				hasCur = true
			}
		case r == '\'' || r == '"':
			inQuote = r
			hasCur = true
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
			hasCur = true
		}
	}
	flush()
	return out
}

// ConfigureOptions builds Options from an environment lookup function.
// Pass os.LookupEnv in production; tests pass a map-backed stand-in.
func ConfigureOptions(lookup envLookup) *Options {
	o := &Options{}
	o.Bind = envValue(lookup, "ZEROTERM_BIND", "0.0.0.0")
	o.Port = envInt(lookup, "ZEROTERM_PORT", 8080)
	o.Shell = envValue(lookup, "ZEROTERM_SHELL", "/bin/bash")

	if cmd, ok := lookup("ZEROTERM_SHELL_CMD"); ok && strings.TrimSpace(cmd) != "" {
		if parts := shellQuoteSplit(cmd); len(parts) > 0 {
			o.ShellCmd = parts
		}
	}

	o.Term = envValue(lookup, "ZEROTERM_TERM", "linux")
	o.CWD = envValue(lookup, "ZEROTERM_CWD", "")
	o.LogLevel = strings.ToLower(envValue(lookup, "ZEROTERM_LOG_LEVEL", "info"))
	o.StaticDir = envValue(lookup, "ZEROTERM_STATIC_DIR", "web")
	o.SessionLogDir = envValue(lookup, "ZEROTERM_SESSION_LOG_DIR", "")
	o.SessionResume = envBool(lookup, "ZEROTERM_SESSION_RESUME", true)
	o.SessionTTL = envInt(lookup, "ZEROTERM_SESSION_TTL", 60)
	if o.SessionTTL < 0 {
		o.SessionTTL = 0
	}
	return o
}
