package server

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// logLevel is the small set of levels recognized via ZEROTERM_LOG_LEVEL.
type logLevel int32

const (
	levelError logLevel = iota
	levelWarn
	levelInfo
	levelDebug
	levelTrace
)

func parseLogLevel(s string) logLevel {
	switch s {
	case "error":
		return levelError
	case "warn", "warning":
		return levelWarn
	case "debug":
		return levelDebug
	case "trace":
		return levelTrace
	default:
		return levelInfo
	}
}

// logger is a small leveled wrapper around the standard log package,
// with a Noticef/Warnf/Errorf/Debugf/Tracef family of methods rather
// than a generic Printf. No third-party logging framework is used.
type logger struct {
	level logLevel
	out   *log.Logger
}

func newLogger(level logLevel) *logger {
	return &logger{
		level: level,
		out:   log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *logger) setLevel(level logLevel) {
	atomic.StoreInt32((*int32)(&l.level), int32(level))
}

func (l *logger) current() logLevel {
	return logLevel(atomic.LoadInt32((*int32)(&l.level)))
}

func (l *logger) Errorf(format string, v ...interface{}) {
	l.out.Print("[ERR] " + fmt.Sprintf(format, v...))
}

func (l *logger) Warnf(format string, v ...interface{}) {
	if l.current() < levelWarn {
		return
	}
	l.out.Print("[WRN] " + fmt.Sprintf(format, v...))
}

func (l *logger) Noticef(format string, v ...interface{}) {
	if l.current() < levelInfo {
		return
	}
	l.out.Print("[INF] " + fmt.Sprintf(format, v...))
}

func (l *logger) Debugf(format string, v ...interface{}) {
	if l.current() < levelDebug {
		return
	}
	l.out.Print("[DBG] " + fmt.Sprintf(format, v...))
}

func (l *logger) Tracef(format string, v ...interface{}) {
	if l.current() < levelTrace {
		return
	}
	l.out.Print("[TRC] " + fmt.Sprintf(format, v...))
}

func (l *logger) Fatalf(format string, v ...interface{}) {
	l.out.Fatal("[FTL] " + fmt.Sprintf(format, v...))
}
