// Package logging is a small leveled logger with a process-wide debug flag
// and credential redaction on every line, shared with internal/render.
package logging

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/kcartwright/jirafs/internal/render"
)

var debugEnabled atomic.Bool

// SetDebug toggles whether Debug() lines are emitted.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports the current debug flag.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

var isTerminal = isatty.IsTerminal(os.Stderr.Fd())

func emit(level, msg string) {
	line := fmt.Sprintf("[%d][%s] %s", time.Now().Unix(), level, render.RedactSecrets(msg))
	if isTerminal {
		line = colorize(level, line)
	}
	fmt.Fprintln(os.Stderr, line)
}

func colorize(level, line string) string {
	switch level {
	case "ERROR":
		return "\x1b[31m" + line + "\x1b[0m"
	case "WARN":
		return "\x1b[33m" + line + "\x1b[0m"
	default:
		return line
	}
}

func Debug(msg string) {
	if debugEnabled.Load() {
		emit("DEBUG", msg)
	}
}

func Info(msg string)  { emit("INFO", msg) }
func Warn(msg string)  { emit("WARN", msg) }
func Error(msg string) { emit("ERROR", msg) }

func Debugf(format string, args ...any) { Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)) }
