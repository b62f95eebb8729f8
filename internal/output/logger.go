package output

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	logger   *log.Logger
	loggerMu sync.Mutex
	logLevel = log.InfoLevel
	stderr   io.Writer = os.Stderr
	logOut             = stderr

	// JSONMode suppresses text output; commands emit a JSON envelope instead.
	JSONMode bool

	// Verbose enables debug-level output.
	Verbose bool
)

// Init initializes the global logger. Commands call it first in RunE.
func Init(verbose bool, jsonMode bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	Verbose = verbose
	JSONMode = jsonMode
	if verbose {
		logLevel = log.DebugLevel
	} else {
		logLevel = log.InfoLevel
	}
	logger = newLogger(logOut)
}

// SetOutput redirects text output, for tests. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if w == nil {
		w = stderr
	}
	logOut = w
	logger = newLogger(w)
}

func newLogger(w io.Writer) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: false,
		Level:           logLevel,
	})
	if NoColor() {
		l.SetStyles(plainStyles())
	}
	return l
}

func getLogger() *log.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = newLogger(logOut)
	}
	return logger
}

// Info prints an informational message.
func Info(msg string, keyvals ...any) {
	if JSONMode {
		return
	}
	getLogger().Info(msg, keyvals...)
}

// Warn prints a warning message.
func Warn(msg string, keyvals ...any) {
	if JSONMode {
		return
	}
	getLogger().Warn(msg, keyvals...)
}

// Error prints an error message.
func Error(msg string, keyvals ...any) {
	if JSONMode {
		return
	}
	getLogger().Error(msg, keyvals...)
}

// Debug prints a debug message (only visible with -v).
func Debug(msg string, keyvals ...any) {
	if JSONMode {
		return
	}
	getLogger().Debug(msg, keyvals...)
}

func prefixed(plain, fancy, msg string) string {
	if NoColor() {
		return plain + " " + msg
	}
	return fancy + " " + msg
}

// Success prints a success message with a checkmark prefix.
func Success(msg string, keyvals ...any) {
	if JSONMode {
		return
	}
	getLogger().Info(prefixed("[OK]", "✅", msg), keyvals...)
}

// Fail prints a failure message with an X prefix.
func Fail(msg string, keyvals ...any) {
	if JSONMode {
		return
	}
	getLogger().Error(prefixed("[FAIL]", "❌", msg), keyvals...)
}

// Skip prints a message for a deliberately untouched resource.
func Skip(msg string, keyvals ...any) {
	if JSONMode {
		return
	}
	getLogger().Info(prefixed("[SKIP]", "⏭️ ", msg), keyvals...)
}

// Simulated prints a dry-run action that was not sent to Azure.
func Simulated(msg string, keyvals ...any) {
	if JSONMode {
		return
	}
	getLogger().Info(prefixed("[DRY-RUN]", "🧪", msg), keyvals...)
}

// Step prints a step progress message.
func Step(msg string, keyvals ...any) {
	if JSONMode {
		return
	}
	getLogger().Info(prefixed(">>", "▸", msg), keyvals...)
}

// Print writes a pre-rendered block (such as a lipgloss summary) to the text
// output.
func Print(block string) {
	if JSONMode {
		return
	}
	loggerMu.Lock()
	w := logOut
	loggerMu.Unlock()
	_, _ = io.WriteString(w, block+"\n")
}
