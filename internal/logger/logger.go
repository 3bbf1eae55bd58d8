// Package logger provides the process-wide diagnostic logger. Console
// output always goes to stderr: the stdio transport owns stdout, and a
// single stray line there corrupts the protocol stream.
package logger

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	instance *Logger
	once     sync.Once
)

// Logger handles leveled logging to stderr and an optional daily file.
// Exactly one backend is set: the prefixed text loggers, or slogger
// when JSON output is enabled.
type Logger struct {
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	slogger     *slog.Logger
	logFile     *os.File
	debug       bool
	mu          sync.Mutex
}

// Init initializes the global logger instance. An empty logDir disables
// the file sink; jsonOutput switches both sinks to structured records.
// Safe to call more than once; only the first call wins.
func Init(logDir string, debug, jsonOutput bool) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(logDir, debug, jsonOutput)
	})
	return initErr
}

// newLogger creates a logger writing to stderr and optionally a file.
func newLogger(logDir string, debug, jsonOutput bool) (*Logger, error) {
	var w io.Writer = os.Stderr
	var logFile *os.File

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		logFileName := fmt.Sprintf("arcade-mcp-%s.log", time.Now().Format("2006-01-02"))
		logFilePath := filepath.Join(logDir, logFileName)

		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		w = io.MultiWriter(os.Stderr, f)
	}

	if jsonOutput {
		return &Logger{
			slogger: newJSONLogger(w),
			logFile: logFile,
			debug:   debug,
		}, nil
	}

	return &Logger{
		debugLogger: log.New(w, "DEBUG: ", log.LstdFlags),
		infoLogger:  log.New(w, "", log.LstdFlags),
		warnLogger:  log.New(w, "WARN: ", log.LstdFlags),
		errorLogger: log.New(w, "ERROR: ", log.LstdFlags),
		logFile:     logFile,
		debug:       debug,
	}, nil
}

// SetDebug toggles debug output at runtime.
func SetDebug(enabled bool) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.debug = enabled
	}
}

// Close closes the log file.
func Close() error {
	if instance != nil && instance.logFile != nil {
		return instance.logFile.Close()
	}
	return nil
}

// Debug logs a debug message when debug output is enabled.
func Debug(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		if instance.debug {
			instance.logf(slog.LevelDebug, instance.debugLogger, format, v...)
		}
	}
}

// Info logs an informational message.
func Info(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.logf(slog.LevelInfo, instance.infoLogger, format, v...)
	}
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.logf(slog.LevelWarn, instance.warnLogger, format, v...)
	}
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.logf(slog.LevelError, instance.errorLogger, format, v...)
	}
}

// Fatal logs a fatal error and exits.
func Fatal(v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		if instance.slogger != nil {
			instance.slogger.Error(fmt.Sprint(v...))
			os.Exit(1)
		}
		instance.errorLogger.Fatal(v...)
		instance.mu.Unlock()
	} else {
		log.Fatal(v...)
	}
}

// Fatalf logs a formatted fatal error and exits.
func Fatalf(format string, v ...interface{}) {
	if instance != nil {
		instance.mu.Lock()
		if instance.slogger != nil {
			instance.slogger.Error(fmt.Sprintf(format, v...))
			os.Exit(1)
		}
		instance.errorLogger.Fatalf(format, v...)
		instance.mu.Unlock()
	} else {
		log.Fatalf(format, v...)
	}
}
