// Package logging provides categorized file-based debug logging for aide.
// Logs are written to <data dir>/logs/ with separate files per category.
// When debug mode is off every call is a silent no-op, so hot paths can log
// freely without guarding.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot        Category = "boot"        // Startup and wiring
	CategoryAPI         Category = "api"         // Completion API calls
	CategoryInterpreter Category = "interpreter" // Transcript -> structured command
	CategoryResolver    Category = "resolver"    // Reference -> item resolution
	CategoryLinks       Category = "links"       // Affinity scoring, link/unlink
	CategoryConfirm     Category = "confirm"     // Confirmation card lifecycle
	CategorySync        Category = "sync"        // Optimistic apply, reconciliation
	CategoryStore       Category = "store"       // Persistence operations
	CategorySpeech      Category = "speech"      // Capture sessions
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options controls logger behavior. Zero value disables logging entirely.
type Options struct {
	Enabled bool
	Level   string // debug, info, warn, error
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	enabled   bool
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory. Should be called once at
// startup; calls before Initialize (or with Enabled false) are no-ops.
func Initialize(dataDir string, opts Options) error {
	enabled = opts.Enabled
	logLevel = parseLevel(opts.Level)
	if !enabled {
		return nil
	}
	if dataDir == "" {
		return fmt.Errorf("data directory required")
	}

	logsDir = filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== aide logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Level: %s", opts.Level)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging is disabled.
func Get(category Category) *Logger {
	if !enabled || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - quick logging without getting a logger first.
// These are no-ops when logging is disabled.
// =============================================================================

// Interpreter logs to the interpreter category.
func Interpreter(format string, args ...interface{}) {
	Get(CategoryInterpreter).Info(format, args...)
}

// InterpreterDebug logs debug to the interpreter category.
func InterpreterDebug(format string, args ...interface{}) {
	Get(CategoryInterpreter).Debug(format, args...)
}

// Resolver logs to the resolver category.
func Resolver(format string, args ...interface{}) {
	Get(CategoryResolver).Info(format, args...)
}

// ResolverDebug logs debug to the resolver category.
func ResolverDebug(format string, args ...interface{}) {
	Get(CategoryResolver).Debug(format, args...)
}

// Links logs to the links category.
func Links(format string, args ...interface{}) {
	Get(CategoryLinks).Info(format, args...)
}

// LinksDebug logs debug to the links category.
func LinksDebug(format string, args ...interface{}) {
	Get(CategoryLinks).Debug(format, args...)
}

// LinksWarn logs warning to the links category.
func LinksWarn(format string, args ...interface{}) {
	Get(CategoryLinks).Warn(format, args...)
}

// Confirm logs to the confirm category.
func Confirm(format string, args ...interface{}) {
	Get(CategoryConfirm).Info(format, args...)
}

// ConfirmDebug logs debug to the confirm category.
func ConfirmDebug(format string, args ...interface{}) {
	Get(CategoryConfirm).Debug(format, args...)
}

// Sync logs to the sync category.
func Sync(format string, args ...interface{}) {
	Get(CategorySync).Info(format, args...)
}

// SyncDebug logs debug to the sync category.
func SyncDebug(format string, args ...interface{}) {
	Get(CategorySync).Debug(format, args...)
}

// Store logs to the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// Speech logs to the speech category.
func Speech(format string, args ...interface{}) {
	Get(CategorySpeech).Info(format, args...)
}

// SpeechDebug logs debug to the speech category.
func SpeechDebug(format string, args ...interface{}) {
	Get(CategorySpeech).Debug(format, args...)
}

// API logs to the api category.
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category.
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
