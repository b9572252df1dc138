package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger writes timestamped workflow traces. A nil pointer and a
// logger without a writer both discard everything.
type DebugLogger struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	now func() time.Time
}

// NewWriterLogger traces to w. Close does not close w.
func NewWriterLogger(w io.Writer) *DebugLogger {
	return &DebugLogger{w: w, now: time.Now}
}

// NewDebugLogger appends to logPath, creating parent directories.
// An empty path yields a no-op logger.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return NopLogger(), nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &DebugLogger{w: f, c: f, now: time.Now}
	l.Log("--- session %s (pid %d) ---", l.now().Format(time.RFC3339), os.Getpid())
	return l, nil
}

// DebugLogPath returns the debug log location under a project directory.
func DebugLogPath(projectDir string) string {
	return filepath.Join(projectDir, ".waypoint", "logs", "orchestrator-debug.log")
}

// NewDebugLoggerForDir logs to DebugLogPath(projectDir), or nowhere when the
// file cannot be opened.
func NewDebugLoggerForDir(projectDir string) *DebugLogger {
	l, err := NewDebugLogger(DebugLogPath(projectDir))
	if err != nil {
		return NopLogger()
	}
	return l
}

// NopLogger discards everything.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes one timestamped line.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return
	}
	fmt.Fprintf(l.w, "%s %s\n", l.now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	if f, ok := l.w.(*os.File); ok {
		f.Sync()
	}
}

// Close releases the log file. Later calls to Log are dropped.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w = nil
	if l.c == nil {
		return nil
	}
	err := l.c.Close()
	l.c = nil
	return err
}
