package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// sink is shared by a logger and every component logger derived from it.
type sink struct {
	mu      sync.Mutex
	writer  io.Writer
	errOut  io.Writer
	fileLog *os.File
	hasBar  bool
}

// Logger handles leveled logging with optional file output
type Logger struct {
	Verbose bool
	prefix  string
	out     *sink
}

// New creates a new Logger instance writing to stdout and stderr
func New(verbose bool) *Logger {
	return &Logger{
		Verbose: verbose,
		out:     &sink{writer: os.Stdout, errOut: os.Stderr},
	}
}

// NewWriter creates a Logger that writes every level to w
func NewWriter(w io.Writer, verbose bool) *Logger {
	return &Logger{
		Verbose: verbose,
		out:     &sink{writer: w, errOut: w},
	}
}

// Discard returns a Logger that drops everything
func Discard() *Logger {
	return NewWriter(io.Discard, false)
}

// With returns a logger that prefixes every message with [component]
func (l *Logger) With(component string) *Logger {
	prefix := "[" + component + "] "
	if l.prefix != "" {
		prefix = l.prefix + prefix
	}
	return &Logger{Verbose: l.Verbose, prefix: prefix, out: l.out}
}

// SetFileLog enables logging to a file
func (l *Logger) SetFileLog(path string) error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.out.fileLog = f
	return nil
}

// SetProgressBar indicates that a progress bar is active
func (l *Logger) SetProgressBar(active bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.hasBar = active
}

// Close closes the log file if open
func (l *Logger) Close() error {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.fileLog != nil {
		err := l.out.fileLog.Close()
		l.out.fileLog = nil
		return err
	}
	return nil
}

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

// Debug logs detailed messages only in verbose mode
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.Verbose {
		l.log("DEBUG", format, args...)
		return
	}
	// debug always reaches the file log
	l.logToFile("DEBUG", format, args...)
}

// Error logs error messages to stderr
func (l *Logger) Error(format string, args ...interface{}) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	msg := fmt.Sprintf("[ERROR] "+l.prefix+format+"\n", args...)
	fmt.Fprint(l.out.errOut, msg)

	if l.out.fileLog != nil {
		l.out.fileLog.WriteString(msg)
	}
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log("WARN", format, args...)
}

func (l *Logger) log(level, format string, args ...interface{}) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	var msg string
	if level == "INFO" {
		msg = fmt.Sprintf(l.prefix+format+"\n", args...)
	} else {
		msg = fmt.Sprintf("["+level+"] "+l.prefix+format+"\n", args...)
	}

	// stdout stays quiet under a progress bar unless verbose
	if l.Verbose || !l.out.hasBar {
		fmt.Fprint(l.out.writer, msg)
	}

	if l.out.fileLog != nil {
		l.out.fileLog.WriteString(msg)
	}
}

func (l *Logger) logToFile(level, format string, args ...interface{}) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	if l.out.fileLog != nil {
		msg := fmt.Sprintf("["+level+"] "+l.prefix+format+"\n", args...)
		l.out.fileLog.WriteString(msg)
	}
}
