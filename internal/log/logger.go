// Package log implements leveled logging to the console and a log file.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

type LogLevel int

// The level of visibility of the log output.
// ERROR is the lowest level, VERBOSE is the highest and it increases in the order that it is written.
const (
	ERROR LogLevel = iota
	WARN
	INFO
	DEBUG
	VERBOSE
)

var levelNames = []string{"ERROR", "WARN", "INFO", "DEBUG", "VERBOSE"}

func (l LogLevel) String() string {
	if l < ERROR || l > VERBOSE {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel converts a level name (case insensitive) to a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	for i, n := range levelNames {
		if strings.EqualFold(n, name) {
			return LogLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// Logger writes formatted log lines at or below its level to its writer.
type Logger struct {
	mu        sync.Mutex
	name      string
	level     LogLevel
	formatter Formatter
	logFile   *os.File
	logWriter io.Writer
	owner     bool
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New("", ERROR, io.Discard)
)

// New creates a Logger writing to w with the default format.
func New(name string, level LogLevel, w io.Writer) *Logger {
	return &Logger{
		name:      name,
		level:     level,
		formatter: DefaultFormatter(),
		logWriter: w,
	}
}

// NewLogger creates a Logger that writes to the file at filePath and, unless
// disableConsole is set, to stdout. The file is truncated. Its configuration
// is stored so that FromName can append to the same file from another
// process.
func NewLogger(name string, level LogLevel, filePath string, disableConsole bool) (*Logger, error) {
	if filePath == "" {
		filePath = os.DevNull
	}
	logFile, err := os.OpenFile(filePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	l := New(name, level, writerFor(logFile, disableConsole))
	l.logFile = logFile
	l.owner = true
	conf := LogConf{LogLevel: level, FilePath: filePath, FormatStr: DefaultFormat}
	if err := conf.Write(name); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("write log conf: %w", err)
	}
	return l, nil
}

// FromName attaches to the log file of a running Logger with the given name.
// If there is none, a console-only Logger at INFO is returned.
func FromName(name string) *Logger {
	conf, err := ConfRead(name)
	if err != nil {
		return New(name, INFO, os.Stdout)
	}
	logFile, err := os.OpenFile(conf.FilePath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return New(name, conf.LogLevel, os.Stdout)
	}
	l := New(name, conf.LogLevel, writerFor(logFile, false))
	if f, err := NewFormatter(conf.FormatStr); err == nil {
		l.formatter = f
	}
	l.logFile = logFile
	return l
}

func writerFor(logFile *os.File, disableConsole bool) io.Writer {
	if disableConsole {
		return logFile
	}
	return io.MultiWriter(logFile, os.Stdout)
}

// SetDefault installs the Logger used by the package-level functions.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the Logger used by the package-level functions. Until one
// is installed, everything logged through it is discarded.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLevel sets the log visibility level of the Logger instance.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Write formats the message and writes it out.
func (l *Logger) Write(level LogLevel, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level < level {
		return nil
	}
	line := l.formatter.Format(l.name, level.String(), message)
	if _, err := io.WriteString(l.logWriter, line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func (l *Logger) log(level LogLevel, message string, args []any) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	if err := l.Write(level, message); err != nil {
		fmt.Fprintf(os.Stderr, "Failed log write: %s\n", err)
	}
}

// Error logs at the ERROR level.
func (l *Logger) Error(message string, args ...any) {
	l.log(ERROR, message, args)
}

// Warn logs at the WARN level.
func (l *Logger) Warn(message string, args ...any) {
	l.log(WARN, message, args)
}

// Info logs at the INFO level.
func (l *Logger) Info(message string, args ...any) {
	l.log(INFO, message, args)
}

// Debug logs at the DEBUG level.
func (l *Logger) Debug(message string, args ...any) {
	l.log(DEBUG, message, args)
}

// Verbose logs at the VERBOSE level.
func (l *Logger) Verbose(message string, args ...any) {
	l.log(VERBOSE, message, args)
}

// Close closes the log file. A Logger created by NewLogger also removes its
// stored configuration.
func (l *Logger) Close() error {
	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	if l.owner {
		conf := LogConf{}
		if rmErr := conf.Remove(l.name); err == nil {
			err = rmErr
		}
	}
	return err
}

// Error logs to the default Logger.
func Error(message string, args ...any) {
	Default().Error(message, args...)
}

// Warn logs to the default Logger.
func Warn(message string, args ...any) {
	Default().Warn(message, args...)
}

// Info logs to the default Logger.
func Info(message string, args ...any) {
	Default().Info(message, args...)
}

// Debug logs to the default Logger.
func Debug(message string, args ...any) {
	Default().Debug(message, args...)
}

// Verbose logs to the default Logger.
func Verbose(message string, args ...any) {
	Default().Verbose(message, args...)
}
