// Package logging renders structured log entries as NDJSON when the
// destination isn't a terminal (log aggregation sinks, redirected
// files) and as dimmed human-readable lines when it is, splitting
// machine and interactive consumers the same way across every
// component's ambient logging.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// Level is a log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one structured log record.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger writes Entry records to an underlying writer, in NDJSON or
// human-readable form depending on whether that writer is a terminal.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	encoder   *json.Encoder
	human     bool
	component string
	now       func() time.Time
}

// New builds a Logger over out, auto-detecting TTY-ness when out is
// an *os.File.
func New(out io.Writer, component string) *Logger {
	return &Logger{
		out:       out,
		encoder:   json.NewEncoder(out),
		human:     isTerminal(out),
		component: component,
		now:       time.Now,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// With returns a Logger scoped to a different component name, sharing
// the same output and mode.
func (l *Logger) With(component string) *Logger {
	return &Logger{out: l.out, encoder: l.encoder, human: l.human, component: component, now: l.now}
}

func (l *Logger) Debug(msg string, fields map[string]interface{}) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields map[string]interface{})  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields map[string]interface{})  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields map[string]interface{}) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, fields map[string]interface{}) {
	entry := Entry{Timestamp: l.now(), Level: level, Component: l.component, Message: msg, Fields: fields}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.human {
		l.writeHuman(entry)
		return
	}
	_ = l.encoder.Encode(entry)
}

func levelColor(level Level) string {
	switch level {
	case LevelError:
		return "\033[31m"
	case LevelWarn:
		return "\033[33m"
	default:
		return "\033[90m"
	}
}

func (l *Logger) writeHuman(e Entry) {
	const reset = "\033[0m"
	ts := e.Timestamp.Format("15:04:05")
	if e.Component != "" {
		fmt.Fprintf(l.out, "%s[%s] %-5s %s: %s%s\n", levelColor(e.Level), ts, levelLabel(e.Level), e.Component, e.Message, reset)
	} else {
		fmt.Fprintf(l.out, "%s[%s] %-5s %s%s\n", levelColor(e.Level), ts, levelLabel(e.Level), e.Message, reset)
	}
	for k, v := range e.Fields {
		fmt.Fprintf(l.out, "%s    %s=%v%s\n", levelColor(e.Level), k, v, reset)
	}
}

func levelLabel(l Level) string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}
