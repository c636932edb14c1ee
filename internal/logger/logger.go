package logger

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Logger writes one JSON object per line.
// Every entry gets a "ts" in the configured location and a "level"
// derived from "status" when the caller did not set one.
// It is safe for concurrent use.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
	loc *time.Location
}

// New creates a Logger writing to out. A nil loc means UTC.
func New(out io.Writer, loc *time.Location) *Logger {
	if loc == nil {
		loc = time.UTC
	}
	return &Logger{out: out, loc: loc}
}

// Stdout is a Logger writing to standard output.
func Stdout(loc *time.Location) *Logger {
	return New(os.Stdout, loc)
}

// Location returns the time zone used for timestamps.
func (l *Logger) Location() *time.Location {
	return l.loc
}

// Log writes data as a single JSON line. The map is modified in place.
func (l *Logger) Log(data map[string]any) {
	data["ts"] = time.Now().In(l.loc).Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		b, _ = json.Marshal(map[string]any{
			"ts":    data["ts"],
			"level": "error",
			"msg":   "log_marshal_failed",
			"error": err.Error(),
		})
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(b)
}

// Info logs msg with the given fields at info level.
func (l *Logger) Info(msg string, fields map[string]any) {
	l.Log(entry("info", msg, nil, fields))
}

// Error logs msg and err with the given fields at error level.
func (l *Logger) Error(msg string, err error, fields map[string]any) {
	l.Log(entry("error", msg, err, fields))
}

func entry(level, msg string, err error, fields map[string]any) map[string]any {
	data := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		data[k] = v
	}
	data["level"] = level
	data["msg"] = msg
	if err != nil {
		data["error"] = err.Error()
	}
	return data
}
