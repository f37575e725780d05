package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// MessageLog represents a single processed-message audit entry,
// written independently of the operational logger so per-message
// volume never drowns out daemon-level events.
type MessageLog struct {
	Timestamp  time.Time `json:"timestamp"`
	MessageID  string    `json:"message_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	ActorType  string    `json:"actor_type"`
	ActorID    string    `json:"actor_id"`
	Activity   string    `json:"activity,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	ColdStart  bool      `json:"cold_start"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Suspended  bool      `json:"suspended,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
}

// Logger handles message-level audit logging, separate from the
// operational logger in slog.go.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLogger = &Logger{enabled: true, console: true}

// Default returns the default message logger.
func Default() *Logger {
	return defaultLogger
}

// SetOutput sets the log output file.
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables console output.
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a message audit entry.
func (l *Logger) Log(entry *MessageLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "ok"
		if !entry.Success {
			status = "fail"
		}
		cold := ""
		if entry.ColdStart {
			cold = " [cold]"
		}
		suspended := ""
		if entry.Suspended {
			suspended = " [suspended]"
		}
		retry := ""
		if entry.Attempt > 0 {
			retry = fmt.Sprintf(" [attempt:%d]", entry.Attempt)
		}
		fmt.Printf("[message] %s %s %s/%s %dms%s%s%s\n",
			status, entry.MessageID, entry.ActorType, entry.ActorID, entry.DurationMs, cold, suspended, retry)
		if entry.Error != "" {
			fmt.Printf("[message]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
