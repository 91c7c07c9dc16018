package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"phantom/internal/failure"
)

const (
	StatusStart = "start"
	StatusOK    = "ok"
	StatusError = "error"
)

// Logger appends one JSON object per line to the audit log.
type Logger struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

type Event struct {
	Timestamp string            `json:"timestamp"`
	Operation string            `json:"operation"`
	Phase     string            `json:"phase"`
	Status    string            `json:"status"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func New(path string) *Logger {
	return &Logger{path: path, now: time.Now}
}

func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

func (l *Logger) Log(ev Event) error {
	if l == nil || l.path == "" {
		return nil
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	ev.Timestamp = now().UTC().Format(time.RFC3339Nano)
	blob, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(blob, '\n'))
	return err
}

// Outcome logs the end of an operation phase: ok when err is nil, otherwise
// error with the failure code and message.
func (l *Logger) Outcome(operation, phase string, err error, fields map[string]string) error {
	ev := Event{Operation: operation, Phase: phase, Status: StatusOK, Fields: fields}
	if err != nil {
		ev.Status = StatusError
		ev.Code = failure.CodeOf(err)
		ev.Message = err.Error()
	}
	return l.Log(ev)
}
