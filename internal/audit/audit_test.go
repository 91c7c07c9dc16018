package audit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"phantom/internal/failure"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var out []Event
	for _, line := range strings.Split(strings.TrimSpace(string(blob)), "\n") {
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("unmarshal event %q: %v", line, err)
		}
		out = append(out, ev)
	}
	return out
}

func TestLogNoopForNilLoggerAndEmptyPath(t *testing.T) {
	var nilLogger *Logger
	if err := nilLogger.Log(Event{Operation: "revision"}); err != nil {
		t.Fatalf("nil logger should be noop: %v", err)
	}
	if err := New("").Outcome("revision", "engine", nil, nil); err != nil {
		t.Fatalf("empty-path logger should be noop: %v", err)
	}
}

func TestLogWritesJSONLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit", "audit.log")
	logger := New(logPath)
	logger.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := logger.Log(Event{Operation: "revision", Phase: "session", Status: StatusStart, Fields: map[string]string{"journal": "v.jsonl"}}); err != nil {
		t.Fatalf("log first event: %v", err)
	}
	if err := logger.Outcome("revision", "session", nil, nil); err != nil {
		t.Fatalf("log second event: %v", err)
	}

	events := readEvents(t, logPath)
	if len(events) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(events))
	}
	if events[0].Timestamp != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp %q", events[0].Timestamp)
	}
	if events[0].Status != StatusStart || events[0].Fields["journal"] != "v.jsonl" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Status != StatusOK || events[1].Code != "" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}

func TestOutcomeRecordsFailureCode(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger := New(logPath)
	err := failure.Wrap(errors.New("exit status 1"), failure.KindEngine, "ENG_REVISION", "")
	if err := logger.Outcome("revision", "engine", err, nil); err != nil {
		t.Fatalf("log outcome: %v", err)
	}
	events := readEvents(t, logPath)
	if events[0].Status != StatusError || events[0].Code != "ENG_REVISION" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if !strings.Contains(events[0].Message, "exit status 1") {
		t.Fatalf("expected cause in message: %q", events[0].Message)
	}
}

func TestLogMkdirAllFailure(t *testing.T) {
	tmp := t.TempDir()
	blockedPath := filepath.Join(tmp, "blocked")
	if err := os.WriteFile(blockedPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("create blocking file: %v", err)
	}

	logger := New(filepath.Join(blockedPath, "audit.log"))
	if err := logger.Log(Event{Operation: "revision"}); err == nil {
		t.Fatalf("expected mkdir failure")
	}
}

func TestLogOpenFileFailure(t *testing.T) {
	dirPath := filepath.Join(t.TempDir(), "log-dir")
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		t.Fatalf("create directory path: %v", err)
	}
	if err := New(dirPath).Log(Event{Operation: "revision"}); err == nil {
		t.Fatalf("expected open file failure")
	}
}
