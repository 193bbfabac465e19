package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesFieldsAtLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Debug("hidden")
	l.Info("index computed", Int64("item_id", 7), Date("date", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)), Error(errors.New("late")))

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level: %s", out)
	}
	for _, want := range []string{`"item_id":7`, `"date":"2024-03-01"`, `"error":"late"`, `"message":"index computed"`, "logger_test.go"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
}

func TestLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoggerFeedsCollectorWithCaller(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Publisher: pub, Levels: []string{"error"}})

	l.Error("insert failed", Int("rows", 3), Error(nil))
	l.Info("not collected")
	l.RemoveCollector()

	got := pub.entries()
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	if !strings.HasPrefix(got[0].Caller, "logger/logger_test.go:") {
		t.Fatalf("caller = %q", got[0].Caller)
	}
}
