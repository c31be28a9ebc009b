package event

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/roomkit/internal/errors"
	"github.com/Iron-Ham/roomkit/internal/logging"
)

func TestLogReporter(t *testing.T) {
	dir := t.TempDir()
	logger, err := logging.NewLogger(dir, logging.LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	bus := NewBus(WithLogger(logger), WithMaxListeners(1))
	_, _ = bus.SubscribeFunc("x", func(any) error { return fmt.Errorf("bad") })
	_, _ = bus.SubscribeFunc("x", func(any) error { panic("worse") })
	bus.Publish("x", nil)
	_ = logger.Close()

	content, err := os.ReadFile(filepath.Join(dir, logging.LogFileName))
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}

	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		if entry["component"] != "bus" {
			t.Errorf("entry missing component=bus: %v", entry)
		}
		msgs = append(msgs, fmt.Sprintf("%s %s", entry["level"], entry["msg"]))
	}

	for _, want := range []string{
		"WARN possible listener leak: max listeners exceeded",
		"WARN listener failed",
		"ERROR listener panicked",
	} {
		found := false
		for _, m := range msgs {
			if m == want {
				found = true
			}
		}
		if !found {
			t.Errorf("log missing %q; got %v", want, msgs)
		}
	}
}

func TestLogReporter_LevelFollowsSeverity(t *testing.T) {
	tests := []struct {
		name  string
		err   *errors.ListenerError
		level string
	}{
		{"returned error", errors.NewListenerError("x", fmt.Errorf("bad")), "WARN"},
		{"panic", errors.NewListenerPanicError("x", "worse", nil), "ERROR"},
		{"lowered severity", errors.NewListenerError("x", fmt.Errorf("expected")).WithSeverity(errors.SeverityInfo), "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			logger, err := logging.NewLogger(dir, logging.LevelDebug)
			if err != nil {
				t.Fatalf("NewLogger failed: %v", err)
			}
			NewLogReporter(logger).ListenerFailed(tt.err)
			_ = logger.Close()

			content, err := os.ReadFile(filepath.Join(dir, logging.LogFileName))
			if err != nil {
				t.Fatalf("failed to read log: %v", err)
			}
			var entry map[string]any
			if err := json.Unmarshal([]byte(strings.TrimSpace(string(content))), &entry); err != nil {
				t.Fatalf("invalid JSON %q: %v", content, err)
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
		})
	}
}

func TestNewLogReporter_NilLogger(t *testing.T) {
	r := NewLogReporter(nil)
	r.ListenerFailed(errors.NewListenerError("x", fmt.Errorf("ignored")))
	r.MaxListenersExceeded("x", 2, 1)
}

func TestStats(t *testing.T) {
	stats := NewStats()
	bus := NewBus(WithReporter(stats), WithMaxListeners(2))

	_, _ = bus.SubscribeFunc("x", func(any) error { return nil })
	_, _ = bus.SubscribeFunc("x", func(any) error { return fmt.Errorf("bad") })
	_, _ = bus.SubscribeFunc("x", func(any) error { panic("worse") })

	bus.Publish("x", nil)
	bus.Publish("x", nil)
	bus.Publish("y", nil)

	s := stats.Snapshot()
	if s.Published != 3 {
		t.Errorf("Published = %d, want 3", s.Published)
	}
	if s.Unheard != 1 {
		t.Errorf("Unheard = %d, want 1", s.Unheard)
	}
	if s.Delivered != 6 {
		t.Errorf("Delivered = %d, want 6", s.Delivered)
	}
	if s.Failed != 4 || s.Panicked != 2 {
		t.Errorf("Failed, Panicked = %d, %d; want 4, 2", s.Failed, s.Panicked)
	}
	if s.CapWarnings != 1 {
		t.Errorf("CapWarnings = %d, want 1", s.CapWarnings)
	}
	if s.PublishedByName["x"] != 2 || s.PublishedByName["y"] != 1 {
		t.Errorf("PublishedByName = %v", s.PublishedByName)
	}

	s.PublishedByName["x"] = 100
	if stats.Snapshot().PublishedByName["x"] != 2 {
		t.Error("Snapshot must return a copy")
	}
}

func TestMultiReporter(t *testing.T) {
	rec := &recordingReporter{}
	stats := NewStats()
	bus := NewBus(WithReporter(MultiReporter{rec, stats}), WithMaxListeners(1))

	_, _ = bus.SubscribeFunc("x", func(any) error { return fmt.Errorf("bad") })
	_, _ = bus.SubscribeFunc("x", func(any) error { return nil })
	bus.Publish("x", nil)

	if len(rec.Failures()) != 1 {
		t.Errorf("recording reporter failures = %d, want 1", len(rec.Failures()))
	}
	if len(rec.capHits) != 1 {
		t.Errorf("recording reporter cap hits = %d, want 1", len(rec.capHits))
	}

	s := stats.Snapshot()
	if s.Failed != 1 || s.CapWarnings != 1 || s.Delivered != 2 {
		t.Errorf("stats = %+v", s)
	}
}
