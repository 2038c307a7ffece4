package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, nil)
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher counters must be zero")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a buffer of one")
	}

	close(sink.release)
	d.Close()

	if got := d.Delivered() + d.Dropped(); got != 20 {
		t.Fatalf("every event must be delivered or dropped, got %d", got)
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	ch := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, ch)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "session_locked"})
	}
	d.Close()

	if d.Delivered() != 5 {
		t.Fatalf("expected 5 delivered events, got %d", d.Delivered())
	}
	d.Emit(context.Background(), Event{EventType: "late"})
	if d.Delivered() != 5 {
		t.Fatal("emit after close must be ignored")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Unix(0, 0).UTC(),
		EventType: "logout_manual",
		UserID:    "u1",
		Success:   true,
	})

	var decoded Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if decoded.EventType != "logout_manual" || decoded.UserID != "u1" {
		t.Fatalf("unexpected event: %+v", decoded)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{EventType: "unlock_success", Success: true})
	sink.Emit(context.Background(), Event{EventType: "unlock_failure", Error: "invalid_credentials"})

	out := buf.String()
	if strings.Contains(out, "unlock_success") {
		t.Fatal("successful events log at Info and must be filtered at Warn")
	}
	if !strings.Contains(out, "unlock_failure") || !strings.Contains(out, "invalid_credentials") {
		t.Fatalf("failure event missing from output: %q", out)
	}
}
