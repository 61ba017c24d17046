package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func (s *blockingSink) Emit(_ context.Context, event Event) {
	<-s.release
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success", Success: true})
	}
	d.Close()

	if got := d.Delivered(); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
	for i := 0; i < 5; i++ {
		ev := <-sink.Events()
		if ev.Timestamp.IsZero() {
			t.Fatal("expected dispatcher to stamp timestamp")
		}
	}

	d.Emit(context.Background(), Event{EventType: "after_close"})
	if got := d.Delivered(); got != 5 {
		t.Fatalf("expected emit after close to be ignored, got %d delivered", got)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event may be held by the worker, one by the buffer; the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "signup_success"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected events to be dropped when buffer is full")
	}

	close(sink.release)
	d.Close()

	if d.Delivered()+d.Dropped() != 10 {
		t.Fatalf("expected delivered+dropped = 10, got %d+%d", d.Delivered(), d.Dropped())
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{EventType: "otp_verify", AccountID: "acc-1", Error: "invalid_otp"})

	var decoded Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if decoded.AccountID != "acc-1" || decoded.Error != "invalid_otp" {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{EventType: "login_success", Success: true, AccountID: "acc-1"})
	sink.Emit(context.Background(), Event{EventType: "login_failure", Error: "invalid_credentials", Metadata: map[string]string{"reason": "mismatch"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"level":"INFO"`) || !strings.Contains(lines[0], `"account_id":"acc-1"`) {
		t.Fatalf("unexpected success line: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"WARN"`) || !strings.Contains(lines[1], `"reason":"mismatch"`) {
		t.Fatalf("unexpected failure line: %s", lines[1])
	}
}

type panickySink struct {
	calls atomic.Int32
}

func (s *panickySink) Emit(context.Context, Event) {
	if s.calls.Add(1) == 1 {
		panic("sink exploded")
	}
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	sink := &panickySink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	d.Emit(context.Background(), Event{EventType: "first"})
	d.Emit(context.Background(), Event{EventType: "second"})
	d.Close()

	if d.SinkPanics() != 1 || d.Delivered() != 1 {
		t.Fatalf("expected 1 panic and 1 delivery, got %d and %d", d.SinkPanics(), d.Delivered())
	}
}

type deadlineSink struct {
	got chan bool
}

func (s *deadlineSink) Emit(ctx context.Context, _ Event) {
	_, ok := ctx.Deadline()
	s.got <- ok
}

func TestDispatcherSinkTimeout(t *testing.T) {
	sink := &deadlineSink{got: make(chan bool, 1)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, SinkTimeout: time.Second}, sink)
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()

	if !<-sink.got {
		t.Fatal("expected sink context to carry a deadline")
	}
}

func TestDispatcherCloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, NoOpSink{})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "late"})
	if d.Delivered() != 0 || d.Dropped() != 0 {
		t.Fatal("expected late emit to be ignored")
	}
}
