package trace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/codewright/codewright/internal/bus"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]kafka.Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_KeysMessagesBySession(t *testing.T) {
	fake := &fakeWriter{}
	pub := &Publisher{writer: fake}

	ev := bus.Event{
		Kind:      bus.EventToolEnd,
		SessionID: "s-123",
		Data:      map[string]any{"tool": "bash", "ok": true},
	}
	if err := pub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs := fake.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if string(msgs[0].Key) != "s-123" {
		t.Errorf("message key = %q, want session id", msgs[0].Key)
	}
	if len(msgs[0].Headers) != 1 || string(msgs[0].Headers[0].Value) != string(bus.EventToolEnd) {
		t.Errorf("unexpected headers: %+v", msgs[0].Headers)
	}

	var decoded bus.Event
	if err := json.Unmarshal(msgs[0].Value, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded.Kind != bus.EventToolEnd || decoded.SessionID != "s-123" {
		t.Errorf("payload round-trip mismatch: %+v", decoded)
	}
	if decoded.Data["tool"] != "bash" {
		t.Errorf("payload data lost: %+v", decoded.Data)
	}
}

func TestPublisher_WrapsWriteError(t *testing.T) {
	fake := &fakeWriter{err: errors.New("broker unreachable")}
	pub := &Publisher{writer: fake}

	err := pub.Publish(context.Background(), bus.Event{Kind: bus.EventWarning, SessionID: "s"})
	if err == nil || !strings.Contains(err.Error(), "publish trace event") {
		t.Errorf("expected wrapped publish error, got %v", err)
	}
}

func TestRelay_ForwardsBusEvents(t *testing.T) {
	b := bus.New()
	defer b.Close()
	fake := &fakeWriter{}
	relay := NewRelay(b, &Publisher{writer: fake}, discardLogger())
	relay.Start(context.Background())

	for i := 0; i < 3; i++ {
		b.Publish(bus.Event{Kind: bus.EventCycleStart, SessionID: "s-1", Data: map[string]any{"cycle": i}})
	}
	relay.Stop()

	msgs := fake.messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 forwarded messages, got %d", len(msgs))
	}
	for _, msg := range msgs {
		if string(msg.Key) != "s-1" {
			t.Errorf("message key = %q", msg.Key)
		}
	}
	if !fake.closed {
		t.Error("Stop did not close the publisher")
	}
}

func TestRelay_StopWithoutEvents(t *testing.T) {
	b := bus.New()
	defer b.Close()
	fake := &fakeWriter{}
	relay := NewRelay(b, &Publisher{writer: fake}, discardLogger())
	relay.Start(context.Background())
	relay.Stop()

	if got := len(fake.messages()); got != 0 {
		t.Errorf("expected no messages, got %d", got)
	}
	if !fake.closed {
		t.Error("publisher not closed")
	}
}
