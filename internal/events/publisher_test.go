package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ============================================================================
// Publisher
// ============================================================================

func TestPublisher_RecordBatch(t *testing.T) {
	fw := &fakeWriter{}
	pub := NewPublisherWithWriter(fw, discardLogger())

	result := dispatch.BatchResult{
		BatchID:    "4f81c2e0-0b56-4d88-9f52-1af6cbe1a001",
		TotalLines: 3,
		Succeeded:  2,
		Failed:     1,
		DurationMs: 1500,
	}
	if err := pub.RecordBatch(context.Background(), result); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}

	if len(fw.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(fw.messages))
	}
	msg := fw.messages[0]
	if string(msg.Key) != result.BatchID {
		t.Errorf("Key = %q, want %q", msg.Key, result.BatchID)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != "event" {
		t.Fatalf("Headers = %+v, want one event header", msg.Headers)
	}
	if got := string(msg.Headers[0].Value); got != EventBatchCompleted {
		t.Errorf("event header = %q, want %q", got, EventBatchCompleted)
	}

	var event BatchEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if event.Event != EventBatchCompleted {
		t.Errorf("Event = %q, want %q", event.Event, EventBatchCompleted)
	}
	if event.BatchID != result.BatchID {
		t.Errorf("BatchID = %q, want %q", event.BatchID, result.BatchID)
	}
	if event.Status != string(dispatch.StatusPartialFailure) {
		t.Errorf("Status = %q, want %q", event.Status, dispatch.StatusPartialFailure)
	}
	if event.TotalLines != 3 || event.Succeeded != 2 || event.Failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1",
			event.TotalLines, event.Succeeded, event.Failed)
	}
	if event.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", event.DurationMs)
	}
	if event.OccurredAt.IsZero() {
		t.Error("OccurredAt is zero")
	}
}

func TestPublisher_RecordBatchCancelled(t *testing.T) {
	fw := &fakeWriter{}
	pub := NewPublisherWithWriter(fw, discardLogger())

	result := dispatch.BatchResult{
		BatchID:    "9a1b7c44-2f10-4f4e-8a31-55de0fe1b002",
		TotalLines: 5,
		Succeeded:  2,
		Failed:     0,
		Cancelled:  true,
	}
	if err := pub.RecordBatch(context.Background(), result); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}

	var event BatchEvent
	if err := json.Unmarshal(fw.messages[0].Value, &event); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !event.Cancelled {
		t.Error("Cancelled = false, want true")
	}
	if event.Status != string(dispatch.StatusCancelled) {
		t.Errorf("Status = %q, want %q", event.Status, dispatch.StatusCancelled)
	}
}

func TestPublisher_WriteFailure(t *testing.T) {
	writeErr := errors.New("broker unreachable")
	fw := &fakeWriter{err: writeErr}
	pub := NewPublisherWithWriter(fw, discardLogger())

	err := pub.RecordBatch(context.Background(), dispatch.BatchResult{BatchID: "b1"})
	if err == nil {
		t.Fatal("RecordBatch() error = nil, want failure")
	}
	if !errors.Is(err, writeErr) {
		t.Errorf("error = %v, want wrapped %v", err, writeErr)
	}
}

func TestPublisher_Close(t *testing.T) {
	fw := &fakeWriter{}
	pub := NewPublisherWithWriter(fw, discardLogger())

	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fw.closed {
		t.Error("writer not closed")
	}
}

func TestNoop(t *testing.T) {
	var pub Noop
	if err := pub.RecordBatch(context.Background(), dispatch.BatchResult{}); err != nil {
		t.Errorf("RecordBatch() error = %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
