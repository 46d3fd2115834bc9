// Package events emits batch lifecycle events to Kafka so downstream
// systems (billing, reporting) learn about created orders without polling.
//
// Publishing is optional and best effort: when no broker is configured the
// service uses the Noop publisher, and publish failures are logged by the
// caller rather than failing the batch.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
)

// EventBatchCompleted is emitted once per finished batch, whatever its
// final status.
const EventBatchCompleted = "batch.completed"

// Writer is the subset of kafka.Writer the publisher needs. Tests inject
// a recording fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BatchEvent is the wire shape of a batch lifecycle event.
type BatchEvent struct {
	Event      string    `json:"event"`
	BatchID    string    `json:"batchId"`
	Status     string    `json:"status"`
	TotalLines int       `json:"totalLines"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Cancelled  bool      `json:"cancelled"`
	DurationMs int64     `json:"durationMs"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher writes batch events to one Kafka topic, keyed by batch id so
// events for the same batch stay ordered within a partition.
type Publisher struct {
	writer Writer
	logger *slog.Logger
}

// NewPublisher connects a publisher to the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return newPublisher(w, logger)
}

// NewPublisherWithWriter injects a custom writer, mainly for tests.
func NewPublisherWithWriter(w Writer, logger *slog.Logger) *Publisher {
	return newPublisher(w, logger)
}

func newPublisher(w Writer, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{writer: w, logger: logger}
}

// RecordBatch publishes a batch.completed event for the finished batch.
// It implements dispatch.Recorder.
func (p *Publisher) RecordBatch(ctx context.Context, result dispatch.BatchResult) error {
	event := BatchEvent{
		Event:      EventBatchCompleted,
		BatchID:    result.BatchID,
		Status:     string(result.Status()),
		TotalLines: result.TotalLines,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Cancelled:  result.Cancelled,
		DurationMs: result.DurationMs,
		OccurredAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode batch event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(result.BatchID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(EventBatchCompleted)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish batch event: %w", err)
	}

	p.logger.Debug("batch event published",
		"batch_id", result.BatchID,
		"status", event.Status,
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Noop is the publisher used when eventing is disabled.
type Noop struct{}

// RecordBatch discards the result.
func (Noop) RecordBatch(context.Context, dispatch.BatchResult) error { return nil }

// Close does nothing.
func (Noop) Close() error { return nil }
