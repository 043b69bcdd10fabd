// Package eventbus adapts segmentio/kafka-go into the Event Bus Adapter
// contract: a cookie-keyed producer and a per-consumer-group stream with
// explicit commit, so callers only advance offsets once they've actually
// finished processing.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Razz4780/allezon/internal/model"
)

// EventProducer publishes user-tag events onto the shared topic, keyed by
// cookie so every tag for a given user lands on the same partition (the
// ordering guarantee the Profile Updater and Aggregation Engines both
// depend on).
type EventProducer struct {
	writer         *kafka.Writer
	enqueueTimeout time.Duration
	log            *slog.Logger
}

// NewEventProducer does not dial; the writer connects to brokers on the
// first Produce call. deliveryTimeout is handed straight to the Kafka
// writer as its per-write timeout; enqueueTimeout bounds how long Produce
// itself waits before giving up, on top of any deadline on the caller's ctx.
func NewEventProducer(brokers []string, topic string, enqueueTimeout, deliveryTimeout time.Duration, log *slog.Logger) *EventProducer {
	return &EventProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: deliveryTimeout,
		},
		enqueueTimeout: enqueueTimeout,
		log:            log,
	}
}

// Produce publishes tag, blocking until the write is acknowledged or the
// configured enqueue timeout elapses. A saturated broker surfaces as an
// error here, which the HTTP layer maps to a 500 — no unbounded internal
// queue for callers to pile up against.
func (p *EventProducer) Produce(ctx context.Context, tag model.UserTag) error {
	body, err := json.Marshal(tag)
	if err != nil {
		return fmt.Errorf("encoding user tag: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(tag.Cookie),
		Value: body,
		Time:  tag.Time,
	}

	ctx, cancel := context.WithTimeout(ctx, p.enqueueTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing user tag: %w", err)
	}
	return nil
}

// Close releases the underlying writer's connections.
func (p *EventProducer) Close() error {
	return p.writer.Close()
}

// Event is one decoded user-tag event pulled off a stream, still tied to
// its underlying broker message for commit bookkeeping.
type Event struct {
	Tag model.UserTag
	raw kafka.Message
}

// EventStream is a single consumer-group reader. kafka-go has no
// rdkafka-style split between "store offset" and "commit offset", so
// MarkProcessed buffers the message and Commit flushes exactly the
// buffered messages in one call — together they reproduce "offsets only
// advance once the application says so" without a real two-phase API.
type EventStream struct {
	reader  *kafka.Reader
	log     *slog.Logger
	pending []kafka.Message
}

// NewEventStream subscribes to topic under groupID, reading from the
// earliest retained offset the group hasn't yet committed past.
func NewEventStream(brokers []string, topic, groupID string, log *slog.Logger) *EventStream {
	return &EventStream{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			StartOffset: kafka.FirstOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		}),
		log: log,
	}
}

// Next blocks until a message is available, decoding it as a UserTag. A
// malformed payload is logged and skipped, not returned as an error — a
// poison message must never stall the stream.
func (s *EventStream) Next(ctx context.Context) (Event, error) {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			return Event{}, fmt.Errorf("fetching message: %w", err)
		}
		var tag model.UserTag
		if err := json.Unmarshal(msg.Value, &tag); err != nil {
			s.log.Error("dropping malformed event", slog.Any("err", err), slog.Int64("offset", msg.Offset))
			s.pending = append(s.pending, msg)
			continue
		}
		return Event{Tag: tag, raw: msg}, nil
	}
}

// MarkProcessed buffers ev's offset to be committed on the next Commit
// call. It does not itself touch the broker.
func (s *EventStream) MarkProcessed(ev Event) {
	s.pending = append(s.pending, ev.raw)
}

// Commit flushes every offset buffered since the last Commit. Safe to
// call on an empty buffer (a no-op).
func (s *EventStream) Commit(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.reader.CommitMessages(ctx, s.pending...); err != nil {
		return fmt.Errorf("committing offsets: %w", err)
	}
	s.pending = s.pending[:0]
	return nil
}

// Close releases the underlying reader's connections.
func (s *EventStream) Close() error {
	return s.reader.Close()
}
