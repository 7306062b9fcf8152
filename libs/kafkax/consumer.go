package kafkax

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one message. A returned error makes the consumer retry the same message.
type Handler func(ctx context.Context, msg kafka.Message) error

// Deduper remembers processed event ids. Events are recorded only after their handler
// succeeds, so a failed event stays eligible for redelivery.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

// MessageReader is the subset of *kafka.Reader the consumer loop needs. Offsets are
// committed explicitly once a message is done.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
}

// RetryPolicy bounds how long one failing message holds its partition.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	MaxDelay time.Duration
}

var DefaultRetry = RetryPolicy{Attempts: 6, Backoff: time.Second, MaxDelay: 30 * time.Second}

type Consumer struct {
	reader  MessageReader
	logger  *slog.Logger
	dedup   Deduper
	handler Handler
	retry   RetryPolicy
}

// NewReader builds a group reader subscribed to every topic in cfg.
func NewReader(cfg ConsumerConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

func NewConsumer(reader MessageReader, dedup Deduper, logger *slog.Logger, handler Handler) *Consumer {
	return &Consumer{reader: reader, logger: logger, dedup: dedup, handler: handler, retry: DefaultRetry}
}

// WithRetry replaces the retry policy.
func (c *Consumer) WithRetry(p RetryPolicy) *Consumer {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	c.retry = p
	return c
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				// Uncommitted; the group redelivers it after restart.
				return
			}
			meta := MetaOf(msg)
			c.logger.Error("event dropped after retries", "err", err, "event_id", meta.EventID,
				"event_type", meta.EventType, "attempts", c.retry.Attempts)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// process retries Handle with exponential backoff until it succeeds or the policy runs out.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	delay := c.retry.Backoff
	var err error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if err = c.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt == c.retry.Attempts || !sleep(ctx, delay) {
			break
		}
		delay *= 2
		if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
	return err
}

// Handle runs one message through dedup and the handler inside a consume span. The event
// is recorded as processed only when the handler succeeds.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctx, span := otel.Tracer("kafka").Start(ExtractTrace(ctx, msg), "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := MetaOf(msg)
	if c.dedup != nil {
		seen, err := c.dedup.Seen(ctx, meta.EventID)
		if err != nil {
			c.logger.Error("inbox lookup failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
			return err
		}
		if seen {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
	}
	if err := c.handler(ctx, msg); err != nil {
		c.logger.Warn("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		return err
	}
	if c.dedup != nil {
		if _, err := c.dedup.Record(ctx, meta.EventID, meta.EventType); err != nil {
			c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
