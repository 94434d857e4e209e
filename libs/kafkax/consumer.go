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

// DedupStore decides whether an event id was seen before. Record returns
// false for a replay, which the consumer skips without calling the handler.
// A nil DedupStore disables the check; the handler then owns idempotence,
// usually by recording the event id in its own transaction.
type DedupStore interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
}

// Handler applies one message. A nil return acks the message. An error
// means a transient failure (database down, dependency unreachable): the
// consumer keeps the offset uncommitted and retries the same message, so
// handlers must swallow permanent failures (malformed payload, unknown
// shape) by logging and returning nil, or the partition stalls forever.
type Handler func(ctx context.Context, msg kafka.Message) error

// Consumer reads one or more topics in a consumer group, restores trace
// context from message headers and dedups by event id before handing the
// message to the handler. Offsets are committed only after the handler
// succeeds, so an effect is durable before the broker forgets the message.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	dedup   DedupStore
	handler Handler
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topics  []string
}

func NewConsumer(logger *slog.Logger, dedup DedupStore, cfg ConsumerConfig, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		dedup:   dedup,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		// Committing message N also commits everything before it on the
		// partition, so a failed message is retried in place rather than
		// skipped over.
		for {
			err := c.process(ctx, msg)
			if err == nil {
				break
			}
			c.logger.Error("message processing failed, will retry", "topic", msg.Topic, "offset", msg.Offset, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(1 * time.Second):
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka commit error", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		}
	}
}

// process applies one message: restore trace context, dedup, handle. A
// nil return means the message may be committed; that includes the
// duplicate-skip path, since the effect is already durable.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := ExtractEventMeta(msg)

	if c.dedup != nil {
		ok, err := c.dedup.Record(ctxSpan, meta.EventID, meta.EventType)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if !ok {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
