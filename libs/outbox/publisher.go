package outbox

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/beanscout/beanscout/libs/kafkax"
)

// Publisher hands a drained record to the broker. A nil error means
// "delivery attempted", not "delivered end to end"; broker durability is
// the broker's configuration, not this package's.
type Publisher interface {
	Publish(ctx context.Context, rec Record, event any) error
}

// KafkaPublisher publishes records to one topic per event type, keyed by
// aggregate id so events for the same aggregate land on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Balancer: &kafka.Hash{},
		}),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rec Record, _ any) error {
	msg := kafka.Message{
		Topic: rec.EventType,
		Key:   []byte(rec.AggregateID),
		Value: rec.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID)},
			{Key: "event_type", Value: []byte(rec.EventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
