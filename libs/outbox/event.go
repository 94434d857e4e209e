package outbox

import "time"

// Row lifecycle. A row becomes dead either immediately (unknown type,
// malformed payload) or after exhausting its retry budget. Dead rows are
// retained for inspection, never deleted.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusDead      = "dead"
)

// Event is the envelope producers write inside their own business
// transaction. The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is a claimed outbox row handed to the drainer.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	Attempts      int
	MaxAttempts   int
	CreatedAt     time.Time
}
