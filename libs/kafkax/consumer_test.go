package kafkax

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeDedup struct {
	fresh   bool
	err     error
	eventID string
}

func (d *fakeDedup) Record(_ context.Context, eventID string, _ string) (bool, error) {
	d.eventID = eventID
	return d.fresh, d.err
}

func message(eventID string) kafka.Message {
	return kafka.Message{
		Topic: "shops.review.added.v1",
		Value: []byte(`{}`),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(eventID)},
			{Key: "event_type", Value: []byte("shops.review.added.v1")},
		},
	}
}

func newTestConsumer(dedup DedupStore, handler Handler) *Consumer {
	return &Consumer{
		logger:  slog.New(slog.DiscardHandler),
		dedup:   dedup,
		handler: handler,
	}
}

func TestProcessFreshEventReachesHandler(t *testing.T) {
	dedup := &fakeDedup{fresh: true}
	var handled int
	c := newTestConsumer(dedup, func(context.Context, kafka.Message) error {
		handled++
		return nil
	})

	if err := c.process(context.Background(), message("evt-1")); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if handled != 1 {
		t.Fatalf("expected handler called once, got %d", handled)
	}
	if dedup.eventID != "evt-1" {
		t.Fatalf("dedup saw wrong event id: %q", dedup.eventID)
	}
}

func TestProcessDuplicateEventSkipsHandler(t *testing.T) {
	var handled int
	c := newTestConsumer(&fakeDedup{fresh: false}, func(context.Context, kafka.Message) error {
		handled++
		return nil
	})

	// A duplicate is an ack, not a failure: the first delivery already
	// applied the effect, so the offset may be committed.
	if err := c.process(context.Background(), message("evt-1")); err != nil {
		t.Fatalf("duplicate must not surface as error, got %v", err)
	}
	if handled != 0 {
		t.Fatal("handler must not run for a duplicate event")
	}
}

func TestProcessDedupErrorHoldsMessage(t *testing.T) {
	cause := errors.New("db unavailable")
	var handled int
	c := newTestConsumer(&fakeDedup{err: cause}, func(context.Context, kafka.Message) error {
		handled++
		return nil
	})

	if err := c.process(context.Background(), message("evt-2")); !errors.Is(err, cause) {
		t.Fatalf("expected dedup error to propagate, got %v", err)
	}
	if handled != 0 {
		t.Fatal("handler must not run when dedup cannot be recorded")
	}
}

func TestProcessHandlerErrorHoldsMessage(t *testing.T) {
	cause := errors.New("tx begin failed")
	c := newTestConsumer(nil, func(context.Context, kafka.Message) error {
		return cause
	})

	if err := c.process(context.Background(), message("evt-3")); !errors.Is(err, cause) {
		t.Fatalf("expected handler error to propagate for redelivery, got %v", err)
	}
}

func TestProcessNilDedupCallsHandler(t *testing.T) {
	var handled int
	c := newTestConsumer(nil, func(context.Context, kafka.Message) error {
		handled++
		return nil
	})

	if err := c.process(context.Background(), message("evt-4")); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if handled != 1 {
		t.Fatalf("expected handler called once, got %d", handled)
	}
}
