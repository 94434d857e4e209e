package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	otelx "github.com/beanscout/beanscout/libs/otel"
)

// Store is the slice of Repository the drainer needs. It is an interface
// so drain logic tests run against an in-memory fake.
type Store interface {
	Claim(ctx context.Context, owner string, lease time.Duration, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time, lastError string) error
	MarkDead(ctx context.Context, id int64, lastError string) error
}

type Config struct {
	// Owner identifies this drainer instance on claimed rows.
	Owner       string
	PollEvery   time.Duration
	BatchSize   int
	ClaimLease  time.Duration
	MaxAttempts int
	RetryBase   time.Duration
	RetryCap    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Owner == "" {
		host, _ := os.Hostname()
		c.Owner = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if c.PollEvery <= 0 {
		c.PollEvery = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 5 * time.Second
	}
	if c.RetryCap <= 0 {
		c.RetryCap = 5 * time.Minute
	}
	return c
}

// Drainer converts durable outbox rows into broker publishes. One
// instance runs per process; several instances may share a table, the
// claim lease keeps them off each other's rows.
//
// Delivery is at-least-once: marking a row published and confirming the
// publish are two operations, and a crash between them re-delivers the
// row after the lease expires. Consumers must be idempotent. Rows are
// attempted oldest-first within a batch, but a failing row never holds
// back the rows behind it, so broker order is not creation order.
type Drainer struct {
	store     Store
	registry  *Registry
	publisher Publisher
	logger    *slog.Logger
	cfg       Config
}

func NewDrainer(store Store, registry *Registry, publisher Publisher, logger *slog.Logger, cfg Config) *Drainer {
	return &Drainer{
		store:     store,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.DrainOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("outbox drain failed", "err", err)
			}
		}
	}
}

// DrainOnce claims one batch and attempts each row.
func (d *Drainer) DrainOnce(ctx context.Context) error {
	records, err := d.store.Claim(ctx, d.cfg.Owner, d.cfg.ClaimLease, d.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.drainRecord(ctx, rec)
	}
	return nil
}

func (d *Drainer) drainRecord(ctx context.Context, rec Record) {
	event, err := d.registry.Decode(rec.EventType, rec.Payload)
	if err != nil {
		// Unknown type or malformed payload: retrying cannot fix it.
		d.logger.Error("outbox row dead-lettered",
			"id", rec.ID, "event_id", rec.EventID, "event_type", rec.EventType, "err", err)
		if deadErr := d.store.MarkDead(ctx, rec.ID, err.Error()); deadErr != nil {
			d.logger.Error("outbox mark dead failed", "id", rec.ID, "err", deadErr)
		}
		return
	}

	pubCtx := otelx.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)
	if err := d.publisher.Publish(pubCtx, rec, event); err != nil {
		d.scheduleRetry(ctx, rec, err)
		return
	}

	if err := d.store.MarkPublished(ctx, rec.ID); err != nil {
		// The publish went out. The row stays claimed until its lease
		// expires and is then re-published; consumers absorb the duplicate.
		d.logger.Error("outbox mark published failed", "id", rec.ID, "event_id", rec.EventID, "err", err)
	}
}

func (d *Drainer) scheduleRetry(ctx context.Context, rec Record, cause error) {
	attempts := rec.Attempts + 1
	max := rec.MaxAttempts
	if max <= 0 {
		max = d.cfg.MaxAttempts
	}
	if attempts >= max {
		d.logger.Error("outbox row dead-lettered after retries",
			"id", rec.ID, "event_id", rec.EventID, "event_type", rec.EventType, "attempts", attempts, "err", cause)
		if err := d.store.MarkDead(ctx, rec.ID, cause.Error()); err != nil {
			d.logger.Error("outbox mark dead failed", "id", rec.ID, "err", err)
		}
		return
	}

	delay := d.retryDelay(attempts)
	d.logger.Warn("outbox publish failed, will retry",
		"id", rec.ID, "event_id", rec.EventID, "attempt", attempts, "retry_in", delay, "err", cause)
	if err := d.store.MarkRetry(ctx, rec.ID, attempts, time.Now().UTC().Add(delay), cause.Error()); err != nil {
		d.logger.Error("outbox mark retry failed", "id", rec.ID, "err", err)
	}
}

// retryDelay doubles per attempt from RetryBase up to RetryCap.
func (d *Drainer) retryDelay(attempts int) time.Duration {
	delay := d.cfg.RetryBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.cfg.RetryCap {
			return d.cfg.RetryCap
		}
	}
	if delay > d.cfg.RetryCap {
		return d.cfg.RetryCap
	}
	return delay
}
