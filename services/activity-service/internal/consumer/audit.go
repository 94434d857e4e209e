package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/beanscout/beanscout/libs/db"
	"github.com/beanscout/beanscout/libs/events"
	"github.com/beanscout/beanscout/libs/inbox"
	"github.com/beanscout/beanscout/libs/kafkax"
	"github.com/beanscout/beanscout/services/activity-service/internal/storage"
)

// AuditHandler sinks auth audit events into the security trail. The
// audit table has no unique key, so the dedup mark and the insert commit
// in one transaction.
type AuditHandler struct {
	pool    *db.Pool
	ledger  *inbox.Ledger
	metrics *storage.MetricsRepository
	logger  *slog.Logger
}

func NewAuditHandler(pool *db.Pool, ledger *inbox.Ledger, metrics *storage.MetricsRepository, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{pool: pool, ledger: ledger, metrics: metrics, logger: logger}
}

func (h *AuditHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.AuditRecordedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.Error("invalid audit payload", "err", err)
		return nil
	}
	if evt.EventType == "" {
		h.logger.Error("audit event missing event_type")
		return nil
	}

	meta := kafkax.ExtractEventMeta(msg)

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := h.ledger.RecordTx(ctx, tx, meta.EventID, meta.EventType)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	if err := h.metrics.RecordAuditEventTx(ctx, tx, evt.EventType, evt.ActorID, evt.Metadata, evt.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
