// Package consumer folds shop lifecycle events into the activity feed.
// Dedup and the feed insert share one transaction, so a redelivered event
// either fully lands once or not at all.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/beanscout/beanscout/libs/db"
	"github.com/beanscout/beanscout/libs/events"
	"github.com/beanscout/beanscout/libs/inbox"
	"github.com/beanscout/beanscout/libs/kafkax"
	"github.com/beanscout/beanscout/services/activity-service/internal/storage"
)

// Topics lists everything the feed consumer subscribes to.
func Topics() []string {
	return []string{
		events.TypeShopApproved,
		events.TypeReviewAdded,
		events.TypeCheckinCreated,
	}
}

type FeedHandler struct {
	pool    *db.Pool
	ledger  *inbox.Ledger
	feed    *storage.FeedRepository
	metrics *storage.MetricsRepository
	logger  *slog.Logger
}

func NewFeedHandler(pool *db.Pool, ledger *inbox.Ledger, feed *storage.FeedRepository, metrics *storage.MetricsRepository, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{pool: pool, ledger: ledger, feed: feed, metrics: metrics, logger: logger}
}

func (h *FeedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)

	item, err := BuildFeedItem(meta, msg.Value)
	if err != nil {
		// Malformed or unrecognized payloads never become readable on
		// retry; log and advance.
		h.logger.Error("dropping feed event", "err", err, "event_id", meta.EventID, "topic", msg.Topic)
		return nil
	}

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
		h.logger.Info("duplicate feed event ignored", "event_id", meta.EventID)
		return nil
	}

	if err := h.feed.InsertTx(ctx, tx, item); err != nil {
		return err
	}

	switch item.Kind {
	case storage.FeedKindReviewAdded:
		err = h.metrics.BumpDailyTx(ctx, tx, item.ShopID, item.OccurredAt, 1, 0)
	case storage.FeedKindCheckin:
		err = h.metrics.BumpDailyTx(ctx, tx, item.ShopID, item.OccurredAt, 0, 1)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// BuildFeedItem maps an event to its feed entry. The event type comes from
// message metadata, the rest from the payload.
func BuildFeedItem(meta kafkax.EventMeta, payload []byte) (storage.FeedItem, error) {
	if meta.EventID == "" {
		return storage.FeedItem{}, fmt.Errorf("event without id")
	}

	switch meta.EventType {
	case events.TypeShopApproved:
		var evt events.ShopApprovedEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return storage.FeedItem{}, fmt.Errorf("decode shop approved event: %w", err)
		}
		if evt.ShopID == "" {
			return storage.FeedItem{}, fmt.Errorf("shop approved event missing shop_id")
		}
		return storage.FeedItem{
			EventID:    meta.EventID,
			Kind:       storage.FeedKindShopApproved,
			ShopID:     evt.ShopID,
			UserID:     evt.ModeratorID,
			OccurredAt: evt.ApprovedAt,
		}, nil

	case events.TypeReviewAdded:
		var evt events.ReviewAddedEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return storage.FeedItem{}, fmt.Errorf("decode review added event: %w", err)
		}
		if evt.ShopID == "" || evt.UserID == "" {
			return storage.FeedItem{}, fmt.Errorf("review added event missing shop_id or user_id")
		}
		return storage.FeedItem{
			EventID:    meta.EventID,
			Kind:       storage.FeedKindReviewAdded,
			ShopID:     evt.ShopID,
			UserID:     evt.UserID,
			OccurredAt: evt.CreatedAt,
		}, nil

	case events.TypeCheckinCreated:
		var evt events.CheckinCreatedEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			return storage.FeedItem{}, fmt.Errorf("decode checkin event: %w", err)
		}
		if evt.ShopID == "" || evt.UserID == "" {
			return storage.FeedItem{}, fmt.Errorf("checkin event missing shop_id or user_id")
		}
		return storage.FeedItem{
			EventID:    meta.EventID,
			Kind:       storage.FeedKindCheckin,
			ShopID:     evt.ShopID,
			UserID:     evt.UserID,
			OccurredAt: evt.CreatedAt,
		}, nil
	}

	return storage.FeedItem{}, fmt.Errorf("unrecognized event type %q", meta.EventType)
}
