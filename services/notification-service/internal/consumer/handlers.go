// Package consumer holds the notification-service message handlers. Each
// handler records the event id and the notification row in one
// transaction, so a failure before commit leaves the event fresh for the
// broker's redelivery instead of half-applied.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/beanscout/beanscout/libs/db"
	"github.com/beanscout/beanscout/libs/events"
	"github.com/beanscout/beanscout/libs/inbox"
	"github.com/beanscout/beanscout/libs/kafkax"
	"github.com/beanscout/beanscout/services/notification-service/internal/email"
	"github.com/beanscout/beanscout/services/notification-service/internal/storage"
	"github.com/beanscout/beanscout/services/notification-service/internal/webhook"
)

// WelcomeHandler sends a welcome email on user registration.
type WelcomeHandler struct {
	pool          *db.Pool
	ledger        *inbox.Ledger
	notifications *storage.Repository
	sender        email.Sender
	logger        *slog.Logger
}

func NewWelcomeHandler(pool *db.Pool, ledger *inbox.Ledger, notifications *storage.Repository, sender email.Sender, logger *slog.Logger) *WelcomeHandler {
	return &WelcomeHandler{
		pool:          pool,
		ledger:        ledger,
		notifications: notifications,
		sender:        sender,
		logger:        logger,
	}
}

func (h *WelcomeHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.UserRegisteredEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.Error("invalid user registered payload", "err", err)
		return nil
	}
	if evt.Email == "" {
		h.logger.Error("user registered event missing email")
		return nil
	}

	meta := kafkax.ExtractEventMeta(msg)
	subject := "Welcome to BeanScout"
	name := evt.DisplayName
	if name == "" {
		name = "there"
	}
	body := fmt.Sprintf("Hi %s,\n\nYour account is ready. Find a coffee shop worth the walk.\n", name)

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
		h.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}

	status := "sent"
	if err := h.sender.Send(evt.Email, subject, body); err != nil {
		status = "failed"
		h.logger.Error("welcome email failed", "err", err, "recipient", evt.Email)
	}

	if err := h.notifications.InsertTx(ctx, tx, storage.Notification{
		EventID:   meta.EventID,
		UserID:    evt.UserID,
		Channel:   "email",
		Recipient: evt.Email,
		Subject:   subject,
		Status:    status,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	h.logger.Info("welcome email processed", "user_id", evt.UserID, "status", status)
	return nil
}

// ApprovalHandler pings the moderation channel when a shop goes live.
type ApprovalHandler struct {
	pool          *db.Pool
	ledger        *inbox.Ledger
	notifications *storage.Repository
	notifier      webhook.Notifier
	logger        *slog.Logger
}

func NewApprovalHandler(pool *db.Pool, ledger *inbox.Ledger, notifications *storage.Repository, notifier webhook.Notifier, logger *slog.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		pool:          pool,
		ledger:        ledger,
		notifications: notifications,
		notifier:      notifier,
		logger:        logger,
	}
}

func (h *ApprovalHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.ShopApprovedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.Error("invalid shop approved payload", "err", err)
		return nil
	}
	if evt.ShopID == "" {
		h.logger.Error("shop approved event missing shop_id")
		return nil
	}

	meta := kafkax.ExtractEventMeta(msg)
	text := fmt.Sprintf("shop %s approved by %s", evt.ShopID, evt.ModeratorID)

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
		h.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}

	status := "sent"
	if err := h.notifier.Notify(ctx, text); err != nil {
		status = "failed"
		h.logger.Error("moderation webhook failed", "err", err, "shop_id", evt.ShopID)
	}

	if err := h.notifications.InsertTx(ctx, tx, storage.Notification{
		EventID:   meta.EventID,
		UserID:    evt.ModeratorID,
		Channel:   strings.ToLower(h.notifier.ProviderID()),
		Recipient: "moderation",
		Subject:   text,
		Status:    status,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	h.logger.Info("shop approval notification processed", "shop_id", evt.ShopID, "status", status)
	return nil
}
