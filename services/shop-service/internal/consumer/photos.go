// Package consumer attaches photo metadata published by the media service
// to shops. Delivery is at-least-once; the inbox ledger plus the photo_id
// primary key keep replays from duplicating rows.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/beanscout/beanscout/libs/events"
	"github.com/beanscout/beanscout/services/shop-service/internal/storage"
)

type PhotoHandler struct {
	photos *storage.PhotoRepository
	logger *slog.Logger
}

func NewPhotoHandler(photos *storage.PhotoRepository, logger *slog.Logger) *PhotoHandler {
	return &PhotoHandler{photos: photos, logger: logger}
}

func (h *PhotoHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.ShopPhotosUploadedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("decode photos uploaded event: %w", err)
	}
	if evt.ShopID == "" {
		return fmt.Errorf("photos uploaded event missing shop_id")
	}

	for _, ref := range evt.Photos {
		if ref.PhotoID == "" || ref.URL == "" {
			h.logger.Warn("skipping photo without id or url", "shop_id", evt.ShopID)
			continue
		}
		created, err := h.photos.Attach(ctx, storage.Photo{
			PhotoID:    ref.PhotoID,
			ShopID:     evt.ShopID,
			URL:        ref.URL,
			Caption:    ref.Caption,
			UploadedBy: evt.UploadedBy,
		})
		if err != nil {
			return fmt.Errorf("attach photo %s: %w", ref.PhotoID, err)
		}
		if !created {
			h.logger.Info("photo already attached", "photo_id", ref.PhotoID, "shop_id", evt.ShopID)
		}
	}
	return nil
}
