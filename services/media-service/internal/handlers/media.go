package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/beanscout/beanscout/libs/db"
	"github.com/beanscout/beanscout/libs/events"
	"github.com/beanscout/beanscout/libs/outbox"
	"github.com/beanscout/beanscout/services/media-service/internal/storage"
)

const maxBatchSize = 20

type Handler struct {
	pool   *db.Pool
	photos *storage.PhotoRepository
	outbox *outbox.Repository
}

func New(pool *db.Pool, photos *storage.PhotoRepository, outboxRepo *outbox.Repository) *Handler {
	return &Handler{pool: pool, photos: photos, outbox: outboxRepo}
}

func userIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

type photoUpload struct {
	URL         string `json:"url"`
	Caption     string `json:"caption"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// RegisterPhotos records metadata for photos already uploaded to object
// storage and announces the batch to the rest of the platform via the
// outbox, all in one transaction.
func (h *Handler) RegisterPhotos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing X-User-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		ShopID string        `json:"shop_id"`
		Photos []photoUpload `json:"photos"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ShopID = strings.TrimSpace(req.ShopID)
	if req.ShopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Photos) == 0 || len(req.Photos) > maxBatchSize {
		http.Error(w, "photos must contain between 1 and 20 entries", http.StatusBadRequest)
		return
	}

	batch := make([]storage.Photo, 0, len(req.Photos))
	for _, p := range req.Photos {
		p.URL = strings.TrimSpace(p.URL)
		if p.URL == "" {
			http.Error(w, "every photo needs a url", http.StatusBadRequest)
			return
		}
		batch = append(batch, storage.Photo{
			ShopID:      req.ShopID,
			URL:         p.URL,
			Caption:     strings.TrimSpace(p.Caption),
			ContentType: strings.TrimSpace(p.ContentType),
			SizeBytes:   p.SizeBytes,
			UploadedBy:  userID,
		})
	}

	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.photos.CreateBatchTx(ctx, tx, batch); err != nil {
		http.Error(w, "failed to save photos", http.StatusInternalServerError)
		return
	}

	refs := make([]events.PhotoRef, 0, len(batch))
	ids := make([]string, 0, len(batch))
	for _, p := range batch {
		refs = append(refs, events.PhotoRef{PhotoID: p.ID, URL: p.URL, Caption: p.Caption})
		ids = append(ids, p.ID)
	}
	payload, err := json.Marshal(events.ShopPhotosUploadedEvent{
		ShopID:     req.ShopID,
		UploadedBy: userID,
		Photos:     refs,
		UploadedAt: time.Now().UTC(),
	})
	if err != nil {
		http.Error(w, "failed to marshal photo event", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "shop",
		AggregateID:   req.ShopID,
		EventType:     events.TypeShopPhotosUploaded,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to enqueue photo event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"ids": ids})
}

func (h *Handler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}

	photos, err := h.photos.ListByShop(r.Context(), shopID, 100)
	if err != nil {
		http.Error(w, "failed to list photos", http.StatusInternalServerError)
		return
	}

	type photoResponse struct {
		ID          string    `json:"id"`
		ShopID      string    `json:"shop_id"`
		URL         string    `json:"url"`
		Caption     string    `json:"caption"`
		ContentType string    `json:"content_type"`
		SizeBytes   int64     `json:"size_bytes"`
		CreatedAt   time.Time `json:"created_at"`
	}
	out := make([]photoResponse, 0, len(photos))
	for _, p := range photos {
		out = append(out, photoResponse{
			ID:          p.ID,
			ShopID:      p.ShopID,
			URL:         p.URL,
			Caption:     p.Caption,
			ContentType: p.ContentType,
			SizeBytes:   p.SizeBytes,
			CreatedAt:   p.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}
