package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/beanscout/beanscout/libs/db"
	"github.com/beanscout/beanscout/libs/events"
	"github.com/beanscout/beanscout/libs/outbox"
	"github.com/beanscout/beanscout/services/shop-service/internal/policy"
	"github.com/beanscout/beanscout/services/shop-service/internal/storage"
)

type Handler struct {
	pool     *db.Pool
	shops    *storage.ShopRepository
	reviews  *storage.ReviewRepository
	checkins *storage.CheckinRepository
	photos   *storage.PhotoRepository
	outbox   *outbox.Repository
	policy   policy.Provider
}

func New(
	pool *db.Pool,
	shops *storage.ShopRepository,
	reviews *storage.ReviewRepository,
	checkins *storage.CheckinRepository,
	photos *storage.PhotoRepository,
	outboxRepo *outbox.Repository,
	policyProvider policy.Provider,
) *Handler {
	return &Handler{
		pool:     pool,
		shops:    shops,
		reviews:  reviews,
		checkins: checkins,
		photos:   photos,
		outbox:   outboxRepo,
		policy:   policyProvider,
	}
}

// The gateway authenticates and forwards identity in these headers.
func userIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

func roleFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Role"))
}

type shopResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	City        string    `json:"city"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func toShopResponse(s storage.Shop) shopResponse {
	return shopResponse{
		ID:          s.ID,
		Name:        s.Name,
		City:        s.City,
		Address:     s.Address,
		Description: s.Description,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
	}
}

func (h *Handler) SubmitShop(w http.ResponseWriter, r *http.Request) {
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
		Name        string `json:"name"`
		City        string `json:"city"`
		Address     string `json:"address"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.City = strings.TrimSpace(req.City)
	req.Address = strings.TrimSpace(req.Address)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" || req.City == "" {
		http.Error(w, "name and city required", http.StatusBadRequest)
		return
	}

	id, err := h.shops.Create(r.Context(), req.Name, req.City, req.Address, req.Description, userID)
	if err != nil {
		http.Error(w, "failed to submit shop", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     id,
		"status": storage.ShopStatusPending,
	})
}

func (h *Handler) ListShops(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	city := strings.TrimSpace(r.URL.Query().Get("city"))
	shops, err := h.shops.ListApproved(r.Context(), city, 100)
	if err != nil {
		http.Error(w, "failed to list shops", http.StatusInternalServerError)
		return
	}

	out := make([]shopResponse, 0, len(shops))
	for _, s := range shops {
		out = append(out, toShopResponse(s))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) GetShop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	shop, err := h.shops.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "shop not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load shop", http.StatusInternalServerError)
		return
	}
	// Unmoderated shops are visible only to their submitter and moderators.
	if shop.Status != storage.ShopStatusApproved {
		if userIDFromHeader(r) != shop.SubmittedBy && roleFromHeader(r) != "moderator" {
			http.Error(w, "shop not found", http.StatusNotFound)
			return
		}
	}

	avg, count, err := h.reviews.AverageRating(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to load shop ratings", http.StatusInternalServerError)
		return
	}

	resp := struct {
		shopResponse
		AverageRating float64 `json:"average_rating"`
		ReviewCount   int     `json:"review_count"`
	}{toShopResponse(shop), avg, count}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) ListPendingShops(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if roleFromHeader(r) != "moderator" {
		http.Error(w, "moderator role required", http.StatusForbidden)
		return
	}

	shops, err := h.shops.ListPending(r.Context(), 100)
	if err != nil {
		http.Error(w, "failed to list pending shops", http.StatusInternalServerError)
		return
	}

	out := make([]shopResponse, 0, len(shops))
	for _, s := range shops {
		out = append(out, toShopResponse(s))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) ApproveShop(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, storage.ShopStatusApproved)
}

func (h *Handler) RejectShop(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, storage.ShopStatusRejected)
}

// moderate flips a pending shop's status. Approvals also enqueue a
// ShopApproved outbox row in the same transaction; rejections stay local.
func (h *Handler) moderate(w http.ResponseWriter, r *http.Request, status string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if roleFromHeader(r) != "moderator" {
		http.Error(w, "moderator role required", http.StatusForbidden)
		return
	}
	moderatorID := userIDFromHeader(r)
	if moderatorID == "" {
		http.Error(w, "missing X-User-Id", http.StatusBadRequest)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	shop, err := h.shops.SetStatusTx(ctx, tx, id, status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "shop not found or already moderated", http.StatusConflict)
			return
		}
		http.Error(w, "failed to moderate shop", http.StatusInternalServerError)
		return
	}

	if status == storage.ShopStatusApproved {
		payload, err := json.Marshal(events.ShopApprovedEvent{
			ShopID:      shop.ID,
			ModeratorID: moderatorID,
			ApprovedAt:  time.Now().UTC(),
		})
		if err != nil {
			http.Error(w, "failed to marshal shop event", http.StatusInternalServerError)
			return
		}
		if err := h.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "shop",
			AggregateID:   shop.ID,
			EventType:     events.TypeShopApproved,
			Payload:       payload,
		}); err != nil {
			http.Error(w, "failed to enqueue shop event", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toShopResponse(shop))
}

type reviewResponse struct {
	ID        string    `json:"id"`
	ShopID    string    `json:"shop_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing X-User-Id", http.StatusBadRequest)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		http.Error(w, "rating must be between 1 and 5", http.StatusBadRequest)
		return
	}
	req.Comment = strings.TrimSpace(req.Comment)

	ctx := r.Context()

	shop, err := h.shops.GetByID(ctx, shopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "shop not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load shop", http.StatusInternalServerError)
		return
	}
	if shop.Status != storage.ShopStatusApproved {
		http.Error(w, "shop not found", http.StatusNotFound)
		return
	}

	limit, err := h.policy.MaxReviewsPerDay(ctx, userID)
	if err != nil {
		http.Error(w, "failed to load review policy", http.StatusInternalServerError)
		return
	}
	if limit > 0 {
		n, err := h.reviews.CountByUserSince(ctx, userID, time.Now().Add(-24*time.Hour))
		if err != nil {
			http.Error(w, "failed to check review limit", http.StatusInternalServerError)
			return
		}
		if n >= limit {
			http.Error(w, "daily review limit reached", http.StatusTooManyRequests)
			return
		}
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	reviewID, err := h.reviews.CreateTx(ctx, tx, shopID, userID, req.Rating, req.Comment)
	if err != nil {
		http.Error(w, "failed to create review", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(events.ReviewAddedEvent{
		UserID:    userID,
		ShopID:    shopID,
		ReviewID:  reviewID,
		Rating:    req.Rating,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		http.Error(w, "failed to marshal review event", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "shop",
		AggregateID:   shopID,
		EventType:     events.TypeReviewAdded,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to enqueue review event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": reviewID})
}

func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	reviews, err := h.reviews.ListByShop(r.Context(), shopID, limit)
	if err != nil {
		http.Error(w, "failed to list reviews", http.StatusInternalServerError)
		return
	}

	out := make([]reviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		out = append(out, reviewResponse{
			ID:        rv.ID,
			ShopID:    rv.ShopID,
			UserID:    rv.UserID,
			Rating:    rv.Rating,
			Comment:   rv.Comment,
			CreatedAt: rv.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) CreateCheckin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := userIDFromHeader(r)
	if userID == "" {
		http.Error(w, "missing X-User-Id", http.StatusBadRequest)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	shop, err := h.shops.GetByID(ctx, shopID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "shop not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load shop", http.StatusInternalServerError)
		return
	}
	if shop.Status != storage.ShopStatusApproved {
		http.Error(w, "shop not found", http.StatusNotFound)
		return
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	day := time.Now().UTC().Truncate(24 * time.Hour)
	checkinID, created, err := h.checkins.CreateTx(ctx, tx, shopID, userID, day)
	if err != nil {
		http.Error(w, "failed to create check-in", http.StatusInternalServerError)
		return
	}
	if !created {
		// Already checked in today; nothing to record or announce.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"already_checked_in": true})
		return
	}

	payload, err := json.Marshal(events.CheckinCreatedEvent{
		UserID:    userID,
		ShopID:    shopID,
		CheckinID: checkinID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		http.Error(w, "failed to marshal check-in event", http.StatusInternalServerError)
		return
	}
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "shop",
		AggregateID:   shopID,
		EventType:     events.TypeCheckinCreated,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to enqueue check-in event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": checkinID})
}

func (h *Handler) ListCheckins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}

	checkins, err := h.checkins.ListByShop(r.Context(), shopID, 100)
	if err != nil {
		http.Error(w, "failed to list check-ins", http.StatusInternalServerError)
		return
	}

	type checkinResponse struct {
		ID        string    `json:"id"`
		ShopID    string    `json:"shop_id"`
		UserID    string    `json:"user_id"`
		Day       string    `json:"day"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]checkinResponse, 0, len(checkins))
	for _, c := range checkins {
		out = append(out, checkinResponse{
			ID:        c.ID,
			ShopID:    c.ShopID,
			UserID:    c.UserID,
			Day:       c.Day.Format("2006-01-02"),
			CreatedAt: c.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
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
		PhotoID   string    `json:"photo_id"`
		URL       string    `json:"url"`
		Caption   string    `json:"caption"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]photoResponse, 0, len(photos))
	for _, p := range photos {
		out = append(out, photoResponse{
			PhotoID:   p.PhotoID,
			URL:       p.URL,
			Caption:   p.Caption,
			CreatedAt: p.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}
