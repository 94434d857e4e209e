package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beanscout/beanscout/services/activity-service/internal/storage"
)

type Handler struct {
	feed    *storage.FeedRepository
	metrics *storage.MetricsRepository
}

func New(feed *storage.FeedRepository, metrics *storage.MetricsRepository) *Handler {
	return &Handler{feed: feed, metrics: metrics}
}

func (h *Handler) GetFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	items, err := h.feed.ListRecent(r.Context(), shopID, limit)
	if err != nil {
		http.Error(w, "failed to load feed", http.StatusInternalServerError)
		return
	}

	type feedItemResponse struct {
		EventID    string    `json:"event_id"`
		Kind       string    `json:"kind"`
		ShopID     string    `json:"shop_id"`
		UserID     string    `json:"user_id"`
		OccurredAt time.Time `json:"occurred_at"`
	}
	out := make([]feedItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, feedItemResponse{
			EventID:    item.EventID,
			Kind:       item.Kind,
			ShopID:     item.ShopID,
			UserID:     item.UserID,
			OccurredAt: item.OccurredAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) GetDailyMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		http.Error(w, "shop_id is required", http.StatusBadRequest)
		return
	}
	limit := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	metrics, err := h.metrics.ListDaily(r.Context(), shopID, limit)
	if err != nil {
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(metrics)
}
