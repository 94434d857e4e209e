package consumer

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/beanscout/beanscout/libs/events"
	"github.com/beanscout/beanscout/libs/kafkax"
	"github.com/beanscout/beanscout/services/activity-service/internal/storage"
)

func TestBuildFeedItem_ReviewAdded(t *testing.T) {
	occurred := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	payload, _ := json.Marshal(events.ReviewAddedEvent{
		UserID:    "user-1",
		ShopID:    "shop-1",
		ReviewID:  "review-1",
		Rating:    4,
		CreatedAt: occurred,
	})

	item, err := BuildFeedItem(kafkax.EventMeta{EventID: "evt-1", EventType: events.TypeReviewAdded}, payload)
	if err != nil {
		t.Fatalf("BuildFeedItem: %v", err)
	}
	if item.EventID != "evt-1" {
		t.Fatalf("event id = %q, want evt-1", item.EventID)
	}
	if item.Kind != storage.FeedKindReviewAdded {
		t.Fatalf("kind = %q, want %q", item.Kind, storage.FeedKindReviewAdded)
	}
	if item.ShopID != "shop-1" || item.UserID != "user-1" {
		t.Fatalf("shop/user = %q/%q", item.ShopID, item.UserID)
	}
	if !item.OccurredAt.Equal(occurred) {
		t.Fatalf("occurred_at = %v, want %v", item.OccurredAt, occurred)
	}
}

func TestBuildFeedItem_CheckinCreated(t *testing.T) {
	payload, _ := json.Marshal(events.CheckinCreatedEvent{
		UserID:    "user-2",
		ShopID:    "shop-2",
		CheckinID: "checkin-1",
		CreatedAt: time.Now().UTC(),
	})

	item, err := BuildFeedItem(kafkax.EventMeta{EventID: "evt-2", EventType: events.TypeCheckinCreated}, payload)
	if err != nil {
		t.Fatalf("BuildFeedItem: %v", err)
	}
	if item.Kind != storage.FeedKindCheckin {
		t.Fatalf("kind = %q, want %q", item.Kind, storage.FeedKindCheckin)
	}
}

func TestBuildFeedItem_ShopApproved(t *testing.T) {
	payload, _ := json.Marshal(events.ShopApprovedEvent{
		ShopID:      "shop-3",
		ModeratorID: "mod-1",
		ApprovedAt:  time.Now().UTC(),
	})

	item, err := BuildFeedItem(kafkax.EventMeta{EventID: "evt-3", EventType: events.TypeShopApproved}, payload)
	if err != nil {
		t.Fatalf("BuildFeedItem: %v", err)
	}
	if item.Kind != storage.FeedKindShopApproved {
		t.Fatalf("kind = %q, want %q", item.Kind, storage.FeedKindShopApproved)
	}
	if item.UserID != "mod-1" {
		t.Fatalf("user = %q, want mod-1", item.UserID)
	}
}

func TestBuildFeedItem_RejectsBadInput(t *testing.T) {
	if _, err := BuildFeedItem(kafkax.EventMeta{EventType: events.TypeReviewAdded}, []byte(`{}`)); err == nil {
		t.Fatal("expected error for missing event id")
	}

	if _, err := BuildFeedItem(kafkax.EventMeta{EventID: "evt-4", EventType: events.TypeReviewAdded}, []byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}

	if _, err := BuildFeedItem(kafkax.EventMeta{EventID: "evt-5", EventType: events.TypeReviewAdded}, []byte(`{"rating":5}`)); err == nil {
		t.Fatal("expected error for missing shop_id/user_id")
	}

	_, err := BuildFeedItem(kafkax.EventMeta{EventID: "evt-6", EventType: "shops.closed.v1"}, []byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "unrecognized event type") {
		t.Fatalf("err = %v, want unrecognized event type", err)
	}
}
