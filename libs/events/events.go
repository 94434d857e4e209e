// Package events defines the flat, versionless event records exchanged
// between services, and the outbox registry that decodes them. The Kafka
// topic name for each event equals its type constant.
package events

import (
	"encoding/json"
	"time"

	"github.com/beanscout/beanscout/libs/outbox"
)

const (
	TypeUserRegistered     = "auth.user.registered.v1"
	TypeAuditRecorded      = "auth.audit.v1"
	TypeShopApproved       = "shops.approved.v1"
	TypeReviewAdded        = "shops.review.added.v1"
	TypeCheckinCreated     = "shops.checkin.created.v1"
	TypeShopPhotosUploaded = "media.shop.photos.uploaded.v1"
)

type UserRegisteredEvent struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type AuditRecordedEvent struct {
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type ShopApprovedEvent struct {
	ShopID      string    `json:"shop_id"`
	ModeratorID string    `json:"moderator_id"`
	ApprovedAt  time.Time `json:"approved_at"`
}

type ReviewAddedEvent struct {
	UserID    string    `json:"user_id"`
	ShopID    string    `json:"shop_id"`
	ReviewID  string    `json:"review_id"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

type CheckinCreatedEvent struct {
	UserID    string    `json:"user_id"`
	ShopID    string    `json:"shop_id"`
	CheckinID string    `json:"checkin_id"`
	CreatedAt time.Time `json:"created_at"`
}

type PhotoRef struct {
	PhotoID string `json:"photo_id"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

type ShopPhotosUploadedEvent struct {
	ShopID     string     `json:"shop_id"`
	UploadedBy string     `json:"uploaded_by"`
	Photos     []PhotoRef `json:"photos"`
	UploadedAt time.Time  `json:"uploaded_at"`
}

// NewRegistry returns a registry covering every event type a drainer in
// this repo may encounter. Built once at startup; the drainer treats a
// type missing from it as a permanent failure.
func NewRegistry() *outbox.Registry {
	r := outbox.NewRegistry()
	r.Register(TypeUserRegistered, outbox.JSONDecoder[UserRegisteredEvent]())
	r.Register(TypeAuditRecorded, outbox.JSONDecoder[AuditRecordedEvent]())
	r.Register(TypeShopApproved, outbox.JSONDecoder[ShopApprovedEvent]())
	r.Register(TypeReviewAdded, outbox.JSONDecoder[ReviewAddedEvent]())
	r.Register(TypeCheckinCreated, outbox.JSONDecoder[CheckinCreatedEvent]())
	r.Register(TypeShopPhotosUploaded, outbox.JSONDecoder[ShopPhotosUploadedEvent]())
	return r
}
