package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/beanscout/beanscout/libs/db"
)

const (
	FeedKindShopApproved = "shop_approved"
	FeedKindReviewAdded  = "review_added"
	FeedKindCheckin      = "checkin"
)

type FeedRepository struct {
	pool *db.Pool
}

func NewFeedRepository(pool *db.Pool) *FeedRepository {
	return &FeedRepository{pool: pool}
}

// FeedItem is one entry in the public activity feed. EventID is the
// originating event's id and the primary key, so a replayed event can
// never produce a second entry.
type FeedItem struct {
	EventID    string
	Kind       string
	ShopID     string
	UserID     string
	OccurredAt time.Time
	CreatedAt  time.Time
}

func (r *FeedRepository) InsertTx(ctx context.Context, tx pgx.Tx, item FeedItem) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO feed_items (event_id, kind, shop_id, user_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`, item.EventID, item.Kind, item.ShopID, item.UserID, item.OccurredAt)
	return err
}

func (r *FeedRepository) ListRecent(ctx context.Context, shopID string, limit int) ([]FeedItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT event_id::text, kind, shop_id::text, user_id::text, occurred_at, created_at
		FROM feed_items
		WHERE ($1 = '' OR shop_id = $1)
		ORDER BY occurred_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FeedItem
	for rows.Next() {
		var item FeedItem
		if err := rows.Scan(&item.EventID, &item.Kind, &item.ShopID, &item.UserID, &item.OccurredAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
