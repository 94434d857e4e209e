package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/beanscout/beanscout/libs/db"
)

type CheckinRepository struct {
	pool *db.Pool
}

func NewCheckinRepository(pool *db.Pool) *CheckinRepository {
	return &CheckinRepository{pool: pool}
}

type Checkin struct {
	ID        string
	ShopID    string
	UserID    string
	Day       time.Time
	CreatedAt time.Time
}

// CreateTx records a check-in inside the caller's transaction. One check-in
// per user per shop per day; a repeat insert on the same day is absorbed by
// the unique constraint and reported as created=false so the handler can
// answer 200 instead of 500 and skip the outbox row.
func (r *CheckinRepository) CreateTx(ctx context.Context, tx pgx.Tx, shopID, userID string, day time.Time) (string, bool, error) {
	id := uuid.NewString()
	tag, err := tx.Exec(ctx, `
		INSERT INTO checkins (id, shop_id, user_id, day)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (shop_id, user_id, day) DO NOTHING
	`, id, shopID, userID, day)
	if err != nil {
		return "", false, err
	}
	if tag.RowsAffected() == 0 {
		return "", false, nil
	}
	return id, true, nil
}

func (r *CheckinRepository) ListByShop(ctx context.Context, shopID string, limit int) ([]Checkin, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, user_id::text, day, created_at
		FROM checkins
		WHERE shop_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkin
	for rows.Next() {
		var c Checkin
		if err := rows.Scan(&c.ID, &c.ShopID, &c.UserID, &c.Day, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *CheckinRepository) CountForShop(ctx context.Context, shopID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM checkins WHERE shop_id = $1
	`, shopID).Scan(&n)
	return n, err
}
