package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/beanscout/beanscout/libs/db"
)

type ReviewRepository struct {
	pool *db.Pool
}

func NewReviewRepository(pool *db.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

type Review struct {
	ID        string
	ShopID    string
	UserID    string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// CreateTx inserts a review inside the caller's transaction so the review
// and its outbox row commit atomically.
func (r *ReviewRepository) CreateTx(ctx context.Context, tx pgx.Tx, shopID, userID string, rating int, comment string) (string, error) {
	id := uuid.NewString()
	_, err := tx.Exec(ctx, `
		INSERT INTO reviews (id, shop_id, user_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
	`, id, shopID, userID, rating, comment)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ReviewRepository) ListByShop(ctx context.Context, shopID string, limit int) ([]Review, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, user_id::text, rating, comment, created_at
		FROM reviews
		WHERE shop_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.ShopID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// CountByUserSince supports the per-user review rate policy.
func (r *ReviewRepository) CountByUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM reviews
		WHERE user_id = $1 AND created_at >= $2
	`, userID, since).Scan(&n)
	return n, err
}

func (r *ReviewRepository) AverageRating(ctx context.Context, shopID string) (float64, int, error) {
	var avg float64
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(avg(rating), 0), count(*)
		FROM reviews
		WHERE shop_id = $1
	`, shopID).Scan(&avg, &n)
	return avg, n, err
}
