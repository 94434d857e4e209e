package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/beanscout/beanscout/libs/db"
)

const (
	ShopStatusPending  = "pending"
	ShopStatusApproved = "approved"
	ShopStatusRejected = "rejected"
)

type ShopRepository struct {
	pool *db.Pool
}

func NewShopRepository(pool *db.Pool) *ShopRepository {
	return &ShopRepository{pool: pool}
}

type Shop struct {
	ID          string
	Name        string
	City        string
	Address     string
	Description string
	Status      string
	SubmittedBy string
	CreatedAt   time.Time
}

// Create inserts a shop in pending status. Listings only surface approved
// shops, so a fresh submission is invisible until a moderator acts on it.
func (r *ShopRepository) Create(ctx context.Context, name, city, address, description, submittedBy string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shops (id, name, city, address, description, status, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, name, city, address, description, ShopStatusPending, submittedBy)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ShopRepository) GetByID(ctx context.Context, id string) (Shop, error) {
	var s Shop
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, city, address, description, status, submitted_by::text, created_at
		FROM shops
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.City, &s.Address, &s.Description, &s.Status, &s.SubmittedBy, &s.CreatedAt)
	return s, err
}

func (r *ShopRepository) ListApproved(ctx context.Context, city string, limit int) ([]Shop, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, city, address, description, status, submitted_by::text, created_at
		FROM shops
		WHERE status = $1
			AND ($2 = '' OR city = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, ShopStatusApproved, city, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shop
	for rows.Next() {
		var s Shop
		if err := rows.Scan(&s.ID, &s.Name, &s.City, &s.Address, &s.Description, &s.Status, &s.SubmittedBy, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *ShopRepository) ListPending(ctx context.Context, limit int) ([]Shop, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, city, address, description, status, submitted_by::text, created_at
		FROM shops
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, ShopStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shop
	for rows.Next() {
		var s Shop
		if err := rows.Scan(&s.ID, &s.Name, &s.City, &s.Address, &s.Description, &s.Status, &s.SubmittedBy, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// SetStatusTx moves a pending shop to approved or rejected inside the
// caller's transaction, so the moderation outbox row commits with it.
// Returns the updated shop, or pgx.ErrNoRows when the shop is missing or
// was already moderated.
func (r *ShopRepository) SetStatusTx(ctx context.Context, tx pgx.Tx, id string, status string) (Shop, error) {
	var s Shop
	err := tx.QueryRow(ctx, `
		UPDATE shops
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING id::text, name, city, address, description, status, submitted_by::text, created_at
	`, id, status, ShopStatusPending).Scan(&s.ID, &s.Name, &s.City, &s.Address, &s.Description, &s.Status, &s.SubmittedBy, &s.CreatedAt)
	return s, err
}
