package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/beanscout/beanscout/libs/db"
)

type Notification struct {
	EventID   string
	UserID    string
	Channel   string
	Recipient string
	Subject   string
	Status    string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, user_id, channel, recipient, subject, status)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6)
	`, n.EventID, n.UserID, n.Channel, n.Recipient, n.Subject, n.Status)
	return err
}

// InsertTx writes the notification on a caller-owned transaction so it
// commits together with the consumer's dedup mark.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, n Notification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (event_id, user_id, channel, recipient, subject, status)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6)
	`, n.EventID, n.UserID, n.Channel, n.Recipient, n.Subject, n.Status)
	return err
}
