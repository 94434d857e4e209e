package storage

import (
	"context"
	"time"

	"github.com/beanscout/beanscout/libs/db"
)

type PhotoRepository struct {
	pool *db.Pool
}

func NewPhotoRepository(pool *db.Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

type Photo struct {
	PhotoID    string
	ShopID     string
	URL        string
	Caption    string
	UploadedBy string
	CreatedAt  time.Time
}

// Attach links an uploaded photo to a shop. The photo id is the primary key
// and the event feed replays under at-least-once delivery, so a duplicate
// attach is a no-op rather than an error.
func (r *PhotoRepository) Attach(ctx context.Context, p Photo) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO shop_photos (photo_id, shop_id, url, caption, uploaded_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (photo_id) DO NOTHING
	`, p.PhotoID, p.ShopID, p.URL, p.Caption, p.UploadedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PhotoRepository) ListByShop(ctx context.Context, shopID string, limit int) ([]Photo, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT photo_id::text, shop_id::text, url, caption, uploaded_by::text, created_at
		FROM shop_photos
		WHERE shop_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Photo
	for rows.Next() {
		var p Photo
		if err := rows.Scan(&p.PhotoID, &p.ShopID, &p.URL, &p.Caption, &p.UploadedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
