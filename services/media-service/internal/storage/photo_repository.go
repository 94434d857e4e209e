package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/beanscout/beanscout/libs/db"
)

type PhotoRepository struct {
	pool *db.Pool
}

func NewPhotoRepository(pool *db.Pool) *PhotoRepository {
	return &PhotoRepository{pool: pool}
}

type Photo struct {
	ID          string
	ShopID      string
	URL         string
	Caption     string
	ContentType string
	SizeBytes   int64
	UploadedBy  string
	CreatedAt   time.Time
}

// CreateBatchTx inserts a photo batch inside the caller's transaction so
// the rows and the announcing outbox row commit together. The generated
// ids are filled into the slice.
func (r *PhotoRepository) CreateBatchTx(ctx context.Context, tx pgx.Tx, photos []Photo) error {
	for i := range photos {
		photos[i].ID = uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO photos (id, shop_id, url, caption, content_type, size_bytes, uploaded_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, photos[i].ID, photos[i].ShopID, photos[i].URL, photos[i].Caption,
			photos[i].ContentType, photos[i].SizeBytes, photos[i].UploadedBy); err != nil {
			return err
		}
	}
	return nil
}

func (r *PhotoRepository) ListByShop(ctx context.Context, shopID string, limit int) ([]Photo, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, url, caption, content_type, size_bytes, uploaded_by::text, created_at
		FROM photos
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
		if err := rows.Scan(&p.ID, &p.ShopID, &p.URL, &p.Caption, &p.ContentType, &p.SizeBytes, &p.UploadedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
