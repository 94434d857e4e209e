package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/beanscout/beanscout/libs/db"
)

type MetricsRepository struct {
	pool *db.Pool
}

func NewMetricsRepository(pool *db.Pool) *MetricsRepository {
	return &MetricsRepository{pool: pool}
}

// BumpDailyTx increments per-shop daily counters in the caller's
// transaction, alongside the feed insert that produced them.
func (r *MetricsRepository) BumpDailyTx(ctx context.Context, tx pgx.Tx, shopID string, day time.Time, reviewInc, checkinInc int) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO daily_shop_metrics (shop_id, day, review_count, checkin_count)
		VALUES ($1, $2::date, $3, $4)
		ON CONFLICT (shop_id, day)
		DO UPDATE SET review_count = daily_shop_metrics.review_count + EXCLUDED.review_count,
		              checkin_count = daily_shop_metrics.checkin_count + EXCLUDED.checkin_count,
		              updated_at = now()
	`, shopID, day.UTC(), reviewInc, checkinInc)
	return err
}

type DailyShopMetric struct {
	ShopID       string    `json:"shop_id"`
	Day          time.Time `json:"day"`
	ReviewCount  int       `json:"review_count"`
	CheckinCount int       `json:"checkin_count"`
}

func (r *MetricsRepository) ListDaily(ctx context.Context, shopID string, limit int) ([]DailyShopMetric, error) {
	if limit <= 0 || limit > 90 {
		limit = 30
	}
	rows, err := r.pool.Query(ctx, `
		SELECT shop_id::text, day, review_count, checkin_count
		FROM daily_shop_metrics
		WHERE shop_id = $1
		ORDER BY day DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyShopMetric
	for rows.Next() {
		var m DailyShopMetric
		if err := rows.Scan(&m.ShopID, &m.Day, &m.ReviewCount, &m.CheckinCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// RecordAuditEventTx stores a security audit event emitted by the auth
// service, on a caller-owned transaction so it commits together with the
// consumer's dedup mark. Metadata is kept as raw json.
func (r *MetricsRepository) RecordAuditEventTx(ctx context.Context, tx pgx.Tx, eventType, actorID string, metadata json.RawMessage, createdAt time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`, eventType, actorID, metadata, createdAt)
	return err
}
