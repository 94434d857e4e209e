package outbox

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/beanscout/beanscout/libs/db"
	otelx "github.com/beanscout/beanscout/libs/otel"
)

const DefaultTable = "outbox_events"

// Repository reads and writes one service's outbox table. The table name
// is a parameter so the same code drains any service's database.
//
// Expected schema:
//
//	id bigserial primary key,
//	event_id uuid not null,
//	aggregate_type text not null,
//	aggregate_id text not null,
//	event_type text not null,
//	payload jsonb not null,
//	traceparent text not null default '',
//	tracestate text not null default '',
//	status text not null default 'pending',
//	attempts int not null default 0,
//	max_attempts int not null default 10,
//	next_attempt_at timestamptz not null default now(),
//	claimed_by text,
//	claimed_until timestamptz,
//	last_error text,
//	created_at timestamptz not null default now(),
//	published_at timestamptz
//
// with an index on (status, next_attempt_at, created_at) so the claim
// query stays cheap as the table grows.
type Repository struct {
	pool  *db.Pool
	table string
}

func NewRepository(pool *db.Pool) *Repository {
	return NewRepositoryForTable(pool, DefaultTable)
}

func NewRepositoryForTable(pool *db.Pool, table string) *Repository {
	if table == "" {
		table = DefaultTable
	}
	return &Repository{pool: pool, table: table}
}

// Insert appends an event row. It must be called on the same transaction
// as the business mutation the event describes: the row existing implies
// the mutation is durable.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.table), uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// Claim atomically stamps up to limit due pending rows with this owner
// and a lease deadline, returning them oldest-first. Rows claimed by a
// crashed drainer become claimable again once their lease expires, which
// is what makes running several drainer instances against one table
// safe (at-least-once, no lost rows).
func (r *Repository) Claim(ctx context.Context, owner string, lease time.Duration, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		UPDATE %[1]s
		SET claimed_by = $1, claimed_until = $2
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE status = 'pending'
			  AND next_attempt_at <= now()
			  AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY created_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, attempts, max_attempts, created_at
	`, r.table), owner, time.Now().UTC().Add(lease), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.Traceparent, &rec.Tracestate, &rec.Attempts, &rec.MaxAttempts, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// UPDATE ... RETURNING does not promise subselect order.
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// MarkPublished is called per row, immediately after its publish call
// returns, so a crash only ever re-delivers the single in-flight row.
func (r *Repository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = 'published', published_at = now(), claimed_by = NULL, claimed_until = NULL, last_error = NULL
		WHERE id = $1
	`, r.table), id)
	return err
}

func (r *Repository) MarkRetry(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET attempts = $2, next_attempt_at = $3, last_error = $4, claimed_by = NULL, claimed_until = NULL
		WHERE id = $1
	`, r.table), id, attempts, nextAttemptAt, lastError)
	return err
}

func (r *Repository) MarkDead(ctx context.Context, id int64, lastError string) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = 'dead', last_error = $2, claimed_by = NULL, claimed_until = NULL
		WHERE id = $1
	`, r.table), id, lastError)
	return err
}

// PendingCount reports backlog size for readiness and alerting.
func (r *Repository) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(*) FROM %s WHERE status = 'pending'
	`, r.table)).Scan(&n)
	return n, err
}
