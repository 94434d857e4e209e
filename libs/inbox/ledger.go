// Package inbox records processed event ids so consumers stay idempotent
// under at-least-once delivery. The ledger is a single table with a unique
// event_id; the first insert wins, replays are ignored.
package inbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/beanscout/beanscout/libs/db"
)

const DefaultTable = "inbox_events"

type Ledger struct {
	pool  *db.Pool
	table string
}

func NewLedger(pool *db.Pool) *Ledger {
	return NewLedgerForTable(pool, DefaultTable)
}

func NewLedgerForTable(pool *db.Pool, table string) *Ledger {
	return &Ledger{pool: pool, table: table}
}

// Record inserts the event id. It returns false when the id was already
// recorded, meaning the event was seen before and must be skipped.
func (l *Ledger) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO `+l.table+` (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	return classify(err)
}

// RecordTx is Record inside a caller-owned transaction, so the dedup mark
// commits or rolls back together with the handler's own writes.
func (l *Ledger) RecordTx(ctx context.Context, tx pgx.Tx, eventID string, eventType string) (bool, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO `+l.table+` (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	return classify(err)
}

func classify(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
		return false, nil
	}
	return false, err
}
