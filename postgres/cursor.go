package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
)

// DefaultCursorTable is the table cursors are kept in unless configured.
const DefaultCursorTable = "etl_cursors"

var _ essync.CursorStore = &CursorStore{}

// CursorStore is an essync.CursorStore keeping one row per key in a table of
// the source database.
type CursorStore struct {
	db    *sql.DB
	table string

	getSQL, setSQL, deleteSQL string
}

// NewCursorStore returns a store using table, creating it if it does not
// exist. The store does not own db; Close leaves it open.
func NewCursorStore(ctx context.Context, db *sql.DB, table string) (*CursorStore, error) {
	if table == "" {
		table = DefaultCursorTable
	}
	t := QuoteQualified(table)
	cs := &CursorStore{
		db:        db,
		table:     table,
		getSQL:    fmt.Sprintf("SELECT value FROM %s WHERE key = $1", t),
		setSQL:    fmt.Sprintf("INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at", t),
		deleteSQL: fmt.Sprintf("DELETE FROM %s WHERE key = $1", t),
	}
	if _, err := db.ExecContext(ctx, createCursorTableSQL(table)); err != nil {
		return nil, errors.Wrapf(err, "creating cursor table %s", table)
	}
	return cs, nil
}

func createCursorTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key text PRIMARY KEY,
	value timestamptz NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`, QuoteQualified(table))
}

// Get implements essync.CursorStore.
func (cs *CursorStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	var wm time.Time
	err := cs.db.QueryRowContext(ctx, cs.getSQL, key).Scan(&wm)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	} else if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "reading %s from %s", key, cs.table)
	}
	return wm.UTC(), true, nil
}

// Set implements essync.CursorStore.
func (cs *CursorStore) Set(ctx context.Context, key string, wm time.Time) error {
	_, err := cs.db.ExecContext(ctx, cs.setSQL, key, wm.UTC())
	return errors.Wrapf(err, "writing %s to %s", key, cs.table)
}

// Delete implements essync.CursorStore.
func (cs *CursorStore) Delete(ctx context.Context, key string) error {
	_, err := cs.db.ExecContext(ctx, cs.deleteSQL, key)
	return errors.Wrapf(err, "deleting %s from %s", key, cs.table)
}

// Close implements essync.CursorStore.
func (cs *CursorStore) Close() error { return nil }
