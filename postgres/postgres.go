// Package postgres connects the synchronizer to its source database: it opens
// the connection pool, stores cursors in a table, and turns NOTIFY messages
// into pipeline passes.
package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Open opens a connection pool to dsn and checks that the server answers.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	return db, nil
}

// QuoteQualified quotes a possibly schema qualified identifier such as
// content.film_work.
func QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
