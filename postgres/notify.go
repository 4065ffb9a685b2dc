package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// CatalogTables are the source tables whose changes affect the documents of
// the default kinds.
var CatalogTables = []string{
	"content.film_work",
	"content.genre",
	"content.person",
	"content.genre_film_work",
	"content.person_film_work",
}

func notifyFunctionName(channel string) string {
	return channel + "_notify"
}

func notifyFunctionSQL(channel string) string {
	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(%s, TG_TABLE_SCHEMA || '.' || TG_TABLE_NAME);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`, pq.QuoteIdentifier(notifyFunctionName(channel)), pq.QuoteLiteral(channel))
}

func triggerName(channel, table string) string {
	return channel + "_" + strings.ReplaceAll(table, ".", "_")
}

func createTriggerSQL(channel, table string) string {
	return fmt.Sprintf(`CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH STATEMENT EXECUTE PROCEDURE %s()`,
		pq.QuoteIdentifier(triggerName(channel, table)), QuoteQualified(table), pq.QuoteIdentifier(notifyFunctionName(channel)))
}

// InstallNotifyTrigger makes every change to tables send a notification on
// channel. It creates a plpgsql function and one statement level trigger per
// table, leaving triggers which already exist alone.
func InstallNotifyTrigger(ctx context.Context, db *sql.DB, channel string, tables []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, notifyFunctionSQL(channel)); err != nil {
		return errors.Wrap(err, "creating notify function")
	}
	for _, table := range tables {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = $1 AND tgrelid = $2::regclass)`,
			triggerName(channel, table), QuoteQualified(table)).Scan(&exists)
		if err != nil {
			return errors.Wrapf(err, "looking up trigger on %s", table)
		}
		if exists {
			continue
		}
		if _, err := tx.ExecContext(ctx, createTriggerSQL(channel, table)); err != nil {
			return errors.Wrapf(err, "creating trigger on %s", table)
		}
	}
	return errors.Wrap(tx.Commit(), "committing triggers")
}
