package essync

import (
	"context"
	"database/sql"
	"iter"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultChunkSize is the number of rows per batch unless configured.
const DefaultChunkSize = 100

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Extractor streams the rows of a kind which changed after a watermark.
type Extractor struct {
	db    Querier
	kinds *Kinds

	chunkSize    int
	changeColumn string
	log          logrus.FieldLogger
	stats        Statter
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// OptExtractorChunkSize sets the maximum number of rows per batch.
func OptExtractorChunkSize(n int) ExtractorOption {
	return func(e *Extractor) {
		e.chunkSize = n
	}
}

// OptExtractorChangeColumn sets the name of the column holding each row's
// change time.
func OptExtractorChangeColumn(col string) ExtractorOption {
	return func(e *Extractor) {
		e.changeColumn = col
	}
}

// OptExtractorLogger sets the logger.
func OptExtractorLogger(log logrus.FieldLogger) ExtractorOption {
	return func(e *Extractor) {
		e.log = log
	}
}

// OptExtractorStatter sets the stats collector.
func OptExtractorStatter(s Statter) ExtractorOption {
	return func(e *Extractor) {
		e.stats = s
	}
}

// NewExtractor returns an Extractor reading kinds from db.
func NewExtractor(db Querier, kinds *Kinds, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		db:           db,
		kinds:        kinds,
		chunkSize:    DefaultChunkSize,
		changeColumn: DefaultChangeColumn,
		log:          Log("essync"),
		stats:        NopStatter{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.chunkSize < 1 {
		e.chunkSize = 1
	}
	return e
}

// Extract runs kind's query with since as its only parameter and yields its
// rows in batches of at most the chunk size. The query must return rows in
// ascending order of their change time. A batch is marked TiedWithNext when
// the rows sharing its newest change time continue in the next batch. The
// sequence is lazy: nothing is queried until it is ranged over, and the
// result set is closed as soon as the caller stops. An error is yielded at most once and ends the sequence.
func (e *Extractor) Extract(ctx context.Context, kind string, since time.Time) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		k, ok := e.kinds.Get(kind)
		if !ok {
			yield(Batch{}, configErrorf("unknown kind %q", kind))
			return
		}
		log := e.log.WithField("kind", kind)
		rows, err := e.db.QueryContext(ctx, k.Query, since)
		if err != nil {
			yield(Batch{}, errors.Wrapf(err, "querying %s changed after %s", kind, FormatWatermark(since)))
			return
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			yield(Batch{}, errors.Wrapf(err, "getting %s columns", kind))
			return
		}

		seq := 1
		batch := Batch{Kind: kind, Seq: seq, Rows: make([]RawRow, 0, e.chunkSize)}
		emit := func() bool {
			e.stats.Count(StatRowsExtracted, int64(len(batch.Rows)), 1, kindTag(kind))
			log.WithFields(logrus.Fields{
				"batch": batch.Seq,
				"rows":  len(batch.Rows),
				"tied":  batch.TiedWithNext,
			}).Debug("extracted batch")
			return yield(batch, nil)
		}
		// A full batch is only yielded once the row after it has been read,
		// so that a change time continuing past the boundary is known.
		for rows.Next() {
			row, err := e.scan(rows, cols)
			if len(batch.Rows) == e.chunkSize {
				last := batch.Rows[len(batch.Rows)-1]
				batch.TiedWithNext = err != nil || row.ChangedAt.Equal(last.ChangedAt)
				if !emit() {
					return
				}
				seq++
				batch = Batch{Kind: kind, Seq: seq, Rows: make([]RawRow, 0, e.chunkSize)}
			}
			if err != nil {
				yield(Batch{}, &RowError{Kind: kind, Position: len(batch.Rows) + 1, RowID: row.ID(), Row: row.Values, Err: err})
				return
			}
			batch.Rows = append(batch.Rows, row)
		}
		if err := rows.Err(); err != nil {
			yield(Batch{}, errors.Wrapf(err, "reading %s rows", kind))
			return
		}
		if len(batch.Rows) > 0 {
			emit()
		}
	}
}

func (e *Extractor) scan(rows *sql.Rows, cols []string) (RawRow, error) {
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return RawRow{}, errors.Wrap(err, "scanning row")
	}
	row := RawRow{Values: make(map[string]interface{}, len(cols))}
	for i, col := range cols {
		row.Values[col] = vals[i]
	}
	changed, err := changeTime(row.Values[e.changeColumn])
	if err != nil {
		return row, errors.Wrapf(err, "column %s", e.changeColumn)
	}
	row.ChangedAt = changed
	return row, nil
}

func changeTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return ParseWatermark(string(t))
	case string:
		return ParseWatermark(t)
	case nil:
		return time.Time{}, errors.New("missing change time")
	default:
		return time.Time{}, errors.Errorf("change time has type %T", v)
	}
}
