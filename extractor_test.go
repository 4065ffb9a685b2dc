package essync_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cinemadb/essync"
	"github.com/cinemadb/essync/mock"
	"github.com/cinemadb/essync/test"
	"github.com/pkg/errors"
)

var base = test.Time("2021-06-01T00:00:00Z")

func seedMovies(t *testing.T, n int) []test.Movie {
	t.Helper()
	ms := make([]test.Movie, n)
	for i := range ms {
		ms[i] = test.Movie{
			ID:        test.ID(i + 1),
			Title:     fmt.Sprintf("Movie %d", i+1),
			UpdatedAt: base.Add(time.Duration(i+1) * time.Minute),
		}
	}
	return ms
}

func collect(t *testing.T, ex *essync.Extractor, since time.Time) []essync.Batch {
	t.Helper()
	var out []essync.Batch
	for b, err := range ex.Extract(context.Background(), "movies", since) {
		if err != nil {
			t.Fatalf("extracting: %v", err)
		}
		out = append(out, b)
	}
	return out
}

func TestExtractChunking(t *testing.T) {
	tests := []struct {
		rows, chunk, batches int
	}{
		{rows: 0, chunk: 3, batches: 0},
		{rows: 1, chunk: 3, batches: 1},
		{rows: 3, chunk: 3, batches: 1},
		{rows: 7, chunk: 3, batches: 3},
		{rows: 9, chunk: 3, batches: 3},
		{rows: 5, chunk: 1, batches: 5},
	}
	for _, tst := range tests {
		t.Run(fmt.Sprintf("%d rows by %d", tst.rows, tst.chunk), func(t *testing.T) {
			db := test.OpenSQLite(t)
			test.InsertMovies(t, db, seedMovies(t, tst.rows)...)
			stats := &mock.RecordingStatter{}
			ex := essync.NewExtractor(db, test.MovieKinds(t), essync.OptExtractorChunkSize(tst.chunk), essync.OptExtractorStatter(stats))

			batches := collect(t, ex, time.Time{})
			if len(batches) != tst.batches {
				t.Fatalf("expected %d batches, got %d", tst.batches, len(batches))
			}
			total := 0
			var last time.Time
			for i, b := range batches {
				if b.Seq != i+1 {
					t.Fatalf("batch %d has seq %d", i, b.Seq)
				}
				if len(b.Rows) == 0 || len(b.Rows) > tst.chunk {
					t.Fatalf("batch %d has %d rows", i, len(b.Rows))
				}
				if i < len(batches)-1 && len(b.Rows) != tst.chunk {
					t.Fatalf("only the last batch may be short, batch %d has %d rows", i, len(b.Rows))
				}
				for _, r := range b.Rows {
					if r.ChangedAt.Before(last) {
						t.Fatalf("rows out of order: %v before %v", r.ChangedAt, last)
					}
					last = r.ChangedAt
				}
				total += len(b.Rows)
			}
			if total != tst.rows {
				t.Fatalf("expected %d rows, got %d", tst.rows, total)
			}
			if got := stats.Counted(essync.StatRowsExtracted); got != int64(tst.rows) {
				t.Fatalf("expected %d rows counted, got %d", tst.rows, got)
			}
		})
	}
}

func TestExtractSince(t *testing.T) {
	db := test.OpenSQLite(t)
	ms := seedMovies(t, 5)
	test.InsertMovies(t, db, ms...)
	ex := essync.NewExtractor(db, test.MovieKinds(t), essync.OptExtractorChunkSize(10))

	batches := collect(t, ex, ms[2].UpdatedAt)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	rows := batches[0].Rows
	if len(rows) != 2 {
		t.Fatalf("expected only rows strictly after the watermark, got %d", len(rows))
	}
	if rows[0].ID() != ms[3].ID || rows[1].ID() != ms[4].ID {
		t.Fatalf("unexpected rows %s, %s", rows[0].ID(), rows[1].ID())
	}
	if !rows[1].ChangedAt.Equal(ms[4].UpdatedAt) {
		t.Fatalf("change time: got %v, want %v", rows[1].ChangedAt, ms[4].UpdatedAt)
	}

	if got := collect(t, ex, ms[4].UpdatedAt); len(got) != 0 {
		t.Fatalf("expected nothing after the newest row, got %d batches", len(got))
	}
}

func TestExtractMarksTiedBoundary(t *testing.T) {
	db := test.OpenSQLite(t)
	ms := seedMovies(t, 5)
	// m2 to m5 share a change time, as after an edit to a genre they all
	// belong to
	for i := 2; i < len(ms); i++ {
		ms[i].UpdatedAt = ms[1].UpdatedAt
	}
	test.InsertMovies(t, db, ms...)
	ex := essync.NewExtractor(db, test.MovieKinds(t), essync.OptExtractorChunkSize(2))

	batches := collect(t, ex, time.Time{})
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for i, want := range []bool{true, true, false} {
		if batches[i].TiedWithNext != want {
			t.Fatalf("batch %d: tied %v, want %v", i+1, batches[i].TiedWithNext, want)
		}
	}
	if got := batches[0].Watermark(); !got.Equal(ms[0].UpdatedAt) {
		t.Fatalf("first batch should hold back the tied time, got %v", got)
	}
	if got := batches[1].Watermark(); !got.IsZero() {
		t.Fatalf("a batch of tied rows should not advance the cursor, got %v", got)
	}
	if got := batches[2].Watermark(); !got.Equal(ms[1].UpdatedAt) {
		t.Fatalf("last batch: got %v, want %v", got, ms[1].UpdatedAt)
	}

	single := collect(t, essync.NewExtractor(db, test.MovieKinds(t), essync.OptExtractorChunkSize(1)), time.Time{})
	if len(single) != 5 || single[0].TiedWithNext {
		t.Fatalf("expected the boundary between m1 and m2 to be untied")
	}
	if got := single[0].Watermark(); !got.Equal(ms[0].UpdatedAt) {
		t.Fatalf("watermark: got %v, want %v", got, ms[0].UpdatedAt)
	}
}

func TestExtractStopsEarly(t *testing.T) {
	db := test.OpenSQLite(t)
	test.InsertMovies(t, db, seedMovies(t, 6)...)
	ex := essync.NewExtractor(db, test.MovieKinds(t), essync.OptExtractorChunkSize(2))

	n := 0
	for _, err := range ex.Extract(context.Background(), "movies", time.Time{}) {
		if err != nil {
			t.Fatalf("extracting: %v", err)
		}
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected to stop after one batch, got %d", n)
	}
	// the result set must have been released for the single connection to
	// serve another query
	if got := collect(t, ex, time.Time{}); len(got) != 3 {
		t.Fatalf("expected 3 batches on a second extraction, got %d", len(got))
	}
}

func TestExtractErrors(t *testing.T) {
	db := test.OpenSQLite(t)
	test.InsertMovies(t, db, seedMovies(t, 2)...)

	ex := essync.NewExtractor(db, test.MovieKinds(t))
	var errs []error
	for _, err := range ex.Extract(context.Background(), "songs", time.Time{}) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || !essync.IsPermanent(errs[0]) {
		t.Fatalf("expected a single permanent error for an unknown kind, got %v", errs)
	}

	bad, err := essync.NewKinds(essync.EntityKind{
		Name:      "movies",
		Index:     "movies",
		Query:     "SELECT id, title FROM movies WHERE updated_at > $1",
		Transform: essync.RowTransformerFunc(nopTransform),
	})
	if err != nil {
		t.Fatalf("registering kind: %v", err)
	}
	errs = errs[:0]
	for _, err := range essync.NewExtractor(db, bad).Extract(context.Background(), "movies", time.Time{}) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || !essync.IsValidation(errs[0]) {
		t.Fatalf("expected a validation error for a row without change time, got %v", errs)
	}

	broken, err := essync.NewKinds(essync.EntityKind{
		Name:      "movies",
		Index:     "movies",
		Query:     "SELECT * FROM no_such_table WHERE updated_at > $1",
		Transform: essync.RowTransformerFunc(nopTransform),
	})
	if err != nil {
		t.Fatalf("registering kind: %v", err)
	}
	errs = errs[:0]
	for _, err := range essync.NewExtractor(db, broken).Extract(context.Background(), "movies", time.Time{}) {
		errs = append(errs, err)
	}
	if len(errs) != 1 || errs[0] == nil || essync.IsPermanent(errs[0]) {
		t.Fatalf("expected a single retryable query error, got %v", errs)
	}
	if errors.Cause(errs[0]) == nil {
		t.Fatalf("expected a cause")
	}
}
