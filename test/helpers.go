// Package test holds fixtures shared by the tests of several packages: an
// in-process SQL source shaped like the catalog's kind queries, and helpers
// for building rows and timestamps.
package test

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cinemadb/essync"
	"github.com/cinemadb/essync/kinds"
	_ "github.com/mattn/go-sqlite3" // sql driver
)

// MoviesSchema creates a flat movies table holding what the movies query
// returns.
const MoviesSchema = `CREATE TABLE movies (
	id TEXT PRIMARY KEY,
	title TEXT,
	description TEXT,
	rating REAL,
	updated_at DATETIME,
	genres TEXT NOT NULL DEFAULT '[]',
	persons TEXT NOT NULL DEFAULT '[]'
)`

// MoviesQuery selects movies changed after $1 in change order.
const MoviesQuery = `SELECT id, title, description, rating, updated_at, genres, persons
FROM movies WHERE updated_at > $1 ORDER BY updated_at, id`

var dbSeq int64

// OpenSQLite opens a private in-memory database with the movies table. It is
// closed when the test ends.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	name := fmt.Sprintf("file:essync%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := sql.Open("sqlite3", name)
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	// every connection to a shared-cache memory db must stay open
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(MoviesSchema); err != nil {
		t.Fatalf("creating movies table: %v", err)
	}
	return db
}

// Time parses an RFC 3339 timestamp and panics if it is malformed.
func Time(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

// ID returns a deterministic UUID for n.
func ID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
}

// Movie is a row of the movies table.
type Movie struct {
	ID          string
	Title       string
	Description *string
	Rating      *float64
	UpdatedAt   time.Time
	Genres      []map[string]string
	Persons     []map[string]string
}

// InsertMovies writes ms to the movies table, replacing rows with the same
// id.
func InsertMovies(t testing.TB, db *sql.DB, ms ...Movie) {
	t.Helper()
	for _, m := range ms {
		genres, persons := m.Genres, m.Persons
		if genres == nil {
			genres = []map[string]string{}
		}
		if persons == nil {
			persons = []map[string]string{}
		}
		gj, _ := json.Marshal(genres)
		pj, _ := json.Marshal(persons)
		_, err := db.Exec(`INSERT OR REPLACE INTO movies (id, title, description, rating, updated_at, genres, persons)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, m.Title, m.Description, m.Rating, m.UpdatedAt.UTC(), string(gj), string(pj))
		if err != nil {
			t.Fatalf("inserting movie %s: %v", m.ID, err)
		}
	}
}

// MovieKinds returns a registry holding only the movies kind, reading from
// the movies table.
func MovieKinds(t testing.TB) *essync.Kinds {
	t.Helper()
	ks, err := essync.NewKinds(essync.EntityKind{
		Name:      kinds.Movies,
		Index:     kinds.Movies,
		Query:     MoviesQuery,
		Transform: essync.RowTransformerFunc(kinds.TransformMovie),
	})
	if err != nil {
		t.Fatalf("registering movies: %v", err)
	}
	return ks
}

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// String returns a pointer to s.
func String(s string) *string { return &s }
