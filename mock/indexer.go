package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
)

// Indexer stores documents in memory as JSON, keyed by index and id. Calls
// selected by FailFirst, FailFrom or FailAlways return Err (or a generic
// error) without storing anything.
type Indexer struct {
	mu    sync.Mutex
	docs  map[string]map[string]json.RawMessage
	calls int

	// FailFirst fails the first n calls.
	FailFirst int
	// FailFrom fails call n and every call after it; calls count from 1.
	FailFrom int
	Err      error
	// FailAlways makes every call fail.
	FailAlways bool
}

// NewIndexer returns an empty Indexer.
func NewIndexer() *Indexer {
	return &Indexer{docs: make(map[string]map[string]json.RawMessage)}
}

// BulkUpsert implements essync.Indexer.
func (ix *Indexer) BulkUpsert(ctx context.Context, index string, docs []essync.Document) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.calls++
	if ix.FailAlways || ix.calls <= ix.FailFirst || (ix.FailFrom > 0 && ix.calls >= ix.FailFrom) {
		if ix.Err != nil {
			return ix.Err
		}
		return errors.New("index unavailable")
	}
	bodies := make(map[string]json.RawMessage, len(docs))
	for _, d := range docs {
		b, err := json.Marshal(d.Body)
		if err != nil {
			return errors.Wrapf(err, "marshalling %s", d.ID)
		}
		bodies[d.ID] = b
	}
	if ix.docs[index] == nil {
		ix.docs[index] = make(map[string]json.RawMessage)
	}
	for id, b := range bodies {
		ix.docs[index][id] = b
	}
	return nil
}

// Calls returns the number of BulkUpsert calls, failed ones included.
func (ix *Indexer) Calls() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.calls
}

// Docs returns a copy of the documents stored in index.
func (ix *Indexer) Docs(index string) map[string]json.RawMessage {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make(map[string]json.RawMessage, len(ix.docs[index]))
	for id, b := range ix.docs[index] {
		out[id] = b
	}
	return out
}

// Doc unmarshals the document id of index into v and reports whether it
// exists.
func (ix *Indexer) Doc(index, id string, v interface{}) (bool, error) {
	ix.mu.Lock()
	b, ok := ix.docs[index][id]
	ix.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, v)
}
