// Package mock has in-memory implementations of the pipeline's backends for
// use in tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// CursorStore keeps watermarks in a map. GetErr and SetErr, when set, are
// returned instead of touching the map.
type CursorStore struct {
	mu     sync.Mutex
	values map[string]time.Time
	sets   []string

	GetErr error
	SetErr error
}

// NewCursorStore returns an empty CursorStore.
func NewCursorStore() *CursorStore {
	return &CursorStore{values: make(map[string]time.Time)}
}

// Get implements essync.CursorStore.
func (c *CursorStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return time.Time{}, false, c.GetErr
	}
	wm, ok := c.values[key]
	return wm, ok, nil
}

// Set implements essync.CursorStore.
func (c *CursorStore) Set(ctx context.Context, key string, wm time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return errors.Wrapf(c.SetErr, "setting %s", key)
	}
	c.values[key] = wm
	c.sets = append(c.sets, key)
	return nil
}

// Delete implements essync.CursorStore.
func (c *CursorStore) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

// Close implements essync.CursorStore.
func (c *CursorStore) Close() error { return nil }

// Value returns the watermark stored under key.
func (c *CursorStore) Value(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wm, ok := c.values[key]
	return wm, ok
}

// Sets returns the keys of every successful Set, in order.
func (c *CursorStore) Sets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sets...)
}
