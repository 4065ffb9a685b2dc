// Package file stores cursors in a single JSON document on disk, compatible
// with the state files older deployments of the synchronizer wrote.
package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cinemadb/essync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var _ essync.CursorStore = &CursorStore{}

// CursorStore is an essync.CursorStore which keeps every key in one JSON
// object, {"<key>": "<timestamp>", ...}. The whole document is rewritten on
// each Set through a temporary file and a rename, so a crash leaves either
// the old or the new document.
type CursorStore struct {
	path string
	log  logrus.FieldLogger

	mu sync.Mutex
}

// NewCursorStore returns a store persisting to path. The file is created on
// the first Set.
func NewCursorStore(path string, log logrus.FieldLogger) *CursorStore {
	if log == nil {
		log = essync.Log("file")
	}
	return &CursorStore{path: path, log: log}
}

func (cs *CursorStore) read() (map[string]string, error) {
	b, err := os.ReadFile(cs.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "reading %s", cs.path)
	}
	state := map[string]string{}
	if len(b) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", cs.path)
	}
	return state, nil
}

func (cs *CursorStore) write(state map[string]string) error {
	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding state")
	}
	tmp, err := os.CreateTemp(filepath.Dir(cs.path), filepath.Base(cs.path)+".*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	return errors.Wrapf(os.Rename(tmp.Name(), cs.path), "replacing %s", cs.path)
}

// modify applies fn to the current document and writes it back. A document
// which cannot be decoded is logged and replaced.
func (cs *CursorStore) modify(fn func(map[string]string)) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	state, err := cs.read()
	if err != nil {
		cs.log.WithError(err).Warn("discarding unreadable cursor file")
		state = map[string]string{}
	}
	fn(state)
	return cs.write(state)
}

// Get implements essync.CursorStore.
func (cs *CursorStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	cs.mu.Lock()
	state, err := cs.read()
	cs.mu.Unlock()
	if err != nil {
		return time.Time{}, false, err
	}
	v, ok := state[key]
	if !ok {
		return time.Time{}, false, nil
	}
	wm, err := essync.ParseWatermark(v)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "decoding %s", key)
	}
	return wm, true, nil
}

// Set implements essync.CursorStore.
func (cs *CursorStore) Set(ctx context.Context, key string, wm time.Time) error {
	return cs.modify(func(state map[string]string) {
		state[key] = essync.FormatWatermark(wm)
	})
}

// Delete implements essync.CursorStore.
func (cs *CursorStore) Delete(ctx context.Context, key string) error {
	return cs.modify(func(state map[string]string) {
		delete(state, key)
	})
}

// Close implements essync.CursorStore. There is nothing to release.
func (cs *CursorStore) Close() error { return nil }
