package essync

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CursorStore persists the watermark of each kind across restarts. A Set for
// one key must be atomic; keys are independent of each other.
type CursorStore interface {
	// Get returns the stored watermark for key. ok is false if none is
	// stored.
	Get(ctx context.Context, key string) (wm time.Time, ok bool, err error)
	Set(ctx context.Context, key string, wm time.Time) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

// CursorKey returns the key under which kind's watermark is stored.
func CursorKey(kind string) string {
	return kind + "_last_updated"
}

// ReadWatermark returns the stored watermark for kind. Anything that stops
// the store from answering is logged and treated as if no watermark were
// stored, which makes the kind start from the beginning.
func ReadWatermark(ctx context.Context, store CursorStore, kind string, log logrus.FieldLogger) time.Time {
	key := CursorKey(kind)
	wm, ok, err := store.Get(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("reading cursor, starting from the beginning")
		return time.Time{}
	}
	if !ok {
		return time.Time{}
	}
	return wm
}

// FormatWatermark renders wm the way every cursor store persists it.
func FormatWatermark(wm time.Time) string {
	return wm.UTC().Format(time.RFC3339Nano)
}

var watermarkLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseWatermark parses a stored or scanned timestamp. Besides RFC 3339 it
// accepts the space separated forms Postgres and older state files use.
// Timestamps without a zone are taken as UTC.
func ParseWatermark(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range watermarkLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized timestamp %q", s)
}
