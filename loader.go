package essync

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Indexer writes documents to the search index. BulkUpsert must create or
// fully replace each document under its ID, and report partial failures as
// an error.
type Indexer interface {
	BulkUpsert(ctx context.Context, index string, docs []Document) error
}

// Loader bulk writes document batches and advances the cursor afterwards.
type Loader struct {
	indexer Indexer
	store   CursorStore
	retry   RetryPolicy
	log     logrus.FieldLogger
	stats   Statter
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// OptLoaderRetry sets the policy applied to each bulk write.
func OptLoaderRetry(p RetryPolicy) LoaderOption {
	return func(l *Loader) {
		l.retry = p
	}
}

// OptLoaderLogger sets the logger.
func OptLoaderLogger(log logrus.FieldLogger) LoaderOption {
	return func(l *Loader) {
		l.log = log
	}
}

// OptLoaderStatter sets the stats collector.
func OptLoaderStatter(s Statter) LoaderOption {
	return func(l *Loader) {
		l.stats = s
	}
}

// NewLoader returns a Loader writing to indexer and recording progress in
// store.
func NewLoader(indexer Indexer, store CursorStore, opts ...LoaderOption) *Loader {
	l := &Loader{
		indexer: indexer,
		store:   store,
		retry:   DefaultRetryPolicy(),
		log:     Log("essync"),
		stats:   NopStatter{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load writes b with one bulk request, retried according to the loader's
// policy. Once the write succeeded the kind's cursor is set to b's watermark,
// unless that would not move it forward. Nothing is written to the cursor
// store if the bulk write fails, or if the current cursor cannot be read.
func (l *Loader) Load(ctx context.Context, b DocBatch) error {
	log := l.log.WithFields(logrus.Fields{"kind": b.Kind, "batch": b.Seq})
	if len(b.Docs) > 0 {
		start := time.Now()
		err := l.retry.Do(ctx, log, l.stats, "bulk "+b.Index, func() error {
			return l.indexer.BulkUpsert(ctx, b.Index, b.Docs)
		})
		if err != nil {
			l.stats.Count(StatBatchesFailed, 1, 1, kindTag(b.Kind))
			return errors.Wrapf(err, "loading batch %d of %s", b.Seq, b.Kind)
		}
		l.stats.Timing(StatBatchLoad, time.Since(start), 1, kindTag(b.Kind))
		l.stats.Count(StatDocsLoaded, int64(len(b.Docs)), 1, kindTag(b.Kind))
	}

	key := CursorKey(b.Kind)
	prev, _, err := l.store.Get(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "reading cursor %s before advancing it", key)
	}
	if !b.Watermark.After(prev) {
		log.WithFields(logrus.Fields{
			"watermark": FormatWatermark(b.Watermark),
			"committed": FormatWatermark(prev),
		}).Debug("cursor already past batch")
		return nil
	}
	if err := l.store.Set(ctx, key, b.Watermark); err != nil {
		return &CursorWriteError{Key: key, Err: err}
	}
	l.stats.Count(StatCursorAdvanced, 1, 1, kindTag(b.Kind))
	log.WithFields(logrus.Fields{
		"docs":      len(b.Docs),
		"watermark": FormatWatermark(b.Watermark),
	}).Info("loaded batch")
	return nil
}
