package essync

import (
	"context"
	"iter"
	"time"
)

// BatchExtractor is the first stage: it streams batches of rows changed
// after since. Implementations must be safe to call for different kinds
// concurrently.
type BatchExtractor interface {
	Extract(ctx context.Context, kind string, since time.Time) iter.Seq2[Batch, error]
}

// BatchTransformer is the second stage: it turns a batch of rows into a batch
// of documents carrying the watermark to commit once they are loaded.
type BatchTransformer interface {
	Transform(ctx context.Context, b Batch) (DocBatch, error)
}

// BatchLoader is the last stage: it writes a batch of documents and then
// advances the kind's cursor.
type BatchLoader interface {
	Load(ctx context.Context, b DocBatch) error
}

var (
	_ BatchExtractor   = (*Extractor)(nil)
	_ BatchTransformer = (*Transformer)(nil)
	_ BatchLoader      = (*Loader)(nil)
)
