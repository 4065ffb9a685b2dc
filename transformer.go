package essync

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Transformer turns batches of rows into batches of documents using each
// kind's RowTransformer.
type Transformer struct {
	kinds *Kinds
	log   logrus.FieldLogger
}

// NewTransformer returns a Transformer for kinds. A nil log uses the package
// logger.
func NewTransformer(kinds *Kinds, log logrus.FieldLogger) *Transformer {
	if log == nil {
		log = Log("essync")
	}
	return &Transformer{kinds: kinds, log: log}
}

// Transform maps every row of b to a document, preserving order. The
// returned watermark is computed from the input rows by Batch.Watermark. The
// first row which cannot be transformed fails the whole batch with a
// *RowError; it is logged together with the row's values.
func (t *Transformer) Transform(ctx context.Context, b Batch) (DocBatch, error) {
	k, ok := t.kinds.Get(b.Kind)
	if !ok {
		return DocBatch{}, configErrorf("unknown kind %q", b.Kind)
	}
	out := DocBatch{
		Kind:      b.Kind,
		Index:     k.Index,
		Seq:       b.Seq,
		Docs:      make([]Document, 0, len(b.Rows)),
		Watermark: b.Watermark(),
	}
	for i, row := range b.Rows {
		doc, err := k.Transform.TransformRow(row)
		if err == nil && doc.ID == "" {
			err = errors.New("document has no id")
		}
		if err != nil {
			rerr := &RowError{Kind: b.Kind, Position: i + 1, RowID: row.ID(), Row: row.Values, Err: err}
			t.log.WithError(err).WithFields(logrus.Fields{
				"kind":     b.Kind,
				"batch":    b.Seq,
				"position": rerr.Position,
				"id":       rerr.RowID,
				"row":      row.Values,
			}).Error("transforming row")
			return DocBatch{}, rerr
		}
		out.Docs = append(out.Docs, doc)
	}
	return out, nil
}
