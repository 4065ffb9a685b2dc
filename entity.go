package essync

import (
	"fmt"
	"time"
)

// DefaultChangeColumn is the column every kind query must return holding the
// row's change time.
const DefaultChangeColumn = "updated_at"

// RowTransformer turns one extracted row into the document stored in the
// search index.
type RowTransformer interface {
	TransformRow(row RawRow) (Document, error)
}

// RowTransformerFunc can be wrapped around a function to make it implement the
// RowTransformer interface. Similar to http.HandlerFunc.
type RowTransformerFunc func(RawRow) (Document, error)

// TransformRow implements RowTransformer for RowTransformerFunc.
func (f RowTransformerFunc) TransformRow(row RawRow) (Document, error) {
	return f(row)
}

// EntityKind describes one category of record which is synchronized
// independently: the query which finds its changed rows, the index its
// documents go to, and how a row becomes a document.
type EntityKind struct {
	Name      string
	Index     string
	Query     string
	Transform RowTransformer
}

// RawRow is one row as returned by a kind's query.
type RawRow struct {
	// Values maps column name to the value scanned from the database.
	Values map[string]interface{}

	// ChangedAt is the parsed value of the change column.
	ChangedAt time.Time
}

// ID returns the row's primary key as a string, or "" if it has none.
func (r RawRow) ID() string {
	switch v := r.Values["id"].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Batch is a chunk of consecutive rows of one kind, at most chunk size long.
type Batch struct {
	Kind string
	// Seq numbers the batches of one extraction, starting at 1.
	Seq  int
	Rows []RawRow
	// TiedWithNext is set when the first row after the batch has the same
	// change time as the batch's last row.
	TiedWithNext bool
}

// MaxChangedAt returns the newest change time in the batch, or the zero time
// for an empty batch.
func (b Batch) MaxChangedAt() time.Time {
	var max time.Time
	for _, r := range b.Rows {
		if r.ChangedAt.After(max) {
			max = r.ChangedAt
		}
	}
	return max
}

// Watermark returns the change time a cursor may move to once the batch is
// loaded. It is the newest change time in the batch unless rows sharing that
// time continue in the next batch; those are then held back, and the
// watermark is the newest change time strictly before them. The zero time
// means the batch alone cannot advance the cursor.
func (b Batch) Watermark() time.Time {
	max := b.MaxChangedAt()
	if !b.TiedWithNext {
		return max
	}
	var safe time.Time
	for _, r := range b.Rows {
		if r.ChangedAt.Before(max) && r.ChangedAt.After(safe) {
			safe = r.ChangedAt
		}
	}
	return safe
}

// Document is a denormalized search document. ID is the source row's primary
// key and is used as the document id, which makes every write an upsert.
type Document struct {
	ID   string
	Body interface{}
}

// DocBatch is the transformed form of a Batch together with the watermark the
// kind's cursor moves to once the batch is loaded.
type DocBatch struct {
	Kind      string
	Index     string
	Seq       int
	Docs      []Document
	Watermark time.Time
}

// Kinds is the ordered, closed set of entity kinds a Driver synchronizes.
type Kinds struct {
	order  []string
	byName map[string]*EntityKind
}

// NewKinds validates and registers kinds in the given order.
func NewKinds(kinds ...EntityKind) (*Kinds, error) {
	ks := &Kinds{
		byName: make(map[string]*EntityKind, len(kinds)),
	}
	for i := range kinds {
		k := kinds[i]
		switch {
		case k.Name == "":
			return nil, configErrorf("kind %d has no name", i)
		case k.Index == "":
			return nil, configErrorf("kind %s has no index", k.Name)
		case k.Query == "":
			return nil, configErrorf("kind %s has no query", k.Name)
		case k.Transform == nil:
			return nil, configErrorf("kind %s has no transform", k.Name)
		}
		if _, ok := ks.byName[k.Name]; ok {
			return nil, configErrorf("kind %s registered twice", k.Name)
		}
		ks.byName[k.Name] = &k
		ks.order = append(ks.order, k.Name)
	}
	return ks, nil
}

// Get returns the kind registered under name.
func (ks *Kinds) Get(name string) (*EntityKind, bool) {
	k, ok := ks.byName[name]
	return k, ok
}

// Names returns the kind names in registration order.
func (ks *Kinds) Names() []string {
	return append([]string(nil), ks.order...)
}

// Select returns a registry holding only the named kinds, in the order given.
// An empty list selects every kind.
func (ks *Kinds) Select(names []string) (*Kinds, error) {
	if len(names) == 0 {
		return ks, nil
	}
	sel := make([]EntityKind, 0, len(names))
	for _, name := range names {
		k, ok := ks.byName[name]
		if !ok {
			return nil, configErrorf("unknown kind %q", name)
		}
		sel = append(sel, *k)
	}
	return NewKinds(sel...)
}
