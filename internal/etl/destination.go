package etl

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes a sanitized table into a named collection.
// The only write mode is full replace: delete everything, then insert.

// Collection is the slice of a document collection the writer needs.
// dbclient adapts a *mongo.Collection to it; tests use an in-memory fake.
type Collection interface {
	DeleteMany(ctx context.Context, filter any) (int64, error)
	InsertMany(ctx context.Context, docs []any) (int, error)
}

// DocumentStore hands out collections by name.
type DocumentStore interface {
	Collection(name string) Collection
}

// Destination replaces a collection's contents with a table.
type Destination interface {
	Replace(ctx context.Context, collection string, t *Table) (*WriteResult, error)
}

// WriteResult reports what a replace did. Empty is set when the table had no
// rows: the collection was cleared and nothing was inserted.
type WriteResult struct {
	Collection string `json:"collection"`
	Deleted    int64  `json:"deleted"`
	Inserted   int    `json:"inserted"`
	Empty      bool   `json:"empty"`
}

// ── Replace Writer ─────────────────────────────────────────

// ReplaceWriter implements Destination over a DocumentStore.
type ReplaceWriter struct {
	Store DocumentStore
}

func (w *ReplaceWriter) Replace(ctx context.Context, collection string, t *Table) (*WriteResult, error) {
	coll := w.Store.Collection(collection)
	res := &WriteResult{Collection: collection}

	deleted, err := coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return res, &SinkWriteError{Collection: collection, Stage: StageDelete, Err: err}
	}
	res.Deleted = deleted

	if t.Len() == 0 {
		res.Empty = true
		return res, nil
	}

	inserted, err := coll.InsertMany(ctx, Documents(t))
	res.Inserted = inserted
	if err != nil {
		return res, &SinkWriteError{
			Collection: collection,
			Stage:      StageInsert,
			Deleted:    deleted,
			Inserted:   inserted,
			Err:        err,
		}
	}
	if inserted != t.Len() {
		return res, &SinkWriteError{
			Collection: collection,
			Stage:      StageInsert,
			Deleted:    deleted,
			Inserted:   inserted,
			Err:        fmt.Errorf("inserted %d of %d documents", inserted, t.Len()),
		}
	}
	return res, nil
}

// Documents renders each record as a flat BSON document whose field order
// follows the table's column order.
func Documents(t *Table) []any {
	docs := make([]any, len(t.Records))
	for i, r := range t.Records {
		doc := make(bson.D, 0, len(t.Columns))
		for _, col := range t.Columns {
			doc = append(doc, bson.E{Key: col, Value: r.Data[col].Any()})
		}
		docs[i] = doc
	}
	return docs
}
