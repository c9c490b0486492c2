// Package storage defines the document storage contract shared by the file
// and badger backends, along with the condition matching and secondary-index
// maintenance logic both backends drive identically.
package storage

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/docdb/codec"
	"github.com/hupe1980/docdb/document"
)

// Backend is the document storage contract.
//
// A get or delete for a nonexistent id reports (zero, false, nil), never an
// error. A stored record that fails to decode is treated as absent and
// skipped during scans so one corrupted record cannot block a query.
type Backend interface {
	// Put persists the document under (table, id), overwriting any prior
	// value, and maintains the secondary indexes for the changed fields.
	// The write is atomic from a reader's perspective.
	Put(table string, id uint64, doc document.Document) (document.Document, error)

	// Get returns the document stored under (table, id).
	Get(table string, id uint64) (document.Document, bool, error)

	// Delete removes the document and its index entries, using the
	// document's pre-delete field values.
	Delete(table string, id uint64) (document.Document, bool, error)

	// Find returns the live documents of table matching conds. Empty
	// conditions mean a full table scan.
	Find(table string, conds Conditions) ([]document.Document, error)

	// NextID allocates the next auto-increment id for table. Allocated ids
	// are never reused after deletion.
	NextID(table string) (uint64, error)

	// Size reports the approximate number of stored documents across all
	// tables. Diagnostics only.
	Size() (int, error)

	Close() error
}

// TableManager is implemented by backends that can enumerate and drop
// tables.
type TableManager interface {
	Tables() ([]string, error)
	DropTable(table string) error
}

// MetadataStore is implemented by backends that keep per-table metadata
// (schema hints and similar advisory records).
type MetadataStore interface {
	PutMeta(table, key string, value any) error
	GetMeta(table, key string, out any) (bool, error)
}

// Reindexer is implemented by backends that can rebuild the secondary
// indexes of a table from its live documents, repairing any divergence.
type Reindexer interface {
	Reindex(table string) error
}

// DecodeIDList decodes a persisted index id-list into a bitmap.
func DecodeIDList(c codec.Codec, data []byte) (*roaring64.Bitmap, error) {
	var ids []uint64
	if err := c.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	bm := roaring64.New()
	bm.AddMany(ids)
	return bm, nil
}

// EncodeIDList encodes a bitmap as a sorted id array through the codec.
func EncodeIDList(c codec.Codec, bm *roaring64.Bitmap) ([]byte, error) {
	return c.Marshal(bm.ToArray())
}
