package storage

import (
	"github.com/hupe1980/docdb/document"
)

// IndexWriter is the per-backend primitive the shared index maintainer
// drives. The file backend stores one id-list file per (field, value), the
// badger backend one idx: key; the derivation of entries is identical.
type IndexWriter interface {
	AddToIndex(table, indexField, value string, id uint64) error
	RemoveFromIndex(table, indexField, value string, id uint64) error
}

// UpdateIndexes derives the index entries for a freshly stored document:
// one equality entry per scalar field, one membership entry per element of
// each array field.
func UpdateIndexes(w IndexWriter, table string, id uint64, doc document.Document) error {
	return forEachEntry(doc, func(indexField, value string) error {
		return w.AddToIndex(table, indexField, value, id)
	})
}

// CleanupIndexes removes the index entries derived from the document's
// pre-delete (or pre-overwrite) field values. An entry whose id-list becomes
// empty is deleted outright by the backend.
func CleanupIndexes(w IndexWriter, table string, id uint64, doc document.Document) error {
	return forEachEntry(doc, func(indexField, value string) error {
		return w.RemoveFromIndex(table, indexField, value, id)
	})
}

func forEachEntry(doc document.Document, fn func(indexField, value string) error) error {
	for field, v := range doc {
		if field == document.FieldTable {
			continue
		}
		if document.IsScalar(v) {
			value, ok := document.Canonical(v)
			if !ok {
				continue
			}
			if err := fn(field, value); err != nil {
				return err
			}
			continue
		}
		for _, elem := range document.Elements(v) {
			value, ok := document.Canonical(elem)
			if !ok {
				continue
			}
			if err := fn(field+IncludesSuffix, value); err != nil {
				return err
			}
		}
	}
	return nil
}
