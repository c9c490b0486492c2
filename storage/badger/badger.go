// Package badger implements the document storage backend on top of a
// BadgerDB key-value store. Documents, index entries and per-table metadata
// share one keyspace:
//
//	doc:<table>:<id>            documents
//	idx:<table>:<field>:<value> id-lists
//	meta:<table>:<key>          per-table metadata
//
// A Put runs as a single transaction covering the document write and all
// index maintenance, so readers never observe a document without its index
// entries.
package badger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/docdb/codec"
	"github.com/hupe1980/docdb/document"
	"github.com/hupe1980/docdb/storage"
)

// Compile-time checks to ensure Store satisfies the storage contracts.
var (
	_ storage.Backend       = (*Store)(nil)
	_ storage.TableManager  = (*Store)(nil)
	_ storage.MetadataStore = (*Store)(nil)
	_ storage.Reindexer     = (*Store)(nil)
)

const (
	docPrefix  = "doc:"
	idxPrefix  = "idx:"
	metaPrefix = "meta:"

	nextIDKey = "next_id"
)

// Options contains configuration options for the badger backend.
type Options struct {
	// Codec encodes stored documents and id-lists. Defaults to codec.Default.
	Codec codec.Codec

	// InMemory keeps the whole store in memory without touching disk.
	InMemory bool
}

// DefaultOptions contains the default configuration options for the badger
// backend.
var DefaultOptions = Options{
	Codec:    nil,
	InMemory: false,
}

// Store is the BadgerDB storage backend.
type Store struct {
	db    *badger.DB
	codec codec.Codec
}

// New opens (or creates) a badger backend at the given path. With the
// InMemory option the path is ignored.
func New(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	bOpts := badger.DefaultOptions(path).WithLogger(nil)
	if opts.InMemory {
		bOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(bOpts)
	if err != nil {
		return nil, fmt.Errorf("badger: failed to open database: %w", err)
	}

	return &Store{db: db, codec: opts.Codec}, nil
}

// Put persists the document under (table, id) and maintains its index
// entries in the same transaction.
func (s *Store) Put(table string, id uint64, doc document.Document) (document.Document, error) {
	stored := doc.Clone()
	stored.SetID(id)
	stored.SetTable(table)

	data, err := s.codec.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("badger: failed to encode document %s/%d: %w", table, id, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		old, hadOld, err := s.getTxn(txn, table, id)
		if err != nil {
			return err
		}

		if err := txn.Set(docKey(table, id), data); err != nil {
			return fmt.Errorf("badger: failed to write document %s/%d: %w", table, id, err)
		}

		w := &txnIndexWriter{store: s, txn: txn}
		if hadOld {
			if err := storage.CleanupIndexes(w, table, id, old); err != nil {
				return err
			}
		}
		return storage.UpdateIndexes(w, table, id, stored)
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// Get returns the document stored under (table, id). A record that fails to
// decode is reported as absent.
func (s *Store) Get(table string, id uint64) (document.Document, bool, error) {
	var (
		doc document.Document
		ok  bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, ok, err = s.getTxn(txn, table, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return doc, ok, nil
}

// Delete removes the document and its index entries in one transaction.
func (s *Store) Delete(table string, id uint64) (document.Document, bool, error) {
	var (
		doc document.Document
		ok  bool
	)
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		doc, ok, err = s.getTxn(txn, table, id)
		if err != nil || !ok {
			return err
		}

		if err := txn.Delete(docKey(table, id)); err != nil {
			return fmt.Errorf("badger: failed to delete document %s/%d: %w", table, id, err)
		}
		return storage.CleanupIndexes(&txnIndexWriter{store: s, txn: txn}, table, id, doc)
	})
	if err != nil {
		return nil, false, err
	}
	return doc, ok, nil
}

// Find returns the live documents of table matching conds. Equality and
// membership conditions are served by an index lookup; range conditions fall
// back to a prefix scan over the table.
func (s *Store) Find(table string, conds storage.Conditions) ([]document.Document, error) {
	var docs []document.Document

	err := s.db.View(func(txn *badger.Txn) error {
		var candidates []document.Document

		if indexField, value, ok := conds.IndexLookup(); len(conds) > 0 && ok {
			ids, err := s.readIndexTxn(txn, idxKey(table, indexField, value))
			if err != nil {
				return err
			}
			it := ids.Iterator()
			for it.HasNext() {
				doc, found, err := s.getTxn(txn, table, it.Next())
				if err != nil {
					return err
				}
				if found {
					candidates = append(candidates, doc)
				}
			}
		} else {
			var err error
			candidates, err = s.scanTableTxn(txn, table)
			if err != nil {
				return err
			}
		}

		for _, doc := range candidates {
			if len(conds) == 0 || conds.Match(doc) {
				docs = append(docs, doc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// NextID allocates the next auto-increment id for table from a persisted
// per-table counter, so ids are never reused after deletion.
func (s *Store) NextID(table string) (uint64, error) {
	var next uint64

	err := s.db.Update(func(txn *badger.Txn) error {
		key := metaKey(table, nextIDKey)
		next = 1

		item, err := txn.Get(key)
		if err == nil {
			err = item.Value(func(val []byte) error {
				return s.codec.Unmarshal(val, &next)
			})
			if err != nil {
				return fmt.Errorf("badger: failed to decode id counter of %s: %w", table, err)
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("badger: failed to read id counter of %s: %w", table, err)
		}

		data, err := s.codec.Marshal(next + 1)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Size reports the number of stored documents across all tables.
func (s *Store) Size() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(docPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tables lists the tables with at least one stored document.
func (s *Store) Tables() ([]string, error) {
	seen := map[string]struct{}{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(docPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			rest := key[len(docPrefix):]
			if i := bytes.LastIndexByte(rest, ':'); i > 0 {
				seen[string(rest[:i])] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tables := make([]string, 0, len(seen))
	for table := range seen {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables, nil
}

// DropTable removes all documents, index entries and metadata of a table.
func (s *Store) DropTable(table string) error {
	for _, prefix := range [][]byte{
		[]byte(docPrefix + table + ":"),
		[]byte(idxPrefix + table + ":"),
		[]byte(metaPrefix + table + ":"),
	} {
		if err := s.db.DropPrefix(prefix); err != nil {
			return fmt.Errorf("badger: failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

// PutMeta stores a per-table metadata value.
func (s *Store) PutMeta(table, key string, value any) error {
	data, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("badger: failed to encode metadata %s/%s: %w", table, key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(table, key), data)
	})
}

// GetMeta loads a per-table metadata value into out.
func (s *Store) GetMeta(table, key string, out any) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(table, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("badger: failed to read metadata %s/%s: %w", table, key, err)
		}
		found = true
		return item.Value(func(val []byte) error {
			if err := s.codec.Unmarshal(val, out); err != nil {
				return fmt.Errorf("badger: failed to decode metadata %s/%s: %w", table, key, err)
			}
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Reindex rebuilds the secondary indexes of a table from its live documents.
func (s *Store) Reindex(table string) error {
	if err := s.db.DropPrefix([]byte(idxPrefix + table + ":")); err != nil {
		return fmt.Errorf("badger: failed to clear indexes of %s: %w", table, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		docs, err := s.scanTableTxn(txn, table)
		if err != nil {
			return err
		}

		w := &txnIndexWriter{store: s, txn: txn}
		for _, doc := range docs {
			id, ok := doc.ID()
			if !ok {
				continue
			}
			if err := storage.UpdateIndexes(w, table, id, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) getTxn(txn *badger.Txn, table string, id uint64) (document.Document, bool, error) {
	item, err := txn.Get(docKey(table, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger: failed to read document %s/%d: %w", table, id, err)
	}

	var doc document.Document
	err = item.Value(func(val []byte) error {
		return s.codec.Unmarshal(val, &doc)
	})
	if err != nil {
		// Corrupt record: treated as absent, never fatal.
		return nil, false, nil
	}
	return doc, true, nil
}

func (s *Store) scanTableTxn(txn *badger.Txn, table string) ([]document.Document, error) {
	prefix := []byte(docPrefix + table + ":")

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var docs []document.Document
	for it.Rewind(); it.Valid(); it.Next() {
		var doc document.Document
		err := it.Item().Value(func(val []byte) error {
			return s.codec.Unmarshal(val, &doc)
		})
		if err != nil {
			continue // corrupt record: skipped
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		a, _ := docs[i].ID()
		b, _ := docs[j].ID()
		return a < b
	})
	return docs, nil
}

func (s *Store) readIndexTxn(txn *badger.Txn, key []byte) (*roaring64.Bitmap, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return roaring64.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger: failed to read index entry: %w", err)
	}

	var ids *roaring64.Bitmap
	err = item.Value(func(val []byte) error {
		var derr error
		ids, derr = storage.DecodeIDList(s.codec, val)
		return derr
	})
	if err != nil {
		// Corrupt index entry: recovered as empty, repaired by Reindex.
		return roaring64.New(), nil
	}
	return ids, nil
}

// txnIndexWriter maintains index id-lists inside an open transaction.
type txnIndexWriter struct {
	store *Store
	txn   *badger.Txn
}

func (w *txnIndexWriter) AddToIndex(table, indexField, value string, id uint64) error {
	key := idxKey(table, indexField, value)

	ids, err := w.store.readIndexTxn(w.txn, key)
	if err != nil {
		return err
	}
	ids.Add(id)

	data, err := storage.EncodeIDList(w.store.codec, ids)
	if err != nil {
		return fmt.Errorf("badger: failed to encode index entry: %w", err)
	}
	return w.txn.Set(key, data)
}

func (w *txnIndexWriter) RemoveFromIndex(table, indexField, value string, id uint64) error {
	key := idxKey(table, indexField, value)

	ids, err := w.store.readIndexTxn(w.txn, key)
	if err != nil {
		return err
	}
	ids.Remove(id)

	if ids.IsEmpty() {
		return w.txn.Delete(key)
	}

	data, err := storage.EncodeIDList(w.store.codec, ids)
	if err != nil {
		return fmt.Errorf("badger: failed to encode index entry: %w", err)
	}
	return w.txn.Set(key, data)
}

func docKey(table string, id uint64) []byte {
	return []byte(docPrefix + table + ":" + strconv.FormatUint(id, 10))
}

func idxKey(table, indexField, value string) []byte {
	return []byte(idxPrefix + table + ":" + indexField + ":" + value)
}

func metaKey(table, key string) []byte {
	return []byte(metaPrefix + table + ":" + key)
}
