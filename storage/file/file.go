// Package file implements the document storage backend that keeps one file
// per document and one small id-list file per indexed (field, value) pair.
//
// Layout under the root directory:
//
//	<root>/<table>/<id>.json              documents
//	<root>/indexes/<table>/<field>/<value>.idx  id-lists
//	<root>/meta/<table>/<key>.json        per-table metadata
//
// Writes are atomic from a reader's perspective: content is written to a
// temp file and renamed into place.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/docdb/codec"
	"github.com/hupe1980/docdb/document"
	"github.com/hupe1980/docdb/storage"
)

// Compile-time checks to ensure Store satisfies the storage contracts.
var (
	_ storage.Backend       = (*Store)(nil)
	_ storage.IndexWriter   = (*Store)(nil)
	_ storage.TableManager  = (*Store)(nil)
	_ storage.MetadataStore = (*Store)(nil)
	_ storage.Reindexer     = (*Store)(nil)
)

const (
	docExt   = ".json"
	indexExt = ".idx"

	indexesDir = "indexes"
	metaDir    = "meta"

	nextIDKey = "next_id"
)

// Options contains configuration options for the file backend.
type Options struct {
	// Codec encodes stored documents and id-lists. Defaults to codec.Default.
	Codec codec.Codec

	// ScanWorkers bounds the number of concurrent document reads during a
	// full table scan.
	ScanWorkers int
}

// DefaultOptions contains the default configuration options for the file
// backend.
var DefaultOptions = Options{
	Codec:       nil,
	ScanWorkers: 8,
}

// Store is the file-per-document storage backend.
type Store struct {
	root        string
	codec       codec.Codec
	scanWorkers int
}

// New creates a file backend rooted at the given directory, creating it if
// needed.
func New(root string, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.ScanWorkers <= 0 {
		opts.ScanWorkers = DefaultOptions.ScanWorkers
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("file: failed to create data directory: %w", err)
	}

	return &Store{
		root:        root,
		codec:       opts.Codec,
		scanWorkers: opts.ScanWorkers,
	}, nil
}

// Put persists the document under (table, id) and maintains its index
// entries. Index entries derived from a prior version of the document are
// removed first so no stale entries remain.
func (s *Store) Put(table string, id uint64, doc document.Document) (document.Document, error) {
	old, hadOld, err := s.Get(table, id)
	if err != nil {
		return nil, err
	}

	stored := doc.Clone()
	stored.SetID(id)
	stored.SetTable(table)

	data, err := s.codec.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("file: failed to encode document %s/%d: %w", table, id, err)
	}

	if err := os.MkdirAll(s.tableDir(table), 0o755); err != nil {
		return nil, fmt.Errorf("file: failed to create table directory: %w", err)
	}
	if err := atomicWrite(s.docPath(table, id), data); err != nil {
		return nil, fmt.Errorf("file: failed to write document %s/%d: %w", table, id, err)
	}

	if hadOld {
		if err := storage.CleanupIndexes(s, table, id, old); err != nil {
			return nil, err
		}
	}
	if err := storage.UpdateIndexes(s, table, id, stored); err != nil {
		return nil, err
	}

	return stored, nil
}

// Get returns the document stored under (table, id). A record that fails to
// decode is reported as absent.
func (s *Store) Get(table string, id uint64) (document.Document, bool, error) {
	data, err := os.ReadFile(s.docPath(table, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("file: failed to read document %s/%d: %w", table, id, err)
	}

	var doc document.Document
	if err := s.codec.Unmarshal(data, &doc); err != nil {
		// Corrupt record: treated as absent, never fatal.
		return nil, false, nil
	}
	return doc, true, nil
}

// Delete removes the document and cleans up its index entries using the
// pre-delete field values.
func (s *Store) Delete(table string, id uint64) (document.Document, bool, error) {
	doc, ok, err := s.Get(table, id)
	if err != nil || !ok {
		return nil, false, err
	}

	if err := os.Remove(s.docPath(table, id)); err != nil && !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("file: failed to delete document %s/%d: %w", table, id, err)
	}
	if err := storage.CleanupIndexes(s, table, id, doc); err != nil {
		return nil, false, err
	}

	return doc, true, nil
}

// Find returns the live documents of table matching conds. Equality and
// membership conditions are served by an index lookup; range conditions fall
// back to a full scan.
func (s *Store) Find(table string, conds storage.Conditions) ([]document.Document, error) {
	if len(conds) == 0 {
		return s.scanTable(table)
	}

	var candidates []document.Document
	if indexField, value, ok := conds.IndexLookup(); ok {
		ids, err := s.readIndexIDs(table, indexField, value)
		if err != nil {
			return nil, err
		}
		candidates = make([]document.Document, 0, ids.GetCardinality())
		it := ids.Iterator()
		for it.HasNext() {
			doc, found, err := s.Get(table, it.Next())
			if err != nil {
				return nil, err
			}
			if found {
				candidates = append(candidates, doc)
			}
		}
	} else {
		all, err := s.scanTable(table)
		if err != nil {
			return nil, err
		}
		candidates = all
	}

	matched := candidates[:0]
	for _, doc := range candidates {
		if conds.Match(doc) {
			matched = append(matched, doc)
		}
	}
	return matched, nil
}

// NextID allocates the next auto-increment id for table. It combines a scan
// of the current maximum id with a persisted high-water mark so ids are
// never reused after the highest document is deleted.
func (s *Store) NextID(table string) (uint64, error) {
	next := s.maxID(table) + 1

	var persisted uint64
	if ok, err := s.GetMeta(table, nextIDKey, &persisted); err != nil {
		return 0, err
	} else if ok && persisted > next {
		next = persisted
	}

	if err := s.PutMeta(table, nextIDKey, next+1); err != nil {
		return 0, err
	}
	return next, nil
}

// Size reports the number of stored documents across all tables.
func (s *Store) Size() (int, error) {
	tables, err := s.Tables()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, table := range tables {
		entries, err := os.ReadDir(s.tableDir(table))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, fmt.Errorf("file: failed to list table %s: %w", table, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), docExt) {
				total++
			}
		}
	}
	return total, nil
}

// Close is a no-op; the file backend holds no open handles between calls.
func (s *Store) Close() error { return nil }

// Tables lists the tables with at least one stored document.
func (s *Store) Tables() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("file: failed to list data directory: %w", err)
	}

	var tables []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || name == indexesDir || name == metaDir {
			continue
		}
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}

// DropTable removes all documents, index entries and metadata of a table.
func (s *Store) DropTable(table string) error {
	for _, dir := range []string{
		s.tableDir(table),
		filepath.Join(s.root, indexesDir, table),
		filepath.Join(s.root, metaDir, table),
	} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("file: failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

// PutMeta stores a per-table metadata value.
func (s *Store) PutMeta(table, key string, value any) error {
	data, err := s.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("file: failed to encode metadata %s/%s: %w", table, key, err)
	}
	dir := filepath.Join(s.root, metaDir, table)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("file: failed to create metadata directory: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, sanitize(key)+docExt), data); err != nil {
		return fmt.Errorf("file: failed to write metadata %s/%s: %w", table, key, err)
	}
	return nil
}

// GetMeta loads a per-table metadata value into out.
func (s *Store) GetMeta(table, key string, out any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.root, metaDir, table, sanitize(key)+docExt))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("file: failed to read metadata %s/%s: %w", table, key, err)
	}
	if err := s.codec.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("file: failed to decode metadata %s/%s: %w", table, key, err)
	}
	return true, nil
}

// Reindex rebuilds the secondary indexes of a table from its live documents.
func (s *Store) Reindex(table string) error {
	if err := os.RemoveAll(filepath.Join(s.root, indexesDir, table)); err != nil {
		return fmt.Errorf("file: failed to clear indexes of %s: %w", table, err)
	}

	docs, err := s.scanTable(table)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		id, ok := doc.ID()
		if !ok {
			continue
		}
		if err := storage.UpdateIndexes(s, table, id, doc); err != nil {
			return err
		}
	}
	return nil
}

// AddToIndex appends id to the (table, indexField, value) id-list.
func (s *Store) AddToIndex(table, indexField, value string, id uint64) error {
	path := s.indexPath(table, indexField, value)

	ids, err := s.readIndexFile(path)
	if err != nil {
		return err
	}
	ids.Add(id)

	data, err := storage.EncodeIDList(s.codec, ids)
	if err != nil {
		return fmt.Errorf("file: failed to encode index entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("file: failed to create index directory: %w", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("file: failed to write index entry: %w", err)
	}
	return nil
}

// RemoveFromIndex removes id from the (table, indexField, value) id-list,
// deleting the entry outright when the list becomes empty.
func (s *Store) RemoveFromIndex(table, indexField, value string, id uint64) error {
	path := s.indexPath(table, indexField, value)

	ids, err := s.readIndexFile(path)
	if err != nil {
		return err
	}
	ids.Remove(id)

	if ids.IsEmpty() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("file: failed to delete index entry: %w", err)
		}
		return nil
	}

	data, err := storage.EncodeIDList(s.codec, ids)
	if err != nil {
		return fmt.Errorf("file: failed to encode index entry: %w", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("file: failed to write index entry: %w", err)
	}
	return nil
}

func (s *Store) scanTable(table string) ([]document.Document, error) {
	entries, err := os.ReadDir(s.tableDir(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file: failed to list table %s: %w", table, err)
	}

	var (
		mu   sync.Mutex
		docs []document.Document
	)

	g := new(errgroup.Group)
	g.SetLimit(s.scanWorkers)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), docExt) {
			continue
		}
		name := entry.Name()
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(s.tableDir(table), name))
			if err != nil {
				if os.IsNotExist(err) {
					return nil // deleted mid-scan
				}
				return fmt.Errorf("file: failed to read %s/%s: %w", table, name, err)
			}
			var doc document.Document
			if err := s.codec.Unmarshal(data, &doc); err != nil {
				return nil // corrupt record: skipped
			}
			mu.Lock()
			docs = append(docs, doc)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		a, _ := docs[i].ID()
		b, _ := docs[j].ID()
		return a < b
	})
	return docs, nil
}

func (s *Store) maxID(table string) uint64 {
	entries, err := os.ReadDir(s.tableDir(table))
	if err != nil {
		return 0
	}
	var max uint64
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), docExt)
		if entry.IsDir() || !ok {
			continue
		}
		if id, err := strconv.ParseUint(name, 10, 64); err == nil && id > max {
			max = id
		}
	}
	return max
}

func (s *Store) readIndexIDs(table, indexField, value string) (*roaring64.Bitmap, error) {
	return s.readIndexFile(s.indexPath(table, indexField, value))
}

func (s *Store) readIndexFile(path string) (*roaring64.Bitmap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return roaring64.New(), nil
		}
		return nil, fmt.Errorf("file: failed to read index entry: %w", err)
	}
	ids, err := storage.DecodeIDList(s.codec, data)
	if err != nil {
		// Corrupt index entry: recovered as empty, repaired by Reindex.
		return roaring64.New(), nil
	}
	return ids, nil
}

func (s *Store) tableDir(table string) string {
	return filepath.Join(s.root, table)
}

func (s *Store) docPath(table string, id uint64) string {
	return filepath.Join(s.tableDir(table), strconv.FormatUint(id, 10)+docExt)
}

func (s *Store) indexPath(table, indexField, value string) string {
	return filepath.Join(s.root, indexesDir, table, sanitize(indexField), sanitize(value)+indexExt)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func sanitize(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, value)
}
