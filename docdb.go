package docdb

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/docdb/codec"
	"github.com/hupe1980/docdb/document"
	"github.com/hupe1980/docdb/storage"
	badgerstore "github.com/hupe1980/docdb/storage/badger"
	filestore "github.com/hupe1980/docdb/storage/file"
	"github.com/hupe1980/docdb/vector"
	"github.com/hupe1980/docdb/vector/brute"
	"github.com/hupe1980/docdb/vector/cover"
	"github.com/hupe1980/docdb/vector/flat"
)

// Conditions is re-exported for callers of Find and the query builder.
type Conditions = storage.Conditions

// Op is re-exported for callers of Find and the query builder.
type Op = storage.Op

// Store is an embedded document store with secondary indexes and vector
// similarity search. All document mutations of a table are serialized
// through one exclusive lock per table, so sequential put/get/find
// consistency holds under concurrent callers; vector collections carry
// their own locking inside the engine.
type Store struct {
	opts    options
	backend storage.Backend
	engine  *vector.Engine
	logger  *Logger
	closed  atomic.Bool

	mu        sync.Mutex
	tables    map[string]*sync.Mutex
	vecFields map[string]map[string]struct{}
}

// Open creates or opens a store. Backend and vector strategy are validated
// here; an unknown selection is a construction error, never deferred to
// first use.
func Open(optFns ...Option) (*Store, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if _, err := ParseBackend(string(opts.backend)); err != nil {
		return nil, err
	}
	if _, err := ParseStrategy(string(opts.strategy)); err != nil {
		return nil, err
	}

	c := opts.codec
	if opts.compression {
		zc, err := codec.NewZstd(c)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize compression: %w", err)
		}
		c = zc
	}

	var (
		backend storage.Backend
		err     error
	)
	switch opts.backend {
	case BackendFile:
		backend, err = filestore.New(opts.path, func(o *filestore.Options) {
			o.Codec = c
		})
	case BackendBadger:
		backend, err = badgerstore.New(opts.path, func(o *badgerstore.Options) {
			o.Codec = c
			o.InMemory = opts.inMemory
		})
	}
	if err != nil {
		return nil, err
	}

	var factory vector.Factory
	switch opts.strategy {
	case StrategyBrute:
		factory = func() vector.Strategy { return brute.New() }
	case StrategyFlat:
		factory = func() vector.Strategy { return flat.New() }
	case StrategyCover:
		factory = func() vector.Strategy { return cover.New() }
	}

	engine := vector.NewEngine(factory)
	for collection, dim := range opts.dimensions {
		if err := engine.SetDimensions(collection, dim); err != nil {
			_ = backend.Close()
			return nil, translateError(err)
		}
	}

	return &Store{
		opts:      opts,
		backend:   backend,
		engine:    engine,
		logger:    opts.logger,
		tables:    make(map[string]*sync.Mutex),
		vecFields: make(map[string]map[string]struct{}),
	}, nil
}

// CollectionName derives the vector collection name for a table field,
// "<table>_<field>".
func CollectionName(table, field string) string {
	return table + "_" + field
}

// Put persists doc under (table, id), overwriting any prior document and
// keeping the table's secondary indexes consistent. The returned document
// is the stored form, with id and table stamped in.
func (s *Store) Put(table string, id uint64, doc document.Document) (document.Document, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	stored, err := s.backend.Put(table, id, doc)
	s.logger.LogPut(table, id, err)
	return stored, translateError(err)
}

// Get returns the document stored under (table, id). A missing id is
// reported through the boolean, not an error.
func (s *Store) Get(table string, id uint64) (document.Document, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}

	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	doc, ok, err := s.backend.Get(table, id)
	return doc, ok, translateError(err)
}

// FindByID is the convenience form of Get that treats a missing id as an
// error (ErrRecordNotFound).
func (s *Store) FindByID(table string, id uint64) (document.Document, error) {
	doc, ok, err := s.Get(table, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ErrRecordNotFound{Table: table, ID: id}
	}
	return doc, nil
}

// Delete removes the document stored under (table, id), cleans up its index
// entries and drops its vectors from every collection of the table. A
// missing id is reported through the boolean and leaves all indexes
// untouched.
func (s *Store) Delete(table string, id uint64) (document.Document, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}

	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	doc, ok, err := s.backend.Delete(table, id)
	s.logger.LogDelete(table, id, ok, err)
	if err != nil || !ok {
		return nil, ok, translateError(err)
	}

	for _, field := range s.vectorFields(table) {
		s.engine.Remove(CollectionName(table, field), id)
	}

	return doc, true, nil
}

// Find returns the documents of table matching conds. Empty conditions
// return every live document.
func (s *Store) Find(table string, conds Conditions) ([]document.Document, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	docs, err := s.backend.Find(table, conds)
	s.logger.LogFind(table, len(conds), len(docs), err)
	return docs, translateError(err)
}

// Size reports the approximate number of stored documents across all
// tables. Diagnostics only.
func (s *Store) Size() (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return s.backend.Size()
}

// Save persists doc in table, allocating an id when it has none, and
// registers the given vectors under the document's id, keyed by field
// ("<table>_<field>" collections). A nil vectors map saves the document
// alone. It returns the stored document. This is the model-facing write
// path; use Put when the caller controls ids.
func (s *Store) Save(table string, doc document.Document, vectors map[string][]float32) (document.Document, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	id, hasID := doc.ID()
	if !hasID {
		var err error
		id, err = s.backend.NextID(table)
		if err != nil {
			return nil, translateError(err)
		}
	}

	stored, err := s.backend.Put(table, id, doc)
	s.logger.LogSave(table, id, !hasID, err)
	if err != nil {
		return nil, translateError(err)
	}

	for field, vec := range vectors {
		if err := s.engine.Add(CollectionName(table, field), id, vec, nil); err != nil {
			return stored, translateError(err)
		}
		s.registerVectorField(table, field)
	}
	return stored, nil
}

// Destroy is the model-facing delete: it removes the document carrying the
// given id and reports ErrRecordNotFound when there is none.
func (s *Store) Destroy(table string, id uint64) error {
	_, ok, err := s.Delete(table, id)
	if err != nil {
		return err
	}
	if !ok {
		return &ErrRecordNotFound{Table: table, ID: id}
	}
	return nil
}

// AddVector registers (or overwrites) the vector of document id in the
// collection derived from (table, field), together with an optional
// metadata payload returned on search hits. The collection is created
// lazily; its dimensionality is fixed by the first vector unless pinned via
// WithDimensions.
func (s *Store) AddVector(table, field string, id uint64, vec []float32, metadata map[string]any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.engine.Add(CollectionName(table, field), id, vec, metadata); err != nil {
		return translateError(err)
	}
	s.registerVectorField(table, field)
	return nil
}

// RemoveVector removes the vector of document id from the collection
// derived from (table, field), reporting whether it existed.
func (s *Store) RemoveVector(table, field string, id uint64) bool {
	if s.closed.Load() {
		return false
	}
	return s.engine.Remove(CollectionName(table, field), id)
}

// SearchSimilar runs a similarity search over the collection derived from
// (table, field) and resolves the hits to their documents, highest
// similarity first. Hits whose document has been deleted since the vector
// was added are dropped.
func (s *Store) SearchSimilar(table, field string, query []float32, limit int, threshold float64) ([]Result, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	collection := CollectionName(table, field)
	candidates, err := s.engine.Search(collection, query, limit, threshold)
	s.logger.LogSearch(collection, limit, len(candidates), err)
	if err != nil {
		return nil, translateError(err)
	}

	results := make([]Result, 0, len(candidates))
	for _, cand := range candidates {
		doc, ok, err := s.Get(table, cand.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results = append(results, Result{Document: doc, Similarity: cand.Similarity, Scored: true, Metadata: cand.Metadata})
	}
	return results, nil
}

// RebuildVectors repopulates the vector collection of (table, field) from
// the stored documents' field values. Vectors are engine state, not
// persisted; call this after Open to restore a collection from documents
// that carry their embedding as a field.
func (s *Store) RebuildVectors(table, field string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	docs, err := s.Find(table, nil)
	if err != nil {
		return err
	}

	collection := CollectionName(table, field)
	s.engine.Drop(collection)
	if dim, ok := s.opts.dimensions[collection]; ok {
		if err := s.engine.SetDimensions(collection, dim); err != nil {
			return translateError(err)
		}
	}
	s.registerVectorField(table, field)

	for _, doc := range docs {
		id, ok := doc.ID()
		if !ok {
			continue
		}
		vec, ok := doc.Vector(field)
		if !ok {
			continue
		}
		if err := s.engine.Add(collection, id, vec, nil); err != nil {
			return translateError(err)
		}
	}
	return nil
}

// Query starts a query over table.
func (s *Store) Query(table string) *Query {
	return &Query{store: s, table: table}
}

// Tables lists the tables with at least one stored document.
func (s *Store) Tables() ([]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if tm, ok := s.backend.(storage.TableManager); ok {
		return tm.Tables()
	}
	return nil, nil
}

// TableExists reports whether table holds at least one document.
func (s *Store) TableExists(table string) (bool, error) {
	tables, err := s.Tables()
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == table {
			return true, nil
		}
	}
	return false, nil
}

// DropTable removes a table's documents, index entries, metadata and vector
// collections.
func (s *Store) DropTable(table string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	if tm, ok := s.backend.(storage.TableManager); ok {
		if err := tm.DropTable(table); err != nil {
			return translateError(err)
		}
	}

	for _, field := range s.vectorFields(table) {
		s.engine.Drop(CollectionName(table, field))
	}
	s.mu.Lock()
	delete(s.vecFields, table)
	s.mu.Unlock()
	return nil
}

// Reindex rebuilds the secondary indexes of a table from its live
// documents. This is the repair path for index corruption or divergence.
func (s *Store) Reindex(table string) error {
	if s.closed.Load() {
		return ErrClosed
	}

	lock := s.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	r, ok := s.backend.(storage.Reindexer)
	if !ok {
		return nil
	}
	err := r.Reindex(table)
	s.logger.LogReindex(table, err)
	return translateError(err)
}

// SetSchemaHint stores advisory field-type hints for a table. Hints are
// metadata only; nothing enforces them.
func (s *Store) SetSchemaHint(table string, hints map[string]string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if ms, ok := s.backend.(storage.MetadataStore); ok {
		return translateError(ms.PutMeta(table, "schema", hints))
	}
	return nil
}

// SchemaHint returns the advisory field-type hints of a table, nil when
// none are stored.
func (s *Store) SchemaHint(table string) (map[string]string, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	ms, ok := s.backend.(storage.MetadataStore)
	if !ok {
		return nil, nil
	}

	var hints map[string]string
	found, err := ms.GetMeta(table, "schema", &hints)
	if err != nil || !found {
		return nil, translateError(err)
	}
	return hints, nil
}

// Stats describes the current state of a store.
type Stats struct {
	Backend           Backend  `json:"backend"`
	Strategy          Strategy `json:"strategy"`
	Documents         int      `json:"documents"`
	Tables            []string `json:"tables"`
	VectorCollections []string `json:"vector_collections"`
	Vectors           int      `json:"vectors"`
}

// Stats reports store-level diagnostics.
func (s *Store) Stats() (*Stats, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	size, err := s.backend.Size()
	if err != nil {
		return nil, translateError(err)
	}
	tables, err := s.Tables()
	if err != nil {
		return nil, err
	}

	collections := s.engine.Collections()
	vectors := 0
	for _, collection := range collections {
		vectors += s.engine.Len(collection)
	}
	sort.Strings(tables)

	return &Stats{
		Backend:           s.opts.backend,
		Strategy:          s.opts.strategy,
		Documents:         size,
		Tables:            tables,
		VectorCollections: collections,
		Vectors:           vectors,
	}, nil
}

// Close releases the backend. Further operations return ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	return s.backend.Close()
}

func (s *Store) tableLock(table string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.tables[table]
	if !ok {
		lock = &sync.Mutex{}
		s.tables[table] = lock
	}
	return lock
}

// registerVectorField records that (table, field) backs a vector
// collection. Delete and DropTable walk this registry instead of matching
// collection names, so a table named "users_archive" is never confused with
// the "archive" field of "users".
func (s *Store) registerVectorField(table, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.vecFields[table]
	if !ok {
		fields = make(map[string]struct{})
		s.vecFields[table] = fields
	}
	fields[field] = struct{}{}
}

func (s *Store) vectorFields(table string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make([]string, 0, len(s.vecFields[table]))
	for field := range s.vecFields[table] {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
