package docdb

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/docdb/document"
	"github.com/hupe1980/docdb/storage"
)

const (
	// DefaultSimilarLimit bounds a similarity request when the caller
	// does not set one.
	DefaultSimilarLimit = 50

	// overFetchFactor is how many times the requested limit a vector
	// search is widened by when its results must afterwards be
	// intersected with a document-filtered candidate set. The engine
	// cannot be constrained by an arbitrary id set, so the planner
	// fetches wide and intersects; when even the widened fetch is
	// exhausted the intersection may miss matches. That imprecision is
	// part of the contract, not silent data loss.
	overFetchFactor = 10
)

// Result is a single query hit. Similarity is only meaningful when Scored
// is true, i.e. the hit went through a vector search. Metadata is the
// payload registered with the winning vector, nil when none was given.
type Result struct {
	Document   document.Document
	Similarity float64
	Scored     bool
	Metadata   map[string]any
}

// SimilarOptions configures one SimilarTo request.
type SimilarOptions struct {
	// Field names the document field whose vector collection is
	// searched. Defaults to "embedding".
	Field string

	// Threshold excludes hits scoring below it. Defaults to 0.
	Threshold float64

	// Limit bounds the number of hits. Defaults to DefaultSimilarLimit.
	Limit int
}

type vectorRequest struct {
	field     string
	query     []float32
	threshold float64
	limit     int
}

type orderClause struct {
	field        string
	desc         bool
	bySimilarity bool
}

// Query accumulates conditions and similarity requests through chained
// builder calls; a terminal call (ToList, First, Count, Exists) triggers
// one evaluation. A Query is not safe for concurrent use.
type Query struct {
	store   *Store
	table   string
	clauses []Conditions
	vecs    []vectorRequest
	orders  []orderClause
	limit   int
	offset  int
}

// Where adds a condition clause. Chained clauses merge, later clauses win
// on field collisions.
func (q *Query) Where(conds Conditions) *Query {
	q.clauses = append(q.clauses, conds)
	return q
}

// SimilarTo adds a vector-similarity request against the collection of the
// configured field.
func (q *Query) SimilarTo(queryVec []float32, optFns ...func(o *SimilarOptions)) *Query {
	opts := SimilarOptions{
		Field:     "embedding",
		Threshold: 0,
		Limit:     DefaultSimilarLimit,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultSimilarLimit
	}

	q.vecs = append(q.vecs, vectorRequest{
		field:     opts.Field,
		query:     queryVec,
		threshold: opts.Threshold,
		limit:     opts.Limit,
	})
	return q
}

// Order sorts results by field, ascending, with null values last. Chained
// order calls form a multi-key sort, first call is the primary key.
func (q *Query) Order(field string) *Query {
	q.orders = append(q.orders, orderClause{field: field})
	return q
}

// OrderDesc sorts results by field, descending, with null values first.
func (q *Query) OrderDesc(field string) *Query {
	q.orders = append(q.orders, orderClause{field: field, desc: true})
	return q
}

// OrderBySimilarity sorts results by similarity, descending. This is the
// implicit order of vector results when no explicit order is requested.
func (q *Query) OrderBySimilarity() *Query {
	q.orders = append(q.orders, orderClause{bySimilarity: true})
	return q
}

// Limit bounds the number of returned results.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips the first n results. An offset beyond the result size
// yields an empty result, never an error.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// ToList evaluates the query and returns the ordered, sliced results.
func (q *Query) ToList() ([]Result, error) {
	results, err := q.execute()
	if err != nil {
		return nil, err
	}

	q.sort(results)

	if q.offset > 0 {
		if q.offset >= len(results) {
			return nil, nil
		}
		results = results[q.offset:]
	}
	if q.limit > 0 && len(results) > q.limit {
		results = results[:q.limit]
	}
	return results, nil
}

// First evaluates the query and returns the first result, nil when there
// is none.
func (q *Query) First() (*Result, error) {
	results, err := q.ToList()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// Count evaluates the query and returns the number of matching results,
// ignoring Limit and Offset.
func (q *Query) Count() (int, error) {
	results, err := q.execute()
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// Exists reports whether the query matches at least one result.
func (q *Query) Exists() (bool, error) {
	n, err := q.Count()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// execute routes the query down one of three paths: vector-only,
// document-only, or hybrid per the selectivity heuristic.
func (q *Query) execute() ([]Result, error) {
	merged := storage.MergeConditions(q.clauses)

	switch {
	case len(q.vecs) > 0 && len(merged) == 0:
		return q.vectorOnly()
	case len(q.vecs) == 0:
		return q.documentOnly(merged)
	default:
		if selectiveCount(merged)*2 > len(merged) {
			return q.documentsFirst(merged)
		}
		return q.vectorsFirst(merged)
	}
}

// vectorOnly runs each similarity request, deduplicates hits by id and
// resolves them to documents.
func (q *Query) vectorOnly() ([]Result, error) {
	hits, err := q.searchAll(1, nil)
	if err != nil {
		return nil, err
	}
	return q.resolve(hits, nil)
}

// documentOnly delegates the merged clause to the backend.
func (q *Query) documentOnly(merged Conditions) ([]Result, error) {
	docs, err := q.store.Find(q.table, merged)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(docs))
	for _, doc := range docs {
		results = append(results, Result{Document: doc})
	}
	return results, nil
}

// documentsFirst filters documents by the merged clause, then restricts
// over-fetched vector hits to that candidate id set.
func (q *Query) documentsFirst(merged Conditions) ([]Result, error) {
	docs, err := q.store.Find(q.table, merged)
	if err != nil {
		return nil, err
	}

	candidates := roaring64.New()
	byID := make(map[uint64]document.Document, len(docs))
	for _, doc := range docs {
		if id, ok := doc.ID(); ok {
			candidates.Add(id)
			byID[id] = doc
		}
	}

	hits, err := q.searchAll(overFetchFactor, candidates)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id, _ := hit.Document.ID()
		results = append(results, Result{Document: byID[id], Similarity: hit.Similarity, Scored: true, Metadata: hit.Metadata})
	}
	return results, nil
}

// vectorsFirst runs the similarity requests and filters the resolved
// documents by the merged clause afterwards.
func (q *Query) vectorsFirst(merged Conditions) ([]Result, error) {
	hits, err := q.searchAll(1, nil)
	if err != nil {
		return nil, err
	}
	return q.resolve(hits, func(doc document.Document) bool {
		return merged.Match(doc)
	})
}

// searchAll runs every vector request, widened by factor, keeps hits whose
// id is in candidates (nil means all), and deduplicates by id. A duplicate
// replaces an earlier hit only when its similarity is higher, so a result
// never appears twice and never loses its best score.
func (q *Query) searchAll(factor int, candidates *roaring64.Bitmap) ([]Result, error) {
	seen := make(map[uint64]int)

	var hits []Result
	for _, req := range q.vecs {
		collection := CollectionName(q.table, req.field)
		cands, err := q.store.engine.Search(collection, req.query, req.limit*factor, req.threshold)
		q.store.logger.LogSearch(collection, req.limit*factor, len(cands), err)
		if err != nil {
			return nil, translateError(err)
		}

		kept := 0
		for _, cand := range cands {
			if candidates != nil && !candidates.Contains(cand.ID) {
				continue
			}
			if kept >= req.limit {
				break
			}
			kept++

			if pos, dup := seen[cand.ID]; dup {
				if cand.Similarity > hits[pos].Similarity {
					hits[pos].Similarity = cand.Similarity
					hits[pos].Metadata = cand.Metadata
				}
				continue
			}
			seen[cand.ID] = len(hits)
			hits = append(hits, Result{
				Document:   document.Document{document.FieldID: cand.ID},
				Similarity: cand.Similarity,
				Scored:     true,
				Metadata:   cand.Metadata,
			})
		}
	}
	return hits, nil
}

// resolve replaces the id-only placeholder documents of hits with the
// stored documents, dropping hits whose document no longer exists or is
// rejected by filter.
func (q *Query) resolve(hits []Result, filter func(document.Document) bool) ([]Result, error) {
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		id, _ := hit.Document.ID()
		doc, ok, err := q.store.Get(q.table, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if filter != nil && !filter(doc) {
			continue
		}
		hit.Document = doc
		results = append(results, hit)
	}
	return results, nil
}

func (q *Query) sort(results []Result) {
	orders := q.orders
	if len(orders) == 0 {
		if len(q.vecs) == 0 {
			return // backend id order
		}
		orders = []orderClause{{bySimilarity: true}}
	}
	sortResults(results, orders)
}

func selectiveCount(merged Conditions) int {
	n := 0
	for field := range merged {
		if (Conditions{field: merged[field]}).Selective() {
			n++
		}
	}
	return n
}
