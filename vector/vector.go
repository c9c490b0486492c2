// Package vector provides the in-memory vector-similarity engine. An Engine
// manages named collections of (id, vector) pairs; the actual index
// structure behind a collection is pluggable through the Strategy interface,
// implemented by the brute, flat and cover subpackages.
package vector

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDimensionMismatch is returned when a vector does not match the
// dimensionality of its collection.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// DimensionError reports the expected and actual dimensionality of a
// rejected vector. It unwraps to ErrDimensionMismatch.
type DimensionError struct {
	Collection string
	Expected   int
	Actual     int
}

// Error implements the error interface.
func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch in collection %q: expected %d, got %d", e.Collection, e.Expected, e.Actual)
}

// Unwrap implements the errors.Unwrap interface.
func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// Candidate is a single similarity-search hit.
type Candidate struct {
	// ID is the document id the vector belongs to.
	ID uint64

	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float64

	// Metadata is the payload registered alongside the vector, nil when
	// none was given.
	Metadata map[string]any
}

// Strategy is a single-collection vector index.
type Strategy interface {
	// Add inserts or replaces the vector stored under id.
	Add(id uint64, vec []float32)

	// Remove deletes the vector stored under id, reporting whether it
	// existed.
	Remove(id uint64) bool

	// Search returns candidates for query scored by cosine similarity.
	// k is a hint for approximate strategies; results may be unordered
	// and may exceed k, the engine ranks and truncates. k <= 0 means no
	// bound.
	Search(query []float32, k int) []Candidate

	// Len returns the number of stored vectors.
	Len() int
}

// Factory creates an empty Strategy for a new collection.
type Factory func() Strategy

// Engine manages named vector collections sharing one index strategy.
// A collection's dimensionality is fixed either up front via SetDimensions
// or by the first vector added to it; every later add and every query must
// match it.
type Engine struct {
	mu          sync.RWMutex
	factory     Factory
	collections map[string]*collection
}

type collection struct {
	dim      int
	strategy Strategy
	meta     map[uint64]map[string]any
}

// NewEngine creates an engine that backs each collection with a strategy
// produced by factory.
func NewEngine(factory Factory) *Engine {
	return &Engine{
		factory:     factory,
		collections: make(map[string]*collection),
	}
}

// SetDimensions pins the dimensionality of a collection before any vectors
// are added. Re-pinning a non-empty collection to a different dimension is
// an error.
func (e *Engine) SetDimensions(name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", dim)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.collectionLocked(name)
	if c.dim != 0 && c.dim != dim && c.strategy.Len() > 0 {
		return &DimensionError{Collection: name, Expected: c.dim, Actual: dim}
	}
	c.dim = dim
	return nil
}

// Dimensions returns the current dimensionality of a collection, 0 when it
// is not yet fixed.
func (e *Engine) Dimensions(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if c, ok := e.collections[name]; ok {
		return c.dim
	}
	return 0
}

// Add inserts or replaces the vector stored under id in the named
// collection, creating the collection on first use. Metadata, when non-nil,
// is kept alongside the vector and returned on search hits; replacing a
// vector replaces its metadata as well.
func (e *Engine) Add(name string, id uint64, vec []float32, metadata map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.collectionLocked(name)
	if c.dim == 0 {
		c.dim = len(vec)
	}
	if len(vec) != c.dim {
		return &DimensionError{Collection: name, Expected: c.dim, Actual: len(vec)}
	}

	c.strategy.Add(id, vec)
	if metadata != nil {
		c.meta[id] = metadata
	} else {
		delete(c.meta, id)
	}
	return nil
}

// Metadata returns the payload stored alongside a vector, nil when the
// vector is unknown or carries none.
func (e *Engine) Metadata(name string, id uint64) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if c, ok := e.collections[name]; ok {
		return c.meta[id]
	}
	return nil
}

// Remove deletes the vector stored under id, reporting whether it existed.
func (e *Engine) Remove(name string, id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.collections[name]; ok {
		delete(c.meta, id)
		return c.strategy.Remove(id)
	}
	return false
}

// Search returns the vectors of the named collection most similar to query,
// sorted by descending similarity with ascending id as the tie-break.
// Candidates scoring below threshold are excluded; limit <= 0 means no
// bound. Searching an unknown collection returns no candidates; searching an
// empty one still enforces its pinned dimensionality.
func (e *Engine) Search(name string, query []float32, limit int, threshold float64) ([]Candidate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c, ok := e.collections[name]
	if !ok {
		return nil, nil
	}
	if c.dim != 0 && len(query) != c.dim {
		return nil, &DimensionError{Collection: name, Expected: c.dim, Actual: len(query)}
	}
	if c.strategy.Len() == 0 {
		return nil, nil
	}

	candidates := c.strategy.Search(query, limit)
	for i := range candidates {
		candidates[i].Metadata = c.meta[candidates[i].ID]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].ID < candidates[j].ID
	})

	result := candidates[:0]
	for _, cand := range candidates {
		if cand.Similarity < threshold {
			continue
		}
		result = append(result, cand)
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Len returns the number of vectors stored in a collection.
func (e *Engine) Len(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if c, ok := e.collections[name]; ok {
		return c.strategy.Len()
	}
	return 0
}

// Collections lists the collections holding at least one vector.
func (e *Engine) Collections() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.collections))
	for name, c := range e.collections {
		if c.strategy.Len() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Drop discards a collection and all its vectors.
func (e *Engine) Drop(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.collections, name)
}

func (e *Engine) collectionLocked(name string) *collection {
	c, ok := e.collections[name]
	if !ok {
		c = &collection{
			strategy: e.factory(),
			meta:     make(map[uint64]map[string]any),
		}
		e.collections[name] = c
	}
	return c
}
