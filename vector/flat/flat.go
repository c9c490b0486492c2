// Package flat implements the normalized flat vector index: vectors are
// L2-normalized once at insert time and kept in parallel slices, so a query
// is a single pass of dot products over contiguous memory. Exact, O(n) per
// query, cheaper per comparison than brute.
package flat

import (
	"sync"

	"github.com/hupe1980/docdb/distance"
	"github.com/hupe1980/docdb/vector"
)

// Compile-time check to ensure Index satisfies the vector.Strategy interface.
var _ vector.Strategy = (*Index)(nil)

// Index is the normalized flat vector index.
type Index struct {
	mu      sync.RWMutex
	ids     []uint64
	vectors [][]float32 // L2-normalized; nil marks a zero-magnitude original
	byID    map[uint64]int
}

// New creates an empty flat index.
func New() *Index {
	return &Index{
		byID: make(map[uint64]int),
	}
}

// Add inserts or replaces the vector stored under id. The vector is
// L2-normalized before storage; zero-magnitude vectors are kept as nil and
// score 0 on every query.
func (i *Index) Add(id uint64, vec []float32) {
	normalized, ok := distance.NormalizeL2Copy(vec)
	if !ok {
		normalized = nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if pos, exists := i.byID[id]; exists {
		i.vectors[pos] = normalized
		return
	}

	i.byID[id] = len(i.ids)
	i.ids = append(i.ids, id)
	i.vectors = append(i.vectors, normalized)
}

// Remove deletes the vector stored under id, reporting whether it existed.
// The slot is backfilled with the last entry so the slices stay dense.
func (i *Index) Remove(id uint64) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	pos, ok := i.byID[id]
	if !ok {
		return false
	}

	last := len(i.ids) - 1
	if pos != last {
		i.ids[pos] = i.ids[last]
		i.vectors[pos] = i.vectors[last]
		i.byID[i.ids[pos]] = pos
	}
	i.ids = i.ids[:last]
	i.vectors = i.vectors[:last]
	delete(i.byID, id)
	return true
}

// Search scores every stored vector against query with a dot product over
// the normalized forms. The result is unordered; callers rank it.
func (i *Index) Search(query []float32, k int) []vector.Candidate {
	normalized, ok := distance.NormalizeL2Copy(query)

	i.mu.RLock()
	defer i.mu.RUnlock()

	candidates := make([]vector.Candidate, 0, len(i.ids))
	for pos, id := range i.ids {
		sim := 0.0
		if ok && i.vectors[pos] != nil {
			sim = distance.Dot(normalized, i.vectors[pos])
		}
		candidates = append(candidates, vector.Candidate{ID: id, Similarity: sim})
	}
	return candidates
}

// Len returns the number of stored vectors.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.ids)
}
