// Package brute implements the exact brute-force vector index: every search
// scores every stored vector with cosine similarity. O(n) per query, no
// tuning knobs, the baseline the approximate strategies are judged against.
package brute

import (
	"sync"

	"github.com/hupe1980/docdb/distance"
	"github.com/hupe1980/docdb/vector"
)

// Compile-time check to ensure Index satisfies the vector.Strategy interface.
var _ vector.Strategy = (*Index)(nil)

// Index is the brute-force vector index.
type Index struct {
	mu         sync.RWMutex
	vectors    map[uint64][]float32
	magnitudes map[uint64]float64
}

// New creates an empty brute-force index.
func New() *Index {
	return &Index{
		vectors:    make(map[uint64][]float32),
		magnitudes: make(map[uint64]float64),
	}
}

// Add inserts or replaces the vector stored under id. Magnitudes are
// precomputed so queries only pay for dot products.
func (i *Index) Add(id uint64, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)

	i.mu.Lock()
	defer i.mu.Unlock()

	i.vectors[id] = stored
	i.magnitudes[id] = distance.Magnitude(stored)
}

// Remove deletes the vector stored under id, reporting whether it existed.
func (i *Index) Remove(id uint64) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.vectors[id]; !ok {
		return false
	}
	delete(i.vectors, id)
	delete(i.magnitudes, id)
	return true
}

// Search scores every stored vector against query. Zero-magnitude vectors
// (either side) score 0. The result is unordered; callers rank it.
func (i *Index) Search(query []float32, k int) []vector.Candidate {
	i.mu.RLock()
	defer i.mu.RUnlock()

	qm := distance.Magnitude(query)

	candidates := make([]vector.Candidate, 0, len(i.vectors))
	for id, vec := range i.vectors {
		sim := 0.0
		if vm := i.magnitudes[id]; qm != 0 && vm != 0 {
			sim = distance.Dot(query, vec) / (qm * vm)
		}
		candidates = append(candidates, vector.Candidate{ID: id, Similarity: sim})
	}
	return candidates
}

// Len returns the number of stored vectors.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.vectors)
}
