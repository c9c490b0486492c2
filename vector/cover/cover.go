// Package cover implements the approximate vector index backed by a cover
// tree over cosine distance. Inserts and removals only update the live
// vector set and mark the tree dirty; the next search rebuilds the tree from
// scratch before answering. Cover trees do not support online deletion, and
// a full rebuild keeps the structure correct at the cost of the first query
// after a write burst.
package cover

import (
	"sync"

	"github.com/viant/vec/search"

	"github.com/hupe1980/docdb/vector"
)

// Compile-time check to ensure Index satisfies the vector.Strategy interface.
var _ vector.Strategy = (*Index)(nil)

// DefaultBase is the cover-tree expansion base. Values closer to 1 build
// deeper trees with tighter covers.
const DefaultBase = 1.3

// Index is the cover-tree vector index.
type Index struct {
	mu    sync.Mutex
	base  float32
	items map[uint64]*point
	root  *node
	dirty bool
}

// New creates an empty cover-tree index with the default base.
func New() *Index {
	return &Index{
		base:  DefaultBase,
		items: make(map[uint64]*point),
	}
}

// Add inserts or replaces the vector stored under id and marks the tree for
// rebuild.
func (i *Index) Add(id uint64, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)

	p := &point{
		id:        id,
		vec:       stored,
		magnitude: search.Float32s(stored).Magnitude(),
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.items[id] = p
	i.dirty = true
}

// Remove deletes the vector stored under id, reporting whether it existed.
func (i *Index) Remove(id uint64) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.items[id]; !ok {
		return false
	}
	delete(i.items, id)
	i.dirty = true
	return true
}

// Search rebuilds the tree if any mutation happened since the last query,
// then runs a kNN descent. Results are approximate: candidates are the k
// nearest tree points by cosine distance, converted to similarity.
func (i *Index) Search(query []float32, k int) []vector.Candidate {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.dirty {
		i.rebuild()
	}
	if i.root == nil {
		return nil
	}
	if k <= 0 || k > len(i.items) {
		k = len(i.items)
	}

	q := &point{
		vec:       query,
		magnitude: search.Float32s(query).Magnitude(),
	}

	neighbors := i.root.kNearest(q, k)

	candidates := make([]vector.Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		sim := float64(1 - n.distance)
		if sim > 1 {
			sim = 1
		} else if sim < -1 {
			sim = -1
		}
		candidates = append(candidates, vector.Candidate{ID: n.point.id, Similarity: sim})
	}
	return candidates
}

// Len returns the number of stored vectors.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	return len(i.items)
}

func (i *Index) rebuild() {
	i.root = nil
	for _, p := range i.items {
		if i.root == nil {
			r := newNode(p, 0, i.base)
			i.root = &r
			continue
		}
		i.root = i.root.insert(p, i.base)
	}
	if i.root != nil {
		i.root.computeRadius()
	}
	i.dirty = false
}
