package cover

import (
	"container/heap"
	"math"
	"sort"

	"github.com/viant/vec/search"
)

// point is a stored vector with its precomputed magnitude.
type point struct {
	id        uint64
	vec       []float32
	magnitude float32
}

// cosineDistance is 1 - cosine similarity, in [0, 2]. Zero-magnitude
// vectors sit at distance 1 from everything (similarity 0).
func cosineDistance(a, b *point) float32 {
	if a.magnitude == 0 || b.magnitude == 0 {
		return 1
	}
	return search.Float32s(a.vec).CosineDistance(b.vec)
}

// node is a cover-tree node. Children live at one level below their parent
// and within the parent's cover radius base^level.
type node struct {
	level     int32
	baseLevel float32
	point     *point
	children  []node
	radius    float32
}

func newNode(p *point, level int32, base float32) node {
	return node{
		level:     level,
		baseLevel: float32(math.Pow(float64(base), float64(level))),
		point:     p,
	}
}

// insert places p into the tree rooted at n and returns the (possibly new)
// root.
func (n *node) insert(p *point, base float32) *node {
	root := n
	level := int32(0)

	for {
		baseLevel := float32(math.Pow(float64(base), float64(level)))
		if cosineDistance(p, n.point) < baseLevel {
			descended := false
			for idx := range n.children {
				child := &n.children[idx]
				if cosineDistance(p, child.point) < baseLevel {
					n = child
					level--
					descended = true
					break
				}
			}
			if !descended {
				n.children = append(n.children, newNode(p, level-1, base))
				return root
			}
		} else {
			level++
			if level > n.level {
				newRoot := newNode(p, level, base)
				newRoot.children = append(newRoot.children, *root)
				return &newRoot
			}
		}
	}
}

// computeRadius caches, per node, the covering radius of its subtree: the
// maximum distance from the node's point to any descendant. Used as the
// pruning lower bound during search.
func (n *node) computeRadius() float32 {
	if len(n.children) == 0 {
		n.radius = 0
		return 0
	}
	var max float32
	for idx := range n.children {
		child := &n.children[idx]
		d := cosineDistance(n.point, child.point) + child.computeRadius()
		if d > max {
			max = d
		}
	}
	n.radius = max
	return max
}

// neighbor is a search hit ordered by distance.
type neighbor struct {
	point    *point
	distance float32
}

// neighborHeap is a max-heap by distance so the current worst hit sits on
// top and can be evicted cheaply.
type neighborHeap []neighbor

func (h neighborHeap) Len() int            { return len(h) }
func (h neighborHeap) Less(i, j int) bool  { return h[i].distance > h[j].distance }
func (h neighborHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)         { *h = append(*h, x.(neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	last := len(old) - 1
	x := old[last]
	*h = old[:last]
	return x
}

// kNearest runs a depth-first kNN descent with per-node radius pruning and
// returns the hits sorted by ascending distance.
func (n *node) kNearest(q *point, k int) []neighbor {
	h := &neighborHeap{}
	heap.Init(h)
	n.descend(q, k, h)

	result := make([]neighbor, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(neighbor)
	}
	return result
}

func (n *node) descend(q *point, k int, h *neighborHeap) {
	d := cosineDistance(q, n.point)
	if h.Len() < k {
		heap.Push(h, neighbor{point: n.point, distance: d})
	} else if d < (*h)[0].distance {
		heap.Pop(h)
		heap.Push(h, neighbor{point: n.point, distance: d})
	}
	if len(n.children) == 0 {
		return
	}

	type childDist struct {
		child *node
		dist  float32
	}
	cds := make([]childDist, 0, len(n.children))
	for idx := range n.children {
		child := &n.children[idx]
		cds = append(cds, childDist{child: child, dist: cosineDistance(q, child.point)})
	}
	sort.Slice(cds, func(i, j int) bool { return cds[i].dist < cds[j].dist })

	for _, cd := range cds {
		if h.Len() == k && cd.dist-cd.child.radius >= (*h)[0].distance {
			continue
		}
		cd.child.descend(q, k, h)
	}
}
