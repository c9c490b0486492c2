package cover_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docdb/vector/cover"
)

func TestIndexSearch(t *testing.T) {
	t.Run("nearest neighbors by cosine distance", func(t *testing.T) {
		idx := cover.New()
		idx.Add(1, []float32{1, 0, 0})
		idx.Add(2, []float32{0.9, 0.1, 0})
		idx.Add(3, []float32{0, 1, 0})
		idx.Add(4, []float32{0, 0, 1})

		candidates := idx.Search([]float32{1, 0, 0}, 2)
		require.Len(t, candidates, 2)
		assert.Equal(t, uint64(1), candidates[0].ID)
		assert.InDelta(t, 1.0, candidates[0].Similarity, 1e-4)
		assert.Equal(t, uint64(2), candidates[1].ID)
	})

	t.Run("zero-magnitude vectors score zero", func(t *testing.T) {
		idx := cover.New()
		idx.Add(1, []float32{0, 0})
		idx.Add(2, []float32{1, 0})

		candidates := idx.Search([]float32{1, 0}, 2)
		require.Len(t, candidates, 2)
		assert.Equal(t, uint64(2), candidates[0].ID)
		assert.Zero(t, candidates[1].Similarity)
	})

	t.Run("remove takes effect on the next search", func(t *testing.T) {
		idx := cover.New()
		idx.Add(1, []float32{1, 0})
		idx.Add(2, []float32{0, 1})
		_ = idx.Search([]float32{1, 0}, 1)

		assert.True(t, idx.Remove(1))
		assert.Equal(t, 1, idx.Len())

		candidates := idx.Search([]float32{1, 0}, 2)
		require.Len(t, candidates, 1)
		assert.Equal(t, uint64(2), candidates[0].ID)
	})
}
