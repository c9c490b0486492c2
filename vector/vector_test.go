package vector_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docdb/vector"
	"github.com/hupe1980/docdb/vector/brute"
	"github.com/hupe1980/docdb/vector/cover"
	"github.com/hupe1980/docdb/vector/flat"
)

var factories = map[string]vector.Factory{
	"brute": func() vector.Strategy { return brute.New() },
	"flat":  func() vector.Strategy { return flat.New() },
	"cover": func() vector.Strategy { return cover.New() },
}

func TestEngineSearch(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			t.Run("ranks by similarity descending", func(t *testing.T) {
				engine := vector.NewEngine(factory)

				require.NoError(t, engine.Add("docs", 1, []float32{1, 0, 0}, nil))
				require.NoError(t, engine.Add("docs", 2, []float32{0.9, 0.1, 0}, nil))
				require.NoError(t, engine.Add("docs", 3, []float32{0, 1, 0}, nil))

				candidates, err := engine.Search("docs", []float32{1, 0, 0}, 3, 0)
				require.NoError(t, err)
				require.Len(t, candidates, 3)

				assert.Equal(t, uint64(1), candidates[0].ID)
				assert.InDelta(t, 1.0, candidates[0].Similarity, 1e-6)
				assert.Equal(t, uint64(2), candidates[1].ID)
				assert.Equal(t, uint64(3), candidates[2].ID)
			})

			t.Run("threshold excludes weak matches", func(t *testing.T) {
				engine := vector.NewEngine(factory)

				require.NoError(t, engine.Add("docs", 1, []float32{1, 0}, nil))
				require.NoError(t, engine.Add("docs", 2, []float32{0, 1}, nil))

				candidates, err := engine.Search("docs", []float32{1, 0}, 10, 0.5)
				require.NoError(t, err)
				require.Len(t, candidates, 1)
				assert.Equal(t, uint64(1), candidates[0].ID)
			})

			t.Run("limit truncates", func(t *testing.T) {
				engine := vector.NewEngine(factory)

				for id := uint64(1); id <= 5; id++ {
					require.NoError(t, engine.Add("docs", id, []float32{1, float32(id) / 100}, nil))
				}

				candidates, err := engine.Search("docs", []float32{1, 0}, 2, 0)
				require.NoError(t, err)
				assert.Len(t, candidates, 2)
			})

			t.Run("zero query vector scores zero everywhere", func(t *testing.T) {
				engine := vector.NewEngine(factory)

				require.NoError(t, engine.Add("docs", 1, []float32{1, 0}, nil))

				candidates, err := engine.Search("docs", []float32{0, 0}, 10, 0)
				require.NoError(t, err)
				require.Len(t, candidates, 1)
				assert.Zero(t, candidates[0].Similarity)
			})

			t.Run("unknown collection returns nothing", func(t *testing.T) {
				engine := vector.NewEngine(factory)

				candidates, err := engine.Search("ghosts", []float32{1, 0}, 10, 0)
				require.NoError(t, err)
				assert.Empty(t, candidates)
			})

			t.Run("remove takes effect on the next search", func(t *testing.T) {
				engine := vector.NewEngine(factory)

				require.NoError(t, engine.Add("docs", 1, []float32{1, 0}, nil))
				require.NoError(t, engine.Add("docs", 2, []float32{0.8, 0.2}, nil))

				_, err := engine.Search("docs", []float32{1, 0}, 10, 0)
				require.NoError(t, err)

				assert.True(t, engine.Remove("docs", 1))
				assert.False(t, engine.Remove("docs", 1))

				candidates, err := engine.Search("docs", []float32{1, 0}, 10, 0)
				require.NoError(t, err)
				require.Len(t, candidates, 1)
				assert.Equal(t, uint64(2), candidates[0].ID)
			})

			t.Run("add replaces existing vector", func(t *testing.T) {
				engine := vector.NewEngine(factory)

				require.NoError(t, engine.Add("docs", 1, []float32{1, 0}, nil))
				require.NoError(t, engine.Add("docs", 1, []float32{0, 1}, nil))
				assert.Equal(t, 1, engine.Len("docs"))

				candidates, err := engine.Search("docs", []float32{0, 1}, 1, 0)
				require.NoError(t, err)
				require.Len(t, candidates, 1)
				assert.InDelta(t, 1.0, candidates[0].Similarity, 1e-6)
			})
		})
	}
}

func TestEngineDimensions(t *testing.T) {
	engine := vector.NewEngine(factories["brute"])

	t.Run("fixed by first vector", func(t *testing.T) {
		require.NoError(t, engine.Add("docs", 1, []float32{1, 0, 0}, nil))
		assert.Equal(t, 3, engine.Dimensions("docs"))

		err := engine.Add("docs", 2, []float32{1, 0}, nil)
		require.ErrorIs(t, err, vector.ErrDimensionMismatch)

		var dimErr *vector.DimensionError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 3, dimErr.Expected)
		assert.Equal(t, 2, dimErr.Actual)
	})

	t.Run("query dimension checked before computation", func(t *testing.T) {
		_, err := engine.Search("docs", []float32{1, 0}, 10, 0)
		assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
	})

	t.Run("pinned up front", func(t *testing.T) {
		require.NoError(t, engine.SetDimensions("pinned", 4))
		assert.Equal(t, 4, engine.Dimensions("pinned"))

		err := engine.Add("pinned", 1, []float32{1, 0}, nil)
		assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
	})

	t.Run("pinned empty collection still checks query dimension", func(t *testing.T) {
		require.NoError(t, engine.SetDimensions("staged", 4))

		_, err := engine.Search("staged", []float32{1, 0}, 10, 0)
		assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

		candidates, err := engine.Search("staged", []float32{1, 0, 0, 0}, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})
}

func TestEngineMetadata(t *testing.T) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			engine := vector.NewEngine(factory)

			require.NoError(t, engine.Add("docs", 1, []float32{1, 0}, map[string]any{"title": "intro"}))
			require.NoError(t, engine.Add("docs", 2, []float32{0, 1}, nil))

			candidates, err := engine.Search("docs", []float32{1, 0}, 2, 0)
			require.NoError(t, err)
			require.Len(t, candidates, 2)
			assert.Equal(t, map[string]any{"title": "intro"}, candidates[0].Metadata)
			assert.Nil(t, candidates[1].Metadata)

			assert.Equal(t, map[string]any{"title": "intro"}, engine.Metadata("docs", 1))

			require.NoError(t, engine.Add("docs", 1, []float32{1, 0}, map[string]any{"title": "revised"}))
			assert.Equal(t, map[string]any{"title": "revised"}, engine.Metadata("docs", 1))

			assert.True(t, engine.Remove("docs", 1))
			assert.Nil(t, engine.Metadata("docs", 1))
		})
	}
}

func TestEngineCollections(t *testing.T) {
	engine := vector.NewEngine(factories["flat"])

	require.NoError(t, engine.Add("a", 1, []float32{1}, nil))
	require.NoError(t, engine.Add("b", 1, []float32{1}, nil))
	require.NoError(t, engine.SetDimensions("empty", 3))

	assert.Equal(t, []string{"a", "b"}, engine.Collections())

	engine.Drop("a")
	assert.Equal(t, []string{"b"}, engine.Collections())
	assert.Zero(t, engine.Len("a"))
}

func TestCoverTreeMatchesBruteForce(t *testing.T) {
	// The tree search is approximate in general, but on a small well-spread
	// set the nearest neighbor must agree with exhaustive scoring.
	bruteEngine := vector.NewEngine(factories["brute"])
	coverEngine := vector.NewEngine(factories["cover"])

	vecs := [][]float32{
		{1, 0, 0}, {0.9, 0.1, 0.1}, {0, 1, 0},
		{0.2, 0.9, 0}, {0, 0, 1}, {0.5, 0.5, 0.5},
	}
	for idx, v := range vecs {
		id := uint64(idx + 1)
		require.NoError(t, bruteEngine.Add("docs", id, v, nil))
		require.NoError(t, coverEngine.Add("docs", id, v, nil))
	}

	for _, query := range [][]float32{{1, 0, 0}, {0, 1, 0.1}, {0.4, 0.4, 0.4}} {
		t.Run(fmt.Sprintf("query %v", query), func(t *testing.T) {
			exact, err := bruteEngine.Search("docs", query, 1, 0)
			require.NoError(t, err)
			approx, err := coverEngine.Search("docs", query, 1, 0)
			require.NoError(t, err)

			require.Len(t, approx, 1)
			assert.Equal(t, exact[0].ID, approx[0].ID)
			assert.InDelta(t, exact[0].Similarity, approx[0].Similarity, 1e-4)
		})
	}
}
