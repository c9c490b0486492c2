package docdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/docdb/document"
)

func newTestStore(t *testing.T, optFns ...Option) *Store {
	t.Helper()

	opts := append([]Option{WithPath(t.TempDir())}, optFns...)

	store, err := Open(opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func backends(t *testing.T) map[string]*Store {
	t.Helper()

	return map[string]*Store{
		"file":   newTestStore(t, WithBackend(BackendFile)),
		"badger": newTestStore(t, WithBackend(BackendBadger), WithInMemory()),
	}
}

func TestOpen(t *testing.T) {
	t.Run("unknown backend is a construction error", func(t *testing.T) {
		_, err := Open(WithPath(t.TempDir()), WithBackend(Backend("cloud")))
		require.Error(t, err)

		var ub *ErrUnknownBackend
		require.ErrorAs(t, err, &ub)
		assert.Equal(t, "cloud", ub.Name)
	})

	t.Run("unknown strategy is a construction error", func(t *testing.T) {
		_, err := Open(WithPath(t.TempDir()), WithStrategy(Strategy("annoy")))
		require.Error(t, err)

		var us *ErrUnknownStrategy
		require.ErrorAs(t, err, &us)
		assert.Equal(t, "annoy", us.Name)
	})

	t.Run("compression round trip", func(t *testing.T) {
		store := newTestStore(t, WithCompression())

		_, err := store.Put("users", 1, document.Document{"name": "alice"})
		require.NoError(t, err)

		doc, ok, err := store.Get("users", 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "alice", doc["name"])
	})
}

func TestRoundTrip(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			original := document.Document{
				"name":   "alice",
				"age":    25,
				"skills": []string{"ruby", "python"},
			}

			stored, err := store.Put("users", 1, original)
			require.NoError(t, err)

			got, ok, err := store.Get("users", 1)
			require.NoError(t, err)
			require.True(t, ok)

			// Equal in all fields, with id and table bookkeeping added.
			assert.Equal(t, "alice", got["name"])
			assert.True(t, document.Equal(got["age"], 25))
			skills, ok := got.Strings("skills")
			require.True(t, ok)
			assert.Equal(t, []string{"ruby", "python"}, skills)

			id, ok := got.ID()
			require.True(t, ok)
			assert.Equal(t, uint64(1), id)

			table, ok := stored.Table()
			require.True(t, ok)
			assert.Equal(t, "users", table)
		})
	}
}

func TestSaveAllocatesIDs(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := store.Save("users", document.Document{"name": "alice"}, nil)
			require.NoError(t, err)
			second, err := store.Save("users", document.Document{"name": "bob"}, nil)
			require.NoError(t, err)

			id1, _ := first.ID()
			id2, _ := second.ID()
			assert.Equal(t, uint64(1), id1)
			assert.Equal(t, uint64(2), id2)

			// Saving a document that carries an id updates in place.
			first["name"] = "alice2"
			updated, err := store.Save("users", first, nil)
			require.NoError(t, err)

			uid, _ := updated.ID()
			assert.Equal(t, id1, uid)

			size, err := store.Size()
			require.NoError(t, err)
			assert.Equal(t, 2, size)
		})
	}
}

func TestFindByID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Put("users", 1, document.Document{"name": "alice"})
	require.NoError(t, err)

	doc, err := store.FindByID("users", 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", doc["name"])

	_, err = store.FindByID("users", 99)
	require.ErrorIs(t, err, ErrNotFound)

	var rnf *ErrRecordNotFound
	require.ErrorAs(t, err, &rnf)
	assert.Equal(t, "users", rnf.Table)
	assert.Equal(t, uint64(99), rnf.ID)
}

func TestDestroy(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Put("users", 1, document.Document{"name": "alice"})
	require.NoError(t, err)

	require.NoError(t, store.Destroy("users", 1))
	assert.ErrorIs(t, store.Destroy("users", 1), ErrNotFound)
}

func TestIndexConsistency(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Put("users", 1, document.Document{"city": "berlin"})
			require.NoError(t, err)
			_, err = store.Put("users", 2, document.Document{"city": "berlin"})
			require.NoError(t, err)
			_, err = store.Put("users", 3, document.Document{"city": "hamburg"})
			require.NoError(t, err)

			docs, err := store.Find("users", Conditions{"city": "berlin"})
			require.NoError(t, err)
			assert.Len(t, docs, 2)

			// Overwrite moves the entry, delete removes it.
			_, err = store.Put("users", 2, document.Document{"city": "hamburg"})
			require.NoError(t, err)
			_, _, err = store.Delete("users", 1)
			require.NoError(t, err)

			docs, err = store.Find("users", Conditions{"city": "berlin"})
			require.NoError(t, err)
			assert.Empty(t, docs)

			docs, err = store.Find("users", Conditions{"city": "hamburg"})
			require.NoError(t, err)
			assert.Len(t, docs, 2)
		})
	}
}

func TestVectors(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Put("users", 1, document.Document{"name": "alice"})
	require.NoError(t, err)
	_, err = store.Put("users", 2, document.Document{"name": "bob"})
	require.NoError(t, err)

	require.NoError(t, store.AddVector("users", "embedding", 1, []float32{1, 0, 0, 0}, nil))
	require.NoError(t, store.AddVector("users", "embedding", 2, []float32{0, 1, 0, 0}, nil))

	t.Run("search resolves documents by similarity", func(t *testing.T) {
		results, err := store.SearchSimilar("users", "embedding", []float32{0.9, 0.1, 0, 0}, 1, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)

		assert.Equal(t, "alice", results[0].Document["name"])
		assert.InDelta(t, 0.994, results[0].Similarity, 0.001)
	})

	t.Run("dimension mismatch rejected before computation", func(t *testing.T) {
		err := store.AddVector("users", "embedding", 3, []float32{1, 0}, nil)
		require.Error(t, err)

		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 4, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
	})

	t.Run("delete drops the document's vectors", func(t *testing.T) {
		_, _, err := store.Delete("users", 1)
		require.NoError(t, err)

		results, err := store.SearchSimilar("users", "embedding", []float32{1, 0, 0, 0}, 10, 0)
		require.NoError(t, err)
		for _, r := range results {
			id, _ := r.Document.ID()
			assert.NotEqual(t, uint64(1), id)
		}
	})

	t.Run("remove vector", func(t *testing.T) {
		assert.True(t, store.RemoveVector("users", "embedding", 2))
		assert.False(t, store.RemoveVector("users", "embedding", 2))
	})
}

func TestVectorCollectionIsolation(t *testing.T) {
	// "users_archive" and the "archive" field of "users" would collide under
	// name matching; cleanup must go by registered (table, field) pairs.
	store := newTestStore(t)

	_, err := store.Put("users", 1, document.Document{"name": "alice"})
	require.NoError(t, err)
	_, err = store.Put("users_archive", 1, document.Document{"name": "old alice"})
	require.NoError(t, err)

	require.NoError(t, store.AddVector("users", "embedding", 1, []float32{1, 0}, nil))
	require.NoError(t, store.AddVector("users_archive", "embedding", 1, []float32{0, 1}, nil))

	t.Run("delete only touches the document's own table", func(t *testing.T) {
		_, ok, err := store.Delete("users", 1)
		require.NoError(t, err)
		require.True(t, ok)

		results, err := store.SearchSimilar("users_archive", "embedding", []float32{0, 1}, 1, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "old alice", results[0].Document["name"])
	})

	t.Run("drop only removes the table's own collections", func(t *testing.T) {
		require.NoError(t, store.DropTable("users"))

		results, err := store.SearchSimilar("users_archive", "embedding", []float32{0, 1}, 1, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
	})
}

func TestVectorMetadata(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Put("users", 1, document.Document{"name": "alice"})
	require.NoError(t, err)
	require.NoError(t, store.AddVector("users", "embedding", 1, []float32{1, 0}, map[string]any{"source": "profile"}))

	results, err := store.SearchSimilar("users", "embedding", []float32{1, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, map[string]any{"source": "profile"}, results[0].Metadata)
}

func TestSaveWithVectors(t *testing.T) {
	store := newTestStore(t)

	doc, err := store.Save("users", document.Document{"name": "alice"}, map[string][]float32{
		"embedding": {1, 0, 0},
	})
	require.NoError(t, err)
	id, _ := doc.ID()

	results, err := store.SearchSimilar("users", "embedding", []float32{1, 0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	hitID, _ := results[0].Document.ID()
	assert.Equal(t, id, hitID)

	t.Run("mismatched vector rejected, document kept", func(t *testing.T) {
		_, err := store.Save("users", document.Document{"name": "bob"}, map[string][]float32{
			"embedding": {1, 0},
		})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)

		docs, err := store.Find("users", Conditions{"name": "bob"})
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("destroy drops the saved vector", func(t *testing.T) {
		require.NoError(t, store.Destroy("users", id))

		results, err := store.SearchSimilar("users", "embedding", []float32{1, 0, 0}, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestRebuildVectors(t *testing.T) {
	store := newTestStore(t, WithDimensions("notes_embedding", 3))

	_, err := store.Put("notes", 1, document.Document{"text": "a", "embedding": []float32{1, 0, 0}})
	require.NoError(t, err)
	_, err = store.Put("notes", 2, document.Document{"text": "b", "embedding": []float32{0, 1, 0}})
	require.NoError(t, err)
	_, err = store.Put("notes", 3, document.Document{"text": "no vector"})
	require.NoError(t, err)

	require.NoError(t, store.RebuildVectors("notes", "embedding"))

	results, err := store.SearchSimilar("notes", "embedding", []float32{1, 0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Document["text"])
}

func TestTables(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Put("users", 1, document.Document{"name": "alice"})
	require.NoError(t, err)
	_, err = store.Put("posts", 1, document.Document{"title": "hello"})
	require.NoError(t, err)

	tables, err := store.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "users"}, tables)

	exists, err := store.TableExists("users")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.DropTable("users"))

	exists, err = store.TableExists("users")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSchemaHints(t *testing.T) {
	store := newTestStore(t)

	hints, err := store.SchemaHint("users")
	require.NoError(t, err)
	assert.Nil(t, hints)

	require.NoError(t, store.SetSchemaHint("users", map[string]string{"age": "number"}))

	hints, err = store.SchemaHint("users")
	require.NoError(t, err)
	assert.Equal(t, "number", hints["age"])
}

func TestStats(t *testing.T) {
	store := newTestStore(t, WithStrategy(StrategyFlat))

	_, err := store.Put("users", 1, document.Document{"name": "alice"})
	require.NoError(t, err)
	require.NoError(t, store.AddVector("users", "embedding", 1, []float32{1, 0}, nil))

	stats, err := store.Stats()
	require.NoError(t, err)

	assert.Equal(t, BackendFile, stats.Backend)
	assert.Equal(t, StrategyFlat, stats.Strategy)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, []string{"users"}, stats.Tables)
	assert.Equal(t, []string{"users_embedding"}, stats.VectorCollections)
	assert.Equal(t, 1, stats.Vectors)
}

func TestClose(t *testing.T) {
	store, err := Open(WithPath(t.TempDir()))
	require.NoError(t, err)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Close(), ErrClosed)

	_, _, err = store.Get("users", 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.Put("users", 1, document.Document{})
	assert.ErrorIs(t, err, ErrClosed)
}
