package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument(t *testing.T) {
	t.Run("ID", func(t *testing.T) {
		d := New()
		_, ok := d.ID()
		assert.False(t, ok)

		d.SetID(42)
		id, ok := d.ID()
		require.True(t, ok)
		assert.Equal(t, uint64(42), id)
	})

	t.Run("IDAfterCodecRoundTrip", func(t *testing.T) {
		// JSON decoding turns numbers into float64.
		d := Document{"id": float64(7)}
		id, ok := d.ID()
		require.True(t, ok)
		assert.Equal(t, uint64(7), id)
	})

	t.Run("Table", func(t *testing.T) {
		d := New()
		_, ok := d.Table()
		assert.False(t, ok)

		d.SetTable("users")
		table, ok := d.Table()
		require.True(t, ok)
		assert.Equal(t, "users", table)
	})

	t.Run("Lookup", func(t *testing.T) {
		d := Document{
			"name": "Alice",
			"experience": map[string]any{
				"years": 5,
			},
		}

		v, ok := d.Lookup("name")
		require.True(t, ok)
		assert.Equal(t, "Alice", v)

		v, ok = d.Lookup("experience.years")
		require.True(t, ok)
		assert.Equal(t, 5, v)

		_, ok = d.Lookup("experience.title")
		assert.False(t, ok)

		_, ok = d.Lookup("missing.path")
		assert.False(t, ok)
	})

	t.Run("Clone", func(t *testing.T) {
		d := Document{"skills": []any{"ruby", "python"}}
		c := d.Clone()
		c["skills"].([]any)[0] = "go"
		assert.Equal(t, "ruby", d["skills"].([]any)[0])
	})

	t.Run("Strings", func(t *testing.T) {
		d := Document{"skills": []any{"ruby", "python"}}
		ss, ok := d.Strings("skills")
		require.True(t, ok)
		assert.Equal(t, []string{"ruby", "python"}, ss)
	})
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("a", "a"))
	assert.False(t, Equal("a", "b"))
	assert.True(t, Equal(25, float64(25)))
	assert.True(t, Equal(int64(3), 3))
	assert.False(t, Equal(25, "25"))
	assert.True(t, Equal(true, true))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, 0))
}

func TestLess(t *testing.T) {
	lt, ok := Less(1, float64(2))
	require.True(t, ok)
	assert.True(t, lt)

	lt, ok = Less("a", "b")
	require.True(t, ok)
	assert.True(t, lt)

	_, ok = Less("a", 1)
	assert.False(t, ok)

	_, ok = Less([]any{}, 1)
	assert.False(t, ok)
}

func TestCanonical(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want string
	}{
		{"ruby", "ruby"},
		{true, "true"},
		{25, "25"},
		{float64(25), "25"},
		{25.5, "25.5"},
		{int64(-3), "-3"},
	} {
		got, ok := Canonical(tc.in)
		require.True(t, ok, "Canonical(%v)", tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, ok := Canonical([]any{"x"})
	assert.False(t, ok)
}
