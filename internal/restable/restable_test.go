package restable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetDrop(t *testing.T) {
	tbl := New()
	h := tbl.Insert("hello")

	v, err := Get[string](tbl, h)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	require.NoError(t, tbl.Drop(h))

	_, err = tbl.Get(h)
	assert.ErrorIs(t, err, ErrNoSuchResource)
}

func TestDoubleDropIsRecoverable(t *testing.T) {
	tbl := New()
	h := tbl.Insert(42)
	require.NoError(t, tbl.Drop(h))

	err := tbl.Drop(h)
	assert.ErrorIs(t, err, ErrNoSuchResource)
}

func TestStaleGenerationAfterReuse(t *testing.T) {
	tbl := New()
	h1 := tbl.Insert("first")
	require.NoError(t, tbl.Drop(h1))

	h2 := tbl.Insert("second")
	assert.Equal(t, h1.Slot, h2.Slot)
	assert.NotEqual(t, h1.Generation, h2.Generation)

	_, err := tbl.Get(h1)
	assert.ErrorIs(t, err, ErrNoSuchResource)

	v, err := Get[string](tbl, h2)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestHandleIsolationAcrossTables(t *testing.T) {
	a := New()
	b := New()

	ha := a.Insert("in-a")
	_, err := b.Get(ha)
	assert.ErrorIs(t, err, ErrNoSuchResource)
}

func TestDropAllReleasesEveryLiveHandle(t *testing.T) {
	tbl := New()
	var dropped []any
	tbl.Insert("a")
	tbl.Insert("b")
	h := tbl.Insert("c")
	require.NoError(t, tbl.Drop(h))

	tbl.DropAll(func(v any) { dropped = append(dropped, v) })

	assert.ElementsMatch(t, []any{"a", "b"}, dropped)
	assert.Equal(t, 0, tbl.Len())
}

func TestTypeMismatchPanics(t *testing.T) {
	tbl := New()
	h := tbl.Insert(7)
	assert.Panics(t, func() {
		_, _ = Get[string](tbl, h)
	})
}
