package objref

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/interopmesh/core"
)

type widget struct{ name string }

func TestTable_TrackFindRelease(t *testing.T) {
	tbl := NewTable()
	x, y := &widget{"x"}, &widget{"y"}

	hx := tbl.Track(x)
	hy := tbl.Track(y)
	assert.Equal(t, core.Handle(1), hx)
	assert.Equal(t, core.Handle(2), hy)

	require.NoError(t, tbl.Release(hx))

	_, err := tbl.Find(hx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.Equal(t, "no tracked object with id 1", err.Error())

	got, err := tbl.Find(hy)
	require.NoError(t, err)
	assert.Same(t, y, got)
}

func TestTable_FindReturnsSameInstance(t *testing.T) {
	tbl := NewTable()
	objs := []any{&widget{"a"}, map[string]int{"k": 1}, []int{1, 2}, "text", 42}
	for _, o := range objs {
		h := tbl.Track(o)
		got, err := tbl.Find(h)
		require.NoError(t, err)
		switch v := o.(type) {
		case *widget:
			assert.Same(t, v, got)
		default:
			assert.Equal(t, o, got)
		}
	}
}

func TestTable_ReleaseUnknownMatchesFind(t *testing.T) {
	tbl := NewTable()
	h := tbl.Track(&widget{})
	require.NoError(t, tbl.Release(h))

	relErr := tbl.Release(h)
	_, findErr := tbl.Find(h)
	require.Error(t, relErr)
	assert.Equal(t, findErr.Error(), relErr.Error())
	assert.ErrorIs(t, relErr, core.ErrNotFound)

	assert.ErrorIs(t, tbl.Release(99), core.ErrNotFound)
}

func TestTable_HandlesStrictlyIncreasing(t *testing.T) {
	tbl := NewTable()
	const n = 200

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		handles = make(map[core.Handle]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := tbl.Track(&widget{})
			mu.Lock()
			handles[h] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, handles, n)
	assert.Equal(t, n, tbl.Len())
	for h := range handles {
		assert.True(t, h >= 1 && h <= n)
	}

	// Sequential tracking after concurrent use continues the sequence.
	assert.Equal(t, core.Handle(n+1), tbl.Track(&widget{}))
}

func TestTable_TrackRefBindsAndReuses(t *testing.T) {
	tbl := NewTable()
	ref := core.NewRef(&widget{"counter"})

	h := tbl.TrackRef(ref)
	assert.Equal(t, h, ref.Handle())
	assert.Equal(t, h, tbl.TrackRef(ref))
	assert.Equal(t, 1, tbl.Len())

	got, err := tbl.Find(h)
	require.NoError(t, err)
	assert.Same(t, ref, got)

	require.NoError(t, tbl.Release(h))
	assert.Equal(t, core.Handle(0), ref.Handle())

	// A released wrapper exposed again receives a fresh handle.
	h2 := tbl.TrackRef(ref)
	assert.NotEqual(t, h, h2)
}

func TestTable_ReleaseAll(t *testing.T) {
	tbl := NewTable()
	ref := core.NewRef("value")
	tbl.TrackRef(ref)
	tbl.Track(&widget{})

	assert.Equal(t, 2, tbl.ReleaseAll())
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, core.Handle(0), ref.Handle())
}
