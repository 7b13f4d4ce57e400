package rbtree //nolint:testpackage // tests require access to unexported fields (nodes, count, etc.)

import (
	"cmp"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestArenaReleaseSentinel(t *testing.T) {
	t.Parallel()

	nodes := newArena[int, int]()
	_, err := nodes.malloc()
	require.NoError(t, err)
	assert.PanicsWithValue(t, "rbtree: the sentinel cannot be released", func() { nodes.release(sentinel) })
}

func TestArenaChunks(t *testing.T) {
	t.Parallel()

	nodes := newArena[int, int]()
	first, err := nodes.malloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), first)

	ptr := nodes.at(first)

	for range 600 {
		_, err = nodes.malloc()
		require.NoError(t, err)
	}

	assert.Len(t, nodes.chunks, 3)
	assert.Same(t, ptr, nodes.at(first))
	assert.Equal(t, 602, nodes.Size())
	assert.Equal(t, 602, nodes.Used())

	nodes.release(first)
	assert.Equal(t, 601, nodes.Used())

	reused, err := nodes.malloc()
	require.NoError(t, err)
	assert.Equal(t, first, reused)
}

func TestTreeAllocator(t *testing.T) {
	t.Parallel()

	alloc := NewBoundedAllocator[int, string](10, nil)
	tree := NewWithAllocator[int, string](cmp.Less[int], alloc)

	assert.Equal(t, alloc, tree.Allocator())

	mustInsert(t, tree, 5)
	mustInsert(t, tree, 10)
	assert.Equal(t, alloc, tree.Allocator())
	assert.Equal(t, 2, alloc.Live())
	assert.Equal(t, 10, alloc.Limit())
	assert.Equal(t, 3, tree.nodes.Used()) // Sentinel + 2 nodes.
}

func TestBoundedAllocatorExhausted(t *testing.T) {
	t.Parallel()

	alloc := NewBoundedAllocator[int, string](3, nil)
	tree := NewWithAllocator[int, string](cmp.Less[int], alloc)

	for key := 1; key <= 3; key++ {
		mustInsert(t, tree, key)
	}

	iter, inserted, err := tree.Emplace(4, "4")
	require.ErrorIs(t, err, ErrAllocation)
	assert.False(t, inserted)
	assert.True(t, iter.IsEnd())
	assert.Equal(t, 3, tree.Len())
	assert.Equal(t, []int{1, 2, 3}, tree.Keys())
	assert.Equal(t, 4, tree.nodes.Used())
	require.NoError(t, tree.CheckInvariants())

	value, err := tree.Index(4)
	require.ErrorIs(t, err, ErrAllocation)
	assert.Nil(t, value)

	// Present keys never allocate.
	value, err = tree.Index(2)
	require.NoError(t, err)
	assert.Equal(t, "2", *value)

	assert.Equal(t, 1, tree.EraseKey(1))
	assert.Equal(t, 2, alloc.Live())
	assert.True(t, mustInsert(t, tree, 4))
	assert.Equal(t, []int{2, 3, 4}, tree.Keys())
}

type failingAllocator struct {
	HeapAllocator[int, string]
}

func (failingAllocator) Allocate() error { return errBoom }

func TestAllocateErrorIsWrapped(t *testing.T) {
	t.Parallel()

	tree := NewWithAllocator[int, string](cmp.Less[int], failingAllocator{})

	_, _, err := tree.Emplace(1, "1")
	require.ErrorIs(t, err, ErrAllocation)
	require.ErrorIs(t, err, errBoom)
	assert.True(t, tree.Empty())
	assert.Equal(t, 1, tree.nodes.Used())
}

func TestCopyingAllocatorConstructionFailure(t *testing.T) {
	t.Parallel()

	released := 0
	alloc := &CopyingAllocator[int, []int]{
		Copy: func(key int, value []int) (int, []int, error) {
			if key == 13 {
				return 0, nil, errBoom
			}

			return key, slices.Clone(value), nil
		},
		Release: func(int, []int) { released++ },
	}
	tree := NewWithAllocator[int, []int](cmp.Less[int], alloc)

	payload := []int{1, 2, 3}
	_, _, err := tree.Emplace(1, payload)
	require.NoError(t, err)

	payload[0] = 100

	stored, _ := tree.Get(1)
	assert.Equal(t, []int{1, 2, 3}, stored)

	_, _, err = tree.Emplace(2, []int{2})
	require.NoError(t, err)

	used := tree.nodes.Used()

	_, inserted, err := tree.Emplace(13, []int{13})
	require.ErrorIs(t, err, ErrConstruction)
	require.ErrorIs(t, err, errBoom)
	assert.False(t, inserted)
	assert.Equal(t, 2, tree.Len())
	assert.Equal(t, used, tree.nodes.Used())
	assert.False(t, tree.Contains(13))
	require.NoError(t, tree.CheckInvariants())
	assert.Zero(t, released)

	tree.EraseKey(2)
	assert.Equal(t, 1, released)

	tree.Clear()
	assert.Equal(t, 2, released)
}

func TestAssignReplacesThroughAllocator(t *testing.T) {
	t.Parallel()

	copies, released := 0, 0
	alloc := &CopyingAllocator[int, []int]{
		Copy: func(key int, value []int) (int, []int, error) {
			if len(value) > 0 && value[0] < 0 {
				return 0, nil, errBoom
			}

			copies++

			return key, slices.Clone(value), nil
		},
		Release: func(_ int, value []int) {
			assert.Equal(t, []int{1}, value)
			released++
		},
	}
	tree := NewWithAllocator[int, []int](cmp.Less[int], alloc)

	_, _, err := tree.Emplace(1, []int{1})
	require.NoError(t, err)

	payload := []int{2}
	iter, inserted, err := tree.Assign(1, payload)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 1, iter.Key())
	assert.Equal(t, 2, copies)
	assert.Equal(t, 1, released)

	payload[0] = 999

	stored, _ := tree.Get(1)
	assert.Equal(t, []int{2}, stored)

	_, inserted, err = tree.Assign(1, []int{-1})
	require.ErrorIs(t, err, ErrConstruction)
	require.ErrorIs(t, err, errBoom)
	assert.False(t, inserted)
	assert.Equal(t, 1, released)

	stored, _ = tree.Get(1)
	assert.Equal(t, []int{2}, stored)
	assert.Equal(t, 1, tree.Len())
	require.NoError(t, tree.CheckInvariants())
}

func TestCloneDeepCopiesPayloads(t *testing.T) {
	t.Parallel()

	alloc := &CopyingAllocator[int, []int]{
		Copy: func(key int, value []int) (int, []int, error) {
			return key, slices.Clone(value), nil
		},
	}
	tree := NewWithAllocator[int, []int](cmp.Less[int], alloc)

	for key := range 10 {
		_, _, err := tree.Emplace(key, []int{key})
		require.NoError(t, err)
	}

	clone, err := tree.Clone()
	require.NoError(t, err)

	value, err := clone.At(3)
	require.NoError(t, err)

	(*value)[0] = 42

	original, _ := tree.Get(3)
	assert.Equal(t, []int{3}, original)
}

func TestCloneFailureReleasesPartialCopy(t *testing.T) {
	t.Parallel()

	alloc := NewBoundedAllocator[int, string](15, nil)
	tree := NewWithAllocator[int, string](cmp.Less[int], alloc)

	for key := range 10 {
		mustInsert(t, tree, key)
	}

	clone, err := tree.Clone()
	require.ErrorIs(t, err, ErrAllocation)
	assert.Nil(t, clone)
	assert.Contains(t, err.Error(), "clone after 5 of 10 nodes")
	assert.Equal(t, 10, alloc.Live())
	require.NoError(t, tree.CheckInvariants())
}

func TestCopyFromFailureKeepsDestination(t *testing.T) {
	t.Parallel()

	alloc := NewBoundedAllocator[int, string](12, nil)
	src := NewWithAllocator[int, string](cmp.Less[int], alloc)
	dst := testNewIntMap()

	for key := range 10 {
		mustInsert(t, src, key)
	}

	mustInsert(t, dst, 100)
	mustInsert(t, dst, 200)

	err := dst.CopyFrom(src)
	require.ErrorIs(t, err, ErrAllocation)
	assert.Equal(t, []int{100, 200}, dst.Keys())
	assert.Equal(t, 10, alloc.Live())
	require.NoError(t, dst.CheckInvariants())
}

func TestBoundedAllocatorSharedBudget(t *testing.T) {
	t.Parallel()

	alloc := NewBoundedAllocator[int, string](4, NewBoundedAllocator[int, string](100, nil))
	first := NewWithAllocator[int, string](cmp.Less[int], alloc)
	second := NewWithAllocator[int, string](cmp.Less[int], alloc)

	mustInsert(t, first, 1)
	mustInsert(t, first, 2)
	mustInsert(t, second, 1)
	mustInsert(t, second, 2)

	_, _, err := second.Emplace(3, "3")
	require.ErrorIs(t, err, ErrAllocation)

	first.Clear()
	assert.Equal(t, 2, alloc.Live())
	assert.True(t, mustInsert(t, second, 3))
	assert.Panics(t, func() { NewBoundedAllocator[int, string](1, nil).Deallocate() })
}
