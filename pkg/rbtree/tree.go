// Package rbtree provides a generic ordered map backed by a red-black tree whose
// nodes live in an index-addressed arena, with an STL-like iterator API and a
// pluggable allocation strategy.
//
// A Tree is not safe for concurrent use. Concurrent readers are fine as long as
// no mutation is in flight; anything else needs external locking.
package rbtree

import (
	"cmp"
	"errors"
	"fmt"

	"github.com/golang-collections/collections/stack"
)

// Less is a strict weak order over keys. Keys for which neither Less(a, b) nor
// Less(b, a) holds are the same key.
type Less[K any] func(a, b K) bool

// Stats counts the structural work done by the fix-up routines.
type Stats struct {
	Rotations    uint64
	Recolors     uint64
	InsertFixups uint64
	EraseFixups  uint64
}

// Sub returns the work done since an earlier snapshot.
func (s Stats) Sub(earlier Stats) Stats {
	return Stats{
		Rotations:    s.Rotations - earlier.Rotations,
		Recolors:     s.Recolors - earlier.Recolors,
		InsertFixups: s.InsertFixups - earlier.InsertFixups,
		EraseFixups:  s.EraseFixups - earlier.EraseFixups,
	}
}

// Tree is a red-black tree with an API similar to C++ STL's std::map.
type Tree[K, V any] struct {
	less      Less[K]
	allocator Allocator[K, V]

	// Nodes arena. Slot 0 is the sentinel.
	nodes *arena[K, V]

	// Number of nodes under the root, including the root.
	count int

	stats Stats
}

// New creates an empty tree ordered by less, using HeapAllocator.
func New[K, V any](less Less[K]) *Tree[K, V] {
	return NewWithAllocator[K, V](less, HeapAllocator[K, V]{})
}

// NewOrdered creates an empty tree over a naturally ordered key type.
func NewOrdered[K cmp.Ordered, V any]() *Tree[K, V] {
	return New[K, V](cmp.Less[K])
}

// NewWithAllocator creates an empty tree ordered by less, drawing nodes through allocator.
func NewWithAllocator[K, V any](less Less[K], allocator Allocator[K, V]) *Tree[K, V] {
	doAssert(less != nil, "nil ordering relation")
	doAssert(allocator != nil, "nil allocator")

	return &Tree[K, V]{less: less, allocator: allocator, nodes: newArena[K, V]()}
}

// Allocator returns the bound allocation strategy.
func (tree *Tree[K, V]) Allocator() Allocator[K, V] {
	return tree.allocator
}

// Len returns the number of elements in the tree.
func (tree *Tree[K, V]) Len() int {
	return tree.count
}

// Empty reports whether the tree holds no elements.
func (tree *Tree[K, V]) Empty() bool {
	return tree.count == 0
}

// Stats returns the fix-up counters accumulated since the tree was created.
func (tree *Tree[K, V]) Stats() Stats {
	return tree.stats
}

// locate descends from the root. When the key is present it returns its node
// and found=true. Otherwise it returns the last visited node and the side of
// the absent child where the key belongs; that is the sentinel's left side when
// the tree is empty.
func (tree *Tree[K, V]) locate(key K) (uint32, side, bool) {
	parent, dir := sentinel, sideLeft
	cursor := tree.nodes.root()

	for cursor != sentinel {
		nd := tree.nodes.at(cursor)

		switch {
		case tree.less(key, nd.key):
			parent, dir = cursor, sideLeft
			cursor = nd.left
		case tree.less(nd.key, key):
			parent, dir = cursor, sideRight
			cursor = nd.right
		default:
			return cursor, dir, true
		}
	}

	return parent, dir, false
}

// Find returns an iterator to the element with the given key, or End().
func (tree *Tree[K, V]) Find(key K) Iterator[K, V] {
	nodeIdx, _, found := tree.locate(key)
	if !found {
		return tree.End()
	}

	return Iterator[K, V]{tree.nodes, nodeIdx}
}

// Contains reports whether the key is present.
func (tree *Tree[K, V]) Contains(key K) bool {
	_, _, found := tree.locate(key)

	return found
}

// Get is the non-failing lookup: it returns the value and whether the key was found.
func (tree *Tree[K, V]) Get(key K) (V, bool) {
	nodeIdx, _, found := tree.locate(key)
	if !found {
		var zero V

		return zero, false
	}

	return tree.nodes.at(nodeIdx).value, true
}

// At returns a reference to the value stored under key, or ErrKeyNotFound.
// The reference stays valid until the element is erased.
func (tree *Tree[K, V]) At(key K) (*V, error) {
	nodeIdx, _, found := tree.locate(key)
	if !found {
		return nil, fmt.Errorf("at %v: %w", key, ErrKeyNotFound)
	}

	return &tree.nodes.at(nodeIdx).value, nil
}

// Index returns a reference to the value stored under key, inserting the zero
// value first when the key is absent. It fails only when that insertion fails.
func (tree *Tree[K, V]) Index(key K) (*V, error) {
	nodeIdx, dir, found := tree.locate(key)
	if found {
		return &tree.nodes.at(nodeIdx).value, nil
	}

	var zero V

	inserted, err := tree.attach(nodeIdx, dir, key, zero)
	if err != nil {
		return nil, err
	}

	return &tree.nodes.at(inserted).value, nil
}

// newNode allocates and constructs a detached red node. On failure nothing is
// left allocated and the error wraps ErrAllocation or ErrConstruction.
func (tree *Tree[K, V]) newNode(key K, value V) (uint32, error) {
	err := tree.allocator.Allocate()
	if err != nil {
		if !errors.Is(err, ErrAllocation) {
			err = fmt.Errorf("%w: %w", ErrAllocation, err)
		}

		return sentinel, err
	}

	nodeIdx, err := tree.nodes.malloc()
	if err != nil {
		tree.allocator.Deallocate()

		return sentinel, err
	}

	key, value, err = tree.allocator.Construct(key, value)
	if err != nil {
		tree.nodes.release(nodeIdx)
		tree.allocator.Deallocate()

		if !errors.Is(err, ErrConstruction) {
			err = fmt.Errorf("%w: %w", ErrConstruction, err)
		}

		return sentinel, err
	}

	nd := tree.nodes.at(nodeIdx)
	nd.key = key
	nd.value = value
	nd.parent, nd.left, nd.right = sentinel, sentinel, sentinel
	nd.color = red

	return nodeIdx, nil
}

// freeNode destroys the payload of an unlinked node and returns its slot.
func (tree *Tree[K, V]) freeNode(nodeIdx uint32) {
	nd := tree.nodes.at(nodeIdx)
	tree.allocator.Destroy(nd.key, nd.value)
	tree.nodes.release(nodeIdx)
	tree.allocator.Deallocate()
}

// Clear removes all the nodes from the tree. The sentinel is kept.
func (tree *Tree[K, V]) Clear() {
	root := tree.nodes.root()
	if root == sentinel {
		return
	}

	work := stack.New()
	work.Push(root)

	for work.Len() > 0 {
		nodeIdx, _ := work.Pop().(uint32)
		nd := tree.nodes.at(nodeIdx)

		if nd.left != sentinel {
			work.Push(nd.left)
		}

		if nd.right != sentinel {
			work.Push(nd.right)
		}

		tree.freeNode(nodeIdx)
	}

	tree.nodes.at(sentinel).left = sentinel
	tree.count = 0
}

type cloneFrame struct {
	origin uint32
	parent uint32
	dir    side
}

// Clone performs a deep copy of the tree: structure, colors and payloads built
// through the allocation strategy. If any node fails to build, every node
// cloned so far is released and the error is returned.
func (tree *Tree[K, V]) Clone() (*Tree[K, V], error) {
	clone := NewWithAllocator[K, V](tree.less, tree.allocator)

	root := tree.nodes.root()
	if root == sentinel {
		return clone, nil
	}

	work := stack.New()
	work.Push(cloneFrame{origin: root, parent: sentinel, dir: sideLeft})

	for work.Len() > 0 {
		frame, _ := work.Pop().(cloneFrame)
		origin := tree.nodes.at(frame.origin)

		nodeIdx, err := clone.newNode(origin.key, origin.value)
		if err != nil {
			built := clone.count
			clone.Clear()

			return nil, fmt.Errorf("clone after %d of %d nodes: %w", built, tree.count, err)
		}

		clone.nodes.at(nodeIdx).color = origin.color
		clone.nodes.setChild(frame.parent, frame.dir, nodeIdx)
		clone.count++

		if origin.right != sentinel {
			work.Push(cloneFrame{origin: origin.right, parent: nodeIdx, dir: sideRight})
		}

		if origin.left != sentinel {
			work.Push(cloneFrame{origin: origin.left, parent: nodeIdx, dir: sideLeft})
		}
	}

	return clone, nil
}

// CopyFrom replaces the contents of the tree with a deep copy of src. On
// failure the tree is left exactly as it was.
func (tree *Tree[K, V]) CopyFrom(src *Tree[K, V]) error {
	if tree == src {
		return nil
	}

	clone, err := src.Clone()
	if err != nil {
		return err
	}

	tree.MoveFrom(clone)

	return nil
}

// Move transfers the contents into a new tree in constant time. The receiver is
// left empty and usable. Iterators keep pointing into the moved contents.
func (tree *Tree[K, V]) Move() *Tree[K, V] {
	moved := &Tree[K, V]{
		less:      tree.less,
		allocator: tree.allocator,
		nodes:     tree.nodes,
		count:     tree.count,
		stats:     tree.stats,
	}

	tree.nodes = newArena[K, V]()
	tree.count = 0
	tree.stats = Stats{}

	return moved
}

// MoveFrom releases the current contents and takes over those of src, which is left empty.
func (tree *Tree[K, V]) MoveFrom(src *Tree[K, V]) {
	if tree == src {
		return
	}

	tree.Clear()

	moved := src.Move()
	tree.less = moved.less
	tree.allocator = moved.allocator
	tree.nodes = moved.nodes
	tree.count = moved.count
	tree.stats = moved.stats
}

// Swap exchanges the contents of two trees in constant time.
func (tree *Tree[K, V]) Swap(other *Tree[K, V]) {
	*tree, *other = *other, *tree
}
