package rbtree

import (
	"fmt"
	"math"
)

// Arena layout.
//
// Nodes live in fixed-size chunks addressed by uint32 indices. A chunk is never
// reallocated, so a *node (and the *V handed out by At and Index) stays valid for
// as long as the node is linked into the tree.
//
// Slot 0 is the sentinel. It is black, it is its own parent, its left link holds
// the real root (or itself when the tree is empty) and its right link is always
// itself. Index 0 therefore doubles as the absent child, which makes "absent
// means black" fall out of the sentinel's color, and as the end position of
// every iterator.
const (
	chunkShift = 8
	chunkSize  = 1 << chunkShift
	chunkMask  = chunkSize - 1

	sentinel uint32 = 0

	// maxSlots keeps math.MaxUint32 unused so that slot counting never wraps.
	maxSlots = math.MaxUint32
)

type arena[K, V any] struct {
	chunks [][]node[K, V]
	free   []uint32
	// slots is the number of slots ever handed out, including the sentinel.
	slots uint32
}

func newArena[K, V any]() *arena[K, V] {
	nodes := &arena[K, V]{
		chunks: [][]node[K, V]{make([]node[K, V], chunkSize)},
		slots:  1,
	}

	root := nodes.at(sentinel)
	root.parent, root.left, root.right = sentinel, sentinel, sentinel
	root.color = black

	return nodes
}

func (nodes *arena[K, V]) at(idx uint32) *node[K, V] {
	return &nodes.chunks[idx>>chunkShift][idx&chunkMask]
}

// root returns the real root, which is the sentinel's left child.
func (nodes *arena[K, V]) root() uint32 {
	return nodes.chunks[0][sentinel].left
}

// Size returns the number of slots the arena has handed out, the sentinel included.
func (nodes *arena[K, V]) Size() int {
	return int(nodes.slots)
}

// Used returns the number of live slots, the sentinel included.
func (nodes *arena[K, V]) Used() int {
	return int(nodes.slots) - len(nodes.free)
}

func (nodes *arena[K, V]) malloc() (uint32, error) {
	if last := len(nodes.free) - 1; last >= 0 {
		idx := nodes.free[last]
		nodes.free = nodes.free[:last]

		return idx, nil
	}

	if nodes.slots == maxSlots {
		return sentinel, fmt.Errorf("%w: arena reached %d slots", ErrAllocation, nodes.slots)
	}

	idx := nodes.slots
	if int(idx>>chunkShift) == len(nodes.chunks) {
		nodes.chunks = append(nodes.chunks, make([]node[K, V], chunkSize))
	}

	nodes.slots++

	return idx, nil
}

func (nodes *arena[K, V]) release(idx uint32) {
	doAssert(idx != sentinel, "the sentinel cannot be released")

	*nodes.at(idx) = node[K, V]{}
	nodes.free = append(nodes.free, idx)
}
