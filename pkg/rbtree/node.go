package rbtree

const (
	red   = false
	black = true
)

type side uint8

const (
	sideLeft side = iota
	sideRight
)

type node[K, V any] struct {
	key                 K
	value               V
	parent, left, right uint32
	color               bool // Black or red.
}

func doAssert(condition bool, message string) {
	if !condition {
		panic("rbtree: " + message)
	}
}

// Internal node attribute accessors. They all accept the sentinel.

func (nodes *arena[K, V]) isRed(idx uint32) bool {
	return nodes.at(idx).color == red
}

func (nodes *arena[K, V]) sideOf(idx uint32) side {
	if nodes.at(nodes.at(idx).parent).left == idx {
		return sideLeft
	}

	return sideRight
}

func (nodes *arena[K, V]) child(idx uint32, s side) uint32 {
	if s == sideLeft {
		return nodes.at(idx).left
	}

	return nodes.at(idx).right
}

func (nodes *arena[K, V]) setChild(idx uint32, s side, childIdx uint32) {
	if s == sideLeft {
		nodes.at(idx).left = childIdx
	} else {
		nodes.at(idx).right = childIdx
	}

	if childIdx != sentinel {
		nodes.at(childIdx).parent = idx
	}
}

func (nodes *arena[K, V]) leftmost(idx uint32) uint32 {
	for nodes.at(idx).left != sentinel {
		idx = nodes.at(idx).left
	}

	return idx
}

func (nodes *arena[K, V]) rightmost(idx uint32) uint32 {
	for nodes.at(idx).right != sentinel {
		idx = nodes.at(idx).right
	}

	return idx
}

// successor returns the next node in key order, or the sentinel after the maximum.
// The climb always terminates: the root is the sentinel's left child.
func (nodes *arena[K, V]) successor(idx uint32) uint32 {
	if right := nodes.at(idx).right; right != sentinel {
		return nodes.leftmost(right)
	}

	parent := nodes.at(idx).parent
	for idx == nodes.at(parent).right {
		idx = parent
		parent = nodes.at(parent).parent
	}

	return parent
}

// predecessor returns the previous node in key order. From the sentinel it
// returns the maximum; before the minimum (or on an empty tree) it returns the sentinel.
func (nodes *arena[K, V]) predecessor(idx uint32) uint32 {
	if idx == sentinel {
		root := nodes.root()
		if root == sentinel {
			return sentinel
		}

		return nodes.rightmost(root)
	}

	if left := nodes.at(idx).left; left != sentinel {
		return nodes.rightmost(left)
	}

	parent := nodes.at(idx).parent
	for parent != sentinel && idx == nodes.at(parent).left {
		idx = parent
		parent = nodes.at(parent).parent
	}

	return parent
}
