package rbtree

// Erase removes the element the iterator points at and returns an iterator to
// the element that followed it, or End().
//
// Only iterators to the erased element are invalidated.
//
// REQUIRES: the iterator belongs to this tree and !iter.IsEnd().
func (tree *Tree[K, V]) Erase(iter Iterator[K, V]) Iterator[K, V] {
	doAssert(iter.nodes == tree.nodes, "iterator belongs to another tree")
	doAssert(!iter.IsEnd(), "erasing the end position")

	next := tree.nodes.successor(iter.node)
	tree.doDelete(iter.node)

	return Iterator[K, V]{tree.nodes, next}
}

// EraseKey deletes the element with the given key and returns the number of
// elements removed, 0 or 1.
func (tree *Tree[K, V]) EraseKey(key K) int {
	nodeIdx, _, found := tree.locate(key)
	if !found {
		return 0
	}

	tree.doDelete(nodeIdx)

	return 1
}

// doDelete unlinks target and releases it.
//
// The node spliced out of its position always has at most one child: it is
// either target itself or target's in-order successor, which is moved (not
// copied) into target's slot so that iterators to it survive. x is the subtree
// that took the spliced node's place; it may be absent, which is why its parent
// and side are tracked separately.
func (tree *Tree[K, V]) doDelete(target uint32) {
	nodes := tree.nodes
	doomed := nodes.at(target)

	var (
		x, xParent uint32
		xSide      side
	)

	removedColor := doomed.color

	switch {
	case doomed.left == sentinel || doomed.right == sentinel:
		x = doomed.left
		if x == sentinel {
			x = doomed.right
		}

		xParent, xSide = doomed.parent, nodes.sideOf(target)
		nodes.setChild(xParent, xSide, x)
	default:
		succ := nodes.leftmost(doomed.right)
		moved := nodes.at(succ)
		removedColor = moved.color
		x = moved.right

		if moved.parent == target {
			xParent, xSide = succ, sideRight
		} else {
			xParent, xSide = moved.parent, sideLeft
			nodes.setChild(xParent, xSide, x)
			nodes.setChild(succ, sideRight, doomed.right)
		}

		nodes.setChild(doomed.parent, nodes.sideOf(target), succ)
		nodes.setChild(succ, sideLeft, doomed.left)
		moved.color = doomed.color
	}

	if removedColor == black {
		tree.eraseFixup(x, xParent, xSide)
	}

	tree.freeNode(target)
	tree.count--
}

// eraseFixup removes the extra black carried by x, the dir child of parent.
func (tree *Tree[K, V]) eraseFixup(x, parent uint32, dir side) {
	nodes := tree.nodes

	for x != nodes.root() && !nodes.isRed(x) {
		tree.stats.EraseFixups++

		far := opposite(dir)
		sibling := nodes.child(parent, far)

		// Case 1: red sibling. Rotate it above the parent so that x gets a black sibling.
		if nodes.isRed(sibling) {
			tree.paint(sibling, black)
			tree.paint(parent, red)
			tree.rotate(parent, dir)
			sibling = nodes.child(parent, far)
		}

		nearChild := nodes.child(sibling, dir)
		farChild := nodes.child(sibling, far)

		// Case 2: both nephews black. Push the deficit up to the parent.
		if !nodes.isRed(nearChild) && !nodes.isRed(farChild) {
			tree.paint(sibling, red)
			x = parent
			parent = nodes.at(x).parent
			dir = nodes.sideOf(x)

			continue
		}

		// Case 3: only the near nephew is red. Rotate it into the sibling's place.
		if !nodes.isRed(farChild) {
			tree.paint(nearChild, black)
			tree.paint(sibling, red)
			tree.rotate(sibling, far)
			sibling = nodes.child(parent, far)
			farChild = nodes.child(sibling, far)
		}

		// Case 4: the far nephew is red. One rotation settles the deficit.
		tree.paint(sibling, nodes.at(parent).color)
		tree.paint(parent, black)
		tree.paint(farChild, black)
		tree.rotate(parent, dir)
		x = nodes.root()
	}

	if x != sentinel {
		tree.paint(x, black)
	}
}
