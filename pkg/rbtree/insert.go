package rbtree

import (
	"errors"
	"fmt"
)

// Emplace inserts key with value if the key is absent. If the key is already
// present, the tree is not modified (the stored value is kept) and the
// iterator points at the existing element with inserted=false.
//
// On an allocation or construction failure the tree is unchanged and the error
// wraps ErrAllocation or ErrConstruction.
func (tree *Tree[K, V]) Emplace(key K, value V) (Iterator[K, V], bool, error) {
	nodeIdx, dir, found := tree.locate(key)
	if found {
		return Iterator[K, V]{tree.nodes, nodeIdx}, false, nil
	}

	inserted, err := tree.attach(nodeIdx, dir, key, value)
	if err != nil {
		return tree.End(), false, err
	}

	return Iterator[K, V]{tree.nodes, inserted}, true, nil
}

// Insert is an alias of Emplace.
func (tree *Tree[K, V]) Insert(key K, value V) (Iterator[K, V], bool, error) {
	return tree.Emplace(key, value)
}

// Assign inserts key with value, or replaces the stored payload if the key is
// present. It reports whether a new element was inserted.
//
// A replacement goes through the allocator: the new payload is constructed
// first, and only then is the old one destroyed. On a construction failure the
// stored payload is kept and the error wraps ErrConstruction.
func (tree *Tree[K, V]) Assign(key K, value V) (Iterator[K, V], bool, error) {
	nodeIdx, dir, found := tree.locate(key)
	if !found {
		inserted, err := tree.attach(nodeIdx, dir, key, value)
		if err != nil {
			return tree.End(), false, err
		}

		return Iterator[K, V]{tree.nodes, inserted}, true, nil
	}

	key, value, err := tree.allocator.Construct(key, value)
	if err != nil {
		if !errors.Is(err, ErrConstruction) {
			err = fmt.Errorf("%w: %w", ErrConstruction, err)
		}

		return Iterator[K, V]{tree.nodes, nodeIdx}, false, err
	}

	nd := tree.nodes.at(nodeIdx)
	tree.allocator.Destroy(nd.key, nd.value)
	nd.key, nd.value = key, value

	return Iterator[K, V]{tree.nodes, nodeIdx}, false, nil
}

// attach builds a node and links it as the dir child of parent, which must be
// the insertion point returned by locate for key.
func (tree *Tree[K, V]) attach(parent uint32, dir side, key K, value V) (uint32, error) {
	// Nothing is linked before the node is fully built.
	nodeIdx, err := tree.newNode(key, value)
	if err != nil {
		return sentinel, err
	}

	tree.nodes.setChild(parent, dir, nodeIdx)
	tree.count++
	tree.insertFixup(nodeIdx)

	return nodeIdx, nil
}

// insertFixup restores the red-black properties after nodeIdx was linked red.
//
// While the parent is red, the parent is not the root, so the grandparent is a
// real node.
func (tree *Tree[K, V]) insertFixup(nodeIdx uint32) {
	nodes := tree.nodes

	for nodes.isRed(nodes.at(nodeIdx).parent) {
		tree.stats.InsertFixups++

		parent := nodes.at(nodeIdx).parent
		grandparent := nodes.at(parent).parent
		parentSide := nodes.sideOf(parent)
		uncle := nodes.child(grandparent, opposite(parentSide))

		// Case 1: parent and uncle are both red.
		// Paint both black, make the grandparent red and continue from there.
		if nodes.isRed(uncle) {
			tree.paint(parent, black)
			tree.paint(uncle, black)
			tree.paint(grandparent, red)
			nodeIdx = grandparent

			continue
		}

		// Case 2: the node is the inner grandchild. Rotate it to the outside.
		if nodes.sideOf(nodeIdx) != parentSide {
			nodeIdx = parent
			tree.rotate(nodeIdx, parentSide)
			parent = nodes.at(nodeIdx).parent
		}

		// Case 3: the node is the outer grandchild.
		tree.paint(parent, black)
		tree.paint(grandparent, red)
		tree.rotate(grandparent, opposite(parentSide))
	}

	root := nodes.root()
	if nodes.isRed(root) {
		tree.paint(root, black)
	}
}

func (tree *Tree[K, V]) paint(nodeIdx uint32, color bool) {
	doAssert(nodeIdx != sentinel || color == black, "the sentinel must stay black")

	tree.nodes.at(nodeIdx).color = color
	tree.stats.Recolors++
}

func opposite(dir side) side {
	if dir == sideLeft {
		return sideRight
	}

	return sideLeft
}

// rotate performs a tree rotation of pivot towards dir.
//
// Left rotation:
//
//	  X              Y
//	A   Y    =>    X   C
//	  B C        A B
//
// Right rotation:
//
//	    Y            X
//	  X   C  =>    A   Y
//	A B              B C
//
// The pivot's parent may be the sentinel, in which case the root link is updated.
func (tree *Tree[K, V]) rotate(pivot uint32, dir side) {
	nodes := tree.nodes
	up := opposite(dir)

	child := nodes.child(pivot, up)
	doAssert(child != sentinel, "rotation without a child to lift")

	// Move the inner subtree.
	nodes.setChild(pivot, up, nodes.child(child, dir))

	// Lift the child into the pivot's slot.
	nodes.setChild(nodes.at(pivot).parent, nodes.sideOf(pivot), child)

	// Complete the rotation.
	nodes.setChild(child, dir, pivot)

	tree.stats.Rotations++
}
