package rbtree

import "iter"

// Iterator allows scanning tree elements in sort order.
//
// Iterator invalidation rule is the same as C++ std::map<>'s. That
// is, if you delete the element that an iterator points to, the
// iterator becomes invalid. For other operation types, the iterator
// remains valid. Clear invalidates every iterator.
type Iterator[K, V any] struct {
	nodes *arena[K, V]
	node  uint32
}

// Begin creates an iterator that points to the minimum element in the tree.
// If the tree is empty, returns End().
func (tree *Tree[K, V]) Begin() Iterator[K, V] {
	root := tree.nodes.root()
	if root == sentinel {
		return tree.End()
	}

	return Iterator[K, V]{tree.nodes, tree.nodes.leftmost(root)}
}

// End creates an iterator that points beyond the maximum element in the tree.
func (tree *Tree[K, V]) End() Iterator[K, V] {
	return Iterator[K, V]{tree.nodes, sentinel}
}

// Last creates an iterator that points at the maximum element in the tree.
// If the tree is empty, returns End().
func (tree *Tree[K, V]) Last() Iterator[K, V] {
	return Iterator[K, V]{tree.nodes, tree.nodes.predecessor(sentinel)}
}

// LowerBound returns an iterator to the smallest element whose key is not less
// than key, or End().
func (tree *Tree[K, V]) LowerBound(key K) Iterator[K, V] {
	return Iterator[K, V]{tree.nodes, tree.bound(key, false)}
}

// UpperBound returns an iterator to the smallest element whose key is greater
// than key, or End().
func (tree *Tree[K, V]) UpperBound(key K) Iterator[K, V] {
	return Iterator[K, V]{tree.nodes, tree.bound(key, true)}
}

// FindLE returns an iterator to the largest element whose key is not greater
// than key, or End() if every key is greater.
func (tree *Tree[K, V]) FindLE(key K) Iterator[K, V] {
	upper := tree.bound(key, true)
	if upper == tree.nodes.leftmost(tree.nodes.root()) {
		return tree.End()
	}

	return Iterator[K, V]{tree.nodes, tree.nodes.predecessor(upper)}
}

// bound returns the first node whose key is not less than key (strict=false)
// or greater than key (strict=true).
func (tree *Tree[K, V]) bound(key K, strict bool) uint32 {
	result := sentinel
	cursor := tree.nodes.root()

	for cursor != sentinel {
		nd := tree.nodes.at(cursor)

		var goLeft bool
		if strict {
			goLeft = tree.less(key, nd.key)
		} else {
			goLeft = !tree.less(nd.key, key)
		}

		if goLeft {
			result = cursor
			cursor = nd.left
		} else {
			cursor = nd.right
		}
	}

	return result
}

// All iterates over the elements in ascending key order.
func (tree *Tree[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for it := tree.Begin(); !it.IsEnd(); it = it.Next() {
			nd := it.nodes.at(it.node)
			if !yield(nd.key, nd.value) {
				return
			}
		}
	}
}

// Backward iterates over the elements in descending key order.
func (tree *Tree[K, V]) Backward() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for idx := tree.nodes.predecessor(sentinel); idx != sentinel; idx = tree.nodes.predecessor(idx) {
			nd := tree.nodes.at(idx)
			if !yield(nd.key, nd.value) {
				return
			}
		}
	}
}

// Keys returns all the keys in ascending order.
func (tree *Tree[K, V]) Keys() []K {
	keys := make([]K, 0, tree.count)
	for key := range tree.All() {
		keys = append(keys, key)
	}

	return keys
}

// Equal checks for the underlying nodes equality.
func (iter Iterator[K, V]) Equal(other Iterator[K, V]) bool {
	return iter.nodes == other.nodes && iter.node == other.node
}

// IsEnd checks if the iterator points beyond the max element in the tree.
func (iter Iterator[K, V]) IsEnd() bool {
	return iter.node == sentinel
}

// Key returns the key of the current element.
//
// REQUIRES: !iter.IsEnd().
func (iter Iterator[K, V]) Key() K {
	doAssert(!iter.IsEnd(), "dereferencing the end position")

	return iter.nodes.at(iter.node).key
}

// Value returns the value of the current element.
//
// REQUIRES: !iter.IsEnd().
func (iter Iterator[K, V]) Value() V {
	doAssert(!iter.IsEnd(), "dereferencing the end position")

	return iter.nodes.at(iter.node).value
}

// SetValue replaces the value of the current element. Keys are immutable.
//
// REQUIRES: !iter.IsEnd().
func (iter Iterator[K, V]) SetValue(value V) {
	doAssert(!iter.IsEnd(), "dereferencing the end position")

	iter.nodes.at(iter.node).value = value
}

// Next creates a new iterator that points to the successor of the current element.
//
// REQUIRES: !iter.IsEnd().
func (iter Iterator[K, V]) Next() Iterator[K, V] {
	doAssert(!iter.IsEnd(), "advancing past the end position")

	return Iterator[K, V]{iter.nodes, iter.nodes.successor(iter.node)}
}

// Prev creates a new iterator that points to the predecessor of the current
// element. Prev of End() is the maximum element.
//
// REQUIRES: the iterator does not point at the minimum element and the tree is not empty.
func (iter Iterator[K, V]) Prev() Iterator[K, V] {
	prev := iter.nodes.predecessor(iter.node)
	doAssert(prev != sentinel, "retreating before the first element")

	return Iterator[K, V]{iter.nodes, prev}
}
