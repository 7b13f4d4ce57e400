package rbtree

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrAllocation is returned when the allocation strategy cannot provide room for a new node.
	ErrAllocation = errors.New("node allocation failed")

	// ErrConstruction is returned when building the key/value payload of a new node fails.
	ErrConstruction = errors.New("node construction failed")

	// ErrKeyNotFound is returned by At when the key is absent.
	ErrKeyNotFound = errors.New("key not found")
)

// Allocator is the allocation strategy of a Tree.
//
// The tree calls Allocate before it takes an arena slot for a new node and
// Construct to build the node's payload; a failure of either leaves the tree
// unchanged. Deallocate and Destroy are called exactly once for every node that
// leaves the tree and must not fail.
type Allocator[K, V any] interface {
	Allocate() error
	Deallocate()
	Construct(key K, value V) (K, V, error)
	Destroy(key K, value V)
}

// HeapAllocator is the default strategy: unbounded, payloads are stored as given.
type HeapAllocator[K, V any] struct{}

// Allocate implements Allocator.
func (HeapAllocator[K, V]) Allocate() error { return nil }

// Deallocate implements Allocator.
func (HeapAllocator[K, V]) Deallocate() {}

// Construct implements Allocator.
func (HeapAllocator[K, V]) Construct(key K, value V) (K, V, error) { return key, value, nil }

// Destroy implements Allocator.
func (HeapAllocator[K, V]) Destroy(K, V) {}

// BoundedAllocator caps the number of live nodes. Every tree sharing it draws
// from the same budget. Payload construction is delegated to the inner strategy.
type BoundedAllocator[K, V any] struct {
	inner Allocator[K, V]
	limit int
	live  int
}

// NewBoundedAllocator creates a strategy allowing at most limit live nodes.
// A nil inner strategy means HeapAllocator.
func NewBoundedAllocator[K, V any](limit int, inner Allocator[K, V]) *BoundedAllocator[K, V] {
	if inner == nil {
		inner = HeapAllocator[K, V]{}
	}

	return &BoundedAllocator[K, V]{inner: inner, limit: limit}
}

// Live returns the number of nodes currently charged to the budget.
func (ba *BoundedAllocator[K, V]) Live() int {
	return ba.live
}

// Limit returns the node budget.
func (ba *BoundedAllocator[K, V]) Limit() int {
	return ba.limit
}

// Allocate implements Allocator.
func (ba *BoundedAllocator[K, V]) Allocate() error {
	if ba.live >= ba.limit {
		return fmt.Errorf("%w: budget of %d nodes exhausted", ErrAllocation, ba.limit)
	}

	err := ba.inner.Allocate()
	if err != nil {
		return err
	}

	ba.live++

	return nil
}

// Deallocate implements Allocator.
func (ba *BoundedAllocator[K, V]) Deallocate() {
	doAssert(ba.live > 0, "deallocating more nodes than were allocated")

	ba.live--
	ba.inner.Deallocate()
}

// Construct implements Allocator.
func (ba *BoundedAllocator[K, V]) Construct(key K, value V) (K, V, error) {
	return ba.inner.Construct(key, value)
}

// Destroy implements Allocator.
func (ba *BoundedAllocator[K, V]) Destroy(key K, value V) {
	ba.inner.Destroy(key, value)
}

// CopyingAllocator builds every payload through a copy hook, which is how a
// tree holding slices, maps or pointers gets independent deep copies on Clone.
type CopyingAllocator[K, V any] struct {
	// Copy returns the payload to store. Nil stores the payload as given.
	Copy func(key K, value V) (K, V, error)

	// Release is called with the payload of every node leaving the tree. Optional.
	Release func(key K, value V)
}

// Allocate implements Allocator.
func (ca *CopyingAllocator[K, V]) Allocate() error { return nil }

// Deallocate implements Allocator.
func (ca *CopyingAllocator[K, V]) Deallocate() {}

// Construct implements Allocator.
func (ca *CopyingAllocator[K, V]) Construct(key K, value V) (K, V, error) {
	if ca.Copy == nil {
		return key, value, nil
	}

	return ca.Copy(key, value)
}

// Destroy implements Allocator.
func (ca *CopyingAllocator[K, V]) Destroy(key K, value V) {
	if ca.Release != nil {
		ca.Release(key, value)
	}
}
