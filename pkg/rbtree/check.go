package rbtree

import (
	"errors"
	"fmt"

	"github.com/golang-collections/collections/stack"
)

// ErrInvariant is matched by every *InvariantError.
var ErrInvariant = errors.New("rb-tree invariant violation")

// ViolationKind classifies a broken red-black tree invariant.
type ViolationKind int

// Violation kinds.
const (
	RedRedViolation ViolationKind = iota + 1
	BlackHeightMismatch
	RootNotBlack
	SentinelNotBlack
	OrderViolation
	ParentLinkMismatch
	SizeMismatch
)

var violationNames = map[ViolationKind]string{
	RedRedViolation:     "two red nodes in a row",
	BlackHeightMismatch: "black height mismatch between subtrees",
	RootNotBlack:        "root is not black",
	SentinelNotBlack:    "sentinel is not black",
	OrderViolation:      "keys out of order",
	ParentLinkMismatch:  "child does not point back to its parent",
	SizeMismatch:        "element count does not match the reachable nodes",
}

func (kind ViolationKind) String() string {
	if name, ok := violationNames[kind]; ok {
		return name
	}

	return fmt.Sprintf("violation(%d)", int(kind))
}

// InvariantError describes the first broken invariant found by CheckInvariants.
type InvariantError struct {
	Kind ViolationKind
	// Node is the arena index where the violation was detected, 0 for the sentinel.
	Node uint32
	// Key is the key stored at Node, nil for the sentinel.
	Key    any
	Detail string
}

func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("%s: %s at node #%d", ErrInvariant, e.Kind, e.Node)
	if e.Key != nil {
		msg += fmt.Sprintf(" (key %v)", e.Key)
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	return msg
}

// Unwrap makes errors.Is(err, ErrInvariant) hold.
func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

func (tree *Tree[K, V]) violation(kind ViolationKind, nodeIdx uint32, detail string) *InvariantError {
	verr := &InvariantError{Kind: kind, Node: nodeIdx, Detail: detail}
	if nodeIdx != sentinel {
		verr.Key = tree.nodes.at(nodeIdx).key
	}

	return verr
}

type checkFrame struct {
	node     uint32
	expanded bool
}

// CheckInvariants verifies every red-black and binary-search-tree invariant and
// returns an *InvariantError for the first violation found. It is a diagnostic
// for tests and tools and runs in O(n) without recursion.
func (tree *Tree[K, V]) CheckInvariants() error {
	nodes := tree.nodes
	top := nodes.at(sentinel)

	if top.color != black {
		return tree.violation(SentinelNotBlack, sentinel, "")
	}

	if top.parent != sentinel || top.right != sentinel {
		return tree.violation(ParentLinkMismatch, sentinel, "sentinel must be its own parent with no right child")
	}

	root := top.left
	if root == sentinel {
		if tree.count != 0 {
			return tree.violation(SizeMismatch, sentinel, fmt.Sprintf("empty tree reports %d elements", tree.count))
		}

		return nil
	}

	if nodes.isRed(root) {
		return tree.violation(RootNotBlack, root, "")
	}

	if nodes.at(root).parent != sentinel {
		return tree.violation(ParentLinkMismatch, root, "root must hang off the sentinel")
	}

	reachable, err := tree.checkColors(root)
	if err != nil {
		return err
	}

	if reachable != tree.count {
		return tree.violation(SizeMismatch, sentinel, fmt.Sprintf("%d reachable, %d counted", reachable, tree.count))
	}

	return tree.checkOrder()
}

// checkColors walks the tree in post-order, computing the black height of
// every subtree. It returns the number of reachable nodes.
func (tree *Tree[K, V]) checkColors(root uint32) (int, error) {
	nodes := tree.nodes
	blackHeights := make(map[uint32]int, tree.count)
	reachable := 0

	work := stack.New()
	work.Push(checkFrame{node: root})

	for work.Len() > 0 {
		frame, _ := work.Pop().(checkFrame)
		nd := nodes.at(frame.node)

		if !frame.expanded {
			reachable++
			if reachable > tree.count+1 {
				return reachable, tree.violation(SizeMismatch, frame.node, "cycle or more nodes than counted")
			}

			work.Push(checkFrame{node: frame.node, expanded: true})

			for _, childIdx := range [2]uint32{nd.left, nd.right} {
				if childIdx == sentinel {
					continue
				}

				if nodes.at(childIdx).parent != frame.node {
					return reachable, tree.violation(ParentLinkMismatch, childIdx, "")
				}

				work.Push(checkFrame{node: childIdx})
			}

			continue
		}

		if nd.color == red && (nodes.isRed(nd.left) || nodes.isRed(nd.right)) {
			return reachable, tree.violation(RedRedViolation, frame.node, "")
		}

		left, right := blackHeights[nd.left], blackHeights[nd.right]
		if left != right {
			return reachable, tree.violation(BlackHeightMismatch, frame.node,
				fmt.Sprintf("left subtree %d, right subtree %d", left, right))
		}

		height := left
		if nd.color == black {
			height++
		}

		blackHeights[frame.node] = height
	}

	return reachable, nil
}

func (tree *Tree[K, V]) checkOrder() error {
	prev := sentinel

	for idx := tree.nodes.leftmost(tree.nodes.root()); idx != sentinel; idx = tree.nodes.successor(idx) {
		if prev != sentinel && !tree.less(tree.nodes.at(prev).key, tree.nodes.at(idx).key) {
			return tree.violation(OrderViolation, idx,
				fmt.Sprintf("follows key %v", tree.nodes.at(prev).key))
		}

		prev = idx
	}

	return nil
}

// Height returns the number of nodes on the longest root-to-leaf path.
func (tree *Tree[K, V]) Height() int {
	type frame struct {
		node  uint32
		depth int
	}

	root := tree.nodes.root()
	if root == sentinel {
		return 0
	}

	maxDepth := 0
	work := stack.New()
	work.Push(frame{node: root, depth: 1})

	for work.Len() > 0 {
		current, _ := work.Pop().(frame)
		maxDepth = max(maxDepth, current.depth)

		nd := tree.nodes.at(current.node)
		for _, childIdx := range [2]uint32{nd.left, nd.right} {
			if childIdx != sentinel {
				work.Push(frame{node: childIdx, depth: current.depth + 1})
			}
		}
	}

	return maxDepth
}
