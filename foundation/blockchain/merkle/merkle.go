// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an immutable merkle tree over an ordered list of
// values. Subtrees can be replaced by stubs that only carry their hash so a
// tree can be transmitted in a compact form.
package merkle

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"hash"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() bighash.Hash
	Equals(other T) bool
}

// ErrNotFound is returned when a value is not part of the tree.
var ErrNotFound = errors.New("unable to find data in tree")

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint. A tree is never mutated once
// constructed. Transforms return a new tree sharing the unchanged nodes.
type Tree[T Hashable[T]] struct {
	root         *Node[T]
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	if len(values) == 0 {
		return nil, errors.New("cannot construct tree with no content")
	}

	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	level := make([]*Node[T], len(values))
	for i, value := range values {
		level[i] = &Node[T]{
			kind:   KindLeaf,
			hash:   value.Hash(),
			value:  value,
			leaves: 1,
		}
	}

	// Pair nodes level by level. A node without a partner moves up to the
	// next level unchanged.
	for len(level) > 1 {
		next := make([]*Node[T], 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, t.join(level[i], level[i+1]))
		}
		level = next
	}

	t.root = level[0]

	return &t, nil
}

// Root returns the root node of the tree.
func (t *Tree[T]) Root() *Node[T] {
	return t.root
}

// RootHash returns the merkle root.
func (t *Tree[T]) RootHash() bighash.Hash {
	return t.root.hash
}

// RootHex converts the merkle root hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return t.root.hash.String()
}

// Len returns the number of values the tree was built over, stubbed or not.
func (t *Tree[T]) Len() int {
	return t.root.leaves
}

// Values returns the values still held by the tree in order. Values
// covered by a stub are not returned.
func (t *Tree[T]) Values() []T {
	values := make([]T, 0, t.root.leaves)
	var walk func(n *Node[T])
	walk = func(n *Node[T]) {
		switch n.kind {
		case KindLeaf:
			values = append(values, n.value)
		case KindInternal:
			walk(n.left)
			walk(n.right)
		}
	}
	walk(t.root)

	return values
}

// IsComplete reports whether the tree contains no stubs.
func (t *Tree[T]) IsComplete() bool {
	return len(t.Values()) == t.root.leaves
}

// Stub returns a new tree where the subtree with the specified hash is
// replaced by a stub. An internal node whose children are both stubs
// collapses into a stub itself.
func (t *Tree[T]) Stub(h bighash.Hash) *Tree[T] {
	return &Tree[T]{
		root:         stub(t.root, func(n *Node[T]) bool { return n.hash == h }),
		hashStrategy: t.hashStrategy,
	}
}

// Prune returns a new tree keeping only the leaves accepted by keep. Every
// other subtree is reduced to a stub.
func (t *Tree[T]) Prune(keep func(value T) bool) *Tree[T] {
	return &Tree[T]{
		root:         stub(t.root, func(n *Node[T]) bool { return n.kind == KindLeaf && !keep(n.value) }),
		hashStrategy: t.hashStrategy,
	}
}

// Verify recalculates the hash at every level of the tree and validates the
// result matches the stored root. Stubs are trusted for their hash.
func (t *Tree[T]) Verify() error {
	calculated := t.verify(t.root)
	if calculated != t.root.hash {
		return errors.New("root hash invalid")
	}

	return nil
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving a value is in the tree. An order of 0 means the proof
// hash comes first, 1 means it comes second.
func (t *Tree[T]) Proof(data T) ([]bighash.Hash, []int64, error) {
	var proof []bighash.Hash
	var order []int64

	var find func(n *Node[T]) bool
	find = func(n *Node[T]) bool {
		switch n.kind {
		case KindLeaf:
			return n.value.Equals(data)

		case KindInternal:
			if find(n.left) {
				proof = append(proof, n.right.hash)
				order = append(order, 1)
				return true
			}
			if find(n.right) {
				proof = append(proof, n.left.hash)
				order = append(order, 0)
				return true
			}
		}
		return false
	}

	if !find(t.root) {
		return nil, nil, ErrNotFound
	}

	return proof, order, nil
}

// VerifyProof validates a proof produced by Proof against a merkle root.
func (t *Tree[T]) VerifyProof(leaf bighash.Hash, proof []bighash.Hash, order []int64, root bighash.Hash) error {
	if len(proof) != len(order) {
		return errors.New("proof and order length mismatch")
	}

	h := leaf
	for i, p := range proof {
		switch order[i] {
		case 0:
			h = t.combine(p, h)
		default:
			h = t.combine(h, p)
		}
	}

	if h != root {
		return fmt.Errorf("proof resolves to %s, expected %s", h, root)
	}

	return nil
}

// MarshalJSON implements the json.Marshaler interface by encoding the node
// structure, including stubs.
func (t *Tree[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.root)
}

// String returns a string representation of the tree.
func (t *Tree[T]) String() string {
	return fmt.Sprintf("merkle[%s] leaves[%d]", t.root.hash.Short(), t.root.leaves)
}

// =============================================================================

func (t *Tree[T]) combine(left bighash.Hash, right bighash.Hash) bighash.Hash {
	h := t.hashStrategy()
	h.Write(left[:])
	h.Write(right[:])
	return bighash.FromBytes(h.Sum(nil))
}

func (t *Tree[T]) join(left *Node[T], right *Node[T]) *Node[T] {
	return &Node[T]{
		kind:   KindInternal,
		hash:   t.combine(left.hash, right.hash),
		left:   left,
		right:  right,
		leaves: left.leaves + right.leaves,
	}
}

func (t *Tree[T]) verify(n *Node[T]) bighash.Hash {
	switch n.kind {
	case KindLeaf:
		return n.value.Hash()
	case KindInternal:
		return t.combine(t.verify(n.left), t.verify(n.right))
	}
	return n.hash
}

// stub rebuilds the path down to every node matched by replace, returning
// the original node where nothing below it changed.
func stub[T Hashable[T]](n *Node[T], replace func(n *Node[T]) bool) *Node[T] {
	if n.kind == KindStub {
		return n
	}

	if replace(n) {
		return &Node[T]{kind: KindStub, hash: n.hash, leaves: n.leaves}
	}

	if n.kind == KindLeaf {
		return n
	}

	left := stub(n.left, replace)
	right := stub(n.right, replace)

	switch {
	case left.kind == KindStub && right.kind == KindStub:
		return &Node[T]{kind: KindStub, hash: n.hash, leaves: n.leaves}
	case left == n.left && right == n.right:
		return n
	}

	return &Node[T]{
		kind:   KindInternal,
		hash:   n.hash,
		left:   left,
		right:  right,
		leaves: n.leaves,
	}
}

// =============================================================================

// Kind identifies the variant of a node.
type Kind uint8

// Set of node kinds.
const (
	KindLeaf Kind = iota + 1
	KindInternal
	KindStub
)

// Node represents a leaf, an internal node or a stub. A node is immutable.
type Node[T Hashable[T]] struct {
	kind   Kind
	hash   bighash.Hash
	value  T
	left   *Node[T]
	right  *Node[T]
	leaves int
}

// Kind returns the variant of the node.
func (n *Node[T]) Kind() Kind { return n.kind }

// Hash returns the hash of the node.
func (n *Node[T]) Hash() bighash.Hash { return n.hash }

// Value returns the value held by a leaf.
func (n *Node[T]) Value() T { return n.value }

// Children returns the children of an internal node.
func (n *Node[T]) Children() (*Node[T], *Node[T]) { return n.left, n.right }

// MarshalJSON implements the json.Marshaler interface.
func (n *Node[T]) MarshalJSON() ([]byte, error) {
	switch n.kind {
	case KindLeaf:
		return json.Marshal(struct {
			Hash bighash.Hash `json:"hash"`
			Leaf T            `json:"leaf"`
		}{n.hash, n.value})

	case KindInternal:
		return json.Marshal(struct {
			Hash  bighash.Hash `json:"hash"`
			Left  *Node[T]     `json:"left"`
			Right *Node[T]     `json:"right"`
		}{n.hash, n.left, n.right})
	}

	return json.Marshal(struct {
		Stub bighash.Hash `json:"stub"`
	}{n.hash})
}
