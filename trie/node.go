// Package trie implements the versioned, content-addressed Merkle
// key-value store the execution core runs against: a StateProvider
// interface plus an in-memory reference implementation. Every node is
// hashed with Blake2b over its canonical bytesrepr encoding, so two stores
// that apply the same commits from the same base always agree on every
// intermediate and final root.
package trie

import (
	"github.com/vireonet/txcore/bytesrepr"
	"github.com/vireonet/txcore/key"
)

// Kind distinguishes the three node shapes spec.md names: Leaf, Node
// (branch), Extension.
type Kind byte

const (
	KindLeaf Kind = iota
	KindBranch
	KindExtension
)

// child is one populated slot of a branch node. Branches store only the
// populated slots as a slice sorted ascending by Index rather than a
// literal 256-element array, which would waste space for the vast
// majority of branches that have only a handful of live children; the
// ascending-index ordering makes the slice's encoding canonical the same
// way bytesrepr requires ascending key-byte order for maps.
type child struct {
	Index byte
	Hash  key.Hash
}

// Node is a trie node. Exactly one of the Leaf/Branch/Extension field
// groups is meaningful, selected by Kind.
type Node struct {
	Kind Kind

	// KindLeaf: the full stored key/value and the path suffix consumed to
	// reach this leaf from its parent.
	LeafKey    key.Key
	LeafValue  key.StoredValue
	LeafSuffix []byte

	// KindBranch: populated children, sorted ascending by Index.
	Children []child

	// KindExtension: the shared affix this node compresses, and the
	// single child it points to.
	Affix   []byte
	Pointer key.Hash
}

func leaf(suffix []byte, k key.Key, v key.StoredValue) Node {
	return Node{Kind: KindLeaf, LeafKey: k, LeafValue: v, LeafSuffix: append([]byte(nil), suffix...)}
}

func branch(children []child) Node {
	return Node{Kind: KindBranch, Children: children}
}

func extension(affix []byte, pointer key.Hash) Node {
	return Node{Kind: KindExtension, Affix: append([]byte(nil), affix...), Pointer: pointer}
}

// emptyBranch is the canonical representation of an empty trie: a branch
// node with no children, whose hash is EmptyRoot().
func emptyBranch() Node { return branch(nil) }

// ToBytes canonically encodes the node: a tag byte followed by the
// variant's payload, matching the C1 codec's sum-type convention.
func (n Node) ToBytes() []byte {
	switch n.Kind {
	case KindLeaf:
		w := bytesrepr.NewWriter(64)
		w.PutU8(byte(KindLeaf))
		w.PutBytes(n.LeafSuffix)
		w.PutBytes(n.LeafKey.Bytes())
		w.PutBytes(n.LeafValue.ToBytes())
		return w.Bytes()
	case KindBranch:
		w := bytesrepr.NewWriter(8 + len(n.Children)*33)
		w.PutU8(byte(KindBranch))
		w.PutU32(uint32(len(n.Children)))
		for _, c := range n.Children {
			w.PutU8(c.Index)
			w.PutFixedBytes(c.Hash[:])
		}
		return w.Bytes()
	case KindExtension:
		w := bytesrepr.NewWriter(8 + len(n.Affix) + 32)
		w.PutU8(byte(KindExtension))
		w.PutBytes(n.Affix)
		w.PutFixedBytes(n.Pointer[:])
		return w.Bytes()
	default:
		return nil
	}
}

// Hash is the Blake2b-256 digest of the node's canonical encoding; this is
// the value used as its storage key and as its parent's child pointer.
func (n Node) Hash() key.Hash { return key.Blake2b256(n.ToBytes()) }

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func findChild(children []child, idx byte) (int, bool) {
	for i, c := range children {
		if c.Index == idx {
			return i, true
		}
	}
	return -1, false
}

func insertChild(children []child, idx byte, h key.Hash) []child {
	pos, ok := findChild(children, idx)
	if ok {
		out := append([]child(nil), children...)
		out[pos] = child{Index: idx, Hash: h}
		return out
	}
	out := make([]child, 0, len(children)+1)
	inserted := false
	for _, c := range children {
		if !inserted && c.Index > idx {
			out = append(out, child{Index: idx, Hash: h})
			inserted = true
		}
		out = append(out, c)
	}
	if !inserted {
		out = append(out, child{Index: idx, Hash: h})
	}
	return out
}
