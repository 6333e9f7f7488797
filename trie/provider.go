package trie

import "github.com/vireonet/txcore/key"

// Reader is a read-only view over a specific trie root, the interface
// tracking copies hold onto for the lifetime of a deploy.
type Reader interface {
	Root() key.Hash
	Get(k key.Key) (key.StoredValue, bool)
}

// CommitResultKind discriminates CommitResult's outcome, mirroring
// spec.md's CommitResult sum type.
type CommitResultKind int

const (
	CommitSuccess CommitResultKind = iota
	CommitRootNotFound
	CommitKeyNotFound
	CommitTypeMismatch
	CommitSerializationError
)

func (k CommitResultKind) String() string {
	switch k {
	case CommitSuccess:
		return "Success"
	case CommitRootNotFound:
		return "RootNotFound"
	case CommitKeyNotFound:
		return "KeyNotFound"
	case CommitTypeMismatch:
		return "TypeMismatch"
	case CommitSerializationError:
		return "Serialization"
	default:
		return "Unknown"
	}
}

// CommitResult is the outcome of StateProvider.Commit.
type CommitResult struct {
	Kind CommitResultKind
	Root key.Hash // meaningful iff Kind == CommitSuccess
	Key  key.Key  // meaningful iff Kind == CommitKeyNotFound
	Err  error    // meaningful iff Kind == CommitTypeMismatch or CommitSerializationError
}

func success(root key.Hash) CommitResult { return CommitResult{Kind: CommitSuccess, Root: root} }

// StateProvider is the abstract Merkle store the engine (C8) runs against.
// Two implementations are expected to be behaviorally indistinguishable
// modulo durability: MemStateProvider here, and a persistent implementation
// outside this module's scope (spec.md §9).
type StateProvider interface {
	EmptyRoot() key.Hash
	Checkout(root key.Hash) (Reader, bool)
	Commit(root key.Hash, changes *key.AdditiveMap) CommitResult
	ReadTrie(h key.Hash) (Node, bool)
	PutTrie(n Node) key.Hash
	MissingTrieKeys(root key.Hash) []key.Hash
	GetProtocolData(v key.ProtocolVersion) (key.ProtocolData, bool)
	PutProtocolData(d key.ProtocolData)
}
