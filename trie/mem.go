package trie

import (
	"sync"

	"github.com/vireonet/txcore/internal/logging"
	"github.com/vireonet/txcore/key"
)

var log = logging.For("trie")

// MemStateProvider is the in-memory reference StateProvider. Nodes are
// immutable once written and keyed by their own Blake2b hash, so Commit
// never overwrites or deletes a node: it only ever adds the new nodes a
// commit's path rewrites, leaving every prior root fully readable.
type MemStateProvider struct {
	mu       sync.RWMutex
	nodes    map[key.Hash]Node
	protocol map[key.ProtocolVersion]key.ProtocolData
	empty    key.Hash
}

func NewMemStateProvider() *MemStateProvider {
	p := &MemStateProvider{
		nodes:    make(map[key.Hash]Node),
		protocol: make(map[key.ProtocolVersion]key.ProtocolData),
	}
	root := emptyBranch()
	p.empty = root.Hash()
	p.nodes[p.empty] = root
	return p
}

func (p *MemStateProvider) EmptyRoot() key.Hash { return p.empty }

func (p *MemStateProvider) ReadTrie(h key.Hash) (Node, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.nodes[h]
	return n, ok
}

// PutTrie stores n under its own hash, idempotently: a second write of an
// already-present node is a no-op, matching spec.md's "two writers of the
// same hash are allowed" (§4.4 Shared resources).
func (p *MemStateProvider) PutTrie(n Node) key.Hash {
	h := n.Hash()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.nodes[h]; !ok {
		p.nodes[h] = n
	}
	return h
}

// MissingTrieKeys reports which nodes reachable from root are absent from
// this store, depth-first, for sync-style fetch planning. An in-memory
// store that always holds every node it ever produced returns nothing
// missing for any root it has seen; an unrecognized root reports itself as
// the sole missing key.
func (p *MemStateProvider) MissingTrieKeys(root key.Hash) []key.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var missing []key.Hash
	seen := make(map[key.Hash]bool)
	var walk func(h key.Hash)
	walk = func(h key.Hash) {
		if seen[h] {
			return
		}
		seen[h] = true
		n, ok := p.nodes[h]
		if !ok {
			missing = append(missing, h)
			return
		}
		switch n.Kind {
		case KindBranch:
			for _, c := range n.Children {
				walk(c.Hash)
			}
		case KindExtension:
			walk(n.Pointer)
		}
	}
	walk(root)
	return missing
}

func (p *MemStateProvider) GetProtocolData(v key.ProtocolVersion) (key.ProtocolData, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.protocol[v]
	return d, ok
}

// PutProtocolData is append-only per spec.md §4.4: it never overwrites an
// already-recorded version.
func (p *MemStateProvider) PutProtocolData(d key.ProtocolData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.protocol[d.Version]; ok {
		log.WithField("version", d.Version).Warn("ignoring duplicate protocol data write")
		return
	}
	p.protocol[d.Version] = d
}

type memReader struct {
	p    *MemStateProvider
	root key.Hash
}

func (r *memReader) Root() key.Hash { return r.root }

func (r *memReader) Get(k key.Key) (key.StoredValue, bool) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()
	return r.p.get(r.root, k.Bytes())
}

func (p *MemStateProvider) Checkout(root key.Hash) (Reader, bool) {
	p.mu.RLock()
	_, ok := p.nodes[root]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &memReader{p: p, root: root}, true
}

// get walks the trie from root along path. Callers must already hold at
// least a read lock on p.mu.
func (p *MemStateProvider) get(root key.Hash, path []byte) (key.StoredValue, bool) {
	h := root
	for {
		n, ok := p.nodes[h]
		if !ok {
			return nil, false
		}
		switch n.Kind {
		case KindLeaf:
			if len(path) == len(n.LeafSuffix) {
				match := true
				for i := range path {
					if path[i] != n.LeafSuffix[i] {
						match = false
						break
					}
				}
				if match {
					return n.LeafValue, true
				}
			}
			return nil, false
		case KindExtension:
			if len(path) < len(n.Affix) {
				return nil, false
			}
			for i, b := range n.Affix {
				if path[i] != b {
					return nil, false
				}
			}
			path = path[len(n.Affix):]
			h = n.Pointer
		case KindBranch:
			if len(path) == 0 {
				return nil, false
			}
			idx := path[0]
			pos, ok := findChild(n.Children, idx)
			if !ok {
				return nil, false
			}
			path = path[1:]
			h = n.Children[pos].Hash
		default:
			return nil, false
		}
	}
}

// insert writes k/v reachable from root via path, returning the new root.
// It never mutates an existing node; every touched node along the path is
// rewritten and re-hashed, the copy-on-write discipline that makes old
// roots remain valid after a commit.
func (p *MemStateProvider) insert(root key.Hash, path []byte, k key.Key, v key.StoredValue) key.Hash {
	n, ok := p.nodes[root]
	if !ok {
		return p.storeNode(leaf(path, k, v))
	}
	switch n.Kind {
	case KindLeaf:
		if len(path) == len(n.LeafSuffix) && bytesEqual(path, n.LeafSuffix) {
			return p.storeNode(leaf(path, k, v))
		}
		return p.splitLeaf(n, path, k, v)
	case KindExtension:
		cp := commonPrefixLen(n.Affix, path)
		if cp == len(n.Affix) {
			childRoot := p.insert(n.Pointer, path[cp:], k, v)
			return p.storeNode(extension(n.Affix, childRoot))
		}
		return p.splitExtension(n, cp, path, k, v)
	case KindBranch:
		if len(path) == 0 {
			return root
		}
		idx := path[0]
		var childHash key.Hash
		if pos, found := findChild(n.Children, idx); found {
			childHash = p.insert(n.Children[pos].Hash, path[1:], k, v)
		} else {
			childHash = p.insert(key.Hash{}, path[1:], k, v)
		}
		return p.storeNode(branch(insertChild(n.Children, idx, childHash)))
	default:
		return root
	}
}

func (p *MemStateProvider) storeNode(n Node) key.Hash {
	h := n.Hash()
	if _, ok := p.nodes[h]; !ok {
		p.nodes[h] = n
	}
	return h
}

// splitLeaf handles inserting a key whose path diverges from an existing
// leaf's suffix partway through: it builds a branch at the divergence
// point holding both leaves (each re-suffixed past the shared prefix),
// wrapped in an Extension if a nonzero prefix is shared.
func (p *MemStateProvider) splitLeaf(existing Node, path []byte, k key.Key, v key.StoredValue) key.Hash {
	cp := commonPrefixLen(existing.LeafSuffix, path)
	existingLeafHash := p.storeNode(leaf(existing.LeafSuffix[cp+1:], existing.LeafKey, existing.LeafValue))
	newLeafHash := p.storeNode(leaf(path[cp+1:], k, v))
	children := insertChild(nil, existing.LeafSuffix[cp], existingLeafHash)
	children = insertChild(children, path[cp], newLeafHash)
	branchHash := p.storeNode(branch(children))
	if cp == 0 {
		return branchHash
	}
	return p.storeNode(extension(existing.LeafSuffix[:cp], branchHash))
}

// splitExtension handles inserting a path that diverges from an
// Extension's affix partway through.
func (p *MemStateProvider) splitExtension(existing Node, cp int, path []byte, k key.Key, v key.StoredValue) key.Hash {
	tailAffix := existing.Affix[cp+1:]
	var belowHash key.Hash
	if len(tailAffix) == 0 {
		belowHash = existing.Pointer
	} else {
		belowHash = p.storeNode(extension(tailAffix, existing.Pointer))
	}
	newLeafHash := p.storeNode(leaf(path[cp+1:], k, v))
	children := insertChild(nil, existing.Affix[cp], belowHash)
	children = insertChild(children, path[cp], newLeafHash)
	branchHash := p.storeNode(branch(children))
	if cp == 0 {
		return branchHash
	}
	return p.storeNode(extension(existing.Affix[:cp], branchHash))
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Commit applies changes to root, writing any newly-produced nodes and
// returning the resulting root on success. It is purely functional: root
// itself remains readable afterward (spec.md §4.2). Entries are processed
// in AdditiveMap's canonical order so two stores presented with the same
// changes always build identical intermediate nodes.
func (p *MemStateProvider) Commit(root key.Hash, changes *key.AdditiveMap) CommitResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.nodes[root]; !ok {
		return CommitResult{Kind: CommitRootNotFound}
	}

	current := root
	for _, entry := range changes.Entries() {
		path := entry.Key.Bytes()
		existing, found := p.get(current, path)
		newValue, err := entry.Transform.Apply(existing, found)
		if err != nil {
			switch err {
			case key.ErrKeyNotFound:
				return CommitResult{Kind: CommitKeyNotFound, Key: entry.Key}
			case key.ErrTypeMismatch, key.ErrArithmeticOverflow, key.ErrWriteConflict:
				return CommitResult{Kind: CommitTypeMismatch, Err: err}
			default:
				return CommitResult{Kind: CommitSerializationError, Err: err}
			}
		}
		if newValue == nil {
			// Identity folded against an absent key: nothing to write.
			continue
		}
		current = p.insert(current, path, entry.Key, newValue)
	}
	return success(current)
}
