// Package engine implements spec.md §4.8's deploy execution protocol: the
// top-level CommitGenesis/CommitUpgrade/RunExecute/CommitStep/RunQuery
// operations a consensus layer calls once per block. Grounded on
// core/node.go's Engine type, which plays the identical "single
// long-lived object wrapping a store plus a system-contract cache,
// exposing one method per block-level operation" role for the teacher's
// own chain; RunExecute's payment→session→finalize pipeline generalizes
// node.go's ExecuteBlock loop from its single-phase transaction model to
// spec.md's three-phase one.
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/systemcontracts"
	"github.com/vireonet/txcore/trie"
)

// systemContractCacheSize bounds how many distinct protocol versions'
// Handles the engine keeps resolved at once — an engine instance only
// ever lives through a handful of upgrades in practice.
const systemContractCacheSize = 8

// Engine is the long-lived object a node holds for its entire lifetime,
// wrapping the trie-backed store and the per-version system contract
// cache, plus the bidder/era bookkeeping Auction itself cannot maintain
// (auction.go's own doc comment: the trie has no enumeration primitive, so
// tracking which addresses have ever placed a bid is the caller's job).
type Engine struct {
	store trie.StateProvider
	cache *systemcontracts.SystemContractCache

	mu               sync.Mutex
	candidateBidders map[[32]byte]bool
	currentEra       uint64
	eraValidators    map[uint64][]systemcontracts.ValidatorWeight
}

// NewEngine wraps store in a fresh Engine with an empty system contract
// cache and no recorded bidders or era validators yet.
func NewEngine(store trie.StateProvider) (*Engine, error) {
	cache, err := systemcontracts.NewSystemContractCache(systemContractCacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine: building system contract cache: %w", err)
	}
	return &Engine{
		store:            store,
		cache:            cache,
		candidateBidders: map[[32]byte]bool{},
		eraValidators:    map[uint64][]systemcontracts.ValidatorWeight{},
	}, nil
}

// handlesForVersion resolves the cached Handles for version, populating the
// cache from the store's ProtocolData the first time this version is seen.
func (e *Engine) handlesForVersion(version key.ProtocolVersion) (*systemcontracts.Handles, error) {
	return e.cache.GetOrInit(version, func() (*systemcontracts.Handles, error) {
		pd, ok := e.store.GetProtocolData(version)
		if !ok {
			return nil, fmt.Errorf("engine: no protocol data recorded for version %s", version)
		}
		return systemcontracts.HandlesFromProtocolData(pd), nil
	})
}

// trackBidders scans a commit's transforms for any Key::Bid entries it
// touched, recording each address so a later RunAuction/step call has a
// candidate list to work from without ever having to enumerate the trie.
func (e *Engine) trackBidders(transforms *key.AdditiveMap) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range transforms.Entries() {
		if bk, ok := entry.Key.(key.BidKey); ok {
			e.candidateBidders[bk.Addr] = true
		}
	}
}

// candidateList returns every address that has ever placed a bid, sorted
// for deterministic RunAuction input.
func (e *Engine) candidateList() [][32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][32]byte, 0, len(e.candidateBidders))
	for addr := range e.candidateBidders {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i][:]) < string(out[j][:]) })
	return out
}
