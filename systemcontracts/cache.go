package systemcontracts

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vireonet/txcore/key"
)

// Handles bundles the three system contract handles resolved for one
// protocol version, so callers pull them out of the cache together rather
// than resolving each one's address independently on every deploy.
type Handles struct {
	Mint         Mint
	ProofOfStake ProofOfStake
	Auction      Auction
}

// cacheEntry runs build exactly once per version; once.Do's happens-before
// guarantee lets every caller — the one that ran build and every one that
// only waited on the Once — safely read h/err after Do returns.
type cacheEntry struct {
	once sync.Once
	h    *Handles
	err  error
}

// SystemContractCache memoizes the Handles for each protocol version the
// engine has executed against, avoiding a repeated ProtocolData trie read
// on every deploy within the same version (spec.md §8 notes ProtocolData
// is read once per version and reused). Backed by
// hashicorp/golang-lru/v2, the same cache library the teacher's gas-cost
// tables use elsewhere in the pack, sized generously since the number of
// distinct protocol versions an engine instance ever sees in its lifetime
// is small.
type SystemContractCache struct {
	lru  *lru.Cache[key.ProtocolVersion, *Handles]
	once sync.Map // key.ProtocolVersion -> *cacheEntry
}

// NewSystemContractCache builds a cache holding up to size distinct
// protocol versions' handles at once.
func NewSystemContractCache(size int) (*SystemContractCache, error) {
	c, err := lru.New[key.ProtocolVersion, *Handles](size)
	if err != nil {
		return nil, err
	}
	return &SystemContractCache{lru: c}, nil
}

// GetOrInit returns the cached Handles for version, computing them via
// build exactly once per version even under concurrent callers (build
// reads ProtocolData out of the trie, a fork-safe but not free operation).
func (c *SystemContractCache) GetOrInit(version key.ProtocolVersion, build func() (*Handles, error)) (*Handles, error) {
	if h, ok := c.lru.Get(version); ok {
		return h, nil
	}
	entryIface, _ := c.once.LoadOrStore(version, &cacheEntry{})
	entry := entryIface.(*cacheEntry)
	entry.once.Do(func() {
		entry.h, entry.err = build()
		if entry.err == nil {
			c.lru.Add(version, entry.h)
		}
	})
	if entry.err != nil {
		c.once.Delete(version)
		return nil, entry.err
	}
	return entry.h, nil
}

// HandlesFromProtocolData constructs Handles directly from the contract
// hashes recorded in pd, the path used the first time a version is seen.
func HandlesFromProtocolData(pd key.ProtocolData) *Handles {
	return &Handles{
		Mint:         Mint{},
		ProofOfStake: ProofOfStake{ContractAddr: pd.ProofOfStakeHash},
		Auction:      Auction{ContractAddr: pd.AuctionContractHash},
	}
}
