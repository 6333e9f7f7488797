package engine

import (
	"math/big"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/systemcontracts"
	"github.com/vireonet/txcore/trackingcopy"
)

// RunQuery resolves k (optionally descending through path) against the
// state at stateHash, the read-only counterpart to RunExecute spec.md
// §4.8's "run_query" names.
func (e *Engine) RunQuery(stateHash key.Hash, k key.Key, path []string) (trackingcopy.QueryResult, error) {
	reader, ok := e.store.Checkout(stateHash)
	if !ok {
		return trackingcopy.QueryResult{}, ErrRootNotFound
	}
	tc := trackingcopy.New(reader)
	return tc.Query(k, path), nil
}

// GetPurseBalance reads a purse's U512 balance at stateHash (spec.md §4.8's
// get_purse_balance), the query invariant 3 requires always be answerable.
func (e *Engine) GetPurseBalance(stateHash key.Hash, purse key.URefKey) (*big.Int, bool, error) {
	reader, ok := e.store.Checkout(stateHash)
	if !ok {
		return nil, false, ErrRootNotFound
	}
	tc := trackingcopy.New(reader)
	bal, found := systemcontracts.Mint{}.Balance(tc, purse)
	return bal, found, nil
}

// GetEraValidators returns the validator set CommitStep (or a CommitUpgrade
// that sets NewValidatorSlots) most recently recorded for era, served from the engine's
// in-memory snapshot rather than re-deriving it from the trie (the trie has
// no enumeration primitive — SPEC_FULL.md §12.1).
func (e *Engine) GetEraValidators(era uint64) ([]systemcontracts.ValidatorWeight, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	weights, ok := e.eraValidators[era]
	return weights, ok
}
