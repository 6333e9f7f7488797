package engine

import (
	"math/big"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/systemcontracts"
	"github.com/vireonet/txcore/trackingcopy"
	"github.com/vireonet/txcore/trie"
)

// StepRequest bundles spec.md §4.8's end-of-era ritual: which validators to
// slash, how much each earned this round, whether to re-run the auction,
// and which era the resulting validator set belongs to.
type StepRequest struct {
	PreStateHash      key.Hash
	ProtocolVersion   key.ProtocolVersion
	SlashedValidators [][32]byte
	RewardFactors     map[[32]byte]uint64
	RunAuction        bool
	NextEraID         uint64
}

// StepResultKind discriminates CommitStep's outcome.
type StepResultKind int

const (
	StepSuccess StepResultKind = iota
	StepRootNotFound
	StepInvalidProtocolVersion
	StepSlashingError
	StepDistributeError
	StepAuctionError
	StepEraValidatorsMissing
)

func (k StepResultKind) String() string {
	switch k {
	case StepSuccess:
		return "Success"
	case StepRootNotFound:
		return "RootNotFound"
	case StepInvalidProtocolVersion:
		return "InvalidProtocolVersion"
	case StepSlashingError:
		return "SlashingError"
	case StepDistributeError:
		return "DistributeError"
	case StepAuctionError:
		return "AuctionError"
	case StepEraValidatorsMissing:
		return "EraValidatorsMissing"
	default:
		return "Unknown"
	}
}

// StepResult is CommitStep's outcome.
type StepResult struct {
	Kind               StepResultKind
	PostStateHash      key.Hash
	NextEraValidators  []systemcontracts.ValidatorWeight
	Err                error
}

// CommitStep runs the slash/distribute/run_auction sequence once per
// switch block (spec.md §4.8's commit_step), all as SYSTEM_ACCOUNT on a
// single tracking copy, then commits and reports the new era's validator
// set.
func (e *Engine) CommitStep(req StepRequest) StepResult {
	reader, ok := e.store.Checkout(req.PreStateHash)
	if !ok {
		return StepResult{Kind: StepRootNotFound, Err: ErrRootNotFound}
	}
	handles, err := e.handlesForVersion(req.ProtocolVersion)
	if err != nil {
		return StepResult{Kind: StepInvalidProtocolVersion, Err: err}
	}
	tc := trackingcopy.New(reader)
	auction := handles.Auction
	pos := handles.ProofOfStake
	mint := handles.Mint

	for _, validator := range req.SlashedValidators {
		if _, err := auction.Slash(tc, validator); err != nil {
			return StepResult{Kind: StepSlashingError, Err: err}
		}
	}

	if len(req.RewardFactors) > 0 {
		rewardsPurse, hasRewards, err := pos.RewardsPurse(tc)
		if err != nil {
			return StepResult{Kind: StepDistributeError, Err: err}
		}
		if !hasRewards {
			return StepResult{Kind: StepDistributeError, Err: ErrMissingRewardsPurse}
		}
		total := big.NewInt(0)
		for _, factor := range req.RewardFactors {
			total.Add(total, new(big.Int).SetUint64(factor))
		}
		if total.Sign() > 0 {
			if err := mint.MintInto(tc, rewardsPurse, total); err != nil {
				return StepResult{Kind: StepDistributeError, Err: err}
			}
		}
		if err := auction.Distribute(tc, rewardsPurse, req.RewardFactors); err != nil {
			return StepResult{Kind: StepDistributeError, Err: err}
		}
	}

	var weights []systemcontracts.ValidatorWeight
	if req.RunAuction {
		auctionCfg, err := auction.Config(tc)
		if err != nil {
			return StepResult{Kind: StepAuctionError, Err: err}
		}
		weights, err = auction.RunAuction(tc, e.candidateList(), req.NextEraID, auctionCfg.ValidatorSlots)
		if err != nil {
			return StepResult{Kind: StepAuctionError, Err: err}
		}
	}

	effect := tc.Effect()
	result := e.store.Commit(req.PreStateHash, effect.Transforms)
	if result.Kind != trie.CommitSuccess {
		return StepResult{Kind: StepAuctionError, Err: result.Err}
	}
	e.trackBidders(effect.Transforms)

	if req.RunAuction {
		e.mu.Lock()
		e.currentEra = req.NextEraID
		e.eraValidators[req.NextEraID] = weights
		e.mu.Unlock()
	}

	e.mu.Lock()
	recorded, ok := e.eraValidators[req.NextEraID]
	e.mu.Unlock()
	if req.RunAuction && !ok {
		return StepResult{Kind: StepEraValidatorsMissing, Err: ErrEraValidatorsMissing}
	}

	return StepResult{Kind: StepSuccess, PostStateHash: result.Root, NextEraValidators: recorded}
}
