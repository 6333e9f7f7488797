// auction.go implements validator bidding, delegation, slashing and era
// rotation. It is grounded on two teacher managers: core/dao_staking.go's
// singleton-manager-over-a-ledger shape (Stake/Unstake keyed by an address
// prefix) supplies the AddBid/WithdrawBid/Delegate bookkeeping pattern, and
// core/stake_penalty.go's AdjustStake/StakeOf supplies the Slash/Distribute
// delta-application pattern — both generalized here from a single flat
// ledger to the trie-backed Key::Bid / Key::Withdraw namespace spec.md §3
// and §7 define.
package systemcontracts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/trackingcopy"
)

var (
	ErrValidatorNotFound = errors.New("auction: validator has no active bid")
	ErrDelegatorNotFound = errors.New("auction: delegator has no stake with this validator")
	ErrInsufficientStake = errors.New("auction: withdrawal amount exceeds staked amount")
)

const (
	nkValidatorSlots       = "auction_validator_slots"
	nkAuctionDelay         = "auction_auction_delay"
	nkLockedFundsPeriod    = "auction_locked_funds_period"
	nkUnbondingDelay       = "auction_unbonding_delay"
	nkRoundSeigniorageRate = "auction_round_seigniorage_rate_num" // denominator fixed at 1e9
)

// Auction is the stateless handle over the trie-backed validator registry,
// mirroring Mint and ProofOfStake's shape: every method takes the tracking
// copy it should act against. Unlike Mint/ProofOfStake, Auction has no way
// to enumerate every validator that ever bid (trie/provider.go's
// StateProvider only supports point reads by path, see trackingcopy.Query),
// so RunAuction and Distribute both take an explicit candidate address
// list rather than scanning the trie themselves — the caller (the engine
// package) is responsible for tracking which addresses have ever placed a
// bid, the same way casper-node's auction contract relies on its caller to
// supply the bidder set rather than walking global state.
type Auction struct{ ContractAddr [32]byte }

// AuctionConfig bundles the economic constants spec.md §7 names, loaded
// at genesis, overwritable by CommitUpgrade, and readable via Config.
type AuctionConfig struct {
	ValidatorSlots          uint32
	AuctionDelay            uint64
	LockedFundsPeriod       uint64
	UnbondingDelay          uint64
	RoundSeigniorageRateNum uint64 // numerator; denominator is 1_000_000_000
}

// SetConfig installs the auction's economic constants; called during
// genesis installation and again by engine.CommitUpgrade.
func (a Auction) SetConfig(tc *trackingcopy.TrackingCopy, cfg AuctionConfig) error {
	named, err := loadNamedKeys(tc, a.ContractAddr)
	if err != nil {
		return err
	}
	put := func(name string, v uint64) {
		named[name] = key.HashKey{Hash: encodeU64AsAddr(v)}
	}
	put(nkValidatorSlots, uint64(cfg.ValidatorSlots))
	put(nkAuctionDelay, cfg.AuctionDelay)
	put(nkLockedFundsPeriod, cfg.LockedFundsPeriod)
	put(nkUnbondingDelay, cfg.UnbondingDelay)
	put(nkRoundSeigniorageRate, cfg.RoundSeigniorageRateNum)
	return storeNamedKeys(tc, a.ContractAddr, named)
}

// Config reads back the auction's economic constants.
func (a Auction) Config(tc *trackingcopy.TrackingCopy) (AuctionConfig, error) {
	named, err := loadNamedKeys(tc, a.ContractAddr)
	if err != nil {
		return AuctionConfig{}, err
	}
	get := func(name string) uint64 {
		k, ok := named[name]
		if !ok {
			return 0
		}
		h, ok := k.(key.HashKey)
		if !ok {
			return 0
		}
		return decodeU64FromAddr(h.Hash)
	}
	return AuctionConfig{
		ValidatorSlots:          uint32(get(nkValidatorSlots)),
		AuctionDelay:            get(nkAuctionDelay),
		LockedFundsPeriod:       get(nkLockedFundsPeriod),
		UnbondingDelay:          get(nkUnbondingDelay),
		RoundSeigniorageRateNum: get(nkRoundSeigniorageRate),
	}, nil
}

// encodeU64AsAddr/decodeU64FromAddr stash a plain uint64 config value in the
// 32-byte slot a HashKey's payload provides, since the named-keys map can
// only point at Keys, not raw scalars — cheaper than adding a dedicated
// StoredValue variant for a handful of configuration integers.
func encodeU64AsAddr(v uint64) [32]byte {
	var out [32]byte
	binary.LittleEndian.PutUint64(out[:8], v)
	return out
}

func decodeU64FromAddr(addr [32]byte) uint64 {
	return binary.LittleEndian.Uint64(addr[:8])
}

// AddBid creates or tops up a validator's bid, the entry point spec.md §7
// names for a validator entering (or increasing its stake in) the auction.
// bondingPurse must already hold amount, transferred there by the caller
// before invoking AddBid (mirroring how casper-node's add_bid first moves
// motes into the bid's bonding purse, then records the bid).
func (a Auction) AddBid(tc *trackingcopy.TrackingCopy, validator [32]byte, bondingPurse key.URefKey, amount *big.Int, delegationRate uint8) error {
	bidKey := key.BidKey{Addr: validator}
	v, found, err := tc.Read(bidKey)
	if err != nil {
		return err
	}
	if found {
		bid := v.(key.BidValue)
		bid.StakedAmount = new(big.Int).Add(bid.StakedAmount, amount)
		bid.DelegationRate = delegationRate
		bid.Inactive = false
		return tc.Write(bidKey, bid)
	}
	bid := key.BidValue{
		ValidatorPublicKey: validator,
		BondingPurse:       bondingPurse,
		StakedAmount:       new(big.Int).Set(amount),
		DelegationRate:     delegationRate,
		Delegators:         map[[32]byte]*big.Int{},
	}
	log.WithField("validator", fmt.Sprintf("%x", validator)).Info("auction: new bid")
	return tc.Write(bidKey, bid)
}

// WithdrawBid reduces a validator's staked amount, marking the bid inactive
// once it reaches zero whatever delegations it still carries (an inactive
// bid drops out of RunAuction's selection but the record is retained for
// query purposes rather than deleted, since the trie has no delete
// primitive for a single key without re-deriving the whole path).
func (a Auction) WithdrawBid(tc *trackingcopy.TrackingCopy, validator [32]byte, amount *big.Int) error {
	bidKey := key.BidKey{Addr: validator}
	v, found, err := tc.Read(bidKey)
	if err != nil {
		return err
	}
	if !found {
		return ErrValidatorNotFound
	}
	bid := v.(key.BidValue)
	if bid.StakedAmount.Cmp(amount) < 0 {
		return ErrInsufficientStake
	}
	bid.StakedAmount = new(big.Int).Sub(bid.StakedAmount, amount)
	if bid.StakedAmount.Sign() == 0 {
		bid.Inactive = true
	}
	return tc.Write(bidKey, bid)
}

// Delegate adds delegator's stake to validator's bid, the PoS delegation
// mechanism spec.md §7 describes.
func (a Auction) Delegate(tc *trackingcopy.TrackingCopy, delegator, validator [32]byte, amount *big.Int) error {
	bidKey := key.BidKey{Addr: validator}
	v, found, err := tc.Read(bidKey)
	if err != nil {
		return err
	}
	if !found {
		return ErrValidatorNotFound
	}
	bid := v.(key.BidValue)
	if bid.Delegators == nil {
		bid.Delegators = map[[32]byte]*big.Int{}
	}
	existing, ok := bid.Delegators[delegator]
	if !ok {
		existing = big.NewInt(0)
	}
	bid.Delegators[delegator] = new(big.Int).Add(existing, amount)
	return tc.Write(bidKey, bid)
}

// Undelegate removes up to amount of delegator's stake from validator's
// bid.
func (a Auction) Undelegate(tc *trackingcopy.TrackingCopy, delegator, validator [32]byte, amount *big.Int) error {
	bidKey := key.BidKey{Addr: validator}
	v, found, err := tc.Read(bidKey)
	if err != nil {
		return err
	}
	if !found {
		return ErrValidatorNotFound
	}
	bid := v.(key.BidValue)
	existing, ok := bid.Delegators[delegator]
	if !ok {
		return ErrDelegatorNotFound
	}
	if existing.Cmp(amount) < 0 {
		return ErrInsufficientStake
	}
	remaining := new(big.Int).Sub(existing, amount)
	if remaining.Sign() == 0 {
		delete(bid.Delegators, delegator)
	} else {
		bid.Delegators[delegator] = remaining
	}
	return tc.Write(bidKey, bid)
}

// Slash zeroes out a validator's stake and every delegation against it, the
// penalty spec.md §10's step protocol applies to validators found
// equivocating or otherwise faulty. The validator's own staked amount is
// burned out of its bonding purse (engine.CommitStep never has to locate
// that purse itself); delegated stake has no purse of its own in this
// model — a delegator contributes directly into the validator's bid
// record rather than through a separate bonding purse per delegator — so
// it is simply zeroed out of the bid alongside the stake it rode on
// (mirrors stake_penalty.go's AdjustStake operating purely on the ledger's
// staged amounts).
func (a Auction) Slash(tc *trackingcopy.TrackingCopy, validator [32]byte) (*big.Int, error) {
	bidKey := key.BidKey{Addr: validator}
	v, found, err := tc.Read(bidKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrValidatorNotFound
	}
	bid := v.(key.BidValue)
	total := totalStake(bid)
	if bid.StakedAmount.Sign() > 0 {
		if err := Mint{}.Burn(tc, bid.BondingPurse, bid.StakedAmount); err != nil {
			return nil, err
		}
	}
	bid.StakedAmount = big.NewInt(0)
	bid.Delegators = map[[32]byte]*big.Int{}
	bid.Inactive = true
	log.WithField("validator", fmt.Sprintf("%x", validator)).WithField("slashed", total.String()).Warn("auction: validator slashed")
	if err := tc.Write(bidKey, bid); err != nil {
		return nil, err
	}
	return total, nil
}

// Distribute credits each validator's bonding purse directly from
// rewardsPurse according to rewardFactors — the reward half of the step
// protocol's slash/distribute/run_auction sequence (spec.md §4.6's
// distribute(reward_factors) entry point takes no separate amount
// parameter, so each factor is itself the mote amount earned that round,
// typically computed by the caller from blocks produced). The caller
// (engine.CommitStep) mints the round's total seigniorage into
// rewardsPurse before calling Distribute.
func (a Auction) Distribute(tc *trackingcopy.TrackingCopy, rewardsPurse key.URefKey, rewardFactors map[[32]byte]uint64) error {
	addrs := make([][32]byte, 0, len(rewardFactors))
	for addr := range rewardFactors {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return string(addrs[i][:]) < string(addrs[j][:]) })
	for _, addr := range addrs {
		factor := rewardFactors[addr]
		if factor == 0 {
			continue
		}
		v, found, err := tc.Read(key.BidKey{Addr: addr})
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		bid := v.(key.BidValue)
		amount := new(big.Int).SetUint64(factor)
		if err := Mint{}.Transfer(tc, rewardsPurse, bid.BondingPurse, amount); err != nil {
			return err
		}
	}
	return nil
}

// totalStake sums a bid's self-stake and every delegation against it.
// key.BidValue is declared in the key package, so this lives as a
// package-level helper here rather than a method on a foreign type.
func totalStake(b key.BidValue) *big.Int {
	total := new(big.Int).Set(b.StakedAmount)
	for _, amt := range b.Delegators {
		total.Add(total, amt)
	}
	return total
}

// ValidatorWeight pairs a validator's public key with its total (self +
// delegated) stake, the unit GetEraValidators reports.
type ValidatorWeight struct {
	Validator [32]byte
	Weight    *big.Int
}

// RunAuction selects the top validatorSlots candidates by total stake from
// the supplied candidate list, records an EraInfo marker for era (the
// staggered-activation bookkeeping spec.md §7 describes: a bid placed in
// era N only takes effect in era N+auction_delay), and returns the
// selected set. The full selected set is returned directly to the caller
// rather than written back into the trie in enumerable form, since
// GetEraValidators is served from the engine's in-memory snapshot of the
// most recent RunAuction result (SPEC_FULL.md §12.1).
func (a Auction) RunAuction(tc *trackingcopy.TrackingCopy, candidates [][32]byte, era uint64, validatorSlots uint32) ([]ValidatorWeight, error) {
	weighted := make([]ValidatorWeight, 0, len(candidates))
	for _, addr := range candidates {
		v, found, err := tc.Read(key.BidKey{Addr: addr})
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		bid := v.(key.BidValue)
		if bid.Inactive || totalStake(bid).Sign() == 0 {
			continue
		}
		weighted = append(weighted, ValidatorWeight{Validator: addr, Weight: totalStake(bid)})
	}
	sort.Slice(weighted, func(i, j int) bool {
		c := weighted[i].Weight.Cmp(weighted[j].Weight)
		if c != 0 {
			return c > 0
		}
		return string(weighted[i].Validator[:]) < string(weighted[j].Validator[:])
	})
	if uint32(len(weighted)) > validatorSlots {
		weighted = weighted[:validatorSlots]
	}
	if err := tc.Write(key.EraInfoKey{Era: era}, key.EraInfoValue{EraID: era}); err != nil {
		return nil, err
	}
	log.WithField("era", era).WithField("selected", len(weighted)).Info("auction: ran auction")
	return weighted, nil
}

// EraHasValidators reports whether RunAuction has ever recorded a marker
// for era (the EraInfo key it writes).
func (a Auction) EraHasValidators(tc *trackingcopy.TrackingCopy, era uint64) (bool, error) {
	_, found, err := tc.Read(key.EraInfoKey{Era: era})
	return found, err
}
