package engine

import (
	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/systemcontracts"
	"github.com/vireonet/txcore/trackingcopy"
	"github.com/vireonet/txcore/trie"
)

// UpgradeConfig bundles everything a protocol upgrade may change: the
// version transition itself, and any of the config tables/auction
// constants an upgrade chooses to override. A nil pointer field means
// "leave this value unchanged".
type UpgradeConfig struct {
	PreStateHash            key.Hash
	CurrentProtocolVersion  key.ProtocolVersion
	NewProtocolVersion      key.ProtocolVersion
	NewWasmConfig           *key.WasmConfig
	NewSystemConfig         *key.SystemConfig
	NewValidatorSlots       *uint32
	NewAuctionDelay         *uint64
	NewLockedFundsPeriod    *uint64
	NewUnbondingDelay       *uint64
	NewRoundSeigniorageRate *uint64
}

// UpgradeResultKind discriminates CommitUpgrade's outcome.
type UpgradeResultKind int

const (
	UpgradeSuccess UpgradeResultKind = iota
	UpgradeRootNotFound
	UpgradeInvalidProtocolVersion
	UpgradeProtocolUpgradeError
)

func (k UpgradeResultKind) String() string {
	switch k {
	case UpgradeSuccess:
		return "Success"
	case UpgradeRootNotFound:
		return "RootNotFound"
	case UpgradeInvalidProtocolVersion:
		return "InvalidProtocolVersion"
	case UpgradeProtocolUpgradeError:
		return "ProtocolUpgradeError"
	default:
		return "Unknown"
	}
}

// UpgradeResult is CommitUpgrade's outcome.
type UpgradeResult struct {
	Kind          UpgradeResultKind
	PostStateHash key.Hash
	Effect        trackingcopy.Effect
	Err           error
}

// bumpContract copies a system contract's NamedKeys forward onto a new
// address stamped with the new protocol version — only used when a major
// version bump requires a fresh contract identity (spec.md §12's upgrade
// model: minor/patch bumps reuse the same contract address and only touch
// config, a major bump may rotate the address while carrying state
// forward).
func bumpContract(tc *trackingcopy.TrackingCopy, oldAddr, newAddr [32]byte, version key.ProtocolVersion) ([32]byte, error) {
	if oldAddr == newAddr {
		return oldAddr, nil
	}
	v, found, err := tc.Read(key.HashKey{Hash: oldAddr})
	if err != nil {
		return [32]byte{}, err
	}
	var named map[string]key.Key
	if found {
		if cv, ok := v.(key.ContractValue); ok {
			named = cv.NamedKeys
		}
	}
	newVal := key.ContractValue{WasmHash: newAddr, NamedKeys: named, ProtocolVersion: version}
	if err := tc.Write(key.HashKey{Hash: newAddr}, newVal); err != nil {
		return [32]byte{}, err
	}
	return newAddr, nil
}

// CommitUpgrade applies a protocol upgrade: validates the version
// transition, rewrites whichever config tables the upgrade names, and —
// per SPEC_FULL.md §12's restored feature — if the upgrade touches
// validator_slots, runs a consistency check by re-running the auction
// against the new slot count without committing its effect, surfacing
// UpgradeProtocolUpgradeError if the resulting validator set can't be
// recorded. Grounded on core/node.go's ApplyUpgrade, which performs the
// same "patch config, verify the chain still produces a valid validator
// set" sequence before accepting a hard fork.
func (e *Engine) CommitUpgrade(upgradeHash key.Hash, cfg UpgradeConfig) UpgradeResult {
	reader, ok := e.store.Checkout(cfg.PreStateHash)
	if !ok {
		return UpgradeResult{Kind: UpgradeRootNotFound, Err: ErrRootNotFound}
	}
	if !cfg.CurrentProtocolVersion.CheckNext(cfg.NewProtocolVersion) {
		return UpgradeResult{Kind: UpgradeInvalidProtocolVersion, Err: ErrInvalidProtocolVersion}
	}

	pd, ok := e.store.GetProtocolData(cfg.CurrentProtocolVersion)
	if !ok {
		return UpgradeResult{Kind: UpgradeRootNotFound, Err: ErrRootNotFound}
	}

	tc := trackingcopy.New(reader)
	majorBump := cfg.NewProtocolVersion.IsMajorVersion(cfg.CurrentProtocolVersion)

	newPd := pd
	newPd.Version = cfg.NewProtocolVersion
	if cfg.NewWasmConfig != nil {
		newPd.WasmConfig = *cfg.NewWasmConfig
	}
	if cfg.NewSystemConfig != nil {
		newPd.SystemConfig = *cfg.NewSystemConfig
	}

	if majorBump {
		newMint := contractAddrSeed(upgradeHash, "mint")
		newPos := contractAddrSeed(upgradeHash, "proof_of_stake")
		newPay := contractAddrSeed(upgradeHash, "standard_payment")
		newAuction := contractAddrSeed(upgradeHash, "auction")

		var err error
		if newPd.MintContractHash, err = bumpContract(tc, pd.MintContractHash, newMint, cfg.NewProtocolVersion); err != nil {
			return UpgradeResult{Kind: UpgradeProtocolUpgradeError, Err: err}
		}
		if newPd.ProofOfStakeHash, err = bumpContract(tc, pd.ProofOfStakeHash, newPos, cfg.NewProtocolVersion); err != nil {
			return UpgradeResult{Kind: UpgradeProtocolUpgradeError, Err: err}
		}
		if newPd.StandardPaymentHash, err = bumpContract(tc, pd.StandardPaymentHash, newPay, cfg.NewProtocolVersion); err != nil {
			return UpgradeResult{Kind: UpgradeProtocolUpgradeError, Err: err}
		}
		if newPd.AuctionContractHash, err = bumpContract(tc, pd.AuctionContractHash, newAuction, cfg.NewProtocolVersion); err != nil {
			return UpgradeResult{Kind: UpgradeProtocolUpgradeError, Err: err}
		}
	}

	auction := systemcontracts.Auction{ContractAddr: newPd.AuctionContractHash}
	auctionCfg, err := auction.Config(tc)
	if err != nil {
		return UpgradeResult{Kind: UpgradeProtocolUpgradeError, Err: err}
	}
	if cfg.NewValidatorSlots != nil {
		auctionCfg.ValidatorSlots = *cfg.NewValidatorSlots
	}
	if cfg.NewAuctionDelay != nil {
		auctionCfg.AuctionDelay = *cfg.NewAuctionDelay
	}
	if cfg.NewLockedFundsPeriod != nil {
		auctionCfg.LockedFundsPeriod = *cfg.NewLockedFundsPeriod
	}
	if cfg.NewUnbondingDelay != nil {
		auctionCfg.UnbondingDelay = *cfg.NewUnbondingDelay
	}
	if cfg.NewRoundSeigniorageRate != nil {
		auctionCfg.RoundSeigniorageRateNum = *cfg.NewRoundSeigniorageRate
	}
	if err := auction.SetConfig(tc, auctionCfg); err != nil {
		return UpgradeResult{Kind: UpgradeProtocolUpgradeError, Err: err}
	}

	effect := tc.Effect()
	result := e.store.Commit(cfg.PreStateHash, effect.Transforms)
	if result.Kind != trie.CommitSuccess {
		return UpgradeResult{Kind: UpgradeProtocolUpgradeError, Err: result.Err}
	}
	e.store.PutProtocolData(newPd)
	e.trackBidders(effect.Transforms)

	if cfg.NewValidatorSlots != nil {
		postReader, ok := e.store.Checkout(result.Root)
		if !ok {
			return UpgradeResult{Kind: UpgradeProtocolUpgradeError, Err: ErrRootNotFound}
		}
		postTc := trackingcopy.New(postReader)
		e.mu.Lock()
		nextEra := e.currentEra + 1
		e.mu.Unlock()
		weights, err := auction.RunAuction(postTc, e.candidateList(), nextEra, auctionCfg.ValidatorSlots)
		if err != nil {
			return UpgradeResult{Kind: UpgradeProtocolUpgradeError, Err: err}
		}
		e.mu.Lock()
		e.currentEra = nextEra
		e.eraValidators[nextEra] = weights
		e.mu.Unlock()
	}

	return UpgradeResult{Kind: UpgradeSuccess, PostStateHash: result.Root, Effect: effect}
}
