package engine

import (
	"math/big"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/systemcontracts"
	"github.com/vireonet/txcore/trackingcopy"
	"github.com/vireonet/txcore/trie"
	"github.com/vireonet/txcore/wasmvm"
)

// GenesisAccount is one chainspec-configured account: its starting
// balance, the weight of its own associated key (a nonzero weight also
// places a zero-stake validator bid; zero for a pure holder with no bid),
// and the thresholds its account record starts with.
type GenesisAccount struct {
	PublicKey  [32]byte
	Balance    *big.Int
	Weight     uint8
	Thresholds key.ActionThresholds
}

// GenesisConfig bundles everything CommitGenesis needs to build the first
// global state: every chainspec account, and the wasm/system/auction
// configuration to install alongside the four system contracts.
type GenesisConfig struct {
	Accounts      []GenesisAccount
	WasmConfig    key.WasmConfig
	SystemConfig  key.SystemConfig
	AuctionConfig systemcontracts.AuctionConfig
}

// GenesisResultKind discriminates CommitGenesis's outcome.
type GenesisResultKind int

const (
	GenesisSuccess GenesisResultKind = iota
	GenesisPurseCreationFailed
	GenesisMissingChainspecAccount
	GenesisCommitError
)

func (k GenesisResultKind) String() string {
	switch k {
	case GenesisSuccess:
		return "Success"
	case GenesisPurseCreationFailed:
		return "PurseCreationFailed"
	case GenesisMissingChainspecAccount:
		return "MissingChainspecAccount"
	case GenesisCommitError:
		return "CommitError"
	default:
		return "Unknown"
	}
}

// GenesisResult is CommitGenesis's outcome: the new root hash and the
// effect that produced it on success, or a classified failure.
type GenesisResult struct {
	Kind          GenesisResultKind
	PostStateHash key.Hash
	Effect        trackingcopy.Effect
	Err           error
}

// contractAddrSeed derives a deterministic system-contract address from
// genesisHash and a discriminating label, so mint/pos/standard-payment/
// auction each get a distinct, reproducible Key::Hash address without
// needing their own AddressGenerator phase.
func contractAddrSeed(genesisHash key.Hash, label string) [32]byte {
	return key.Blake2b256(append(genesisHash.Bytes(), []byte(label)...))
}

// CommitGenesis builds the very first global state: installs the four
// system contracts, mints every chainspec account's starting balance into
// a fresh purse, and configures the auction and proof-of-stake rewards
// purse — spec.md §10's genesis process, grounded on core/node.go's
// Bootstrap, which performs the analogous one-time "write every genesis
// account's balance, install the built-in contracts" pass before the
// chain's first block.
func (e *Engine) CommitGenesis(genesisHash key.Hash, proto key.ProtocolVersion, cfg GenesisConfig) GenesisResult {
	if len(cfg.Accounts) == 0 {
		return GenesisResult{Kind: GenesisMissingChainspecAccount, Err: ErrMissingChainspecAccount}
	}

	root := e.store.EmptyRoot()
	reader, ok := e.store.Checkout(root)
	if !ok {
		return GenesisResult{Kind: GenesisCommitError, Err: ErrRootNotFound}
	}
	tc := trackingcopy.New(reader)

	mintAddr := contractAddrSeed(genesisHash, "mint")
	posAddr := contractAddrSeed(genesisHash, "proof_of_stake")
	payAddr := contractAddrSeed(genesisHash, "standard_payment")
	auctionAddr := contractAddrSeed(genesisHash, "auction")

	for _, addr := range [][32]byte{mintAddr, posAddr, payAddr, auctionAddr} {
		if err := tc.Write(key.HashKey{Hash: addr}, key.ContractValue{WasmHash: addr, ProtocolVersion: proto}); err != nil {
			return GenesisResult{Kind: GenesisCommitError, Err: err}
		}
	}

	mint := systemcontracts.Mint{}
	pos := systemcontracts.ProofOfStake{ContractAddr: posAddr}
	auction := systemcontracts.Auction{ContractAddr: auctionAddr}

	addrGen := wasmvm.NewAddressGenerator(genesisHash, wasmvm.PhaseSession)

	for _, acc := range cfg.Accounts {
		purse, err := mint.Mint(tc, addrGen.Next, acc.Balance)
		if err != nil {
			return GenesisResult{Kind: GenesisPurseCreationFailed, Err: err}
		}
		accountVal := key.AccountValue{
			AccountHash: acc.PublicKey,
			NamedKeys:   map[string]key.Key{},
			MainPurse:   purse,
			AssociatedKeys: map[[32]byte]uint8{
				acc.PublicKey: acc.Weight,
			},
			ActionThreshold: acc.Thresholds,
		}
		if err := tc.Write(key.AccountKey{Addr: acc.PublicKey}, accountVal); err != nil {
			return GenesisResult{Kind: GenesisCommitError, Err: err}
		}
		if acc.Weight > 0 {
			if err := auction.AddBid(tc, acc.PublicKey, purse, big.NewInt(0), 0); err != nil {
				return GenesisResult{Kind: GenesisCommitError, Err: err}
			}
		}
	}

	rewardsPurse, err := mint.CreatePurse(tc, addrGen.Next)
	if err != nil {
		return GenesisResult{Kind: GenesisPurseCreationFailed, Err: err}
	}
	if err := pos.SetRewardsPurse(tc, rewardsPurse); err != nil {
		return GenesisResult{Kind: GenesisCommitError, Err: err}
	}
	if err := auction.SetConfig(tc, cfg.AuctionConfig); err != nil {
		return GenesisResult{Kind: GenesisCommitError, Err: err}
	}

	pd := key.ProtocolData{
		Version:             proto,
		WasmConfig:          cfg.WasmConfig,
		SystemConfig:        cfg.SystemConfig,
		MintContractHash:    mintAddr,
		ProofOfStakeHash:    posAddr,
		StandardPaymentHash: payAddr,
		AuctionContractHash: auctionAddr,
	}

	effect := tc.Effect()
	result := e.store.Commit(root, effect.Transforms)
	if result.Kind != trie.CommitSuccess {
		return GenesisResult{Kind: GenesisCommitError, Err: result.Err}
	}
	e.store.PutProtocolData(pd)
	e.trackBidders(effect.Transforms)

	return GenesisResult{Kind: GenesisSuccess, PostStateHash: result.Root, Effect: effect}
}
