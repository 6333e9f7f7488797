package engine

import (
	"math/big"
	"testing"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/systemcontracts"
	"github.com/vireonet/txcore/trackingcopy"
	"github.com/vireonet/txcore/trie"
)

var testVersion = key.ProtocolVersion{Major: 1, Minor: 0, Patch: 0}

func testSystemConfig() key.SystemConfig {
	return key.SystemConfig{
		WasmlessTransferCost: 10,
		ConvRate:             1,
		MaxPayment:           1000,
	}
}

func newGenesisEngine(t *testing.T, accounts []GenesisAccount) (*Engine, key.Hash) {
	t.Helper()
	store := trie.NewMemStateProvider()
	e, err := NewEngine(store)
	if err != nil {
		t.Fatalf("unexpected error building engine: %v", err)
	}
	var genesisHash key.Hash
	copy(genesisHash[:], []byte("genesis-fixture"))

	result := e.CommitGenesis(genesisHash, testVersion, GenesisConfig{
		Accounts:     accounts,
		WasmConfig:   key.DefaultWasmConfig(),
		SystemConfig: testSystemConfig(),
		AuctionConfig: systemcontracts.AuctionConfig{
			ValidatorSlots:          5,
			AuctionDelay:            1,
			LockedFundsPeriod:       1,
			UnbondingDelay:          1,
			RoundSeigniorageRateNum: 1,
		},
	})
	if result.Kind != GenesisSuccess {
		t.Fatalf("expected genesis to succeed, got kind=%v err=%v", result.Kind, result.Err)
	}
	return e, result.PostStateHash
}

func account(pubKey byte, balance int64, weight uint8) GenesisAccount {
	return GenesisAccount{
		PublicKey:  [32]byte{pubKey},
		Balance:    big.NewInt(balance),
		Weight:     weight,
		Thresholds: key.ActionThresholds{Deployment: 1, KeyManagement: 1},
	}
}

// bondValidator places an actual bonding stake for validator (genesis only
// records a zero-stake bid per weighted account, and RunAuction skips bids
// whose total stake is zero), returning the new root.
func bondValidator(t *testing.T, e *Engine, root key.Hash, validator [32]byte, amount int64) key.Hash {
	t.Helper()
	pd, ok := e.store.GetProtocolData(testVersion)
	if !ok {
		t.Fatalf("expected protocol data for %v to be recorded", testVersion)
	}
	reader, ok := e.store.Checkout(root)
	if !ok {
		t.Fatalf("expected root %x to check out", root)
	}
	tc := trackingcopy.New(reader)
	accVal, found, err := tc.Read(key.AccountKey{Addr: validator})
	if err != nil || !found {
		t.Fatalf("expected validator account to exist, found=%v err=%v", found, err)
	}
	auction := systemcontracts.Auction{ContractAddr: pd.AuctionContractHash}
	if err := auction.AddBid(tc, validator, accVal.(key.AccountValue).MainPurse, big.NewInt(amount), 0); err != nil {
		t.Fatalf("unexpected error bonding validator: %v", err)
	}
	effect := tc.Effect()
	result := e.store.Commit(root, effect.Transforms)
	if result.Kind != trie.CommitSuccess {
		t.Fatalf("expected bonding commit to succeed, got %v", result.Err)
	}
	e.trackBidders(effect.Transforms)
	return result.Root
}

func TestCommitGenesisThenQueryAccount(t *testing.T) {
	e, root := newGenesisEngine(t, []GenesisAccount{account(1, 500, 1)})

	result, err := e.RunQuery(root, key.AccountKey{Addr: [32]byte{1}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acct, ok := result.Value.(key.AccountValue)
	if !ok {
		t.Fatalf("expected an account value, got %T", result.Value)
	}
	balance, found, err := e.GetPurseBalance(root, acct.MainPurse)
	if err != nil || !found {
		t.Fatalf("expected the main purse to resolve, found=%v err=%v", found, err)
	}
	if balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected genesis balance 500, got %v", balance)
	}
}

func TestCommitGenesisRejectsEmptyAccountList(t *testing.T) {
	store := trie.NewMemStateProvider()
	e, err := NewEngine(store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result := e.CommitGenesis(key.Hash{}, testVersion, GenesisConfig{})
	if result.Kind != GenesisMissingChainspecAccount {
		t.Fatalf("expected GenesisMissingChainspecAccount, got %v", result.Kind)
	}
}

func TestRunExecuteNativeTransferMovesFunds(t *testing.T) {
	proposer := account(2, 0, 0)
	e, root := newGenesisEngine(t, []GenesisAccount{account(1, 500, 1), proposer})

	targetAcct := [32]byte{9}
	amount := big.NewInt(100)
	var deployHash key.Hash
	copy(deployHash[:], []byte("deploy-1"))

	req := ExecuteRequest{
		ParentStateHash: root,
		ProtocolVersion: testVersion,
		Proposer:        [32]byte{2},
		Deploys: []DeployItem{
			{
				Address:           [32]byte{1},
				AuthorizationKeys: [][32]byte{{1}},
				DeployHash:        deployHash,
				Session: ExecutableDeployItem{
					Kind: DeployItemTransfer,
					Transfer: &TransferArgs{
						TargetAccount: &targetAcct,
						Amount:        amount,
					},
				},
			},
		},
	}

	results, err := e.RunExecute(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results.Results) != 1 {
		t.Fatalf("expected one deploy result, got %d", len(results.Results))
	}
	res := results.Results[0]
	if res.Kind != DeploySuccess {
		t.Fatalf("expected the transfer to succeed, got kind=%v err=%v", res.Kind, res.Error)
	}

	queried, err := e.RunQuery(res.PostStateHash, key.AccountKey{Addr: [32]byte{1}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sourceAcct := queried.Value.(key.AccountValue)
	sourceBal, _, err := e.GetPurseBalance(res.PostStateHash, sourceAcct.MainPurse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 500 - 100 transferred - 10 wasmless transfer fee = 390
	if sourceBal.Cmp(big.NewInt(390)) != 0 {
		t.Fatalf("expected source balance 390 after transfer and fee, got %v", sourceBal)
	}

	targetQueried, err := e.RunQuery(res.PostStateHash, key.AccountKey{Addr: targetAcct}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	targetAccount := targetQueried.Value.(key.AccountValue)
	targetBal, _, err := e.GetPurseBalance(res.PostStateHash, targetAccount.MainPurse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if targetBal.Cmp(amount) != 0 {
		t.Fatalf("expected target balance 100, got %v", targetBal)
	}
}

func TestRunExecuteRejectsUnauthorizedDeployer(t *testing.T) {
	e, root := newGenesisEngine(t, []GenesisAccount{account(1, 500, 1), account(2, 0, 0)})

	targetAcct := [32]byte{9}
	var deployHash key.Hash
	copy(deployHash[:], []byte("deploy-2"))

	req := ExecuteRequest{
		ParentStateHash: root,
		ProtocolVersion: testVersion,
		Proposer:        [32]byte{2},
		Deploys: []DeployItem{
			{
				Address:           [32]byte{1},
				AuthorizationKeys: [][32]byte{{99}}, // not an associated key
				DeployHash:        deployHash,
				Session: ExecutableDeployItem{
					Kind: DeployItemTransfer,
					Transfer: &TransferArgs{
						TargetAccount: &targetAcct,
						Amount:        big.NewInt(10),
					},
				},
			},
		},
	}

	results, err := e.RunExecute(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := results.Results[0]
	if res.Kind != DeployFailure || res.Error != ErrAuthorization {
		t.Fatalf("expected ErrAuthorization failure, got kind=%v err=%v", res.Kind, res.Error)
	}
	if res.PostStateHash != root {
		t.Fatalf("expected an unauthorized deploy to leave the root unchanged")
	}
}

func TestRunExecuteUnknownProtocolVersionFails(t *testing.T) {
	e, root := newGenesisEngine(t, []GenesisAccount{account(1, 500, 1)})
	_, err := e.RunExecute(ExecuteRequest{
		ParentStateHash: root,
		ProtocolVersion: key.ProtocolVersion{Major: 9, Minor: 9, Patch: 9},
		Proposer:        [32]byte{1},
	})
	if err != ErrInvalidProtocolVersion {
		t.Fatalf("expected ErrInvalidProtocolVersion, got %v", err)
	}
}

func TestCommitStepDistributesRewardsAndRunsAuction(t *testing.T) {
	e, root := newGenesisEngine(t, []GenesisAccount{account(1, 500, 10), account(2, 300, 20)})
	root = bondValidator(t, e, root, [32]byte{1}, 100)
	root = bondValidator(t, e, root, [32]byte{2}, 50)

	result := e.CommitStep(StepRequest{
		PreStateHash:    root,
		ProtocolVersion: testVersion,
		RewardFactors:   map[[32]byte]uint64{{1}: 100, {2}: 50},
		RunAuction:      true,
		NextEraID:       1,
	})
	if result.Kind != StepSuccess {
		t.Fatalf("expected step to succeed, got kind=%v err=%v", result.Kind, result.Err)
	}
	if len(result.NextEraValidators) != 2 {
		t.Fatalf("expected both genesis validators selected, got %+v", result.NextEraValidators)
	}

	weights, ok := e.GetEraValidators(1)
	if !ok || len(weights) != 2 {
		t.Fatalf("expected era 1 validators recorded, ok=%v weights=%+v", ok, weights)
	}
}

func TestCommitStepUnknownProtocolVersionFails(t *testing.T) {
	e, root := newGenesisEngine(t, []GenesisAccount{account(1, 500, 1)})
	result := e.CommitStep(StepRequest{
		PreStateHash:    root,
		ProtocolVersion: key.ProtocolVersion{Major: 2, Minor: 0, Patch: 0},
		RewardFactors:   map[[32]byte]uint64{{1}: 100},
		NextEraID:       1,
	})
	if result.Kind != StepInvalidProtocolVersion {
		t.Fatalf("expected StepInvalidProtocolVersion for an unrecorded version, got %v", result.Kind)
	}
}

func TestCommitUpgradeBumpsValidatorSlotsAndRunsAuction(t *testing.T) {
	e, root := newGenesisEngine(t, []GenesisAccount{account(1, 500, 10), account(2, 300, 20)})
	root = bondValidator(t, e, root, [32]byte{1}, 100)
	root = bondValidator(t, e, root, [32]byte{2}, 50)

	newSlots := uint32(1)
	var upgradeHash key.Hash
	copy(upgradeHash[:], []byte("upgrade-fixture"))

	result := e.CommitUpgrade(upgradeHash, UpgradeConfig{
		PreStateHash:           root,
		CurrentProtocolVersion: testVersion,
		NewProtocolVersion:     key.ProtocolVersion{Major: 1, Minor: 1, Patch: 0},
		NewValidatorSlots:      &newSlots,
	})
	if result.Kind != UpgradeSuccess {
		t.Fatalf("expected the upgrade to succeed, got kind=%v err=%v", result.Kind, result.Err)
	}

	weights, ok := e.GetEraValidators(1)
	if !ok {
		t.Fatalf("expected the upgrade to record era 1's validator set")
	}
	if len(weights) != 1 {
		t.Fatalf("expected the new validator_slots cap (1) to be honored, got %d validators", len(weights))
	}
}

func TestCommitUpgradeRejectsIllegalVersionTransition(t *testing.T) {
	e, root := newGenesisEngine(t, []GenesisAccount{account(1, 500, 1)})
	result := e.CommitUpgrade(key.Hash{}, UpgradeConfig{
		PreStateHash:           root,
		CurrentProtocolVersion: testVersion,
		NewProtocolVersion:     key.ProtocolVersion{Major: 0, Minor: 9, Patch: 0},
	})
	if result.Kind != UpgradeInvalidProtocolVersion {
		t.Fatalf("expected UpgradeInvalidProtocolVersion, got %v", result.Kind)
	}
}
