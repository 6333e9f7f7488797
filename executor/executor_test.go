package executor

import (
	"errors"
	"math/big"
	"testing"

	"github.com/vireonet/txcore/gas"
	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/systemcontracts"
	"github.com/vireonet/txcore/trackingcopy"
	"github.com/vireonet/txcore/trie"
)

func newTC(t *testing.T) *trackingcopy.TrackingCopy {
	t.Helper()
	p := trie.NewMemStateProvider()
	reader, ok := p.Checkout(p.EmptyRoot())
	if !ok {
		t.Fatalf("expected empty root to check out")
	}
	return trackingcopy.New(reader)
}

func TestResolveContractFindsDeployedWasm(t *testing.T) {
	tc := newTC(t)
	hash := [32]byte{1}
	wasmHash := [32]byte{2}
	code := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	if err := tc.Write(key.HashKey{Hash: wasmHash}, key.ContractWasmValue{Bytecode: code}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cv := key.ContractValue{WasmHash: wasmHash, NamedKeys: map[string]key.Key{}}
	if err := tc.Write(key.HashKey{Hash: hash}, cv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gotCV, gotCode, found, err := ResolveContract(tc, hash)
	if err != nil || !found {
		t.Fatalf("expected the contract to resolve, err=%v found=%v", err, found)
	}
	if gotCV.WasmHash != wasmHash {
		t.Fatalf("expected wasm hash %x, got %x", wasmHash, gotCV.WasmHash)
	}
	if string(gotCode) != string(code) {
		t.Fatalf("expected bytecode %x, got %x", code, gotCode)
	}
}

func TestResolveContractMissingHashIsNotFound(t *testing.T) {
	tc := newTC(t)
	_, _, found, err := ResolveContract(tc, [32]byte{9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected an unknown contract hash to be not found")
	}
}

func TestResolveContractWrongValueKindErrors(t *testing.T) {
	tc := newTC(t)
	hash := [32]byte{1}
	if err := tc.Write(key.HashKey{Hash: hash}, key.ContractWasmValue{Bytecode: []byte{1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, found, err := ResolveContract(tc, hash)
	if err == nil || found {
		t.Fatalf("expected an error when a hash key does not hold a contract, found=%v err=%v", found, err)
	}
}

func TestExecStandardPaymentCreatesPurseAndTransfers(t *testing.T) {
	tc := newTC(t)
	mint := systemcontracts.Mint{}
	pos := systemcontracts.ProofOfStake{ContractAddr: [32]byte{3}}
	mainPurse, err := mint.Mint(tc, func() [32]byte { return [32]byte{4} }, big.NewInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var deployHash key.Hash
	copy(deployHash[:], []byte("deploy"))
	result := ExecStandardPayment(tc, deployHash, pos, mainPurse, big.NewInt(30), gas.NewGas(1000), 5)
	if result.Error != nil {
		t.Fatalf("unexpected execution error: %+v", result.Error)
	}

	mainBal, _ := mint.Balance(tc, mainPurse)
	if mainBal.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("expected main purse to hold 70 after payment, got %v", mainBal)
	}
	paymentPurse, ok, err := pos.GetPaymentPurse(tc)
	if err != nil || !ok {
		t.Fatalf("expected a payment purse to be created, ok=%v err=%v", ok, err)
	}
	paymentBal, _ := mint.Balance(tc, paymentPurse)
	if paymentBal.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("expected payment purse to hold 30, got %v", paymentBal)
	}
}

func TestExecStandardPaymentInsufficientFundsReverts(t *testing.T) {
	tc := newTC(t)
	mint := systemcontracts.Mint{}
	pos := systemcontracts.ProofOfStake{ContractAddr: [32]byte{3}}
	mainPurse, _ := mint.Mint(tc, func() [32]byte { return [32]byte{4} }, big.NewInt(5))

	var deployHash key.Hash
	copy(deployHash[:], []byte("deploy"))
	result := ExecStandardPayment(tc, deployHash, pos, mainPurse, big.NewInt(30), gas.NewGas(1000), 5)
	if result.Error == nil || result.Error.Kind != ExecErrRevert {
		t.Fatalf("expected ExecErrRevert for an underfunded main purse, got %+v", result.Error)
	}
}

func TestExecStandardPaymentOutOfGasFails(t *testing.T) {
	tc := newTC(t)
	mint := systemcontracts.Mint{}
	pos := systemcontracts.ProofOfStake{ContractAddr: [32]byte{3}}
	mainPurse, _ := mint.Mint(tc, func() [32]byte { return [32]byte{4} }, big.NewInt(100))

	var deployHash key.Hash
	result := ExecStandardPayment(tc, deployHash, pos, mainPurse, big.NewInt(30), gas.NewGas(1), 5)
	if result.Error == nil || result.Error.Kind != ExecErrGasLimit {
		t.Fatalf("expected ExecErrGasLimit when the host-call cost exceeds the limit, got %+v", result.Error)
	}
}

func TestExecSystemContractRunsAndMeters(t *testing.T) {
	tc := newTC(t)
	ran := false
	result := ExecSystemContract(tc, gas.NewGas(100), 10, func(tc *trackingcopy.TrackingCopy) error {
		ran = true
		return nil
	})
	if result.Error != nil {
		t.Fatalf("unexpected error: %+v", result.Error)
	}
	if !ran {
		t.Fatalf("expected the system contract function to run")
	}
	if result.GasUsed.Uint64() != 10 {
		t.Fatalf("expected 10 gas consumed, got %d", result.GasUsed.Uint64())
	}
}

func TestExecSystemContractFailureIsRevert(t *testing.T) {
	tc := newTC(t)
	boom := errors.New("boom")
	result := ExecSystemContract(tc, gas.NewGas(100), 10, func(tc *trackingcopy.TrackingCopy) error {
		return boom
	})
	if result.Error == nil || result.Error.Kind != ExecErrRevert {
		t.Fatalf("expected ExecErrRevert when the system contract fails, got %+v", result.Error)
	}
}

func TestExecSystemContractOutOfGasNeverRuns(t *testing.T) {
	tc := newTC(t)
	ran := false
	result := ExecSystemContract(tc, gas.NewGas(5), 10, func(tc *trackingcopy.TrackingCopy) error {
		ran = true
		return nil
	})
	if result.Error == nil || result.Error.Kind != ExecErrGasLimit {
		t.Fatalf("expected ExecErrGasLimit, got %+v", result.Error)
	}
	if ran {
		t.Fatalf("expected the function not to run once gas is exhausted")
	}
}

func TestExecRejectsModuleFailingPreprocessing(t *testing.T) {
	tc := newTC(t)
	var deployHash key.Hash
	result := Exec(tc, ExecRequest{
		Code:       []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00},
		EntryPoint: "call",
		DeployHash: deployHash,
		Phase:      0,
		GasLimit:   gas.NewGas(1000),
		WasmConfig: key.DefaultWasmConfig(),
	})
	if result.Error == nil || result.Error.Kind != ExecErrPreprocessing {
		t.Fatalf("expected ExecErrPreprocessing for a module that fails preprocessing, got %+v", result.Error)
	}
}
