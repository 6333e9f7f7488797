// Package executor implements spec.md §4.7's exec() entry point: it wires a
// tracking copy, a per-deploy address generator and an explicit
// call-contract frame stack into a wasmvm.HostContext, drives a
// wasmvm.Runtime through exactly one module invocation, and classifies
// whatever the sandbox returns into the ExecError taxonomy in errors.go.
// Grounded on core/virtual_machine.go's HeavyVM.Execute, which plays the
// same role for the teacher's opcode interpreter: build one host-call
// surface bound to one piece of code, run it once, translate traps into a
// typed result.
package executor

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/vireonet/txcore/gas"
	"github.com/vireonet/txcore/internal/logging"
	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/systemcontracts"
	"github.com/vireonet/txcore/trackingcopy"
	"github.com/vireonet/txcore/wasmvm"
)

var log = logging.For("executor")

// maxCallDepth bounds call_contract recursion. Nothing in spec.md names a
// figure; this mirrors the kind of fixed re-entrancy ceiling casper-node's
// own engine applies so a pathological contract graph can't blow the Go
// stack via the host-call-back-into-Invoke chain.
const maxCallDepth = 32

// ExecutionResult is what Exec, ExecStandardPayment and ExecSystemContract
// all return: the tracking copy the phase ran against (already carrying
// whatever it wrote, reachable via TrackingCopy.Effect()), any native
// transfers it produced, the gas it consumed, and a classified error if it
// failed.
type ExecutionResult struct {
	TrackingCopy *trackingcopy.TrackingCopy
	Transfers    []key.TransferValue
	GasUsed      gas.Gas
	Error        *ExecError
	ReturnValue  []byte
}

// ExecRequest bundles exec()'s arguments (spec.md §4.7 step 0): the module
// to run, the base key its named keys resolve relative to, the args it was
// invoked with, and the gas/protocol context it runs under.
type ExecRequest struct {
	Code       []byte
	EntryPoint string
	Args       map[string][]byte
	BaseKey    key.Key
	NamedKeys  map[string]key.Key
	DeployHash key.Hash
	Phase      wasmvm.Phase
	GasLimit   gas.Gas
	WasmConfig key.WasmConfig
}

// ResolveContract loads a deployed contract's metadata and wasm bytecode
// given its address — the lookup both nested call_contract dispatch and
// the engine's StoredContractByHash/Name session items perform.
func ResolveContract(tc *trackingcopy.TrackingCopy, contractHash [32]byte) (key.ContractValue, []byte, bool, error) {
	v, found, err := tc.Read(key.HashKey{Hash: contractHash})
	if err != nil || !found {
		return key.ContractValue{}, nil, false, err
	}
	cv, ok := v.(key.ContractValue)
	if !ok {
		return key.ContractValue{}, nil, false, errors.New("executor: hash key does not hold a contract")
	}
	wv, found, err := tc.Read(key.HashKey{Hash: cv.WasmHash})
	if err != nil || !found {
		return cv, nil, false, err
	}
	wasmVal, ok := wv.(key.ContractWasmValue)
	if !ok {
		return cv, nil, false, errors.New("executor: wasm hash does not hold bytecode")
	}
	return cv, wasmVal.Bytecode, true, nil
}

func cloneNamedKeys(m map[string]key.Key) map[string]key.Key {
	out := make(map[string]key.Key, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// runtimeContext implements wasmvm.HostContext over a tracking copy, a
// mutable named-keys view scoped to whichever account or contract is
// currently executing, and the per-deploy address generator. Nested
// call_contract invocations build a fresh runtimeContext scoped to the
// callee and push it through a new Runtime rather than re-entering the
// caller's own state — the "explicit frame stack" spec.md §10 calls for is
// this struct's depth counter plus the Go call stack of Invoke calls it
// rides on, never a second owner of the same tracking copy.
type runtimeContext struct {
	tc        *trackingcopy.TrackingCopy
	namedKeys map[string]key.Key
	baseKey   key.Key
	args      map[string][]byte
	addrGen   *wasmvm.AddressGenerator
	meter     *gas.Meter
	cfg       key.WasmConfig
	transfers *[]key.TransferValue
	depth     int
}

func (rc *runtimeContext) Read(k key.Key) (key.StoredValue, bool, error) { return rc.tc.Read(k) }
func (rc *runtimeContext) Write(k key.Key, v key.StoredValue) error      { return rc.tc.Write(k, v) }
func (rc *runtimeContext) Add(k key.Key, t key.Transform) error          { return rc.tc.Add(k, t) }
func (rc *runtimeContext) NewAddress() [32]byte                         { return rc.addrGen.Next() }

func (rc *runtimeContext) GetNamedArg(name string) ([]byte, bool) {
	v, ok := rc.args[name]
	return v, ok
}

func (rc *runtimeContext) GetKey(name string) (key.Key, bool) {
	k, ok := rc.namedKeys[name]
	return k, ok
}

func (rc *runtimeContext) PutKey(name string, k key.Key) {
	rc.namedKeys[name] = k
	if err := rc.persistNamedKeys(); err != nil {
		log.WithError(err).Warn("executor: failed to persist named key")
	}
}

func (rc *runtimeContext) RemoveKey(name string) {
	delete(rc.namedKeys, name)
	if err := rc.persistNamedKeys(); err != nil {
		log.WithError(err).Warn("executor: failed to persist named key removal")
	}
}

// persistNamedKeys writes the in-memory named-keys view back into the
// account or contract value at baseKey, so a put_key/remove_key call
// survives past the current invocation rather than only affecting this
// runtimeContext's local map.
func (rc *runtimeContext) persistNamedKeys() error {
	if rc.baseKey == nil {
		return nil
	}
	v, found, err := rc.tc.Read(rc.baseKey)
	if err != nil || !found {
		return err
	}
	switch t := v.(type) {
	case key.AccountValue:
		t.NamedKeys = rc.namedKeys
		return rc.tc.Write(rc.baseKey, t)
	case key.ContractValue:
		t.NamedKeys = rc.namedKeys
		return rc.tc.Write(rc.baseKey, t)
	}
	return nil
}

func (rc *runtimeContext) CreatePurse() (key.URefKey, error) {
	return systemcontracts.Mint{}.CreatePurse(rc.tc, rc.addrGen.Next)
}

func (rc *runtimeContext) TransferPurseToPurse(from, to key.URefKey, amount *big.Int) error {
	return systemcontracts.Mint{}.Transfer(rc.tc, from, to, amount)
}

func (rc *runtimeContext) GetBalance(purse key.URefKey) (*big.Int, bool) {
	return systemcontracts.Mint{}.Balance(rc.tc, purse)
}

func (rc *runtimeContext) CallContract(contractHash [32]byte, entryPoint string, args map[string][]byte) ([]byte, error) {
	if rc.depth+1 >= maxCallDepth {
		return nil, fmt.Errorf("executor: call depth exceeded (%d)", maxCallDepth)
	}
	cv, wasmBytes, found, err := ResolveContract(rc.tc, contractHash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("executor: contract %x not found", contractHash)
	}
	if err := wasmvm.Preprocess(wasmBytes, rc.cfg); err != nil {
		return nil, err
	}
	nested := &runtimeContext{
		tc:        rc.tc,
		namedKeys: cloneNamedKeys(cv.NamedKeys),
		baseKey:   key.HashKey{Hash: contractHash},
		args:      args,
		addrGen:   rc.addrGen,
		meter:     rc.meter,
		cfg:       rc.cfg,
		transfers: rc.transfers,
		depth:     rc.depth + 1,
	}
	rt := wasmvm.NewRuntime(nested, rc.meter, rc.cfg)
	return rt.Invoke(wasmBytes, entryPoint)
}

// classify maps a wasmvm-level failure onto the ExecError taxonomy exec()
// must surface (spec.md §4.7 step 3).
func classify(err error) *ExecError {
	if err == nil {
		return nil
	}
	var rev *wasmvm.RevertError
	if errors.As(err, &rev) {
		return &ExecError{Kind: ExecErrRevert, Code: rev.Code, Detail: rev.Error(), Cause: err}
	}
	switch {
	case errors.Is(err, wasmvm.ErrGasLimit):
		return &ExecError{Kind: ExecErrGasLimit, Detail: err.Error(), Cause: err}
	case errors.Is(err, wasmvm.ErrMemoryAccess):
		return &ExecError{Kind: ExecErrMemoryAccess, Detail: err.Error(), Cause: err}
	case errors.Is(err, wasmvm.ErrUnresolvedFunction):
		return &ExecError{Kind: ExecErrUnresolvedFunction, Detail: err.Error(), Cause: err}
	}
	var pre *wasmvm.PreprocessError
	if errors.As(err, &pre) {
		return &ExecError{Kind: ExecErrPreprocessing, Detail: err.Error(), Cause: err}
	}
	return &ExecError{Kind: ExecErrInterpreter, Detail: err.Error(), Cause: err}
}

// Exec runs one wasm module through exactly one entry point against tc,
// the session/payment-phase path spec.md §4.7 describes: preprocess, bind
// a fresh HostContext, invoke, classify whatever comes back.
func Exec(tc *trackingcopy.TrackingCopy, req ExecRequest) *ExecutionResult {
	meter := gas.NewMeter(req.GasLimit)
	if err := wasmvm.Preprocess(req.Code, req.WasmConfig); err != nil {
		return &ExecutionResult{TrackingCopy: tc, Error: classify(err)}
	}
	var transfers []key.TransferValue
	rc := &runtimeContext{
		tc:        tc,
		namedKeys: cloneNamedKeys(req.NamedKeys),
		baseKey:   req.BaseKey,
		args:      req.Args,
		addrGen:   wasmvm.NewAddressGenerator(req.DeployHash, req.Phase),
		meter:     meter,
		cfg:       req.WasmConfig,
		transfers: &transfers,
	}
	rt := wasmvm.NewRuntime(rc, meter, req.WasmConfig)
	ret, err := rt.Invoke(req.Code, req.EntryPoint)
	return &ExecutionResult{
		TrackingCopy: tc,
		Transfers:    transfers,
		GasUsed:      meter.Used(),
		Error:        classify(err),
		ReturnValue:  ret,
	}
}

// ExecStandardPayment synthesizes the "pay from main purse" standard
// payment contract without running any user wasm: it moves amount motes
// from mainPurse into the PoS payment purse (creating the payment purse
// the first time a deploy needs one), charging hostGas rather than the
// full wasm invocation machinery — spec.md §4.7's dedicated fast path for
// the common case of an empty payment ExecutableDeployItem.
func ExecStandardPayment(tc *trackingcopy.TrackingCopy, deployHash key.Hash, pos systemcontracts.ProofOfStake, mainPurse key.URefKey, amount *big.Int, gasLimit gas.Gas, hostGas uint64) *ExecutionResult {
	meter := gas.NewMeter(gasLimit)
	result := &ExecutionResult{TrackingCopy: tc}

	if err := meter.Consume(gas.NewGas(hostGas)); err != nil {
		result.GasUsed = meter.Used()
		result.Error = &ExecError{Kind: ExecErrGasLimit, Detail: "standard payment", Cause: err}
		return result
	}

	paymentPurse, ok, err := pos.GetPaymentPurse(tc)
	if err != nil {
		result.Error = &ExecError{Kind: ExecErrEngineInvariantViolated, Detail: "read payment purse", Cause: err}
		return result
	}
	if !ok {
		addrGen := wasmvm.NewAddressGenerator(deployHash, wasmvm.PhasePayment)
		created, cErr := systemcontracts.Mint{}.CreatePurse(tc, addrGen.Next)
		if cErr != nil {
			result.Error = &ExecError{Kind: ExecErrEngineInvariantViolated, Detail: "create payment purse", Cause: cErr}
			return result
		}
		if err := pos.SetPaymentPurse(tc, created); err != nil {
			result.Error = &ExecError{Kind: ExecErrEngineInvariantViolated, Detail: "set payment purse", Cause: err}
			return result
		}
		paymentPurse = created
	}

	if err := systemcontracts.Mint{}.Transfer(tc, mainPurse, paymentPurse, amount); err != nil {
		result.GasUsed = meter.Used()
		result.Error = &ExecError{Kind: ExecErrRevert, Detail: err.Error(), Cause: err}
		return result
	}

	result.GasUsed = meter.Used()
	return result
}

// SystemContractFn is a native system-contract entry point invoked with
// the tracking copy it should act against.
type SystemContractFn func(tc *trackingcopy.TrackingCopy) error

// ExecSystemContract meters and classifies a native system-contract call
// the same way Exec meters and classifies a wasm invocation — spec.md
// §4.7's "exec_system_contract reuses the same plumbing but targets a
// built-in symbol" (the DirectSystemContractCall fast path).
func ExecSystemContract(tc *trackingcopy.TrackingCopy, gasLimit gas.Gas, hostGas uint64, fn SystemContractFn) *ExecutionResult {
	meter := gas.NewMeter(gasLimit)
	result := &ExecutionResult{TrackingCopy: tc}

	if err := meter.Consume(gas.NewGas(hostGas)); err != nil {
		result.GasUsed = meter.Used()
		result.Error = &ExecError{Kind: ExecErrGasLimit, Detail: "system contract call", Cause: err}
		return result
	}

	if err := fn(tc); err != nil {
		result.GasUsed = meter.Used()
		result.Error = &ExecError{Kind: ExecErrRevert, Detail: err.Error(), Cause: err}
		return result
	}

	result.GasUsed = meter.Used()
	return result
}
