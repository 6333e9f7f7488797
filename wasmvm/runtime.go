package wasmvm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/vireonet/txcore/gas"
	"github.com/vireonet/txcore/key"
)

// Sentinel runtime failures the executor (C7) classifies into its
// ExecError taxonomy (spec.md §4.7 step 3).
var (
	ErrGasLimit           = errors.New("wasmvm: gas limit exceeded")
	ErrMemoryAccess       = errors.New("wasmvm: out-of-bounds memory access")
	ErrUnresolvedFunction = errors.New("wasmvm: module import/export could not be resolved")
)

// RevertError is returned when contract code invokes the revert host
// function; the executor surfaces it as ExecError::Revert(code).
type RevertError struct{ Code uint32 }

func (e *RevertError) Error() string { return fmt.Sprintf("wasmvm: reverted with code %d", e.Code) }

// retSignal carries the bytes a module passed to "ret" back out of
// instance invocation; wasmer-go has no native concept of a typed return
// from a ()->() export, so the runtime captures it via a callback-returned
// error the same way it captures RevertError, then unwraps it in Invoke
// rather than surfacing it as a failure.
type retSignal struct{ data []byte }

func (r *retSignal) Error() string { return "wasmvm: ret" }

// HostContext is everything the host function surface needs from outside
// the sandbox: tracking-copy-backed storage, named keys, purses, and
// nested call dispatch. The executor (C7) implements this and hands it to
// a Runtime for the lifetime of exactly one exec() invocation — the
// Runtime borrows it by interface rather than owning it, so the
// host-call-back-into-executor graph spec.md §9 describes never needs
// re-entrant ownership of the tracking copy.
type HostContext interface {
	Read(k key.Key) (key.StoredValue, bool, error)
	Write(k key.Key, v key.StoredValue) error
	Add(k key.Key, t key.Transform) error
	NewAddress() [32]byte
	GetNamedArg(name string) ([]byte, bool)
	GetKey(name string) (key.Key, bool)
	PutKey(name string, k key.Key)
	RemoveKey(name string)
	CreatePurse() (key.URefKey, error)
	TransferPurseToPurse(from, to key.URefKey, amount *big.Int) error
	GetBalance(purse key.URefKey) (*big.Int, bool)
	CallContract(contractHash [32]byte, entryPoint string, args map[string][]byte) ([]byte, error)
}

// Runtime wraps exactly one wasmer instance bound to one HostContext and
// one gas.Meter, for exactly one exec() invocation (spec.md §4.7 step 1-2).
// It is never reused across deploys or phases.
type Runtime struct {
	ctx     HostContext
	meter   *gas.Meter
	cfg     key.WasmConfig
	mem     *wasmer.Memory
	allocFn wasmer.NativeFunction
}

// NewRuntime constructs a Runtime bound to ctx and meter, charging host
// calls against cfg's opcode/host-function cost table.
func NewRuntime(ctx HostContext, meter *gas.Meter, cfg key.WasmConfig) *Runtime {
	return &Runtime{ctx: ctx, meter: meter, cfg: cfg}
}

func (rt *Runtime) readMem(ptr, ln int32) ([]byte, error) {
	if rt.mem == nil {
		return nil, ErrMemoryAccess
	}
	data := rt.mem.Data()
	if ptr < 0 || ln < 0 || int64(ptr)+int64(ln) > int64(len(data)) {
		return nil, ErrMemoryAccess
	}
	out := make([]byte, ln)
	copy(out, data[ptr:ptr+ln])
	return out, nil
}

func (rt *Runtime) writeMem(ptr int32, b []byte) error {
	if rt.mem == nil {
		return ErrMemoryAccess
	}
	data := rt.mem.Data()
	if ptr < 0 || int64(ptr)+int64(len(b)) > int64(len(data)) {
		return ErrMemoryAccess
	}
	copy(data[ptr:], b)
	return nil
}

// chargeHost consumes the opcode-cost-table entry for a host function
// before it runs, exactly as spec.md §4.4 requires ("Calls to any host
// function are charged before they run").
func (rt *Runtime) chargeHost(name string) error {
	cost := rt.cfg.HostFunctionGas[name]
	if err := rt.meter.Consume(gas.NewGas(cost)); err != nil {
		return ErrGasLimit
	}
	return nil
}

func i32Type(params, results int) *wasmer.FunctionType {
	p := make([]wasmer.ValueKind, params)
	r := make([]wasmer.ValueKind, results)
	for i := range p {
		p[i] = wasmer.I32
	}
	for i := range r {
		r[i] = wasmer.I32
	}
	return wasmer.NewFunctionType(wasmer.NewValueTypes(p...), wasmer.NewValueTypes(r...))
}

// Invoke compiles and instantiates code (already validated by Preprocess)
// and calls its exported "call" function, charging the aggregate block
// cost up front (Open Question decision #4 in DESIGN.md: wasmer-go exposes
// no bytecode instrumentation pass, so per-basic-block metering is
// approximated as one charge for the whole exported call plus a charge per
// host function invocation). Returns the bytes the module passed to "ret",
// if any.
func (rt *Runtime) Invoke(code []byte, entryPoint string) ([]byte, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, err
	}
	imports := rt.registerHost(store)
	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, ErrUnresolvedFunction
	}
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, ErrMemoryAccess
	}
	rt.mem = mem
	if allocFn, err := instance.Exports.GetFunction("alloc"); err == nil {
		rt.allocFn = allocFn.Native()
	}

	if entryPoint == "" {
		entryPoint = "call"
	}
	fn, err := instance.Exports.GetFunction(entryPoint)
	if err != nil {
		return nil, ErrUnresolvedFunction
	}
	if err := rt.chargeHost("call"); err != nil {
		return nil, err
	}
	_, callErr := fn()
	if callErr == nil {
		return nil, nil
	}
	var rs *retSignal
	if errors.As(callErr, &rs) {
		return rs.data, nil
	}
	var rev *RevertError
	if errors.As(callErr, &rev) {
		return nil, rev
	}
	if errors.Is(callErr, ErrGasLimit) || errors.Is(callErr, ErrMemoryAccess) {
		return nil, callErr
	}
	return nil, fmt.Errorf("wasmvm: interpreter trap: %w", callErr)
}

// registerHost builds the wasm ImportObject binding every host function
// spec.md §4.4's table names (plus "ret", see HostFunctions in
// preprocess.go) to rt's HostContext, generalized from
// core/virtual_machine.go's registerHost (4 functions: consume_gas, read,
// write, log) to the full surface.
func (rt *Runtime) registerHost(store *wasmer.Store) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()
	fns := map[string]wasmer.IntoExtern{
		"read":                         rt.hostRead(store),
		"write":                        rt.hostWrite(store),
		"add":                          rt.hostAdd(store),
		"new_uref":                     rt.hostNewURef(store),
		"call_contract":                rt.hostCallContract(store),
		"create_purse":                 rt.hostCreatePurse(store),
		"transfer_from_purse_to_purse": rt.hostTransfer(store),
		"get_balance":                  rt.hostGetBalance(store),
		"revert":                       rt.hostRevert(store),
		"get_named_arg":                rt.hostGetNamedArg(store),
		"put_key":                      rt.hostPutKey(store),
		"get_key":                      rt.hostGetKey(store),
		"remove_key":                   rt.hostRemoveKey(store),
		"gas":                          rt.hostGas(store),
		"ret":                          rt.hostRet(store),
	}
	imports.Register("env", fns)
	return imports
}

func (rt *Runtime) hostRead(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(3, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("read"); err != nil {
			return nil, err
		}
		kPtr, kLen, infoOut := args[0].I32(), args[1].I32(), args[2].I32()
		kb, err := rt.readMem(kPtr, kLen)
		if err != nil {
			return nil, err
		}
		k, err := key.ParseKey(kb)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		v, found, err := rt.ctx.Read(k)
		if err != nil {
			return nil, err
		}
		if !found {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		payload := v.ToBytes()
		if err := rt.chargeHost("read_byte"); err != nil {
			return nil, err
		}
		allocFn, err := rt.allocFunc()
		if err != nil {
			return nil, err
		}
		ptrVal, err := allocFn(int32(len(payload)))
		if err != nil {
			return nil, fmt.Errorf("wasmvm: alloc failed: %w", err)
		}
		valPtr, ok := ptrVal.(int32)
		if !ok {
			return nil, ErrMemoryAccess
		}
		if err := rt.writeMem(valPtr, payload); err != nil {
			return nil, err
		}
		info := make([]byte, 8)
		putI32LE(info[0:4], valPtr)
		putI32LE(info[4:8], int32(len(payload)))
		if err := rt.writeMem(infoOut, info); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostWrite(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(4, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("write"); err != nil {
			return nil, err
		}
		kPtr, kLen, vPtr, vLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		kb, err := rt.readMem(kPtr, kLen)
		if err != nil {
			return nil, err
		}
		vb, err := rt.readMem(vPtr, vLen)
		if err != nil {
			return nil, err
		}
		k, err := key.ParseKey(kb)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := rt.chargeHost("write_byte"); err != nil {
			return nil, err
		}
		if err := rt.ctx.Write(k, key.CLValue{CLType: "Any", Bytes: vb}); err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostAdd(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(4, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("add"); err != nil {
			return nil, err
		}
		kPtr, kLen, vPtr, vLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		kb, err := rt.readMem(kPtr, kLen)
		if err != nil {
			return nil, err
		}
		vb, err := rt.readMem(vPtr, vLen)
		if err != nil {
			return nil, err
		}
		k, err := key.ParseKey(kb)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		delta := new(big.Int).SetBytes(vb)
		if err := rt.ctx.Add(k, key.AddNumeric(delta, len(vb)*8)); err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostNewURef(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(4, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("new_uref"); err != nil {
			return nil, err
		}
		_, vPtr, vLen, outPtr := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		vb, err := rt.readMem(vPtr, vLen)
		if err != nil {
			return nil, err
		}
		addr := rt.ctx.NewAddress()
		uref := key.URefKey{Addr: addr, Rights: key.RightsReadAddWrite}
		if err := rt.ctx.Write(uref, key.CLValue{CLType: "Any", Bytes: vb}); err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := rt.writeMem(outPtr, uref.Bytes()); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostCallContract(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(7, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("call_contract"); err != nil {
			return nil, err
		}
		hPtr, hLen := args[0].I32(), args[1].I32()
		epPtr, epLen := args[2].I32(), args[3].I32()
		argPtr, argLen := args[4].I32(), args[5].I32()
		outInfo := args[6].I32()

		hb, err := rt.readMem(hPtr, hLen)
		if err != nil {
			return nil, err
		}
		if len(hb) != 32 {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		var contractHash [32]byte
		copy(contractHash[:], hb)
		epBytes, err := rt.readMem(epPtr, epLen)
		if err != nil {
			return nil, err
		}
		argBytes, err := rt.readMem(argPtr, argLen)
		if err != nil {
			return nil, err
		}
		result, err := rt.ctx.CallContract(contractHash, string(epBytes), map[string][]byte{"args": argBytes})
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		allocFn, err := rt.allocFunc()
		if err != nil {
			return nil, err
		}
		ptrVal, err := allocFn(int32(len(result)))
		if err != nil {
			return nil, fmt.Errorf("wasmvm: alloc failed: %w", err)
		}
		resPtr, ok := ptrVal.(int32)
		if !ok {
			return nil, ErrMemoryAccess
		}
		if err := rt.writeMem(resPtr, result); err != nil {
			return nil, err
		}
		info := make([]byte, 8)
		putI32LE(info[0:4], resPtr)
		putI32LE(info[4:8], int32(len(result)))
		if err := rt.writeMem(outInfo, info); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostCreatePurse(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(1, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("create_purse"); err != nil {
			return nil, err
		}
		outPtr := args[0].I32()
		purse, err := rt.ctx.CreatePurse()
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := rt.writeMem(outPtr, purse.Bytes()); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostTransfer(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(5, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("transfer_from_purse_to_purse"); err != nil {
			return nil, err
		}
		fromPtr, fromLen := args[0].I32(), args[1].I32()
		toPtr, toLen := args[2].I32(), args[3].I32()
		amountPtr := args[4].I32()
		fb, err := rt.readMem(fromPtr, fromLen)
		if err != nil {
			return nil, err
		}
		tb, err := rt.readMem(toPtr, toLen)
		if err != nil {
			return nil, err
		}
		fromKey, err := key.ParseKey(fb)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		toKey, err := key.ParseKey(tb)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		fromURef, ok1 := fromKey.(key.URefKey)
		toURef, ok2 := toKey.(key.URefKey)
		if !ok1 || !ok2 {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		amtBytes, err := rt.readMem(amountPtr, 64)
		if err != nil {
			return nil, err
		}
		amount := new(big.Int).SetBytes(amtBytes)
		if err := rt.ctx.TransferPurseToPurse(fromURef, toURef, amount); err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostGetBalance(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(3, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("get_balance"); err != nil {
			return nil, err
		}
		pursePtr, purseLen, outPtr := args[0].I32(), args[1].I32(), args[2].I32()
		pb, err := rt.readMem(pursePtr, purseLen)
		if err != nil {
			return nil, err
		}
		purseKey, err := key.ParseKey(pb)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		purse, ok := purseKey.(key.URefKey)
		if !ok {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		bal, found := rt.ctx.GetBalance(purse)
		if !found {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		balBytes := make([]byte, 64)
		src := bal.Bytes()
		copy(balBytes[64-len(src):], src)
		if err := rt.writeMem(outPtr, balBytes); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostRevert(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(1, 0), func(args []wasmer.Value) ([]wasmer.Value, error) {
		code := uint32(args[0].I32())
		return nil, &RevertError{Code: code}
	})
}

func (rt *Runtime) hostGetNamedArg(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(3, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("get_named_arg"); err != nil {
			return nil, err
		}
		namePtr, nameLen, outInfo := args[0].I32(), args[1].I32(), args[2].I32()
		nb, err := rt.readMem(namePtr, nameLen)
		if err != nil {
			return nil, err
		}
		v, found := rt.ctx.GetNamedArg(string(nb))
		if !found {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		allocFn, err := rt.allocFunc()
		if err != nil {
			return nil, err
		}
		ptrVal, err := allocFn(int32(len(v)))
		if err != nil {
			return nil, fmt.Errorf("wasmvm: alloc failed: %w", err)
		}
		valPtr, ok := ptrVal.(int32)
		if !ok {
			return nil, ErrMemoryAccess
		}
		if err := rt.writeMem(valPtr, v); err != nil {
			return nil, err
		}
		info := make([]byte, 8)
		putI32LE(info[0:4], valPtr)
		putI32LE(info[4:8], int32(len(v)))
		if err := rt.writeMem(outInfo, info); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostPutKey(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(4, 0), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("put_key"); err != nil {
			return nil, err
		}
		namePtr, nameLen, kPtr, kLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		nb, err := rt.readMem(namePtr, nameLen)
		if err != nil {
			return nil, err
		}
		kb, err := rt.readMem(kPtr, kLen)
		if err != nil {
			return nil, err
		}
		k, err := key.ParseKey(kb)
		if err != nil {
			return nil, nil
		}
		rt.ctx.PutKey(string(nb), k)
		return nil, nil
	})
}

func (rt *Runtime) hostGetKey(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(3, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("get_key"); err != nil {
			return nil, err
		}
		namePtr, nameLen, outPtr := args[0].I32(), args[1].I32(), args[2].I32()
		nb, err := rt.readMem(namePtr, nameLen)
		if err != nil {
			return nil, err
		}
		k, found := rt.ctx.GetKey(string(nb))
		if !found {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := rt.writeMem(outPtr, k.Bytes()); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})
}

func (rt *Runtime) hostRemoveKey(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(2, 0), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := rt.chargeHost("remove_key"); err != nil {
			return nil, err
		}
		namePtr, nameLen := args[0].I32(), args[1].I32()
		nb, err := rt.readMem(namePtr, nameLen)
		if err != nil {
			return nil, err
		}
		rt.ctx.RemoveKey(string(nb))
		return nil, nil
	})
}

func (rt *Runtime) hostGas(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(), wasmer.NewValueTypes(wasmer.I64)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			return []wasmer.Value{wasmer.NewI64(int64(rt.meter.Remaining().Uint64()))}, nil
		},
	)
}

func (rt *Runtime) hostRet(store *wasmer.Store) *wasmer.Function {
	return wasmer.NewFunction(store, i32Type(2, 0), func(args []wasmer.Value) ([]wasmer.Value, error) {
		ptr, ln := args[0].I32(), args[1].I32()
		data, err := rt.readMem(ptr, ln)
		if err != nil {
			return nil, err
		}
		return nil, &retSignal{data: data}
	})
}

// allocFunc resolves the module's exported "alloc(size) -> ptr" function,
// the only way a host function can hand memory back to the guest it does
// not already own (spec.md §4.4: "writes out {value_ptr, size} via
// host-provided alloc callback").
func (rt *Runtime) allocFunc() (wasmer.NativeFunction, error) {
	// instance is reachable only via the memory's owning instance in
	// wasmer-go 1.x's API surface, so Invoke stashes it on first use.
	if rt.allocFn == nil {
		return nil, fmt.Errorf("wasmvm: module does not export alloc")
	}
	return rt.allocFn, nil
}

func putI32LE(dst []byte, v int32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

