package engine

import (
	"errors"
	"math/big"
	"sort"

	"github.com/vireonet/txcore/executor"
	"github.com/vireonet/txcore/gas"
	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/systemcontracts"
	"github.com/vireonet/txcore/trackingcopy"
	"github.com/vireonet/txcore/trie"
	"github.com/vireonet/txcore/wasmvm"
)

// ExecutableDeployItemKind discriminates spec.md §6's ExecutableDeployItem
// tag byte. A struct-with-discriminant models the Rust sum type the same
// way key.Key's concrete structs model Key's tagged sum — chosen here
// instead of an interface per variant because every variant shares almost
// every field (EntryPoint, Args) and only the addressing mode differs.
type ExecutableDeployItemKind uint8

const (
	DeployItemModuleBytes ExecutableDeployItemKind = iota
	DeployItemStoredContractByHash
	DeployItemStoredContractByName
	DeployItemStoredVersionedContractByHash
	DeployItemStoredVersionedContractByName
	DeployItemTransfer
)

// TransferArgs is the native transfer path's typed argument bundle (spec.md
// §4.8.1 step 3). Source defaults to the deploying account's main purse
// when nil; exactly one of TargetAccount/TargetPurse must be set.
type TransferArgs struct {
	Source       *key.URefKey
	TargetAccount *[32]byte
	TargetPurse   *key.URefKey
	Amount        *big.Int
	ID            *uint64
}

// ExecutableDeployItem is one of session or payment code: either raw wasm
// module bytes, a reference to an already-deployed contract (by hash or
// name, versioned or not), or — for Session only — a native transfer.
type ExecutableDeployItem struct {
	Kind ExecutableDeployItemKind

	ModuleBytes []byte

	ContractHash [32]byte
	ContractName string

	PackageHash [32]byte
	PackageName string
	Version     *uint32

	EntryPoint string
	Args       map[string][]byte

	Transfer *TransferArgs // set iff Kind == DeployItemTransfer
}

// DeployItem is one transaction within a block (spec.md §6's DeployItem).
type DeployItem struct {
	Address           [32]byte
	Session           ExecutableDeployItem
	Payment           ExecutableDeployItem
	GasPrice          uint64
	AuthorizationKeys [][32]byte
	DeployHash        key.Hash
}

// ExecuteRequest bundles one block's worth of deploys (spec.md §6).
type ExecuteRequest struct {
	ParentStateHash key.Hash
	BlockTime       uint64
	ProtocolVersion key.ProtocolVersion
	Proposer        [32]byte
	Deploys         []DeployItem
}

// DeployResultKind discriminates one deploy's outcome.
type DeployResultKind int

const (
	DeploySuccess DeployResultKind = iota
	DeployFailure
)

func (k DeployResultKind) String() string {
	if k == DeploySuccess {
		return "Success"
	}
	return "Failure"
}

// DeployResult is one deploy's outcome within an ExecuteResults batch: the
// new post-state root its commit produced (equal to the pre-state root on
// a precondition failure, since no effect is ever committed for one),
// its effect, transfers, cost and — on failure — the classified error.
type DeployResult struct {
	Kind          DeployResultKind
	PostStateHash key.Hash
	Effect        trackingcopy.Effect
	Transfers     []key.TransferValue
	Cost          gas.Motes
	Error         error
}

// ExecuteResults preserves input order, one DeployResult per req.Deploys
// entry (spec.md §4.8 "Preserves input order in results").
type ExecuteResults struct {
	Results []DeployResult
}

// precondition builds a DeployResult for a failure that never touched
// state: no effect, zero cost, the pre-state root unchanged.
func precondition(root key.Hash, err error) DeployResult {
	return DeployResult{Kind: DeployFailure, PostStateHash: root, Error: err}
}

// RunExecute runs every deploy in req against successive post-states,
// strictly sequentially: each deploy sees the post-state of the previous
// deploy's commit (spec.md §4.8's ordering rule). Root-level errors (a
// missing pre-state or unrecorded protocol data) abort the whole batch;
// per-deploy failures never do.
func (e *Engine) RunExecute(req ExecuteRequest) (ExecuteResults, error) {
	if _, ok := e.store.Checkout(req.ParentStateHash); !ok {
		return ExecuteResults{}, ErrRootNotFound
	}
	pd, ok := e.store.GetProtocolData(req.ProtocolVersion)
	if !ok {
		return ExecuteResults{}, ErrInvalidProtocolVersion
	}

	handles, err := e.handlesForVersion(req.ProtocolVersion)
	if err != nil {
		return ExecuteResults{}, err
	}

	results := make([]DeployResult, 0, len(req.Deploys))
	currentRoot := req.ParentStateHash
	for _, d := range req.Deploys {
		reader, ok := e.store.Checkout(currentRoot)
		if !ok {
			results = append(results, precondition(currentRoot, ErrRootNotFound))
			continue
		}
		var res DeployResult
		if d.Session.Kind == DeployItemTransfer {
			res = e.runNativeTransfer(reader, pd, handles, d, req.Proposer)
		} else {
			res = e.runStandardDeploy(reader, pd, handles, d, req.Proposer)
		}
		currentRoot = res.PostStateHash
		results = append(results, res)
	}
	return ExecuteResults{Results: results}, nil
}

// commitEffect folds effect.Transforms onto root, records any bid keys it
// touched for later RunAuction calls, and returns the DeployResult the
// caller should surface. kind/cost/transfers/err describe the outcome;
// on a commit-layer failure the result degrades to a precondition failure
// against the unchanged root, matching spec.md §7's "Engine bug... no
// partial state ever written".
func (e *Engine) commitEffect(root key.Hash, effect trackingcopy.Effect, kind DeployResultKind, transfers []key.TransferValue, cost gas.Motes, deployErr error) DeployResult {
	result := e.store.Commit(root, effect.Transforms)
	if result.Kind != trie.CommitSuccess {
		return precondition(root, result.Err)
	}
	e.trackBidders(effect.Transforms)
	return DeployResult{
		Kind:          kind,
		PostStateHash: result.Root,
		Effect:        effect,
		Transfers:     transfers,
		Cost:          cost,
		Error:         deployErr,
	}
}

// runNativeTransfer implements spec.md §4.8.1's wasmless transfer path.
func (e *Engine) runNativeTransfer(reader trie.Reader, pd key.ProtocolData, handles *systemcontracts.Handles, d DeployItem, proposer [32]byte) DeployResult {
	root := reader.Root()
	tc := trackingcopy.New(reader)

	accVal, found, err := tc.Read(key.AccountKey{Addr: d.Address})
	if err != nil || !found {
		return precondition(root, ErrAuthorization)
	}
	account := key.FromValue(accVal.(key.AccountValue))
	if !account.CanAuthorizeDeployment(d.AuthorizationKeys) {
		return precondition(root, ErrAuthorization)
	}

	ta := d.Session.Transfer
	if ta == nil || ta.Amount == nil {
		return precondition(root, errors.New("engine: malformed native transfer args"))
	}
	source := account.MainPurse
	if ta.Source != nil {
		source = *ta.Source
	}

	mint := handles.Mint
	addrGen := wasmvm.NewAddressGenerator(d.DeployHash, wasmvm.PhaseSession)

	var targetPurse key.URefKey
	switch {
	case ta.TargetPurse != nil:
		targetPurse = *ta.TargetPurse
	case ta.TargetAccount != nil:
		targetAccVal, tFound, tErr := tc.Read(key.AccountKey{Addr: *ta.TargetAccount})
		if tErr != nil {
			return precondition(root, tErr)
		}
		if tFound {
			targetPurse = targetAccVal.(key.AccountValue).MainPurse
		} else {
			purse, cErr := mint.CreatePurse(tc, addrGen.Next)
			if cErr != nil {
				return precondition(root, cErr)
			}
			newAccount := key.AccountValue{
				AccountHash:    *ta.TargetAccount,
				NamedKeys:      map[string]key.Key{},
				MainPurse:      purse,
				AssociatedKeys: map[[32]byte]uint8{*ta.TargetAccount: 1},
				ActionThreshold: key.ActionThresholds{Deployment: 1, KeyManagement: 1},
			}
			if wErr := tc.Write(key.AccountKey{Addr: *ta.TargetAccount}, newAccount); wErr != nil {
				return precondition(root, wErr)
			}
			targetPurse = purse
		}
	default:
		return precondition(root, errors.New("engine: native transfer names no target"))
	}

	fee := new(big.Int).SetUint64(pd.SystemConfig.WasmlessTransferCost)
	pos := handles.ProofOfStake
	maxPayment := gas.NewGas(pd.SystemConfig.MaxPayment)

	payment := executor.ExecStandardPayment(tc, d.DeployHash, pos, source, fee, maxPayment, 0)
	if payment.Error != nil {
		return precondition(root, ErrInsufficientPayment)
	}

	session := executor.ExecSystemContract(tc, gas.NewGas(0), 0, func(tc *trackingcopy.TrackingCopy) error {
		return mint.Transfer(tc, source, targetPurse, ta.Amount)
	})

	var transfers []key.TransferValue
	if session.Error == nil {
		transfers = []key.TransferValue{{
			DeployHash: d.DeployHash,
			From:       d.Address,
			To:         addressOfPurse(targetPurse),
			Source:     source,
			Target:     targetPurse,
			Amount:     new(big.Int).Set(ta.Amount),
			ID:         ta.ID,
		}}
		if wErr := tc.Write(key.DeployInfoKey{Hash: d.DeployHash}, key.DeployInfoValue{
			DeployHash: d.DeployHash,
			From:       d.Address,
			Source:     source,
			Gas:        0,
		}); wErr != nil {
			return precondition(root, wErr)
		}
	}

	proposerPurse, pErr := e.resolveProposerPurse(tc, proposer)
	if pErr != nil {
		return precondition(root, pErr)
	}

	finalizeTC := tc.Fork()
	finalize := executor.ExecSystemContract(finalizeTC, gas.NewGas(0), 0, func(tc *trackingcopy.TrackingCopy) error {
		return pos.FinalizePayment(tc, nil, proposerPurse, fee)
	})
	if finalize.Error != nil {
		return precondition(root, finalize.Error)
	}

	kind := DeploySuccess
	var deployErr error
	if session.Error != nil {
		kind = DeployFailure
		deployErr = session.Error
	}
	return e.commitEffect(root, finalizeTC.Effect(), kind, transfers, gas.NewMotes(fee), deployErr)
}

// resolveProposerPurse looks up the block proposer's main purse, the
// finalize-phase destination for a deploy's gas fee (spec.md §4.8.2 step
// 7). The proposer is expected to be a pre-existing chainspec or bonded
// account; its absence is an engine-level invariant violation, not a
// per-deploy failure.
func (e *Engine) resolveProposerPurse(tc *trackingcopy.TrackingCopy, proposer [32]byte) (key.URefKey, error) {
	v, found, err := tc.Read(key.AccountKey{Addr: proposer})
	if err != nil {
		return key.URefKey{}, err
	}
	if !found {
		return key.URefKey{}, errors.New("engine: proposer account not found")
	}
	return v.(key.AccountValue).MainPurse, nil
}

func addressOfPurse(u key.URefKey) [32]byte { return u.Addr }

// resolveExecutable loads the code and named-keys context a payment or
// session ExecutableDeployItem should run against: the account's own
// named keys for ModuleBytes, or a deployed contract's named keys and
// base key for a stored-contract reference (spec.md §6's five
// non-transfer tag variants).
func resolveExecutable(tc *trackingcopy.TrackingCopy, account key.Account, item ExecutableDeployItem) ([]byte, key.Key, map[string]key.Key, error) {
	switch item.Kind {
	case DeployItemModuleBytes:
		return item.ModuleBytes, key.AccountKey{Addr: account.AccountHash}, account.NamedKeys, nil
	case DeployItemStoredContractByHash:
		return resolveContractByHash(tc, item.ContractHash)
	case DeployItemStoredContractByName:
		k, ok := account.NamedKey(item.ContractName)
		if !ok {
			return nil, nil, nil, errors.New("engine: account has no named key " + item.ContractName)
		}
		hk, ok := k.(key.HashKey)
		if !ok {
			return nil, nil, nil, errors.New("engine: named key " + item.ContractName + " is not a contract hash")
		}
		return resolveContractByHash(tc, hk.Hash)
	case DeployItemStoredVersionedContractByHash:
		return resolveVersionedContract(tc, item.PackageHash, item.Version)
	case DeployItemStoredVersionedContractByName:
		k, ok := account.NamedKey(item.PackageName)
		if !ok {
			return nil, nil, nil, errors.New("engine: account has no named key " + item.PackageName)
		}
		hk, ok := k.(key.HashKey)
		if !ok {
			return nil, nil, nil, errors.New("engine: named key " + item.PackageName + " is not a package hash")
		}
		return resolveVersionedContract(tc, hk.Hash, item.Version)
	default:
		return nil, nil, nil, errors.New("engine: unknown executable deploy item kind")
	}
}

func resolveContractByHash(tc *trackingcopy.TrackingCopy, contractHash [32]byte) ([]byte, key.Key, map[string]key.Key, error) {
	cv, wasmBytes, found, err := executor.ResolveContract(tc, contractHash)
	if err != nil {
		return nil, nil, nil, err
	}
	if !found {
		return nil, nil, nil, errors.New("engine: contract not found")
	}
	return wasmBytes, key.HashKey{Hash: contractHash}, cv.NamedKeys, nil
}

func resolveVersionedContract(tc *trackingcopy.TrackingCopy, packageHash [32]byte, version *uint32) ([]byte, key.Key, map[string]key.Key, error) {
	v, found, err := tc.Read(key.HashKey{Hash: packageHash})
	if err != nil {
		return nil, nil, nil, err
	}
	if !found {
		return nil, nil, nil, errors.New("engine: contract package not found")
	}
	pkg, ok := v.(key.ContractPackageValue)
	if !ok {
		return nil, nil, nil, errors.New("engine: package hash does not hold a contract package")
	}
	major := version
	if major == nil {
		var majors []uint32
		for m := range pkg.Versions {
			majors = append(majors, m)
		}
		sort.Slice(majors, func(i, j int) bool { return majors[i] > majors[j] })
		if len(majors) == 0 {
			return nil, nil, nil, errors.New("engine: contract package has no versions")
		}
		major = &majors[0]
	}
	hash, ok := pkg.Versions[*major]
	if !ok {
		return nil, nil, nil, errors.New("engine: contract package has no such version")
	}
	return resolveContractByHash(tc, hash)
}

// amountArg parses a payment item's declared "amount" runtime arg as an
// unsigned big-endian integer, the convention hostAdd/hostTransfer already
// use at the wasm boundary (wasmvm/runtime.go's hostAdd).
func amountArg(args map[string][]byte) *big.Int {
	b, ok := args["amount"]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).SetBytes(b)
}

// runStandardDeploy implements spec.md §4.8.2's payment -> session ->
// finalize protocol.
func (e *Engine) runStandardDeploy(reader trie.Reader, pd key.ProtocolData, handles *systemcontracts.Handles, d DeployItem, proposer [32]byte) DeployResult {
	root := reader.Root()
	tc := trackingcopy.New(reader)

	accVal, found, err := tc.Read(key.AccountKey{Addr: d.Address})
	if err != nil || !found {
		return precondition(root, ErrAuthorization)
	}
	account := key.FromValue(accVal.(key.AccountValue))
	if !account.CanAuthorizeDeployment(d.AuthorizationKeys) {
		return precondition(root, ErrAuthorization)
	}

	maxPaymentMotes := new(big.Int).SetUint64(pd.SystemConfig.MaxPayment)
	mint := handles.Mint
	mainBalance, ok := mint.Balance(tc, account.MainPurse)
	if !ok || mainBalance.Cmp(maxPaymentMotes) < 0 {
		return precondition(root, ErrInsufficientPayment)
	}

	pos := handles.ProofOfStake
	maxPaymentGas, err := gas.MotesToGas(gas.NewMotes(maxPaymentMotes), pd.SystemConfig.ConvRate)
	if err != nil {
		return precondition(root, err)
	}

	declaredAmount := amountArg(d.Payment.Args)
	paymentResult := e.runPhase(tc, pd, handles, d, account, d.Payment, maxPaymentGas, wasmvm.PhasePayment)
	paymentTC := paymentResult.TrackingCopy
	paymentCost := gas.GasToMotes(paymentResult.GasUsed, pd.SystemConfig.ConvRate)

	paymentPurse, hasPaymentPurse, err := pos.GetPaymentPurse(paymentTC)
	var paymentPurseBalance *big.Int
	if err == nil && hasPaymentPurse {
		paymentPurseBalance, _ = mint.Balance(paymentTC, paymentPurse)
	}
	declared := key.NewU512(declaredAmount)
	var balanceCL *key.CLValue
	if paymentPurseBalance != nil {
		v := key.NewU512(paymentPurseBalance)
		balanceCL = &v
	}
	if forcedErr := CheckForcedTransfer(balanceCL, &declared, paymentResult.Error != nil); forcedErr != nil {
		proposerPurse, pErr := e.resolveProposerPurse(paymentTC, proposer)
		if pErr != nil {
			return precondition(root, pErr)
		}
		if tErr := mint.Transfer(paymentTC, account.MainPurse, proposerPurse, maxPaymentMotes); tErr != nil {
			return precondition(root, tErr)
		}
		return e.commitEffect(root, paymentTC.Effect(), DeployFailure, nil, gas.NewMotes(maxPaymentMotes), forcedErr)
	}

	sessionGas, err := gas.MotesToGas(gas.NewMotes(paymentPurseBalance), pd.SystemConfig.ConvRate)
	if err != nil {
		return precondition(root, err)
	}
	sessionGas, err = sessionGas.Sub(paymentResult.GasUsed)
	if err != nil {
		sessionGas = gas.NewGas(0)
	}

	sessionTC := paymentTC.Fork()
	baseKey, namedKeys, code, rErr := sessionContext(sessionTC, account, d.Session)
	var sessionResult *executor.ExecutionResult
	if rErr != nil {
		sessionResult = &executor.ExecutionResult{TrackingCopy: sessionTC, Error: &executor.ExecError{Kind: executor.ExecErrEngineInvariantViolated, Detail: rErr.Error()}}
	} else {
		sessionResult = executor.Exec(sessionTC, executor.ExecRequest{
			Code:       code,
			EntryPoint: d.Session.EntryPoint,
			Args:       d.Session.Args,
			BaseKey:    baseKey,
			NamedKeys:  namedKeys,
			DeployHash: d.DeployHash,
			Phase:      wasmvm.PhaseSession,
			GasLimit:   sessionGas,
			WasmConfig: pd.WasmConfig,
		})
	}
	sessionCost := gas.GasToMotes(sessionResult.GasUsed, pd.SystemConfig.ConvRate)

	finalizeSource := paymentTC
	if sessionResult.Error == nil {
		finalizeSource = sessionResult.TrackingCopy
	}
	if wErr := finalizeSource.Write(key.DeployInfoKey{Hash: d.DeployHash}, key.DeployInfoValue{
		DeployHash: d.DeployHash,
		From:       d.Address,
		Source:     account.MainPurse,
		Gas:        paymentResult.GasUsed.Uint64() + sessionResult.GasUsed.Uint64(),
	}); wErr != nil {
		return precondition(root, wErr)
	}

	totalCost := paymentCost.Add(sessionCost)
	proposerPurse, pErr := e.resolveProposerPurse(finalizeSource, proposer)
	if pErr != nil {
		return precondition(root, pErr)
	}
	finalizeTC := finalizeSource.Fork()
	finalizeResult := executor.ExecSystemContract(finalizeTC, gas.NewGas(0), 0, func(tc *trackingcopy.TrackingCopy) error {
		return pos.FinalizePayment(tc, &account, proposerPurse, totalCost.BigInt())
	})
	if finalizeResult.Error != nil {
		return precondition(root, finalizeResult.Error)
	}

	builder := NewExecutionResultBuilder()
	builder.SetPayment(paymentResult, paymentCost)
	builder.SetSession(sessionResult, sessionCost)
	builder.SetFinalize(finalizeResult)
	deployResult, err := builder.Build()
	if err != nil {
		return precondition(root, err)
	}

	return e.commitEffect(root, finalizeTC.Effect(), deployResult.Kind, deployResult.Transfers, deployResult.Cost, deployResult.Error)
}

// runPhase runs one ExecutableDeployItem (payment or session) against the
// deploying account's own context — the shape both phases share before
// session optionally redirects to a stored contract's own named keys.
func (e *Engine) runPhase(tc *trackingcopy.TrackingCopy, pd key.ProtocolData, handles *systemcontracts.Handles, d DeployItem, account key.Account, item ExecutableDeployItem, gasLimit gas.Gas, phase wasmvm.Phase) *executor.ExecutionResult {
	if item.Kind == DeployItemModuleBytes && len(item.ModuleBytes) == 0 {
		return executor.ExecStandardPayment(tc, d.DeployHash, handles.ProofOfStake, account.MainPurse, amountArg(item.Args), gasLimit, pd.WasmConfig.HostFunctionGas["standard_payment"])
	}
	code, resolvedBase, resolvedNamed, err := resolveExecutable(tc, account, item)
	if err != nil {
		return &executor.ExecutionResult{TrackingCopy: tc, Error: &executor.ExecError{Kind: executor.ExecErrEngineInvariantViolated, Detail: err.Error()}}
	}
	return executor.Exec(tc, executor.ExecRequest{
		Code:       code,
		EntryPoint: item.EntryPoint,
		Args:       item.Args,
		BaseKey:    resolvedBase,
		NamedKeys:  resolvedNamed,
		DeployHash: d.DeployHash,
		Phase:      phase,
		GasLimit:   gasLimit,
		WasmConfig: pd.WasmConfig,
	})
}

// sessionContext resolves the session item's code and execution context
// through resolveExecutable: the account's base key and named keys for
// ModuleBytes, the stored contract's own for a stored-contract item.
func sessionContext(tc *trackingcopy.TrackingCopy, account key.Account, item ExecutableDeployItem) (key.Key, map[string]key.Key, []byte, error) {
	code, baseKey, namedKeys, err := resolveExecutable(tc, account, item)
	return baseKey, namedKeys, code, err
}
