package key

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/vireonet/txcore/bytesrepr"
)

// StoredValue is the tagged-sum value type persisted under a Key: CLValue,
// Account, ContractWasm, Contract, ContractPackage, Transfer, DeployInfo,
// EraInfo, Bid, Withdraw.
type StoredValue interface {
	ToBytes() []byte
	SerializedLength() int
	valueTag() byte
}

const (
	svTagCLValue byte = iota
	svTagAccount
	svTagContractWasm
	svTagContract
	svTagContractPackage
	svTagTransfer
	svTagDeployInfo
	svTagEraInfo
	svTagBid
	svTagWithdraw
)

// --- shared field codecs -----------------------------------------------
//
// Every compound StoredValue variant is built from the same handful of
// field shapes (named-key maps, weighted-pubkey maps, URefs, big.Int
// amounts). Centralizing their canonical encoding here keeps every
// variant's ToBytes/decode pair in agreement on ordering, the same way
// AdditiveMap.Entries sorts by canonical key bytes for commit determinism
// (key/transform.go).

func putBigInt(w *bytesrepr.Writer, v *big.Int) {
	if v == nil {
		v = new(big.Int)
	}
	var sign uint8
	if v.Sign() < 0 {
		sign = 1
	}
	w.PutU8(sign)
	w.PutBytes(v.Bytes())
}

func getBigInt(r *bytesrepr.Reader) (*big.Int, error) {
	sign, err := r.U8()
	if err != nil {
		return nil, err
	}
	b, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(b)
	if sign == 1 {
		v.Neg(v)
	}
	return v, nil
}

func putURef(w *bytesrepr.Writer, u URefKey) { w.PutBytes(u.Bytes()) }

func getURef(r *bytesrepr.Reader) (URefKey, error) {
	b, err := r.Bytes()
	if err != nil {
		return URefKey{}, err
	}
	k, err := ParseKey(b)
	if err != nil {
		return URefKey{}, err
	}
	u, ok := k.(URefKey)
	if !ok {
		return URefKey{}, fmt.Errorf("key: expected Key::URef, got %T", k)
	}
	return u, nil
}

// putNamedKeys writes a name->Key map in ascending name order, matching
// bytesrepr's "maps serialize in ascending key-byte order" canonicalization
// rule (bytesrepr package doc comment).
func putNamedKeys(w *bytesrepr.Writer, nk map[string]Key) {
	names := make([]string, 0, len(nk))
	for n := range nk {
		names = append(names, n)
	}
	sort.Strings(names)
	w.PutU32(uint32(len(names)))
	for _, n := range names {
		w.PutString(n)
		w.PutBytes(nk[n].Bytes())
	}
}

func getNamedKeys(r *bytesrepr.Reader) (map[string]Key, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Key, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		kb, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		k, err := ParseKey(kb)
		if err != nil {
			return nil, err
		}
		out[name] = k
	}
	return out, nil
}

func sortedPubkeys(m map[[32]byte]uint8) [][32]byte {
	keys := make([][32]byte, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

func putWeightedKeys(w *bytesrepr.Writer, m map[[32]byte]uint8) {
	keys := sortedPubkeys(m)
	w.PutU32(uint32(len(keys)))
	for _, k := range keys {
		w.PutFixedBytes(k[:])
		w.PutU8(m[k])
	}
}

func getWeightedKeys(r *bytesrepr.Reader) (map[[32]byte]uint8, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make(map[[32]byte]uint8, n)
	for i := uint32(0); i < n; i++ {
		kb, err := r.FixedBytes(32)
		if err != nil {
			return nil, err
		}
		var addr [32]byte
		copy(addr[:], kb)
		w8, err := r.U8()
		if err != nil {
			return nil, err
		}
		out[addr] = w8
	}
	return out, nil
}

func sortedAmountKeys(m map[[32]byte]*big.Int) [][32]byte {
	keys := make([][32]byte, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return keys
}

func putAmountMap(w *bytesrepr.Writer, m map[[32]byte]*big.Int) {
	keys := sortedAmountKeys(m)
	w.PutU32(uint32(len(keys)))
	for _, k := range keys {
		w.PutFixedBytes(k[:])
		putBigInt(w, m[k])
	}
}

func getAmountMap(r *bytesrepr.Reader) (map[[32]byte]*big.Int, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make(map[[32]byte]*big.Int, n)
	for i := uint32(0); i < n; i++ {
		kb, err := r.FixedBytes(32)
		if err != nil {
			return nil, err
		}
		var addr [32]byte
		copy(addr[:], kb)
		amt, err := getBigInt(r)
		if err != nil {
			return nil, err
		}
		out[addr] = amt
	}
	return out, nil
}

func putEntryPoints(w *bytesrepr.Writer, eps []EntryPoint) {
	w.PutU32(uint32(len(eps)))
	for _, e := range eps {
		w.PutString(e.Name)
	}
}

func getEntryPoints(r *bytesrepr.Reader) ([]EntryPoint, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]EntryPoint, n)
	for i := range out {
		name, err := r.String()
		if err != nil {
			return nil, err
		}
		out[i] = EntryPoint{Name: name}
	}
	return out, nil
}

func putVersions(w *bytesrepr.Writer, m map[uint32][32]byte) {
	majors := make([]uint32, 0, len(m))
	for k := range m {
		majors = append(majors, k)
	}
	sort.Slice(majors, func(i, j int) bool { return majors[i] < majors[j] })
	w.PutU32(uint32(len(majors)))
	for _, maj := range majors {
		w.PutU32(maj)
		h := m[maj]
		w.PutFixedBytes(h[:])
	}
}

func getVersions(r *bytesrepr.Reader) (map[uint32][32]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32][32]byte, n)
	for i := uint32(0); i < n; i++ {
		maj, err := r.U32()
		if err != nil {
			return nil, err
		}
		hb, err := r.FixedBytes(32)
		if err != nil {
			return nil, err
		}
		var h [32]byte
		copy(h[:], hb)
		out[maj] = h
	}
	return out, nil
}

// --- CLValue -------------------------------------------------------------

// CLValue wraps an arbitrary on-chain value together with its declared
// type. Numeric is non-nil for CLValues the Add* transform family can
// target (U32/U64/U128/U256/U512); Bytes carries the canonical encoding for
// everything else (strings, structs, byte arrays).
type CLValue struct {
	CLType  string
	Bytes   []byte
	Numeric *big.Int
}

func (v CLValue) valueTag() byte { return svTagCLValue }

func (v CLValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(len(v.CLType) + len(v.Bytes) + 16)
	w.PutU8(svTagCLValue)
	w.PutString(v.CLType)
	w.PutBool(v.Numeric != nil)
	if v.Numeric != nil {
		putBigInt(w, v.Numeric)
	} else {
		w.PutBytes(v.Bytes)
	}
	return w.Bytes()
}

func (v CLValue) SerializedLength() int { return len(v.ToBytes()) }

func decodeCLValue(r *bytesrepr.Reader) (CLValue, error) {
	clType, err := r.String()
	if err != nil {
		return CLValue{}, err
	}
	hasNumeric, err := r.Bool()
	if err != nil {
		return CLValue{}, err
	}
	if hasNumeric {
		n, err := getBigInt(r)
		if err != nil {
			return CLValue{}, err
		}
		return CLValue{CLType: clType, Numeric: n}, nil
	}
	b, err := r.Bytes()
	if err != nil {
		return CLValue{}, err
	}
	return CLValue{CLType: clType, Bytes: b}, nil
}

// NewU512 builds a CLValue wrapping a U512 numeric amount, the type every
// purse balance is stored as (spec.md invariant 3).
func NewU512(amount *big.Int) CLValue {
	return CLValue{CLType: "U512", Numeric: new(big.Int).Set(amount)}
}

// NamedKeysOf returns the named-key map a query descends through for
// StoredValue variants that carry one (Account, Contract); every other
// variant is a dead end for path resolution.
func NamedKeysOf(v StoredValue) (map[string]Key, bool) {
	switch t := v.(type) {
	case AccountValue:
		return t.NamedKeys, true
	case ContractValue:
		return t.NamedKeys, true
	default:
		return nil, false
	}
}

// --- AccountValue ----------------------------------------------------------

// ActionThresholds gates which operations an account's associated keys may
// authorize (spec.md §3's Account).
type ActionThresholds struct {
	Deployment    uint8
	KeyManagement uint8
}

// AccountValue is the StoredValue variant backing Key::Account.
type AccountValue struct {
	AccountHash     [32]byte
	NamedKeys       map[string]Key
	MainPurse       URefKey
	AssociatedKeys  map[[32]byte]uint8 // pubkey -> weight
	ActionThreshold ActionThresholds
}

func (v AccountValue) valueTag() byte { return svTagAccount }

func (v AccountValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(64 + len(v.NamedKeys)*48 + len(v.AssociatedKeys)*33)
	w.PutU8(svTagAccount)
	w.PutFixedBytes(v.AccountHash[:])
	putNamedKeys(w, v.NamedKeys)
	putURef(w, v.MainPurse)
	putWeightedKeys(w, v.AssociatedKeys)
	w.PutU8(v.ActionThreshold.Deployment)
	w.PutU8(v.ActionThreshold.KeyManagement)
	return w.Bytes()
}

func (v AccountValue) SerializedLength() int { return len(v.ToBytes()) }

func decodeAccountValue(r *bytesrepr.Reader) (AccountValue, error) {
	hb, err := r.FixedBytes(32)
	if err != nil {
		return AccountValue{}, err
	}
	var hash [32]byte
	copy(hash[:], hb)
	nk, err := getNamedKeys(r)
	if err != nil {
		return AccountValue{}, err
	}
	purse, err := getURef(r)
	if err != nil {
		return AccountValue{}, err
	}
	assoc, err := getWeightedKeys(r)
	if err != nil {
		return AccountValue{}, err
	}
	deployment, err := r.U8()
	if err != nil {
		return AccountValue{}, err
	}
	keyMgmt, err := r.U8()
	if err != nil {
		return AccountValue{}, err
	}
	return AccountValue{
		AccountHash:     hash,
		NamedKeys:       nk,
		MainPurse:       purse,
		AssociatedKeys:  assoc,
		ActionThreshold: ActionThresholds{Deployment: deployment, KeyManagement: keyMgmt},
	}, nil
}

// CanDeploy reports whether the weighted sum of authKeys meets the
// account's deployment threshold (spec.md §3's authorization rule).
func (v AccountValue) CanDeploy(authKeys [][32]byte) bool {
	var sum int
	for _, k := range authKeys {
		sum += int(v.AssociatedKeys[k])
	}
	return sum >= int(v.ActionThreshold.Deployment)
}

// --- ContractWasmValue -----------------------------------------------------

type ContractWasmValue struct{ Bytecode []byte }

func (v ContractWasmValue) valueTag() byte { return svTagContractWasm }

func (v ContractWasmValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(len(v.Bytecode) + 5)
	w.PutU8(svTagContractWasm)
	w.PutBytes(v.Bytecode)
	return w.Bytes()
}

// SerializedLength reports the raw bytecode size, the buffer-presize hint
// callers actually want rather than the wrapped encoding's length.
func (v ContractWasmValue) SerializedLength() int { return len(v.Bytecode) }

func decodeContractWasmValue(r *bytesrepr.Reader) (ContractWasmValue, error) {
	b, err := r.Bytes()
	if err != nil {
		return ContractWasmValue{}, err
	}
	return ContractWasmValue{Bytecode: b}, nil
}

// --- ContractValue ----------------------------------------------------------

type EntryPoint struct {
	Name string
}

// ContractValue is a deployed contract's metadata: its named keys, entry
// points and the protocol version it was compiled against.
type ContractValue struct {
	WasmHash        [32]byte
	NamedKeys       map[string]Key
	EntryPoints     []EntryPoint
	ProtocolVersion ProtocolVersion
}

func (v ContractValue) valueTag() byte { return svTagContract }

func (v ContractValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(64 + len(v.NamedKeys)*48 + len(v.EntryPoints)*16)
	w.PutU8(svTagContract)
	w.PutFixedBytes(v.WasmHash[:])
	putNamedKeys(w, v.NamedKeys)
	putEntryPoints(w, v.EntryPoints)
	w.PutU32(v.ProtocolVersion.Major)
	w.PutU32(v.ProtocolVersion.Minor)
	w.PutU32(v.ProtocolVersion.Patch)
	return w.Bytes()
}

func (v ContractValue) SerializedLength() int { return len(v.ToBytes()) }

func decodeContractValue(r *bytesrepr.Reader) (ContractValue, error) {
	hb, err := r.FixedBytes(32)
	if err != nil {
		return ContractValue{}, err
	}
	var hash [32]byte
	copy(hash[:], hb)
	nk, err := getNamedKeys(r)
	if err != nil {
		return ContractValue{}, err
	}
	eps, err := getEntryPoints(r)
	if err != nil {
		return ContractValue{}, err
	}
	major, err := r.U32()
	if err != nil {
		return ContractValue{}, err
	}
	minor, err := r.U32()
	if err != nil {
		return ContractValue{}, err
	}
	patch, err := r.U32()
	if err != nil {
		return ContractValue{}, err
	}
	return ContractValue{
		WasmHash:        hash,
		NamedKeys:       nk,
		EntryPoints:     eps,
		ProtocolVersion: ProtocolVersion{Major: major, Minor: minor, Patch: patch},
	}, nil
}

// --- ContractPackageValue ---------------------------------------------------

// ContractPackageValue groups every version of a contract ever deployed
// under one address, keyed by protocol major version.
type ContractPackageValue struct {
	Versions map[uint32][32]byte // protocol major -> contract hash
}

func (v ContractPackageValue) valueTag() byte { return svTagContractPackage }

func (v ContractPackageValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(8 + len(v.Versions)*36)
	w.PutU8(svTagContractPackage)
	putVersions(w, v.Versions)
	return w.Bytes()
}

func (v ContractPackageValue) SerializedLength() int { return len(v.ToBytes()) }

func decodeContractPackageValue(r *bytesrepr.Reader) (ContractPackageValue, error) {
	versions, err := getVersions(r)
	if err != nil {
		return ContractPackageValue{}, err
	}
	return ContractPackageValue{Versions: versions}, nil
}

// --- TransferValue -----------------------------------------------------------

type TransferValue struct {
	DeployHash [32]byte
	From       [32]byte
	To         [32]byte
	Source     URefKey
	Target     URefKey
	Amount     *big.Int
	Gas        uint64
	ID         *uint64
}

func (v TransferValue) valueTag() byte { return svTagTransfer }

func (v TransferValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(160)
	w.PutU8(svTagTransfer)
	w.PutFixedBytes(v.DeployHash[:])
	w.PutFixedBytes(v.From[:])
	w.PutFixedBytes(v.To[:])
	putURef(w, v.Source)
	putURef(w, v.Target)
	putBigInt(w, v.Amount)
	w.PutU64(v.Gas)
	w.PutBool(v.ID != nil)
	if v.ID != nil {
		w.PutU64(*v.ID)
	}
	return w.Bytes()
}

func (v TransferValue) SerializedLength() int { return len(v.ToBytes()) }

func decodeTransferValue(r *bytesrepr.Reader) (TransferValue, error) {
	deployHash, err := r.FixedBytes(32)
	if err != nil {
		return TransferValue{}, err
	}
	from, err := r.FixedBytes(32)
	if err != nil {
		return TransferValue{}, err
	}
	to, err := r.FixedBytes(32)
	if err != nil {
		return TransferValue{}, err
	}
	source, err := getURef(r)
	if err != nil {
		return TransferValue{}, err
	}
	target, err := getURef(r)
	if err != nil {
		return TransferValue{}, err
	}
	amount, err := getBigInt(r)
	if err != nil {
		return TransferValue{}, err
	}
	gas, err := r.U64()
	if err != nil {
		return TransferValue{}, err
	}
	hasID, err := r.Bool()
	if err != nil {
		return TransferValue{}, err
	}
	var id *uint64
	if hasID {
		v, err := r.U64()
		if err != nil {
			return TransferValue{}, err
		}
		id = &v
	}
	tv := TransferValue{Amount: amount, Gas: gas, ID: id}
	copy(tv.DeployHash[:], deployHash)
	copy(tv.From[:], from)
	copy(tv.To[:], to)
	tv.Source = source
	tv.Target = target
	return tv, nil
}

// --- DeployInfoValue -----------------------------------------------------------

type DeployInfoValue struct {
	DeployHash [32]byte
	Transfers  [][32]byte
	From       [32]byte
	Source     URefKey
	Gas        uint64
}

func (v DeployInfoValue) valueTag() byte { return svTagDeployInfo }

func (v DeployInfoValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(96 + len(v.Transfers)*32)
	w.PutU8(svTagDeployInfo)
	w.PutFixedBytes(v.DeployHash[:])
	w.PutU32(uint32(len(v.Transfers)))
	for _, t := range v.Transfers {
		w.PutFixedBytes(t[:])
	}
	w.PutFixedBytes(v.From[:])
	putURef(w, v.Source)
	w.PutU64(v.Gas)
	return w.Bytes()
}

func (v DeployInfoValue) SerializedLength() int { return len(v.ToBytes()) }

func decodeDeployInfoValue(r *bytesrepr.Reader) (DeployInfoValue, error) {
	deployHash, err := r.FixedBytes(32)
	if err != nil {
		return DeployInfoValue{}, err
	}
	n, err := r.U32()
	if err != nil {
		return DeployInfoValue{}, err
	}
	transfers := make([][32]byte, n)
	for i := range transfers {
		tb, err := r.FixedBytes(32)
		if err != nil {
			return DeployInfoValue{}, err
		}
		copy(transfers[i][:], tb)
	}
	from, err := r.FixedBytes(32)
	if err != nil {
		return DeployInfoValue{}, err
	}
	source, err := getURef(r)
	if err != nil {
		return DeployInfoValue{}, err
	}
	gas, err := r.U64()
	if err != nil {
		return DeployInfoValue{}, err
	}
	di := DeployInfoValue{Transfers: transfers, Source: source, Gas: gas}
	copy(di.DeployHash[:], deployHash)
	copy(di.From[:], from)
	return di, nil
}

// --- EraInfoValue -----------------------------------------------------------

type EraInfoValue struct {
	EraID                  uint64
	SeigniorageAllocations map[[32]byte]*big.Int
	Timestamp              time.Time
}

func (v EraInfoValue) valueTag() byte { return svTagEraInfo }

func (v EraInfoValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(24 + len(v.SeigniorageAllocations)*48)
	w.PutU8(svTagEraInfo)
	w.PutU64(v.EraID)
	putAmountMap(w, v.SeigniorageAllocations)
	w.PutI64(v.Timestamp.UnixNano())
	return w.Bytes()
}

func (v EraInfoValue) SerializedLength() int { return len(v.ToBytes()) }

func decodeEraInfoValue(r *bytesrepr.Reader) (EraInfoValue, error) {
	eraID, err := r.U64()
	if err != nil {
		return EraInfoValue{}, err
	}
	allocations, err := getAmountMap(r)
	if err != nil {
		return EraInfoValue{}, err
	}
	nanos, err := r.I64()
	if err != nil {
		return EraInfoValue{}, err
	}
	return EraInfoValue{
		EraID:                  eraID,
		SeigniorageAllocations: allocations,
		Timestamp:              time.Unix(0, nanos).UTC(),
	}, nil
}

// --- BidValue -----------------------------------------------------------

type BidValue struct {
	ValidatorPublicKey [32]byte
	BondingPurse       URefKey
	StakedAmount       *big.Int
	DelegationRate     uint8
	Inactive           bool
	Delegators         map[[32]byte]*big.Int
}

func (v BidValue) valueTag() byte { return svTagBid }

func (v BidValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(96 + len(v.Delegators)*48)
	w.PutU8(svTagBid)
	w.PutFixedBytes(v.ValidatorPublicKey[:])
	putURef(w, v.BondingPurse)
	putBigInt(w, v.StakedAmount)
	w.PutU8(v.DelegationRate)
	w.PutBool(v.Inactive)
	putAmountMap(w, v.Delegators)
	return w.Bytes()
}

func (v BidValue) SerializedLength() int { return len(v.ToBytes()) }

func decodeBidValue(r *bytesrepr.Reader) (BidValue, error) {
	pk, err := r.FixedBytes(32)
	if err != nil {
		return BidValue{}, err
	}
	purse, err := getURef(r)
	if err != nil {
		return BidValue{}, err
	}
	staked, err := getBigInt(r)
	if err != nil {
		return BidValue{}, err
	}
	rate, err := r.U8()
	if err != nil {
		return BidValue{}, err
	}
	inactive, err := r.Bool()
	if err != nil {
		return BidValue{}, err
	}
	delegators, err := getAmountMap(r)
	if err != nil {
		return BidValue{}, err
	}
	bv := BidValue{
		BondingPurse:   purse,
		StakedAmount:   staked,
		DelegationRate: rate,
		Inactive:       inactive,
		Delegators:     delegators,
	}
	copy(bv.ValidatorPublicKey[:], pk)
	return bv, nil
}

// --- WithdrawValue -----------------------------------------------------------

type WithdrawValue struct {
	ValidatorPublicKey [32]byte
	Amount             *big.Int
	EraOfCreation      uint64
}

func (v WithdrawValue) valueTag() byte { return svTagWithdraw }

func (v WithdrawValue) ToBytes() []byte {
	w := bytesrepr.NewWriter(64)
	w.PutU8(svTagWithdraw)
	w.PutFixedBytes(v.ValidatorPublicKey[:])
	putBigInt(w, v.Amount)
	w.PutU64(v.EraOfCreation)
	return w.Bytes()
}

func (v WithdrawValue) SerializedLength() int { return len(v.ToBytes()) }

func decodeWithdrawValue(r *bytesrepr.Reader) (WithdrawValue, error) {
	pk, err := r.FixedBytes(32)
	if err != nil {
		return WithdrawValue{}, err
	}
	amount, err := getBigInt(r)
	if err != nil {
		return WithdrawValue{}, err
	}
	era, err := r.U64()
	if err != nil {
		return WithdrawValue{}, err
	}
	wv := WithdrawValue{Amount: amount, EraOfCreation: era}
	copy(wv.ValidatorPublicKey[:], pk)
	return wv, nil
}

// --- StoredValue sum decode --------------------------------------------

// decodeStoredValue reads the tag byte and dispatches to the matching
// variant decoder, the inverse of every ToBytes above.
func decodeStoredValue(r *bytesrepr.Reader) (StoredValue, error) {
	tag, err := r.U8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case svTagCLValue:
		return decodeCLValue(r)
	case svTagAccount:
		return decodeAccountValue(r)
	case svTagContractWasm:
		return decodeContractWasmValue(r)
	case svTagContract:
		return decodeContractValue(r)
	case svTagContractPackage:
		return decodeContractPackageValue(r)
	case svTagTransfer:
		return decodeTransferValue(r)
	case svTagDeployInfo:
		return decodeDeployInfoValue(r)
	case svTagEraInfo:
		return decodeEraInfoValue(r)
	case svTagBid:
		return decodeBidValue(r)
	case svTagWithdraw:
		return decodeWithdrawValue(r)
	default:
		return nil, fmt.Errorf("key: unknown StoredValue tag %d", tag)
	}
}

// StoredValueFromBytes decodes a canonical StoredValue encoding produced by
// ToBytes, completing the codec round-trip property spec.md §8 requires
// (from_bytes(to_bytes(v)) == (v, ∅)).
func StoredValueFromBytes(b []byte) (StoredValue, error) {
	return bytesrepr.FromBytes(b, decodeStoredValue)
}
