package key

import "fmt"

// ProtocolVersion is a (major, minor, patch) triple. Engine upgrades compare
// versions against CheckNext to decide whether an upgrade request names a
// legal successor to the currently active version.
type ProtocolVersion struct {
	Major uint32
	Minor uint32
	Patch uint32
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v ProtocolVersion) Equal(o ProtocolVersion) bool { return v == o }

// IsMajorVersion reports whether v bumps the major component relative to o.
func (v ProtocolVersion) IsMajorVersion(o ProtocolVersion) bool { return v.Major > o.Major }

// CheckNext reports whether next is a legal successor to v: a major exactly
// one greater with minor/patch reset to zero, a same-major minor exactly
// one greater with patch reset, a same-major-minor greater patch, or next
// equal to v itself (an upgrade that only changes cost tables without
// bumping the version — a validity decision recorded in DESIGN.md rather
// than left ambiguous).
func (v ProtocolVersion) CheckNext(next ProtocolVersion) bool {
	if next == v {
		return true
	}
	if next.Major == v.Major+1 {
		return next.Minor == 0 && next.Patch == 0
	}
	if next.Major != v.Major {
		return false
	}
	if next.Minor == v.Minor+1 {
		return next.Patch == 0
	}
	if next.Minor != v.Minor {
		return false
	}
	return next.Patch > v.Patch
}

// WasmConfig bounds what a contract's WASM module may do: memory footprint,
// stack depth, and the opcode cost table the preprocessor and runtime
// enforce (wasmvm package consumes this directly).
type WasmConfig struct {
	MaxMemoryPages  uint32
	MaxStackHeight  uint32
	OpcodeCosts     map[string]uint32
	HostFunctionGas map[string]uint64

	// Proposal gates: each defaults to disabled, matching spec.md §4.4's
	// "no bulk-memory, threads, SIMD, or reference-types proposals unless
	// explicitly enabled by wasm_config".
	AllowBulkMemory     bool
	AllowThreads        bool
	AllowSIMD           bool
	AllowReferenceTypes bool
}

// DefaultWasmConfig returns the baseline configuration spec.md §4.4
// describes: a 64-page memory cap and every optional proposal disabled.
func DefaultWasmConfig() WasmConfig {
	return WasmConfig{MaxMemoryPages: 64, MaxStackHeight: 64 * 1024}
}

// SystemConfig holds the protocol-level economic constants: the mint/PoS/
// auction wiring and gas-to-motes conversion rate.
type SystemConfig struct {
	WasmlessTransferCost uint64
	ConvRate             uint64
	MaxPayment           uint64
}

// ProtocolData bundles everything the engine needs for one protocol
// version: the system contract addresses and the wasm/system cost config,
// cached by the systemcontracts package so repeated lookups within a
// version avoid re-reading the trie (spec.md §8).
type ProtocolData struct {
	Version               ProtocolVersion
	WasmConfig            WasmConfig
	SystemConfig          SystemConfig
	MintContractHash      [32]byte
	ProofOfStakeHash      [32]byte
	StandardPaymentHash   [32]byte
	AuctionContractHash   [32]byte
}
