package wasmvm

import (
	"encoding/binary"

	"github.com/vireonet/txcore/key"
)

// Phase identifies which of the payment/session/finalize execution phases
// is running, since AddressGenerator is seeded per-phase (spec.md §4.4) so
// the same deploy's three phases never collide on generated addresses even
// though they share a deploy hash.
type Phase byte

const (
	PhasePayment Phase = iota
	PhaseSession
	PhaseFinalize
)

// AddressGenerator produces a deterministic, collision-free stream of
// 32-byte addresses for a single (deploy_hash, phase) pair — used by
// new_uref and contract-creation host functions. Each call hashes the seed
// together with a monotonically increasing counter, so two runs of the
// same deploy always generate the same sequence of addresses (required for
// invariant 2's cross-implementation determinism).
type AddressGenerator struct {
	seed    [33]byte // deploy_hash || phase
	counter uint64
}

// NewAddressGenerator seeds a generator from a deploy hash and phase.
func NewAddressGenerator(deployHash key.Hash, phase Phase) *AddressGenerator {
	g := &AddressGenerator{}
	copy(g.seed[:32], deployHash[:])
	g.seed[32] = byte(phase)
	return g
}

// Next returns the next address in this generator's sequence.
func (g *AddressGenerator) Next() [32]byte {
	var counterBytes [8]byte
	binary.LittleEndian.PutUint64(counterBytes[:], g.counter)
	g.counter++
	buf := make([]byte, 0, len(g.seed)+len(counterBytes))
	buf = append(buf, g.seed[:]...)
	buf = append(buf, counterBytes[:]...)
	return key.Blake2b256(buf)
}
