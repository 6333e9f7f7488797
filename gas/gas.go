// Package gas implements the execution core's gas and motes accounting:
// the Gas/Motes numeric types, their conversion, and the Meter a
// deploy's execution charges against. ConvRate lives on key.SystemConfig
// (per protocol version), not as a package constant, so independent engine
// instances never share
// mutable global economic state.
package gas

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrOutOfGas fires when a charge would push used gas past the meter's
	// limit.
	ErrOutOfGas = errors.New("gas: out of gas")
	// ErrGasOverflow fires on 256-bit overflow combining two Gas values,
	// theoretical at any real deploy's scale but checked regardless since
	// the codec's canonicalization requirement extends to arithmetic too.
	ErrGasOverflow = errors.New("gas: arithmetic overflow")
)

// Gas is a 256-bit unsigned gas quantity. 256 bits comfortably bounds any
// gas limit or accumulated cost a single deploy could reach; it is never
// used for motes, which need the wider 512-bit range (see Motes below).
type Gas struct{ v *uint256.Int }

func NewGas(u uint64) Gas { return Gas{v: uint256.NewInt(u)} }

func (g Gas) Uint64() uint64 {
	if g.v == nil {
		return 0
	}
	return g.v.Uint64()
}

func (g Gas) String() string {
	if g.v == nil {
		return "0"
	}
	return g.v.Dec()
}

func (g Gas) IsZero() bool { return g.v == nil || g.v.IsZero() }

func (g Gas) Cmp(other Gas) int { return g.value().Cmp(other.value()) }

func (g Gas) value() *uint256.Int {
	if g.v == nil {
		return uint256.NewInt(0)
	}
	return g.v
}

// Add returns g+other, failing on 256-bit overflow.
func (g Gas) Add(other Gas) (Gas, error) {
	sum, overflow := new(uint256.Int).AddOverflow(g.value(), other.value())
	if overflow {
		return Gas{}, ErrGasOverflow
	}
	return Gas{v: sum}, nil
}

// Sub returns g-other, failing if other exceeds g.
func (g Gas) Sub(other Gas) (Gas, error) {
	diff, underflow := new(uint256.Int).SubOverflow(g.value(), other.value())
	if underflow {
		return Gas{}, ErrGasOverflow
	}
	return Gas{v: diff}, nil
}

// Motes is a 512-bit unsigned quantity of the chain's native currency. No
// example repo in the corpus provides a native 512-bit integer type
// (holiman/uint256 caps at 256 bits), so Motes falls back to the standard
// library's math/big.Int — the one deliberate, required stdlib fallback
// this package takes, recorded in DESIGN.md.
type Motes struct{ v *big.Int }

func NewMotes(amount *big.Int) Motes { return Motes{v: new(big.Int).Set(amount)} }

func (m Motes) BigInt() *big.Int {
	if m.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(m.v)
}

func (m Motes) String() string {
	if m.v == nil {
		return "0"
	}
	return m.v.String()
}

func (m Motes) Cmp(other Motes) int { return m.BigInt().Cmp(other.BigInt()) }

func (m Motes) Add(other Motes) Motes {
	return Motes{v: new(big.Int).Add(m.BigInt(), other.BigInt())}
}

func (m Motes) Sub(other Motes) (Motes, error) {
	diff := new(big.Int).Sub(m.BigInt(), other.BigInt())
	if diff.Sign() < 0 {
		return Motes{}, errors.New("gas: motes underflow")
	}
	return Motes{v: diff}, nil
}

// GasToMotes converts a Gas amount to Motes at the given conversion rate:
// motes = gas * convRate, exactly as spec.md's economic model requires.
func GasToMotes(g Gas, convRate uint64) Motes {
	gasBig := new(big.Int).SetBytes(g.value().Bytes())
	rate := new(big.Int).SetUint64(convRate)
	return Motes{v: gasBig.Mul(gasBig, rate)}
}

// MotesToGas converts Motes back to Gas at convRate, truncating any
// remainder (spec.md does not require the conversion to be exact in this
// direction, only that GasToMotes be exact).
func MotesToGas(m Motes, convRate uint64) (Gas, error) {
	if convRate == 0 {
		return Gas{}, errors.New("gas: zero conversion rate")
	}
	rate := new(big.Int).SetUint64(convRate)
	quotient := new(big.Int).Div(m.BigInt(), rate)
	if quotient.BitLen() > 256 {
		return Gas{}, ErrGasOverflow
	}
	v, overflow := uint256.FromBig(quotient)
	if overflow {
		return Gas{}, ErrGasOverflow
	}
	return Gas{v: v}, nil
}
