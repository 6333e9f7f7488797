package gas

import (
	"math/big"
	"testing"
)

func TestGasAddAndSub(t *testing.T) {
	a := NewGas(10)
	b := NewGas(3)
	sum, err := a.Add(b)
	if err != nil || sum.Uint64() != 13 {
		t.Fatalf("expected 13, got %v, err=%v", sum, err)
	}
	diff, err := a.Sub(b)
	if err != nil || diff.Uint64() != 7 {
		t.Fatalf("expected 7, got %v, err=%v", diff, err)
	}
}

func TestGasSubUnderflow(t *testing.T) {
	a := NewGas(1)
	b := NewGas(2)
	if _, err := a.Sub(b); err != ErrGasOverflow {
		t.Fatalf("expected ErrGasOverflow on underflow, got %v", err)
	}
}

func TestGasToMotesIsExactMultiplication(t *testing.T) {
	g := NewGas(1000)
	m := GasToMotes(g, 10)
	if m.BigInt().Cmp(big.NewInt(10000)) != 0 {
		t.Fatalf("expected 10000 motes, got %v", m)
	}
}

func TestMotesToGasTruncatesRemainder(t *testing.T) {
	m := NewMotes(big.NewInt(105))
	g, err := MotesToGas(m, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Uint64() != 10 {
		t.Fatalf("expected truncation to 10, got %d", g.Uint64())
	}
}

func TestMotesToGasZeroRateErrors(t *testing.T) {
	m := NewMotes(big.NewInt(1))
	if _, err := MotesToGas(m, 0); err == nil {
		t.Fatalf("expected an error for a zero conversion rate")
	}
}

func TestMotesSubUnderflow(t *testing.T) {
	a := NewMotes(big.NewInt(1))
	b := NewMotes(big.NewInt(2))
	if _, err := a.Sub(b); err == nil {
		t.Fatalf("expected an error on motes underflow")
	}
}
