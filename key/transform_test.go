package key

import (
	"math/big"
	"reflect"
	"testing"
)

func TestIdentityIsNeutral(t *testing.T) {
	w := Write{Value: NewU512(big.NewInt(5))}
	combined, err := Identity{}.Combine(w)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(combined, Transform(w)) {
		t.Fatalf("Identity.Combine did not return the other operand unchanged")
	}
}

func TestWriteThenWriteKeepsLater(t *testing.T) {
	first := Write{Value: NewU512(big.NewInt(1))}
	second := Write{Value: NewU512(big.NewInt(2))}
	combined, err := first.Combine(second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := combined.(Write)
	if !ok {
		t.Fatalf("expected Write, got %T", combined)
	}
	if got.Value.(CLValue).Numeric.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected later write to win, got %v", got.Value)
	}
}

func TestWriteThenAddRebasesOnTopOfWrite(t *testing.T) {
	w := Write{Value: NewU512(big.NewInt(10))}
	add := AddUInt512(big.NewInt(5))
	combined, err := w.Combine(add)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := combined.(Write).Value.(CLValue)
	if got.Numeric.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("expected 15, got %v", got.Numeric)
	}
}

func TestAddAddAccumulatesSameWidth(t *testing.T) {
	a := AddUInt64(3)
	b := AddUInt64(4)
	combined, err := a.Combine(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	applied, err := combined.(addTransform).applyTo(CLValue{CLType: "U64", Numeric: big.NewInt(0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied.(CLValue).Numeric.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected 7, got %v", applied.(CLValue).Numeric)
	}
}

func TestAddMismatchedWidthIsTypeMismatch(t *testing.T) {
	a := AddUInt64(1)
	b := AddUInt512(big.NewInt(1))
	if _, err := a.Combine(b); err == nil {
		t.Fatalf("expected a type mismatch error combining Add64 with Add512")
	}
}

func TestAddOverflowIsArithmeticOverflow(t *testing.T) {
	add := addTransform{delta: big.NewInt(1), bits: 32}
	existing := CLValue{CLType: "U32", Numeric: maxForBits(32)}
	if _, err := add.applyTo(existing); err != ErrArithmeticOverflow {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestAddUnderflowIsArithmeticOverflow(t *testing.T) {
	add := addTransform{delta: big.NewInt(-1), bits: 32}
	existing := CLValue{CLType: "U32", Numeric: big.NewInt(0)}
	if _, err := add.applyTo(existing); err != ErrArithmeticOverflow {
		t.Fatalf("expected ErrArithmeticOverflow on underflow, got %v", err)
	}
}

func TestAddOnWrongStoredTypeIsTypeMismatch(t *testing.T) {
	add := addTransform{delta: big.NewInt(1), bits: 32}
	if _, err := add.applyTo(AccountValue{}); err != ErrTypeMismatch {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestAddKeysMergesNamedKeys(t *testing.T) {
	acc := AccountValue{NamedKeys: map[string]Key{"a": HashKey{Hash: [32]byte{1}}}}
	add := AddKeys(map[string]Key{"b": HashKey{Hash: [32]byte{2}}})
	applied, err := add.(addTransform).applyTo(acc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	merged := applied.(AccountValue).NamedKeys
	if len(merged) != 2 {
		t.Fatalf("expected 2 named keys, got %d", len(merged))
	}
}

func TestFailureAbsorbsEverything(t *testing.T) {
	f := Failure{Err: ErrTypeMismatch}
	combined, err := f.Combine(Write{Value: NewU512(big.NewInt(1))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := combined.(Failure); !ok {
		t.Fatalf("expected Failure to absorb, got %T", combined)
	}
}

func TestAdditiveMapEntriesAreSortedByCanonicalBytes(t *testing.T) {
	m := NewAdditiveMap()
	k1 := AccountKey{Addr: [32]byte{2}}
	k2 := AccountKey{Addr: [32]byte{1}}
	if err := m.Insert(k1, Write{Value: NewU512(big.NewInt(1))}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Insert(k2, Write{Value: NewU512(big.NewInt(2))}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := m.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !Equal(entries[0].Key, k2) {
		t.Fatalf("expected k2 (lower address) first, got %s", entries[0].Key)
	}
}

func TestAdditiveMapRecordsFailureButStillReturnsError(t *testing.T) {
	m := NewAdditiveMap()
	k := AccountKey{Addr: [32]byte{1}}
	if err := m.Insert(k, Write{Value: NewU512(big.NewInt(1))}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := m.Insert(k, AddKeys(map[string]Key{"x": HashKey{Hash: [32]byte{9}}}))
	if err == nil {
		t.Fatalf("expected an error combining Write of a CLValue with AddKeys")
	}
	got, ok := m.Get(k)
	if !ok {
		t.Fatalf("expected an entry for k")
	}
	if _, isFailure := got.(Failure); !isFailure {
		t.Fatalf("expected the map to record a Failure, got %T", got)
	}
}
