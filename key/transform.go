package key

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
)

// Transform errors. ErrTypeMismatch fires when a numeric Add transform
// targets a StoredValue that isn't the matching numeric CLValue type.
var (
	ErrTypeMismatch       = errors.New("key: type mismatch")
	ErrArithmeticOverflow = errors.New("key: arithmetic overflow")
	ErrWriteConflict      = errors.New("key: conflicting writes to the same key")
	ErrKeyNotFound        = errors.New("key: add transform targets a key absent from the store")
)

// Transform is one intended mutation on a single key. Transforms combine
// associatively and commutatively for the Add* family (an abelian monoid).
// A Write followed by a Write keeps the later one, a Write followed by an
// Add re-bases the Add onto the written value, an Add followed by a Write
// is ErrWriteConflict, and Failure absorbs everything combined with it.
type Transform interface {
	// Combine folds t into the receiver, returning the resulting transform.
	Combine(t Transform) (Transform, error)
	// Apply folds the transform onto the value currently stored under the
	// target key (existed reports whether that read found anything), and
	// returns the value that should be written. A store's Commit calls
	// this once per key in an AdditiveMap's canonical order.
	Apply(existing StoredValue, existed bool) (StoredValue, error)
	fmt.Stringer
}

// Identity is the monoid's neutral element: combining with anything returns
// the other operand unchanged.
type Identity struct{}

func (Identity) Combine(t Transform) (Transform, error) { return t, nil }
func (Identity) String() string                         { return "Identity" }
func (Identity) Apply(existing StoredValue, existed bool) (StoredValue, error) {
	return existing, nil
}

// Write overwrites the stored value outright. Combining two Writes keeps the
// later one (the one being folded in) since a later write in program order
// always wins ("last write wins" for W+W accumulation within a single
// tracking copy's log), while W+Add is resolved by re-basing: the Add
// applies on top of the written value. W+Failure yields the Failure.
type Write struct{ Value StoredValue }

func (w Write) String() string { return "Write" }

func (w Write) Apply(existing StoredValue, existed bool) (StoredValue, error) { return w.Value, nil }

func (w Write) Combine(t Transform) (Transform, error) {
	switch v := t.(type) {
	case Identity:
		return w, nil
	case Write:
		return v, nil
	case Failure:
		return v, nil
	case addTransform:
		applied, err := v.applyTo(w.Value)
		if err != nil {
			return nil, err
		}
		return Write{Value: applied}, nil
	default:
		return nil, fmt.Errorf("%w: cannot combine Write with %s", ErrWriteConflict, t)
	}
}

// Failure records that a prior transform in this key's chain could not be
// applied; it absorbs every subsequent transform.
type Failure struct{ Err error }

func (f Failure) String() string                      { return "Failure(" + f.Err.Error() + ")" }
func (f Failure) Combine(Transform) (Transform, error) { return f, nil }
func (f Failure) Apply(StoredValue, bool) (StoredValue, error) { return nil, f.Err }

// addTransform is the shared implementation behind AddInt32/AddUInt64/
// AddUInt128/256/512/AddKeys; numeric deltas are stored as *big.Int so a
// single code path handles every width spec.md names (§3), with width only
// affecting the overflow bound checked in applyTo.
type addTransform struct {
	delta *big.Int
	bits  int // 32, 64, 128, 256, or 512; 0 means AddKeys (delta unused)
	keys  map[string]Key
}

func (a addTransform) String() string {
	if a.keys != nil {
		return "AddKeys"
	}
	return fmt.Sprintf("Add%d", a.bits)
}

func (a addTransform) Combine(t Transform) (Transform, error) {
	switch v := t.(type) {
	case Identity:
		return a, nil
	case Failure:
		return v, nil
	case Write:
		return nil, fmt.Errorf("%w: cannot combine Add with Write", ErrWriteConflict)
	case addTransform:
		if a.keys != nil || v.keys != nil {
			if a.keys == nil || v.keys == nil {
				return nil, fmt.Errorf("%w: cannot combine AddKeys with numeric Add", ErrTypeMismatch)
			}
			merged := make(map[string]Key, len(a.keys)+len(v.keys))
			for k, val := range a.keys {
				merged[k] = val
			}
			for k, val := range v.keys {
				merged[k] = val
			}
			return addTransform{keys: merged}, nil
		}
		if a.bits != v.bits {
			return nil, fmt.Errorf("%w: cannot combine Add%d with Add%d", ErrTypeMismatch, a.bits, v.bits)
		}
		return addTransform{delta: new(big.Int).Add(a.delta, v.delta), bits: a.bits}, nil
	default:
		return nil, fmt.Errorf("%w: cannot combine addTransform with %s", ErrTypeMismatch, t)
	}
}

func maxForBits(bits int) *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(bits)), big.NewInt(1))
}

// applyTo folds the accumulated delta into an existing CLValue, enforcing
// the numeric type match and overflow bound spec.md §4.2 describes
// (TypeMismatch fires iff a transform expects a numeric CLValue but the
// stored value is of a different type).
func (a addTransform) applyTo(existing StoredValue) (StoredValue, error) {
	if a.keys != nil {
		acc, ok := existing.(AccountValue)
		if !ok {
			return nil, ErrTypeMismatch
		}
		merged := make(map[string]Key, len(acc.NamedKeys)+len(a.keys))
		for name, k := range acc.NamedKeys {
			merged[name] = k
		}
		for name, k := range a.keys {
			merged[name] = k
		}
		acc.NamedKeys = merged
		return acc, nil
	}
	cl, ok := existing.(CLValue)
	if !ok || cl.Numeric == nil {
		return nil, ErrTypeMismatch
	}
	sum := new(big.Int).Add(cl.Numeric, a.delta)
	if sum.Sign() < 0 || sum.Cmp(maxForBits(a.bits)) > 0 {
		return nil, ErrArithmeticOverflow
	}
	return CLValue{CLType: cl.CLType, Numeric: sum}, nil
}

// Apply requires an existing value: an Add* transform against a key absent
// from the store is ErrKeyNotFound, distinct from a type mismatch against a
// present-but-wrong-typed value (spec.md's CommitResult distinguishes
// KeyNotFound from TypeMismatch).
func (a addTransform) Apply(existing StoredValue, existed bool) (StoredValue, error) {
	if !existed {
		return nil, ErrKeyNotFound
	}
	return a.applyTo(existing)
}

func AddInt32(delta int32) Transform   { return addTransform{delta: big.NewInt(int64(delta)), bits: 32} }
func AddUInt64(delta uint64) Transform { return addTransform{delta: new(big.Int).SetUint64(delta), bits: 64} }
func AddUInt128(delta *big.Int) Transform { return addTransform{delta: delta, bits: 128} }
func AddUInt256(delta *big.Int) Transform { return addTransform{delta: delta, bits: 256} }
func AddUInt512(delta *big.Int) Transform { return addTransform{delta: delta, bits: 512} }
func AddKeys(keys map[string]Key) Transform { return addTransform{keys: keys} }

// AddNumeric builds an Add transform for an arbitrary bit width, used by the
// wasmvm host function surface where the width is only known at the call
// site (the byte length of the value the contract passed across the
// memory boundary) rather than fixed at compile time like the AddUInt*
// family above.
func AddNumeric(delta *big.Int, bits int) Transform { return addTransform{delta: delta, bits: bits} }

// AdditiveMap accumulates Transforms per key, folding new insertions via
// Combine the way spec.md §3 describes. Keys are indexed by their canonical
// byte encoding so iteration order (Entries) can be made deterministic by
// sorting those encodings, which every implementation must agree on for
// commit() determinism (spec.md invariant 2).
type AdditiveMap struct {
	byKeyBytes map[string]Transform
	keys       map[string]Key
}

func NewAdditiveMap() *AdditiveMap {
	return &AdditiveMap{byKeyBytes: make(map[string]Transform), keys: make(map[string]Key)}
}

// Insert folds t onto whatever transform is already recorded for k.
func (m *AdditiveMap) Insert(k Key, t Transform) error {
	id := string(k.Bytes())
	existing, ok := m.byKeyBytes[id]
	if !ok {
		m.byKeyBytes[id] = t
		m.keys[id] = k
		return nil
	}
	combined, err := existing.Combine(t)
	if err != nil {
		m.byKeyBytes[id] = Failure{Err: err}
		return err
	}
	m.byKeyBytes[id] = combined
	return nil
}

// Get returns the transform recorded for k, if any.
func (m *AdditiveMap) Get(k Key) (Transform, bool) {
	t, ok := m.byKeyBytes[string(k.Bytes())]
	return t, ok
}

// Len reports how many distinct keys carry a transform.
func (m *AdditiveMap) Len() int { return len(m.byKeyBytes) }

// Entry pairs a key with its folded transform.
type Entry struct {
	Key       Key
	Transform Transform
}

// Entries returns every (key, transform) pair in ascending canonical-byte
// order, the order commit() must process them in for determinism.
func (m *AdditiveMap) Entries() []Entry {
	ids := make([]string, 0, len(m.byKeyBytes))
	for id := range m.byKeyBytes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, Entry{Key: m.keys[id], Transform: m.byKeyBytes[id]})
	}
	return out
}
