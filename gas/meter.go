package gas

import "sync"

// Meter tracks gas consumed against a deploy's limit, generalized from the
// teacher's virtual_machine.go GasMeter (a single used/limit uint64 pair
// charged per opcode) to a per-deploy counter charged both by the wasmvm
// package's host-call instrumentation and by the executor for per-host-call
// costs outside the wasm sandbox (standard payment, system contract calls).
// Safe for concurrent reads of Remaining/Used; Consume is serialized since
// a single execution request is single-threaded per spec.md §5, but nested
// call_contract frames share one Meter and must not race against the
// Remaining check a caller makes before propagating unspent gas downward.
type Meter struct {
	mu    sync.Mutex
	used  Gas
	limit Gas
}

// NewMeter constructs a Meter with the given gas limit.
func NewMeter(limit Gas) *Meter {
	return &Meter{used: NewGas(0), limit: limit}
}

// Consume charges cost against the meter, failing with ErrOutOfGas without
// mutating state if the charge would exceed the limit — charges are
// all-or-nothing, never partial.
func (m *Meter) Consume(cost Gas) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := m.used.Add(cost)
	if err != nil {
		return err
	}
	if next.Cmp(m.limit) > 0 {
		return ErrOutOfGas
	}
	m.used = next
	return nil
}

// Remaining returns limit-used.
func (m *Meter) Remaining() Gas {
	m.mu.Lock()
	defer m.mu.Unlock()
	remaining, err := m.limit.Sub(m.used)
	if err != nil {
		return NewGas(0)
	}
	return remaining
}

func (m *Meter) Used() Gas {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

func (m *Meter) Limit() Gas {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit
}

// Fork returns a new Meter sharing none of this one's state, seeded with
// the given limit. Nested call_contract invocations do not use it: the
// executor hands the callee the caller's own Meter, so the callee draws on
// whatever gas the caller has left.
func (m *Meter) Fork(limit Gas) *Meter { return NewMeter(limit) }
