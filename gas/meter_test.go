package gas

import "testing"

func TestMeterConsumeWithinLimit(t *testing.T) {
	m := NewMeter(NewGas(100))
	if err := m.Consume(NewGas(30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Used().Uint64() != 30 {
		t.Fatalf("expected used=30, got %d", m.Used().Uint64())
	}
	if m.Remaining().Uint64() != 70 {
		t.Fatalf("expected remaining=70, got %d", m.Remaining().Uint64())
	}
}

func TestMeterConsumeOutOfGas(t *testing.T) {
	m := NewMeter(NewGas(10))
	if err := m.Consume(NewGas(11)); err != ErrOutOfGas {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
	if m.Used().Uint64() != 0 {
		t.Fatalf("a failed charge must not mutate used gas, got %d", m.Used().Uint64())
	}
}

func TestMeterConsumeExactlyAtLimitSucceeds(t *testing.T) {
	m := NewMeter(NewGas(10))
	if err := m.Consume(NewGas(10)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Remaining().Uint64() != 0 {
		t.Fatalf("expected remaining=0, got %d", m.Remaining().Uint64())
	}
}

func TestMeterForkIsIndependent(t *testing.T) {
	parent := NewMeter(NewGas(100))
	parent.Consume(NewGas(40))
	child := parent.Fork(NewGas(20))
	child.Consume(NewGas(20))
	if parent.Used().Uint64() != 40 {
		t.Fatalf("fork must not affect parent usage, got %d", parent.Used().Uint64())
	}
	if child.Remaining().Uint64() != 0 {
		t.Fatalf("expected child to be fully spent, got %d", child.Remaining().Uint64())
	}
}
