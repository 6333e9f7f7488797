package trie

import (
	"math/big"
	"testing"

	"github.com/vireonet/txcore/key"
)

func TestEmptyRootCommitIsIdempotent(t *testing.T) {
	p := NewMemStateProvider()
	root := p.EmptyRoot()
	result := p.Commit(root, key.NewAdditiveMap())
	if result.Kind != CommitSuccess {
		t.Fatalf("expected CommitSuccess, got %s", result.Kind)
	}
	if result.Root != root {
		t.Fatalf("commit of empty delta must return the same root")
	}
}

func TestCommitRootNotFound(t *testing.T) {
	p := NewMemStateProvider()
	result := p.Commit(key.Hash{0xFF}, key.NewAdditiveMap())
	if result.Kind != CommitRootNotFound {
		t.Fatalf("expected CommitRootNotFound, got %s", result.Kind)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	p := NewMemStateProvider()
	root := p.EmptyRoot()

	k := key.AccountKey{Addr: [32]byte{1, 2, 3}}
	v := key.NewU512(big.NewInt(500))

	changes := key.NewAdditiveMap()
	if err := changes.Insert(k, key.Write{Value: v}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := p.Commit(root, changes)
	if result.Kind != CommitSuccess {
		t.Fatalf("expected CommitSuccess, got %s: %v", result.Kind, result.Err)
	}

	reader, ok := p.Checkout(result.Root)
	if !ok {
		t.Fatalf("expected the new root to be checked out")
	}
	got, found := reader.Get(k)
	if !found {
		t.Fatalf("expected to find the written key")
	}
	if got.(key.CLValue).Numeric.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected 500, got %v", got)
	}

	// The original root must remain untouched.
	origReader, _ := p.Checkout(root)
	if _, found := origReader.Get(k); found {
		t.Fatalf("writes must not be visible from the original root")
	}
}

func TestCommitDeterminismAcrossIndependentStores(t *testing.T) {
	build := func() key.Hash {
		p := NewMemStateProvider()
		root := p.EmptyRoot()
		changes := key.NewAdditiveMap()
		changes.Insert(key.AccountKey{Addr: [32]byte{1}}, key.Write{Value: key.NewU512(big.NewInt(1))})
		changes.Insert(key.AccountKey{Addr: [32]byte{2}}, key.Write{Value: key.NewU512(big.NewInt(2))})
		changes.Insert(key.HashKey{Hash: [32]byte{3}}, key.Write{Value: key.NewU512(big.NewInt(3))})
		result := p.Commit(root, changes)
		return result.Root
	}
	a, b := build(), build()
	if a != b {
		t.Fatalf("two stores committing the same changes from the same base must produce the same root")
	}
}

func TestMultipleKeysOfDifferentTagsCoexist(t *testing.T) {
	p := NewMemStateProvider()
	root := p.EmptyRoot()
	changes := key.NewAdditiveMap()
	accountKey := key.AccountKey{Addr: [32]byte{9}}
	eraKey := key.EraInfoKey{Era: 7}
	changes.Insert(accountKey, key.Write{Value: key.NewU512(big.NewInt(10))})
	changes.Insert(eraKey, key.Write{Value: key.NewU512(big.NewInt(20))})

	result := p.Commit(root, changes)
	if result.Kind != CommitSuccess {
		t.Fatalf("expected success, got %s: %v", result.Kind, result.Err)
	}
	reader, _ := p.Checkout(result.Root)
	a, ok := reader.Get(accountKey)
	if !ok || a.(key.CLValue).Numeric.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("expected account value 10, got %v (found=%v)", a, ok)
	}
	e, ok := reader.Get(eraKey)
	if !ok || e.(key.CLValue).Numeric.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("expected era value 20, got %v (found=%v)", e, ok)
	}
}

func TestAddOnAbsentKeyIsKeyNotFound(t *testing.T) {
	p := NewMemStateProvider()
	root := p.EmptyRoot()
	changes := key.NewAdditiveMap()
	changes.Insert(key.AccountKey{Addr: [32]byte{1}}, key.AddUInt64(5))

	result := p.Commit(root, changes)
	if result.Kind != CommitKeyNotFound {
		t.Fatalf("expected CommitKeyNotFound, got %s", result.Kind)
	}
}

func TestAddAfterWriteSucceeds(t *testing.T) {
	p := NewMemStateProvider()
	root := p.EmptyRoot()
	k := key.AccountKey{Addr: [32]byte{1}}

	first := key.NewAdditiveMap()
	first.Insert(k, key.Write{Value: key.NewU512(big.NewInt(100))})
	r1 := p.Commit(root, first)
	if r1.Kind != CommitSuccess {
		t.Fatalf("expected success, got %s", r1.Kind)
	}

	second := key.NewAdditiveMap()
	second.Insert(k, key.AddUInt512(big.NewInt(50)))
	r2 := p.Commit(r1.Root, second)
	if r2.Kind != CommitSuccess {
		t.Fatalf("expected success, got %s: %v", r2.Kind, r2.Err)
	}

	reader, _ := p.Checkout(r2.Root)
	got, _ := reader.Get(k)
	if got.(key.CLValue).Numeric.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("expected 150, got %v", got.(key.CLValue).Numeric)
	}
}

func TestMissingTrieKeysOnKnownRootIsEmpty(t *testing.T) {
	p := NewMemStateProvider()
	root := p.EmptyRoot()
	changes := key.NewAdditiveMap()
	changes.Insert(key.AccountKey{Addr: [32]byte{1}}, key.Write{Value: key.NewU512(big.NewInt(1))})
	result := p.Commit(root, changes)
	if missing := p.MissingTrieKeys(result.Root); len(missing) != 0 {
		t.Fatalf("expected no missing keys for a fully-known root, got %v", missing)
	}
}

func TestMissingTrieKeysOnUnknownRoot(t *testing.T) {
	p := NewMemStateProvider()
	unknown := key.Hash{0xAB}
	missing := p.MissingTrieKeys(unknown)
	if len(missing) != 1 || missing[0] != unknown {
		t.Fatalf("expected the unknown root itself reported missing, got %v", missing)
	}
}

func TestProtocolDataIsAppendOnly(t *testing.T) {
	p := NewMemStateProvider()
	v := key.ProtocolVersion{Major: 1}
	p.PutProtocolData(key.ProtocolData{Version: v, SystemConfig: key.SystemConfig{ConvRate: 1}})
	p.PutProtocolData(key.ProtocolData{Version: v, SystemConfig: key.SystemConfig{ConvRate: 999}})

	got, ok := p.GetProtocolData(v)
	if !ok {
		t.Fatalf("expected protocol data to be found")
	}
	if got.SystemConfig.ConvRate != 1 {
		t.Fatalf("expected the first write to stick, got ConvRate=%d", got.SystemConfig.ConvRate)
	}
}
