package trackingcopy

import (
	"math/big"
	"testing"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/trie"
)

func newReader(t *testing.T, seed func(changes *key.AdditiveMap)) (trie.Reader, *trie.MemStateProvider) {
	t.Helper()
	p := trie.NewMemStateProvider()
	root := p.EmptyRoot()
	changes := key.NewAdditiveMap()
	seed(changes)
	result := p.Commit(root, changes)
	if result.Kind != trie.CommitSuccess {
		t.Fatalf("seed commit failed: %s", result.Kind)
	}
	reader, ok := p.Checkout(result.Root)
	if !ok {
		t.Fatalf("expected seeded root to check out")
	}
	return reader, p
}

func TestReadSeesUnderlyingStore(t *testing.T) {
	k := key.AccountKey{Addr: [32]byte{1}}
	reader, _ := newReader(t, func(c *key.AdditiveMap) {
		c.Insert(k, key.Write{Value: key.NewU512(big.NewInt(42))})
	})
	tc := New(reader)
	v, found, err := tc.Read(k)
	if err != nil || !found {
		t.Fatalf("expected to find seeded value, err=%v found=%v", err, found)
	}
	if v.(key.CLValue).Numeric.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected 42, got %v", v)
	}
}

func TestWriteIsVisibleBeforeCommit(t *testing.T) {
	reader, _ := newReader(t, func(c *key.AdditiveMap) {})
	tc := New(reader)
	k := key.AccountKey{Addr: [32]byte{1}}
	if err := tc.Write(k, key.NewU512(big.NewInt(7))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, found, err := tc.Read(k)
	if err != nil || !found {
		t.Fatalf("expected pending write to be visible, err=%v found=%v", err, found)
	}
	if v.(key.CLValue).Numeric.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected 7, got %v", v)
	}
}

func TestRepeatedWritesCollapseToLatest(t *testing.T) {
	reader, _ := newReader(t, func(c *key.AdditiveMap) {})
	tc := New(reader)
	k := key.AccountKey{Addr: [32]byte{1}}
	tc.Write(k, key.NewU512(big.NewInt(1)))
	tc.Write(k, key.NewU512(big.NewInt(2)))
	effect := tc.Effect()
	if effect.Transforms.Len() != 1 {
		t.Fatalf("expected a single collapsed transform, got %d", effect.Transforms.Len())
	}
	v, _, _ := tc.Read(k)
	if v.(key.CLValue).Numeric.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("expected latest write (2) to win, got %v", v)
	}
}

func TestAddAccumulatesOnUnderlyingValue(t *testing.T) {
	k := key.AccountKey{Addr: [32]byte{1}}
	reader, _ := newReader(t, func(c *key.AdditiveMap) {
		c.Insert(k, key.Write{Value: key.NewU512(big.NewInt(10))})
	})
	tc := New(reader)
	if err := tc.Add(k, key.AddUInt512(big.NewInt(5))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, found, err := tc.Read(k)
	if err != nil || !found {
		t.Fatalf("expected to find value, err=%v found=%v", err, found)
	}
	if v.(key.CLValue).Numeric.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("expected 15, got %v", v)
	}
}

func TestAddOnAbsentKeySurfacesErrorOnRead(t *testing.T) {
	reader, _ := newReader(t, func(c *key.AdditiveMap) {})
	tc := New(reader)
	k := key.AccountKey{Addr: [32]byte{9}}
	tc.Add(k, key.AddUInt64(1))
	if _, _, err := tc.Read(k); err != key.ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestForkIsolatesMutations(t *testing.T) {
	reader, _ := newReader(t, func(c *key.AdditiveMap) {})
	tc := New(reader)
	k := key.AccountKey{Addr: [32]byte{1}}
	tc.Write(k, key.NewU512(big.NewInt(1)))

	child := tc.Fork()
	child.Write(k, key.NewU512(big.NewInt(99)))

	parentVal, _, _ := tc.Read(k)
	if parentVal.(key.CLValue).Numeric.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("fork mutation leaked into parent: got %v", parentVal)
	}
	childVal, _, _ := child.Read(k)
	if childVal.(key.CLValue).Numeric.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("expected child to see its own write, got %v", childVal)
	}
}

func TestEffectOpsRecordsStrongestOp(t *testing.T) {
	k := key.AccountKey{Addr: [32]byte{1}}
	reader, _ := newReader(t, func(c *key.AdditiveMap) {
		c.Insert(k, key.Write{Value: key.NewU512(big.NewInt(1))})
	})
	tc := New(reader)
	tc.Read(k)
	tc.Write(k, key.NewU512(big.NewInt(2)))
	entries := tc.Effect().Ops.Entries()
	if len(entries) != 1 || entries[0].Op != OpWrite {
		t.Fatalf("expected a single Write op to survive the Read, got %v", entries)
	}
}

func TestQueryDescendsNamedKeys(t *testing.T) {
	targetKey := key.HashKey{Hash: [32]byte{5}}
	accountKey := key.AccountKey{Addr: [32]byte{1}}
	reader, _ := newReader(t, func(c *key.AdditiveMap) {
		c.Insert(accountKey, key.Write{Value: key.AccountValue{
			NamedKeys: map[string]key.Key{"purse": targetKey},
		}})
		c.Insert(targetKey, key.Write{Value: key.NewU512(big.NewInt(7))})
	})
	tc := New(reader)
	result := tc.Query(accountKey, []string{"purse"})
	if result.Kind != QuerySuccess {
		t.Fatalf("expected QuerySuccess, got %s", result.Kind)
	}
	if result.Value.(key.CLValue).Numeric.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected 7, got %v", result.Value)
	}
}

func TestQueryMissingNameIsValueNotFound(t *testing.T) {
	accountKey := key.AccountKey{Addr: [32]byte{1}}
	reader, _ := newReader(t, func(c *key.AdditiveMap) {
		c.Insert(accountKey, key.Write{Value: key.AccountValue{NamedKeys: map[string]key.Key{}}})
	})
	tc := New(reader)
	result := tc.Query(accountKey, []string{"missing"})
	if result.Kind != QueryValueNotFound {
		t.Fatalf("expected QueryValueNotFound, got %s", result.Kind)
	}
}

func TestQueryDepthLimit(t *testing.T) {
	accountKey := key.AccountKey{Addr: [32]byte{1}}
	reader, _ := newReader(t, func(c *key.AdditiveMap) {
		c.Insert(accountKey, key.Write{Value: key.AccountValue{
			NamedKeys: map[string]key.Key{"self": accountKey},
		}})
	})
	tc := New(reader)
	tc.DepthLimit = 1
	path := make([]string, 5)
	for i := range path {
		path[i] = "self"
	}
	result := tc.Query(accountKey, path)
	if result.Kind != QueryDepthLimit {
		t.Fatalf("expected QueryDepthLimit, got %s", result.Kind)
	}
}

func TestQueryCircularReference(t *testing.T) {
	a := key.AccountKey{Addr: [32]byte{1}}
	b := key.HashKey{Hash: [32]byte{2}}
	reader, _ := newReader(t, func(c *key.AdditiveMap) {
		c.Insert(a, key.Write{Value: key.AccountValue{NamedKeys: map[string]key.Key{"next": b}}})
		c.Insert(b, key.Write{Value: key.ContractValue{NamedKeys: map[string]key.Key{"back": a}}})
	})
	tc := New(reader)
	tc.DepthLimit = 100
	result := tc.Query(a, []string{"next", "back", "next"})
	if result.Kind != QueryCircularReference {
		t.Fatalf("expected QueryCircularReference, got %s", result.Kind)
	}
}
