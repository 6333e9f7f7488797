package key

import "testing"

func TestAuthorizationWeightIgnoresUnknownAndDuplicateKeys(t *testing.T) {
	known := [32]byte{1}
	unknown := [32]byte{2}
	a := Account{Associated: map[[32]byte]uint8{known: 5}}
	if w := a.AuthorizationWeight([][32]byte{known, known, unknown}); w != 5 {
		t.Fatalf("expected weight 5, got %d", w)
	}
}

func TestCanAuthorizeDeploymentAndKeyManagement(t *testing.T) {
	k := [32]byte{1}
	a := Account{
		Associated: map[[32]byte]uint8{k: 3},
		Thresholds: ActionThresholds{Deployment: 2, KeyManagement: 5},
	}
	if !a.CanAuthorizeDeployment([][32]byte{k}) {
		t.Fatalf("weight 3 should authorize deployment threshold 2")
	}
	if a.CanAuthorizeKeyManagement([][32]byte{k}) {
		t.Fatalf("weight 3 should not authorize key-management threshold 5")
	}
}

func TestFromValueToValueRoundTrip(t *testing.T) {
	v := AccountValue{
		AccountHash:     [32]byte{9},
		NamedKeys:       map[string]Key{"purse": HashKey{Hash: [32]byte{1}}},
		MainPurse:       URefKey{Addr: [32]byte{2}, Rights: RightsReadAddWrite},
		AssociatedKeys:  map[[32]byte]uint8{{1}: 1},
		ActionThreshold: ActionThresholds{Deployment: 1, KeyManagement: 1},
	}
	a := FromValue(v)
	back := a.ToValue()
	if back.AccountHash != v.AccountHash {
		t.Fatalf("round trip lost AccountHash")
	}
	if len(back.NamedKeys) != 1 {
		t.Fatalf("round trip lost NamedKeys")
	}
}

func TestNamedKeyLookup(t *testing.T) {
	a := Account{NamedKeys: map[string]Key{"foo": HashKey{Hash: [32]byte{1}}}}
	if _, ok := a.NamedKey("missing"); ok {
		t.Fatalf("expected missing key lookup to fail")
	}
	if _, ok := a.NamedKey("foo"); !ok {
		t.Fatalf("expected foo to be found")
	}
}
