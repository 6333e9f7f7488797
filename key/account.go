package key

// Account is the convenience view over an AccountValue used by callers that
// need to reason about authorization without re-deriving it from the
// stored value each time (executor and systemcontracts packages).
type Account struct {
	AccountHash [32]byte
	NamedKeys   map[string]Key
	MainPurse   URefKey
	Associated  map[[32]byte]uint8
	Thresholds  ActionThresholds
}

// FromValue builds an Account view from its StoredValue form.
func FromValue(v AccountValue) Account {
	return Account{
		AccountHash: v.AccountHash,
		NamedKeys:   v.NamedKeys,
		MainPurse:   v.MainPurse,
		Associated:  v.AssociatedKeys,
		Thresholds:  v.ActionThreshold,
	}
}

// ToValue projects the Account back to its persisted StoredValue form.
func (a Account) ToValue() AccountValue {
	return AccountValue{
		AccountHash:     a.AccountHash,
		NamedKeys:       a.NamedKeys,
		MainPurse:       a.MainPurse,
		AssociatedKeys:  a.Associated,
		ActionThreshold: a.Thresholds,
	}
}

// AuthorizationWeight sums the weights of the given authorizing keys that
// are actually associated with this account; keys not present contribute
// zero, matching the casper-node rule that only known associated keys
// count toward a deploy's signing weight.
func (a Account) AuthorizationWeight(authKeys [][32]byte) uint32 {
	var total uint32
	seen := make(map[[32]byte]bool, len(authKeys))
	for _, k := range authKeys {
		if seen[k] {
			continue
		}
		seen[k] = true
		total += uint32(a.Associated[k])
	}
	return total
}

// CanAuthorizeDeployment reports whether authKeys together meet this
// account's deployment threshold.
func (a Account) CanAuthorizeDeployment(authKeys [][32]byte) bool {
	return a.AuthorizationWeight(authKeys) >= uint32(a.Thresholds.Deployment)
}

// CanAuthorizeKeyManagement reports whether authKeys together meet this
// account's key-management threshold, the stricter gate guarding changes
// to the account's own associated keys and thresholds.
func (a Account) CanAuthorizeKeyManagement(authKeys [][32]byte) bool {
	return a.AuthorizationWeight(authKeys) >= uint32(a.Thresholds.KeyManagement)
}

// NamedKey looks up a key by name, the resolution step every GetKey host
// function call and named-path trackingcopy query performs.
func (a Account) NamedKey(name string) (Key, bool) {
	k, ok := a.NamedKeys[name]
	return k, ok
}
