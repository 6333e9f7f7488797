// Package systemcontracts implements the three built-in contracts the
// engine installs at genesis and dispatches via
// executor.ExecSystemContract: mint, proof-of-stake, auction. They run
// under the same tracking-copy abstraction user wasm runs under, but as
// native Go rather than compiled wasm — spec.md §4.7's
// "DirectSystemContractCall" fast path. mint.go is grounded on
// core/coin.go's Coin manager (totalMinted bookkeeping, Mint/Transfer/
// Burn/BalanceOf, mutex-free here since a single tracking copy is never
// shared across goroutines), generalized from a single global supply cap
// to purse-scoped Balance keys addressed via key.DeriveBalanceKey.
package systemcontracts

import (
	"fmt"
	"math/big"

	"github.com/vireonet/txcore/internal/logging"
	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/trackingcopy"
)

var log = logging.For("systemcontracts")

// MintErrorCode enumerates spec.md §4.6's MintError variants.
type MintErrorCode uint8

const (
	MintErrNone MintErrorCode = iota
	MintErrInsufficientFunds
	MintErrSourceNotFound
	MintErrDestNotFound
	MintErrInvalidURefRights
	MintErrOverflow
)

func (c MintErrorCode) String() string {
	switch c {
	case MintErrInsufficientFunds:
		return "InsufficientFunds"
	case MintErrSourceNotFound:
		return "SourceNotFound"
	case MintErrDestNotFound:
		return "DestNotFound"
	case MintErrInvalidURefRights:
		return "InvalidURefRights"
	case MintErrOverflow:
		return "Overflow"
	default:
		return "None"
	}
}

// MintError wraps a MintErrorCode as a Go error, keeping the distinct
// u8-mapped variants spec.md requires rather than collapsing them into one
// generic error string.
type MintError struct{ Code MintErrorCode }

func (e *MintError) Error() string { return fmt.Sprintf("mint: %s", e.Code) }

// Mint owns purses (balances keyed by Key::Balance(purse_addr)). It is
// stateless in Go terms — every operation takes the tracking copy it
// should operate against, since a single Mint value is shared across every
// deploy in a block (spec.md §5: the engine core is single-threaded per
// request, so no internal locking is needed here).
type Mint struct{}

// CreatePurse generates a fresh URef via newAddr and initializes its
// balance to zero, matching "URef addresses are generated deterministically
// by a per-deploy AddressGenerator" (spec.md §4.4).
func (Mint) CreatePurse(tc *trackingcopy.TrackingCopy, newAddr func() [32]byte) (key.URefKey, error) {
	purse := key.URefKey{Addr: newAddr(), Rights: key.RightsReadAddWrite}
	if err := tc.Write(key.DeriveBalanceKey(purse), key.NewU512(big.NewInt(0))); err != nil {
		return key.URefKey{}, err
	}
	return purse, nil
}

// Mint creates a new purse and writes amount into it in one step — the
// mint(amount) -> URef entry point spec.md §4.6 names.
func (Mint) Mint(tc *trackingcopy.TrackingCopy, newAddr func() [32]byte, amount *big.Int) (key.URefKey, error) {
	purse, err := (Mint{}).CreatePurse(tc, newAddr)
	if err != nil {
		return key.URefKey{}, err
	}
	if err := tc.Write(key.DeriveBalanceKey(purse), key.NewU512(new(big.Int).Set(amount))); err != nil {
		return key.URefKey{}, err
	}
	log.WithField("amount", amount.String()).Info("mint: minted new purse")
	return purse, nil
}

// Balance reads a purse's U512 balance, the mapping spec.md invariant 3
// requires always be queryable via Key::Balance(purse_addr).
func (Mint) Balance(tc *trackingcopy.TrackingCopy, purse key.URefKey) (*big.Int, bool) {
	v, found, err := tc.Read(key.DeriveBalanceKey(purse))
	if err != nil || !found {
		return nil, false
	}
	cl, ok := v.(key.CLValue)
	if !ok || cl.Numeric == nil {
		return nil, false
	}
	return cl.Numeric, true
}

// MintInto adds amount directly to an existing purse's balance, minting
// new supply into circulation — the seigniorage-issuance primitive
// CommitStep's distribute phase uses to fund round rewards before handing
// them out to validators (spec.md §4.6, §10).
func (Mint) MintInto(tc *trackingcopy.TrackingCopy, purse key.URefKey, amount *big.Int) error {
	bal, ok := Mint{}.Balance(tc, purse)
	if !ok {
		return &MintError{Code: MintErrDestNotFound}
	}
	newBal := new(big.Int).Add(bal, amount)
	if newBal.BitLen() > 512 {
		return &MintError{Code: MintErrOverflow}
	}
	return tc.Write(key.DeriveBalanceKey(purse), key.NewU512(newBal))
}

// Burn permanently removes amount motes from purse's balance without
// crediting anywhere else — the slashing primitive the step protocol uses
// to destroy a faulty validator's stake (spec.md §4.6's Mint entry points,
// grounded on core/coin.go's Mint/Transfer/Burn/BalanceOf quartet).
func (Mint) Burn(tc *trackingcopy.TrackingCopy, purse key.URefKey, amount *big.Int) error {
	bal, ok := Mint{}.Balance(tc, purse)
	if !ok {
		return &MintError{Code: MintErrSourceNotFound}
	}
	if bal.Cmp(amount) < 0 {
		return &MintError{Code: MintErrInsufficientFunds}
	}
	return tc.Write(key.DeriveBalanceKey(purse), key.NewU512(new(big.Int).Sub(bal, amount)))
}

// Transfer moves amount motes from one purse to another, enforcing
// non-negative balances and returning the precise MintError variant spec.md
// §4.6 names on failure rather than a generic error.
func (Mint) Transfer(tc *trackingcopy.TrackingCopy, from, to key.URefKey, amount *big.Int) error {
	if !from.Rights.Has(key.RightsWrite) {
		return &MintError{Code: MintErrInvalidURefRights}
	}
	fromBal, ok := (Mint{}).Balance(tc, from)
	if !ok {
		return &MintError{Code: MintErrSourceNotFound}
	}
	if fromBal.Cmp(amount) < 0 {
		return &MintError{Code: MintErrInsufficientFunds}
	}
	toBal, ok := (Mint{}).Balance(tc, to)
	if !ok {
		return &MintError{Code: MintErrDestNotFound}
	}
	newFrom := new(big.Int).Sub(fromBal, amount)
	newTo := new(big.Int).Add(toBal, amount)
	if newTo.BitLen() > 512 {
		return &MintError{Code: MintErrOverflow}
	}
	if err := tc.Write(key.DeriveBalanceKey(from), key.NewU512(newFrom)); err != nil {
		return err
	}
	if err := tc.Write(key.DeriveBalanceKey(to), key.NewU512(newTo)); err != nil {
		return err
	}
	return nil
}
