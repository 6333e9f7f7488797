package systemcontracts

import (
	"math/big"
	"testing"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/trackingcopy"
	"github.com/vireonet/txcore/trie"
)

func newTC(t *testing.T) *trackingcopy.TrackingCopy {
	t.Helper()
	p := trie.NewMemStateProvider()
	reader, ok := p.Checkout(p.EmptyRoot())
	if !ok {
		t.Fatalf("expected empty root to check out")
	}
	return trackingcopy.New(reader)
}

func seqAddr(n byte) func() [32]byte {
	return func() [32]byte { return [32]byte{n} }
}

func TestMintCreatesZeroBalancePurse(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	purse, err := mint.CreatePurse(tc, seqAddr(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal, ok := mint.Balance(tc, purse)
	if !ok || bal.Sign() != 0 {
		t.Fatalf("expected a fresh purse to hold 0, got %v (found=%v)", bal, ok)
	}
}

func TestMintMintsRequestedAmount(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	purse, err := mint.Mint(tc, seqAddr(1), big.NewInt(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal, ok := mint.Balance(tc, purse)
	if !ok || bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected 500, got %v", bal)
	}
}

func TestBalanceOnUnknownPurseNotFound(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	_, ok := mint.Balance(tc, key.URefKey{Addr: [32]byte{9}})
	if ok {
		t.Fatalf("expected unknown purse to be not found")
	}
}

func TestTransferMovesBalanceBetweenPurses(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	from, err := mint.Mint(tc, seqAddr(1), big.NewInt(100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	to, err := mint.CreatePurse(tc, seqAddr(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mint.Transfer(tc, from, to, big.NewInt(40)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromBal, _ := mint.Balance(tc, from)
	toBal, _ := mint.Balance(tc, to)
	if fromBal.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected source to hold 60, got %v", fromBal)
	}
	if toBal.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected target to hold 40, got %v", toBal)
	}
}

func TestTransferInsufficientFundsIsRejected(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	from, _ := mint.Mint(tc, seqAddr(1), big.NewInt(10))
	to, _ := mint.CreatePurse(tc, seqAddr(2))
	err := mint.Transfer(tc, from, to, big.NewInt(11))
	mErr, ok := err.(*MintError)
	if !ok || mErr.Code != MintErrInsufficientFunds {
		t.Fatalf("expected MintErrInsufficientFunds, got %v", err)
	}
}

func TestTransferRequiresWriteRight(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	from, _ := mint.Mint(tc, seqAddr(1), big.NewInt(10))
	from.Rights = key.RightsRead
	to, _ := mint.CreatePurse(tc, seqAddr(2))
	err := mint.Transfer(tc, from, to, big.NewInt(1))
	mErr, ok := err.(*MintError)
	if !ok || mErr.Code != MintErrInvalidURefRights {
		t.Fatalf("expected MintErrInvalidURefRights, got %v", err)
	}
}

func TestTransferToUnknownPurseIsDestNotFound(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	from, _ := mint.Mint(tc, seqAddr(1), big.NewInt(10))
	err := mint.Transfer(tc, from, key.URefKey{Addr: [32]byte{250}, Rights: key.RightsReadAddWrite}, big.NewInt(1))
	mErr, ok := err.(*MintError)
	if !ok || mErr.Code != MintErrDestNotFound {
		t.Fatalf("expected MintErrDestNotFound, got %v", err)
	}
}

func TestMintIntoAddsToExistingBalance(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	purse, _ := mint.Mint(tc, seqAddr(1), big.NewInt(10))
	if err := mint.MintInto(tc, purse, big.NewInt(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal, _ := mint.Balance(tc, purse)
	if bal.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("expected 15, got %v", bal)
	}
}

func TestBurnRemovesBalanceWithoutCrediting(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	purse, _ := mint.Mint(tc, seqAddr(1), big.NewInt(10))
	if err := mint.Burn(tc, purse, big.NewInt(3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bal, _ := mint.Balance(tc, purse)
	if bal.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected 7, got %v", bal)
	}
}

func TestBurnMoreThanBalanceIsInsufficientFunds(t *testing.T) {
	tc := newTC(t)
	mint := Mint{}
	purse, _ := mint.Mint(tc, seqAddr(1), big.NewInt(1))
	err := mint.Burn(tc, purse, big.NewInt(2))
	mErr, ok := err.(*MintError)
	if !ok || mErr.Code != MintErrInsufficientFunds {
		t.Fatalf("expected MintErrInsufficientFunds, got %v", err)
	}
}
