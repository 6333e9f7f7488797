package key

import (
	"fmt"

	"github.com/vireonet/txcore/bytesrepr"
)

// Tag identifies a Key variant. Values match the order spec.md lists them
// in so cross-implementation byte encodings agree.
type Tag byte

const (
	TagAccount Tag = iota
	TagHash
	TagURef
	TagTransfer
	TagDeployInfo
	TagEraInfo
	TagBalance
	TagBid
	TagWithdraw
)

// Key is the tagged-sum key type: Account, Hash, URef, Transfer, DeployInfo,
// EraInfo, Balance, Bid, Withdraw. Concrete variants implement it below.
// Bytes returns the canonical trie-path encoding: tag byte followed by the
// variant's fixed-width payload, matching bytesrepr's "no two distinct byte
// sequences decode equal" requirement.
type Key interface {
	Tag() Tag
	Bytes() []byte
	String() string
}

type AccountKey struct{ Addr [32]byte }

func (k AccountKey) Tag() Tag  { return TagAccount }
func (k AccountKey) Bytes() []byte {
	w := bytesrepr.NewWriter(33)
	w.PutU8(byte(TagAccount))
	w.PutFixedBytes(k.Addr[:])
	return w.Bytes()
}
func (k AccountKey) String() string { return fmt.Sprintf("Key::Account(%x)", k.Addr) }

type HashKey struct{ Hash [32]byte }

func (k HashKey) Tag() Tag { return TagHash }
func (k HashKey) Bytes() []byte {
	w := bytesrepr.NewWriter(33)
	w.PutU8(byte(TagHash))
	w.PutFixedBytes(k.Hash[:])
	return w.Bytes()
}
func (k HashKey) String() string { return fmt.Sprintf("Key::Hash(%x)", k.Hash) }

type URefKey struct {
	Addr   [32]byte
	Rights Rights
}

func (k URefKey) Tag() Tag { return TagURef }
func (k URefKey) Bytes() []byte {
	w := bytesrepr.NewWriter(34)
	w.PutU8(byte(TagURef))
	w.PutFixedBytes(k.Addr[:])
	w.PutU8(byte(k.Rights))
	return w.Bytes()
}
func (k URefKey) String() string {
	return fmt.Sprintf("Key::URef(%x, %s)", k.Addr, k.Rights)
}

// WithRights returns a copy of the URef with different access rights. URefs
// that compare equal for trie purposes ignore rights per spec.md's data
// model (rights gate host-function authorization, not storage identity);
// IdentityBytes below strips rights for that comparison.
func (k URefKey) WithRights(r Rights) URefKey {
	k.Rights = r
	return k
}

// IdentityBytes is the rights-independent encoding of the URef's address,
// used to derive e.g. balance keys where rights must not affect the result.
func (k URefKey) IdentityBytes() []byte {
	out := make([]byte, 32)
	copy(out, k.Addr[:])
	return out
}

type TransferKey struct{ Hash [32]byte }

func (k TransferKey) Tag() Tag { return TagTransfer }
func (k TransferKey) Bytes() []byte {
	w := bytesrepr.NewWriter(33)
	w.PutU8(byte(TagTransfer))
	w.PutFixedBytes(k.Hash[:])
	return w.Bytes()
}
func (k TransferKey) String() string { return fmt.Sprintf("Key::Transfer(%x)", k.Hash) }

type DeployInfoKey struct{ Hash [32]byte }

func (k DeployInfoKey) Tag() Tag { return TagDeployInfo }
func (k DeployInfoKey) Bytes() []byte {
	w := bytesrepr.NewWriter(33)
	w.PutU8(byte(TagDeployInfo))
	w.PutFixedBytes(k.Hash[:])
	return w.Bytes()
}
func (k DeployInfoKey) String() string { return fmt.Sprintf("Key::DeployInfo(%x)", k.Hash) }

type EraInfoKey struct{ Era uint64 }

func (k EraInfoKey) Tag() Tag { return TagEraInfo }
func (k EraInfoKey) Bytes() []byte {
	w := bytesrepr.NewWriter(9)
	w.PutU8(byte(TagEraInfo))
	w.PutU64(k.Era)
	return w.Bytes()
}
func (k EraInfoKey) String() string { return fmt.Sprintf("Key::EraInfo(%d)", k.Era) }

type BalanceKey struct{ PurseAddr [32]byte }

func (k BalanceKey) Tag() Tag { return TagBalance }
func (k BalanceKey) Bytes() []byte {
	w := bytesrepr.NewWriter(33)
	w.PutU8(byte(TagBalance))
	w.PutFixedBytes(k.PurseAddr[:])
	return w.Bytes()
}
func (k BalanceKey) String() string { return fmt.Sprintf("Key::Balance(%x)", k.PurseAddr) }

// DeriveBalanceKey computes the Balance key for a purse exactly as spec.md
// §6 mandates: Blake2b(URef-addr || "balance"), so independent
// implementations agree on the mapping.
func DeriveBalanceKey(purse URefKey) BalanceKey {
	buf := append(purse.IdentityBytes(), []byte("balance")...)
	return BalanceKey{PurseAddr: Blake2b256(buf)}
}

type BidKey struct{ Addr [32]byte }

func (k BidKey) Tag() Tag { return TagBid }
func (k BidKey) Bytes() []byte {
	w := bytesrepr.NewWriter(33)
	w.PutU8(byte(TagBid))
	w.PutFixedBytes(k.Addr[:])
	return w.Bytes()
}
func (k BidKey) String() string { return fmt.Sprintf("Key::Bid(%x)", k.Addr) }

type WithdrawKey struct{ Addr [32]byte }

func (k WithdrawKey) Tag() Tag { return TagWithdraw }
func (k WithdrawKey) Bytes() []byte {
	w := bytesrepr.NewWriter(33)
	w.PutU8(byte(TagWithdraw))
	w.PutFixedBytes(k.Addr[:])
	return w.Bytes()
}
func (k WithdrawKey) String() string { return fmt.Sprintf("Key::Withdraw(%x)", k.Addr) }

// ParseKey decodes a canonical key encoding produced by Bytes, the inverse
// every host-function boundary needs: contract code passes raw key bytes
// across the wasm memory boundary and the runtime must recover a typed Key
// before touching the tracking copy.
func ParseKey(b []byte) (Key, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("key: empty key encoding")
	}
	tag := Tag(b[0])
	rest := b[1:]
	need := func(n int) error {
		if len(rest) < n {
			return fmt.Errorf("key: truncated %s encoding", tag)
		}
		return nil
	}
	var addr [32]byte
	switch tag {
	case TagAccount:
		if err := need(32); err != nil {
			return nil, err
		}
		copy(addr[:], rest)
		return AccountKey{Addr: addr}, nil
	case TagHash:
		if err := need(32); err != nil {
			return nil, err
		}
		copy(addr[:], rest)
		return HashKey{Hash: addr}, nil
	case TagURef:
		if err := need(33); err != nil {
			return nil, err
		}
		copy(addr[:], rest[:32])
		return URefKey{Addr: addr, Rights: Rights(rest[32])}, nil
	case TagTransfer:
		if err := need(32); err != nil {
			return nil, err
		}
		copy(addr[:], rest)
		return TransferKey{Hash: addr}, nil
	case TagDeployInfo:
		if err := need(32); err != nil {
			return nil, err
		}
		copy(addr[:], rest)
		return DeployInfoKey{Hash: addr}, nil
	case TagEraInfo:
		if err := need(8); err != nil {
			return nil, err
		}
		era, err := bytesrepr.NewReader(rest[:8]).U64()
		if err != nil {
			return nil, err
		}
		return EraInfoKey{Era: era}, nil
	case TagBalance:
		if err := need(32); err != nil {
			return nil, err
		}
		copy(addr[:], rest)
		return BalanceKey{PurseAddr: addr}, nil
	case TagBid:
		if err := need(32); err != nil {
			return nil, err
		}
		copy(addr[:], rest)
		return BidKey{Addr: addr}, nil
	case TagWithdraw:
		if err := need(32); err != nil {
			return nil, err
		}
		copy(addr[:], rest)
		return WithdrawKey{Addr: addr}, nil
	default:
		return nil, fmt.Errorf("key: unknown tag %d", tag)
	}
}

// Equal compares two keys by their canonical encoding.
func Equal(a, b Key) bool {
	ab, bb := a.Bytes(), b.Bytes()
	if len(ab) != len(bb) {
		return false
	}
	for i := range ab {
		if ab[i] != bb[i] {
			return false
		}
	}
	return true
}
