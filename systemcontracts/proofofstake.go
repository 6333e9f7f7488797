package systemcontracts

import (
	"errors"
	"math/big"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/trackingcopy"
)

// Errors a ProofOfStake call can return. These map onto spec.md §4.8's
// finalize_payment preconditions.
var (
	ErrNoActivePaymentPurse = errors.New("proofofstake: no active payment purse for this deploy")
	ErrSpentAmountExceedsPayment = errors.New("proofofstake: spent amount exceeds payment purse balance")
)

// Each system contract stores its persistent state in the
// NamedKeys map of the ContractValue sitting at Key::Hash(contractAddr) —
// the trie has no key-enumeration primitive (trie/provider.go only supports
// point reads by path), so every piece of system-contract state that isn't
// itself a purse balance is addressed indirectly through a named key,
// grounded on how casper-node's system contracts keep "bonding purse",
// "payment purse" etc as named URefs rather than first-class StoredValue
// variants.
const (
	nkPaymentPurse = "pos_payment_purse"
	nkRefundPurse  = "pos_refund_purse"
	nkRewardsPurse = "pos_rewards_purse"
)

// loadNamedKeys reads the NamedKeys map for the contract stored at
// contractAddr, returning an empty map (not an error) if the contract has
// never recorded any named keys yet.
func loadNamedKeys(tc *trackingcopy.TrackingCopy, contractAddr [32]byte) (map[string]key.Key, error) {
	v, found, err := tc.Read(key.HashKey{Hash: contractAddr})
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]key.Key{}, nil
	}
	cv, ok := v.(key.ContractValue)
	if !ok {
		return nil, errors.New("proofofstake: contract slot holds a non-contract value")
	}
	if cv.NamedKeys == nil {
		return map[string]key.Key{}, nil
	}
	return cv.NamedKeys, nil
}

// storeNamedKeys writes named back into the contract's NamedKeys map,
// preserving whatever WasmHash/EntryPoints/ProtocolVersion it already had.
func storeNamedKeys(tc *trackingcopy.TrackingCopy, contractAddr [32]byte, named map[string]key.Key) error {
	v, found, err := tc.Read(key.HashKey{Hash: contractAddr})
	if err != nil {
		return err
	}
	cv, _ := v.(key.ContractValue)
	if !found {
		cv = key.ContractValue{WasmHash: contractAddr}
	}
	cv.NamedKeys = named
	return tc.Write(key.HashKey{Hash: contractAddr}, cv)
}

// ProofOfStake manages the payment/refund purse pair every deploy's
// finalize phase consults, plus the bonding/rewards purses the auction
// contract settles into at era rotation. Like Mint it is stateless in Go
// terms; contractAddr identifies which deployed instance's named keys to
// read and write (spec.md §4.7 allows exactly one active instance per
// protocol version, resolved via ProtocolData.ProofOfStakeHash).
type ProofOfStake struct{ ContractAddr [32]byte }

// GetPaymentPurse resolves the purse the payment phase deposited its
// payment amount into for this deploy. The executor calls CreatePurse and
// records it here before running the payment phase; absence here means no
// payment phase has run yet for the current deploy.
func (p ProofOfStake) GetPaymentPurse(tc *trackingcopy.TrackingCopy) (key.URefKey, bool, error) {
	named, err := loadNamedKeys(tc, p.ContractAddr)
	if err != nil {
		return key.URefKey{}, false, err
	}
	k, ok := named[nkPaymentPurse]
	if !ok {
		return key.URefKey{}, false, nil
	}
	uref, ok := k.(key.URefKey)
	return uref, ok, nil
}

// SetPaymentPurse records purse as this deploy's active payment purse,
// called once per deploy at the start of the payment phase.
func (p ProofOfStake) SetPaymentPurse(tc *trackingcopy.TrackingCopy, purse key.URefKey) error {
	named, err := loadNamedKeys(tc, p.ContractAddr)
	if err != nil {
		return err
	}
	named[nkPaymentPurse] = purse
	return storeNamedKeys(tc, p.ContractAddr, named)
}

// SetRefundPurse records the purse a deploy asked to receive its unspent
// gas refund, the entry point named in spec.md §4.8's finalize_payment
// precedence rule (SPEC_FULL.md §12.2): refund_purse if set, else the
// account's main purse.
func (p ProofOfStake) SetRefundPurse(tc *trackingcopy.TrackingCopy, purse key.URefKey) error {
	named, err := loadNamedKeys(tc, p.ContractAddr)
	if err != nil {
		return err
	}
	named[nkRefundPurse] = purse
	return storeNamedKeys(tc, p.ContractAddr, named)
}

// GetRefundPurse returns the explicitly-set refund purse for this deploy,
// if any.
func (p ProofOfStake) GetRefundPurse(tc *trackingcopy.TrackingCopy) (key.URefKey, bool, error) {
	named, err := loadNamedKeys(tc, p.ContractAddr)
	if err != nil {
		return key.URefKey{}, false, err
	}
	k, ok := named[nkRefundPurse]
	if !ok {
		return key.URefKey{}, false, nil
	}
	uref, ok := k.(key.URefKey)
	return uref, ok, nil
}

// ClearDeployState removes the per-deploy payment/refund purse records
// after finalize_payment completes, so a stale payment purse from a prior
// deploy can never leak into the next one's finalize phase.
func (p ProofOfStake) ClearDeployState(tc *trackingcopy.TrackingCopy) error {
	named, err := loadNamedKeys(tc, p.ContractAddr)
	if err != nil {
		return err
	}
	delete(named, nkPaymentPurse)
	delete(named, nkRefundPurse)
	return storeNamedKeys(tc, p.ContractAddr, named)
}

// FinalizePayment is the PoS entry point the executor calls once per deploy
// after the session phase completes, settling the payment purse between
// targetPurse (the block proposer's purse, per spec.md §4.6's
// finalize_payment(amount, account, target_purse)) and the refund
// destination. spentAmount is the gas actually consumed converted to
// motes; account is nil when the caller is the system itself (the
// Option[*Account] SYSTEM_ACCOUNT model recorded in DESIGN.md's Open
// Question decisions) — in that case the account's main purse can never be
// the refund fallback and an explicit refund purse is mandatory.
func (p ProofOfStake) FinalizePayment(tc *trackingcopy.TrackingCopy, account *key.Account, targetPurse key.URefKey, spentAmount *big.Int) error {
	paymentPurse, ok, err := p.GetPaymentPurse(tc)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoActivePaymentPurse
	}
	total, ok := Mint{}.Balance(tc, paymentPurse)
	if !ok {
		return ErrNoActivePaymentPurse
	}
	if spentAmount.Cmp(total) > 0 {
		return ErrSpentAmountExceedsPayment
	}

	if spentAmount.Sign() > 0 {
		if err := Mint{}.Transfer(tc, paymentPurse, targetPurse, spentAmount); err != nil {
			return err
		}
	}

	refund := new(big.Int).Sub(total, spentAmount)
	if refund.Sign() > 0 {
		refundPurse, hasRefund, err := p.GetRefundPurse(tc)
		if err != nil {
			return err
		}
		if !hasRefund {
			if account == nil {
				return errors.New("proofofstake: system context has no refund destination")
			}
			refundPurse = account.MainPurse
		}
		if err := Mint{}.Transfer(tc, paymentPurse, refundPurse, refund); err != nil {
			return err
		}
	}
	log.WithField("spent", spentAmount.String()).WithField("refund", refund.String()).Info("proofofstake: finalized payment")
	return p.ClearDeployState(tc)
}

// SetRewardsPurse configures the purse the step protocol's distribute
// phase mints round seigniorage into before crediting validators; called
// once at genesis installation.
func (p ProofOfStake) SetRewardsPurse(tc *trackingcopy.TrackingCopy, purse key.URefKey) error {
	named, err := loadNamedKeys(tc, p.ContractAddr)
	if err != nil {
		return err
	}
	named[nkRewardsPurse] = purse
	return storeNamedKeys(tc, p.ContractAddr, named)
}

// RewardsPurse returns the configured rewards purse, read by
// engine.CommitStep before minting a round's seigniorage into it.
func (p ProofOfStake) RewardsPurse(tc *trackingcopy.TrackingCopy) (key.URefKey, bool, error) {
	named, err := loadNamedKeys(tc, p.ContractAddr)
	if err != nil {
		return key.URefKey{}, false, err
	}
	k, ok := named[nkRewardsPurse]
	if !ok {
		return key.URefKey{}, false, nil
	}
	uref, ok := k.(key.URefKey)
	return uref, ok, nil
}
