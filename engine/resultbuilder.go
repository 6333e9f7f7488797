package engine

import (
	"github.com/vireonet/txcore/executor"
	"github.com/vireonet/txcore/gas"
	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/trackingcopy"
)

// ExecutionResultBuilder assembles one deploy's DeployResult out of its
// three phases. Because TrackingCopy.Fork is a cumulative deep copy rather
// than a diff-only layer (trackingcopy.go's Fork doc comment), the
// finalize phase's own Effect() already equals the desired merged result
// as long as each phase forked from the right parent: finalize forks from
// session when session succeeded (so its effect already folds in
// payment+session+finalize), or straight from payment when session failed
// (so session's writes are never in finalize's ancestry). Build() therefore
// never unions transform maps itself — it only has to read finalize's
// effect and decide which costs/transfers belong in the result.
type ExecutionResultBuilder struct {
	payment     *executor.ExecutionResult
	paymentCost gas.Motes
	session     *executor.ExecutionResult
	sessionCost gas.Motes
	finalize    *executor.ExecutionResult
}

// NewExecutionResultBuilder returns an empty builder; every phase must be
// set before Build.
func NewExecutionResultBuilder() *ExecutionResultBuilder {
	return &ExecutionResultBuilder{}
}

// SetPayment records the payment phase's result and its gas cost converted
// to motes.
func (b *ExecutionResultBuilder) SetPayment(r *executor.ExecutionResult, cost gas.Motes) {
	b.payment = r
	b.paymentCost = cost
}

// SetSession records the session phase's result. A forced transfer never
// reaches the builder: runStandardDeploy commits it directly.
func (b *ExecutionResultBuilder) SetSession(r *executor.ExecutionResult, cost gas.Motes) {
	b.session = r
	b.sessionCost = cost
}

// SetFinalize records the finalize phase's result. Finalize carries no
// separate cost — it runs as a system call with a zero gas limit and a
// zero charge, so it adds nothing to the deploy's cost.
func (b *ExecutionResultBuilder) SetFinalize(r *executor.ExecutionResult) {
	b.finalize = r
}

// Build assembles the DeployResult. When no session result was set or the
// session failed, the deploy is a DeployFailure carrying only
// the payment phase's transfers and cost; otherwise it's a DeploySuccess
// carrying both phases' transfers and combined cost.
func (b *ExecutionResultBuilder) Build() (DeployResult, error) {
	if b.payment == nil || b.finalize == nil {
		return DeployResult{}, ErrBuilderIncomplete
	}

	effect := b.finalize.TrackingCopy.Effect()

	if b.session == nil || b.session.Error != nil {
		var deployErr error
		if b.session != nil {
			deployErr = b.session.Error
		}
		return DeployResult{
			Kind:      DeployFailure,
			Effect:    effect,
			Transfers: b.payment.Transfers,
			Cost:      b.paymentCost,
			Error:     deployErr,
		}, nil
	}

	transfers := make([]key.TransferValue, 0, len(b.payment.Transfers)+len(b.session.Transfers))
	transfers = append(transfers, b.payment.Transfers...)
	transfers = append(transfers, b.session.Transfers...)

	return DeployResult{
		Kind:      DeploySuccess,
		Effect:    effect,
		Transfers: transfers,
		Cost:      b.paymentCost.Add(b.sessionCost),
	}, nil
}

// CheckForcedTransfer implements spec.md §4.8.2's forced-transfer rule: if
// the payment phase itself failed, or the payment purse's balance can't
// cover the declared cost, the deploy skips session entirely and the
// engine instead forces a flat transfer of MAX_PAYMENT from the account's
// main purse to the block proposer.
func CheckForcedTransfer(paymentPurseBalance, declaredCost *key.CLValue, paymentFailed bool) error {
	if paymentFailed {
		return ErrPaymentFailure
	}
	if paymentPurseBalance == nil || declaredCost == nil {
		return ErrInsufficientPayment
	}
	if paymentPurseBalance.Numeric.Cmp(declaredCost.Numeric) < 0 {
		return ErrInsufficientPayment
	}
	return nil
}

var _ = trackingcopy.Effect{}
