package engine

import (
	"errors"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

// ErrFinalization replaces whatever the builder accumulated when the
// finalization sub-result failed. Finalization is expected to never fail;
// when it does the whole execution degrades to a zero-cost precondition
// failure.
var ErrFinalization = errors.New("finalization error")

// ExecutionResult is the outcome of one sub-step of a transaction:
// payment code, session code or payment finalization. A nil Err means
// success.
type ExecutionResult struct {
	Err       error
	Transfers []types.Transfer
	Gas       types.Gas
	Effects   *types.Effects
	Messages  []types.Message
}

func Success(transfers []types.Transfer, gas types.Gas, effects *types.Effects, messages []types.Message) ExecutionResult {
	if effects == nil {
		effects = types.NewEffects()
	}
	return ExecutionResult{Transfers: transfers, Gas: gas, Effects: effects, Messages: messages}
}

func Failure(err error, transfers []types.Transfer, gas types.Gas, effects *types.Effects, messages []types.Message) ExecutionResult {
	if effects == nil {
		effects = types.NewEffects()
	}
	return ExecutionResult{Err: err, Transfers: transfers, Gas: gas, Effects: effects, Messages: messages}
}

// PreconditionFailure is a failure with zero gas and no effects: nothing
// was charged because nothing executed.
func PreconditionFailure(err error) ExecutionResult {
	return ExecutionResult{Err: err, Effects: types.NewEffects()}
}

func (r ExecutionResult) IsSuccess() bool { return r.Err == nil }

func (r ExecutionResult) IsPreconditionFailure() bool {
	return r.Err != nil && r.Gas.IsZero() && r.Effects.IsEmpty()
}

// ForcedTransferResult classifies whether the payment sub-result forces
// the payment amount to be transferred instead of executing the session.
type ForcedTransferResult uint8

const (
	// ForcedTransferNone means payment succeeded and covered its cost.
	ForcedTransferNone ForcedTransferResult = iota
	// ForcedTransferPaymentFailure means the payment code itself failed.
	ForcedTransferPaymentFailure
	// ForcedTransferInsufficientPayment means payment succeeded but the
	// purse cannot cover the cost.
	ForcedTransferInsufficientPayment
	// ForcedTransferGasConversionOverflow means the gas-to-motes
	// conversion overflowed.
	ForcedTransferGasConversionOverflow
)

// CheckForcedTransfer converts the consumed gas to motes at gasPrice and
// judges the payment purse balance against it. Payment-code failures are
// reported as PaymentFailure even when the purse also falls short.
func (r ExecutionResult) CheckForcedTransfer(paymentPurseBalance types.U512, gasPrice uint8) ForcedTransferResult {
	cost, ok := r.Gas.CostOf(gasPrice)
	if !ok {
		return ForcedTransferGasConversionOverflow
	}
	if !r.IsSuccess() {
		return ForcedTransferPaymentFailure
	}
	if paymentPurseBalance.Cmp(cost) < 0 {
		return ForcedTransferInsufficientPayment
	}
	return ForcedTransferNone
}

// ExecutionResultAndMessages is the immutable persisted form of a built
// result. Conversion happens exactly once; the value is never mutated
// afterwards.
type ExecutionResultAndMessages struct {
	ErrorMessage string
	Transfers    []types.Transfer
	Consumed     types.Gas
	Effects      *types.Effects
	Messages     []types.Message
}

func NewExecutionResultAndMessages(r ExecutionResult) ExecutionResultAndMessages {
	out := ExecutionResultAndMessages{
		Transfers: r.Transfers,
		Consumed:  r.Gas,
		Effects:   r.Effects,
		Messages:  r.Messages,
	}
	if r.Err != nil {
		out.ErrorMessage = r.Err.Error()
	}
	return out
}
