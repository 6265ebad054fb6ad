package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

func TestPreconditionFailure(t *testing.T) {
	cause := errors.New("no such contract")
	r := PreconditionFailure(cause)

	assert.ErrorIs(t, r.Err, cause)
	assert.False(t, r.IsSuccess())
	assert.True(t, r.IsPreconditionFailure())
	assert.True(t, r.Gas.IsZero())
	assert.True(t, r.Effects.IsEmpty())
}

func TestFailureWithGasIsNotPrecondition(t *testing.T) {
	r := Failure(errors.New("reverted"), nil, types.NewGas(1), nil, nil)
	assert.False(t, r.IsPreconditionFailure())
}

func TestSuccessNilEffects(t *testing.T) {
	r := Success(nil, types.NewGas(1), nil, nil)
	assert.NotNil(t, r.Effects)
	assert.True(t, r.Effects.IsEmpty())
}

func TestCheckForcedTransferNone(t *testing.T) {
	r := Success(nil, types.NewGas(100), nil, nil)
	got := r.CheckForcedTransfer(types.U512FromUint64(1000), 2)
	assert.Equal(t, ForcedTransferNone, got)
}

func TestCheckForcedTransferExactBalance(t *testing.T) {
	r := Success(nil, types.NewGas(100), nil, nil)
	got := r.CheckForcedTransfer(types.U512FromUint64(200), 2)
	assert.Equal(t, ForcedTransferNone, got)
}

func TestCheckForcedTransferInsufficientPayment(t *testing.T) {
	r := Success(nil, types.NewGas(100), nil, nil)
	got := r.CheckForcedTransfer(types.U512FromUint64(199), 2)
	assert.Equal(t, ForcedTransferInsufficientPayment, got)
}

func TestCheckForcedTransferPaymentFailure(t *testing.T) {
	r := Failure(errors.New("reverted"), nil, types.NewGas(100), nil, nil)

	// The code failure dominates even when the purse also falls short.
	got := r.CheckForcedTransfer(types.U512FromUint64(0), 2)
	assert.Equal(t, ForcedTransferPaymentFailure, got)
}

func TestCheckForcedTransferGasConversionOverflow(t *testing.T) {
	r := Failure(errors.New("reverted"), nil, types.NewGas(math.MaxUint64), nil, nil)

	// The overflow check runs before the failure check.
	got := r.CheckForcedTransfer(types.MaxU512(), 2)
	assert.Equal(t, ForcedTransferGasConversionOverflow, got)
}

func TestNewExecutionResultAndMessages(t *testing.T) {
	cause := errors.New("session trapped")
	r := Failure(cause, []types.Transfer{transferOf(5)}, types.NewGas(42), effectsWithWrite(1), []types.Message{messageTo("t")})

	got := NewExecutionResultAndMessages(r)
	assert.Equal(t, "session trapped", got.ErrorMessage)
	assert.Equal(t, types.NewGas(42), got.Consumed)
	assert.Len(t, got.Transfers, 1)
	assert.Len(t, got.Messages, 1)
	assert.Equal(t, 1, got.Effects.Len())
}

func TestNewExecutionResultAndMessagesSuccess(t *testing.T) {
	got := NewExecutionResultAndMessages(Success(nil, types.NewGas(1), nil, nil))
	assert.Empty(t, got.ErrorMessage)
}

func TestArtifactBuilderErrorLatch(t *testing.T) {
	a := NewExecutionArtifactBuilder().
		WithErrorMessage("first").
		WithErrorMessage("second").
		Build()
	assert.Equal(t, "first", a.ErrorMessage)
}

func TestArtifactBuilderAccumulates(t *testing.T) {
	a := NewExecutionArtifactBuilder().
		AppendEffects(effectsWithWrite(1)).
		AppendEffects(effectsWithWrite(2)).
		AppendTransfers([]types.Transfer{transferOf(1)}).
		AppendTransfers([]types.Transfer{transferOf(2)}).
		AppendMessages([]types.Message{messageTo("a")}).
		WithConsumed(types.NewGas(9)).
		WithCost(types.U512FromUint64(18)).
		WithRefund(types.U512FromUint64(3)).
		Build()

	assert.Equal(t, 2, a.Effects.Len())
	assert.Len(t, a.Transfers, 2)
	assert.Len(t, a.Messages, 1)
	assert.Equal(t, types.NewGas(9), a.Consumed)
	assert.Equal(t, types.U512FromUint64(18), a.Cost)
	assert.Equal(t, types.U512FromUint64(3), a.Refund)
}

func TestArtifactBuilderNilEffects(t *testing.T) {
	a := NewExecutionArtifactBuilder().AppendEffects(nil).Build()
	assert.True(t, a.Effects.IsEmpty())
}
