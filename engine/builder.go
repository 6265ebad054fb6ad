package engine

import (
	"errors"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

var (
	ErrMissingPaymentResult  = errors.New("missing payment execution result")
	ErrMissingSessionResult  = errors.New("missing session execution result")
	ErrMissingFinalizeResult = errors.New("missing finalize execution result")
	ErrGasSumOverflow        = errors.New("payment and session gas sum overflows")
)

// ExecutionResultBuilder folds the payment, session and finalization
// sub-results of one transaction into the committed result.
type ExecutionResultBuilder struct {
	payment      *ExecutionResult
	session      *ExecutionResult
	finalization *ExecutionResult
}

func NewExecutionResultBuilder() *ExecutionResultBuilder { return &ExecutionResultBuilder{} }

func (b *ExecutionResultBuilder) SetPayment(r ExecutionResult) *ExecutionResultBuilder {
	b.payment = &r
	return b
}

func (b *ExecutionResultBuilder) SetSession(r ExecutionResult) *ExecutionResultBuilder {
	b.session = &r
	return b
}

func (b *ExecutionResultBuilder) SetFinalization(r ExecutionResult) *ExecutionResultBuilder {
	b.finalization = &r
	return b
}

// Build applies the accumulation policy: payment failure short-circuits;
// a failed session keeps its error, transfers and messages but drops its
// effects; a failed finalization overrides everything with a zero-cost
// precondition failure.
func (b *ExecutionResultBuilder) Build() (ExecutionResult, error) {
	if b.payment == nil {
		return ExecutionResult{}, ErrMissingPaymentResult
	}
	if !b.payment.IsSuccess() {
		return *b.payment, nil
	}

	effects := types.NewEffects()
	effects.Append(b.payment.Effects)
	messages := append([]types.Message(nil), b.payment.Messages...)

	if b.session == nil {
		return ExecutionResult{}, ErrMissingSessionResult
	}
	var finalErr error
	transfers := b.session.Transfers
	messages = append(messages, b.session.Messages...)
	if b.session.IsSuccess() {
		effects.Append(b.session.Effects)
	} else {
		finalErr = b.session.Err
	}

	if b.finalization == nil {
		return ExecutionResult{}, ErrMissingFinalizeResult
	}
	if !b.finalization.IsSuccess() {
		return PreconditionFailure(ErrFinalization), nil
	}
	effects.Append(b.finalization.Effects)
	messages = append(messages, b.finalization.Messages...)

	gas, ok := b.payment.Gas.CheckedAdd(b.session.Gas)
	if !ok {
		return ExecutionResult{}, ErrGasSumOverflow
	}

	return ExecutionResult{
		Err:       finalErr,
		Transfers: transfers,
		Gas:       gas,
		Effects:   effects,
		Messages:  messages,
	}, nil
}
