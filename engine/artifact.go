package engine

import (
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

// ExecutionArtifact is the per-transaction bundle block production
// consumes: accumulated state delta, final accounting and an optional
// error message.
type ExecutionArtifact struct {
	Effects      *types.Effects
	Transfers    []types.Transfer
	Messages     []types.Message
	Consumed     types.Gas
	Cost         types.U512
	Refund       types.U512
	ErrorMessage string
}

// ExecutionArtifactBuilder accumulates the pieces of an artifact across
// the steps of transaction processing. The error message is a latch: the
// first recorded error wins and later ones are ignored.
type ExecutionArtifactBuilder struct {
	artifact ExecutionArtifact
}

func NewExecutionArtifactBuilder() *ExecutionArtifactBuilder {
	return &ExecutionArtifactBuilder{artifact: ExecutionArtifact{Effects: types.NewEffects()}}
}

func (b *ExecutionArtifactBuilder) AppendEffects(effects *types.Effects) *ExecutionArtifactBuilder {
	if effects != nil {
		b.artifact.Effects.Append(effects)
	}
	return b
}

func (b *ExecutionArtifactBuilder) AppendTransfers(transfers []types.Transfer) *ExecutionArtifactBuilder {
	b.artifact.Transfers = append(b.artifact.Transfers, transfers...)
	return b
}

func (b *ExecutionArtifactBuilder) AppendMessages(messages []types.Message) *ExecutionArtifactBuilder {
	b.artifact.Messages = append(b.artifact.Messages, messages...)
	return b
}

// WithErrorMessage records the first error only; subsequent calls keep
// the original message.
func (b *ExecutionArtifactBuilder) WithErrorMessage(msg string) *ExecutionArtifactBuilder {
	if b.artifact.ErrorMessage == "" {
		b.artifact.ErrorMessage = msg
	}
	return b
}

func (b *ExecutionArtifactBuilder) WithConsumed(gas types.Gas) *ExecutionArtifactBuilder {
	b.artifact.Consumed = gas
	return b
}

func (b *ExecutionArtifactBuilder) WithCost(cost types.U512) *ExecutionArtifactBuilder {
	b.artifact.Cost = cost
	return b
}

func (b *ExecutionArtifactBuilder) WithRefund(refund types.U512) *ExecutionArtifactBuilder {
	b.artifact.Refund = refund
	return b
}

func (b *ExecutionArtifactBuilder) Build() ExecutionArtifact {
	return b.artifact
}
