package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/storage"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

func fullRequestBuilder() *ExecuteRequestBuilder {
	var initiator [32]byte
	initiator[0] = 1
	return NewExecuteRequestBuilder().
		WithInitiator(initiator).
		WithCallerKey(types.AccountKey(initiator)).
		WithGasLimit(1_000_000).
		WithTarget(SessionBytes([]byte{0x00})).
		WithInput(nil).
		WithTransferredValue(0).
		WithTransactionHash(types.HashBytes([]byte("tx"))).
		WithAddressGenerator(storage.NewAddressGenerator(types.HashBytes([]byte("tx")), types.PhaseSession)).
		WithChainName("casper-test").
		WithBlockTime(0).
		WithStateHash(types.Digest{}).
		WithParentBlockHash(types.Digest{}).
		WithBlockHeight(0)
}

func TestExecuteRequestBuilderComplete(t *testing.T) {
	req, err := fullRequestBuilder().Build()
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), req.GasLimit)
	assert.Equal(t, ExecutionKindSessionBytes, req.ExecutionKind.Tag)
	assert.Equal(t, "casper-test", req.ChainName)
}

func TestExecuteRequestBuilderMissingFields(t *testing.T) {
	cases := []struct {
		name  string
		strip func(*ExecuteRequestBuilder)
		want  string
	}{
		{"initiator", func(b *ExecuteRequestBuilder) { b.initiator = nil }, "Initiator is not set"},
		{"caller", func(b *ExecuteRequestBuilder) { b.callerKey = nil }, "Caller is not set"},
		{"gas limit", func(b *ExecuteRequestBuilder) { b.gasLimit = nil }, "Gas limit is not set"},
		{"target", func(b *ExecuteRequestBuilder) { b.target = nil }, "Target is not set"},
		{"input", func(b *ExecuteRequestBuilder) { b.inputSet = false }, "Input is not set"},
		{"value", func(b *ExecuteRequestBuilder) { b.value = nil }, "Value is not set"},
		{"transaction hash", func(b *ExecuteRequestBuilder) { b.transactionHash = nil }, "Transaction hash is not set"},
		{"address generator", func(b *ExecuteRequestBuilder) { b.addressGenerator = nil }, "Address generator is not set"},
		{"chain name", func(b *ExecuteRequestBuilder) { b.chainName = nil }, "Chain name is not set"},
		{"block time", func(b *ExecuteRequestBuilder) { b.blockTime = nil }, "Block time is not set"},
		{"state hash", func(b *ExecuteRequestBuilder) { b.stateHash = nil }, "State hash is not set"},
		{"parent block hash", func(b *ExecuteRequestBuilder) { b.parentBlockHash = nil }, "Parent block hash is not set"},
		{"block height", func(b *ExecuteRequestBuilder) { b.blockHeight = nil }, "Block height is not set"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := fullRequestBuilder()
			tc.strip(b)
			_, err := b.Build()
			require.Error(t, err)
			assert.EqualError(t, err, tc.want)
		})
	}
}

func TestExecutionKindConstructors(t *testing.T) {
	session := SessionBytes([]byte{1})
	assert.Equal(t, ExecutionKindSessionBytes, session.Tag)
	assert.Equal(t, []byte{1}, session.WasmBytes)

	var addr [32]byte
	addr[0] = 7
	stored := StoredContract(addr, "do_thing")
	assert.Equal(t, ExecutionKindStored, stored.Tag)
	assert.Equal(t, addr, stored.Address)
	assert.Equal(t, "do_thing", stored.EntryPoint)

	installer := InstallerBytes([]byte{2})
	assert.Equal(t, ExecutionKindInstaller, installer.Tag)
}
