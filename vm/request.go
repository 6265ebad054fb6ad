package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/storage"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

// ExecutionKindTag discriminates what code an execute request targets.
type ExecutionKindTag uint8

const (
	// ExecutionKindSessionBytes runs raw session wasm.
	ExecutionKindSessionBytes ExecutionKindTag = iota
	// ExecutionKindStored calls an entry point of a stored contract.
	ExecutionKindStored
	// ExecutionKindInstaller runs wasm whose constructor installs a
	// contract.
	ExecutionKindInstaller
)

type ExecutionKind struct {
	Tag        ExecutionKindTag
	WasmBytes  []byte
	Address    [32]byte
	EntryPoint string
}

func SessionBytes(wasm []byte) ExecutionKind {
	return ExecutionKind{Tag: ExecutionKindSessionBytes, WasmBytes: wasm}
}

func StoredContract(addr [32]byte, entryPoint string) ExecutionKind {
	return ExecutionKind{Tag: ExecutionKindStored, Address: addr, EntryPoint: entryPoint}
}

func InstallerBytes(wasm []byte) ExecutionKind {
	return ExecutionKind{Tag: ExecutionKindInstaller, WasmBytes: wasm}
}

// ExecuteRequest carries everything needed to run one invocation.
type ExecuteRequest struct {
	Initiator        [32]byte
	CallerKey        types.Key
	GasLimit         uint64
	ExecutionKind    ExecutionKind
	Input            []byte
	TransferredValue uint64
	TransactionHash  types.Digest
	AddressGenerator *storage.AddressGenerator
	ChainName        string
	BlockTime        uint64
	StateHash        types.Digest
	ParentBlockHash  types.Digest
	BlockHeight      uint64
}

// ExecuteRequestBuilder assembles an ExecuteRequest; Build fails on any
// unset required field.
type ExecuteRequestBuilder struct {
	initiator        *[32]byte
	callerKey        *types.Key
	gasLimit         *uint64
	target           *ExecutionKind
	input            []byte
	inputSet         bool
	value            *uint64
	transactionHash  *types.Digest
	addressGenerator *storage.AddressGenerator
	chainName        *string
	blockTime        *uint64
	stateHash        *types.Digest
	parentBlockHash  *types.Digest
	blockHeight      *uint64
}

func NewExecuteRequestBuilder() *ExecuteRequestBuilder { return &ExecuteRequestBuilder{} }

func (b *ExecuteRequestBuilder) WithInitiator(initiator [32]byte) *ExecuteRequestBuilder {
	b.initiator = &initiator
	return b
}

func (b *ExecuteRequestBuilder) WithCallerKey(key types.Key) *ExecuteRequestBuilder {
	b.callerKey = &key
	return b
}

func (b *ExecuteRequestBuilder) WithGasLimit(limit uint64) *ExecuteRequestBuilder {
	b.gasLimit = &limit
	return b
}

func (b *ExecuteRequestBuilder) WithTarget(kind ExecutionKind) *ExecuteRequestBuilder {
	b.target = &kind
	return b
}

func (b *ExecuteRequestBuilder) WithInput(input []byte) *ExecuteRequestBuilder {
	b.input = input
	b.inputSet = true
	return b
}

func (b *ExecuteRequestBuilder) WithTransferredValue(value uint64) *ExecuteRequestBuilder {
	b.value = &value
	return b
}

func (b *ExecuteRequestBuilder) WithTransactionHash(hash types.Digest) *ExecuteRequestBuilder {
	b.transactionHash = &hash
	return b
}

// WithAddressGenerator seeds a fresh generator owned by this request.
func (b *ExecuteRequestBuilder) WithAddressGenerator(gen *storage.AddressGenerator) *ExecuteRequestBuilder {
	b.addressGenerator = gen
	return b
}

// WithSharedAddressGenerator reuses a generator shared with other
// requests of the same transaction.
func (b *ExecuteRequestBuilder) WithSharedAddressGenerator(gen *storage.AddressGenerator) *ExecuteRequestBuilder {
	b.addressGenerator = gen
	return b
}

func (b *ExecuteRequestBuilder) WithChainName(name string) *ExecuteRequestBuilder {
	b.chainName = &name
	return b
}

func (b *ExecuteRequestBuilder) WithBlockTime(blockTime uint64) *ExecuteRequestBuilder {
	b.blockTime = &blockTime
	return b
}

func (b *ExecuteRequestBuilder) WithStateHash(hash types.Digest) *ExecuteRequestBuilder {
	b.stateHash = &hash
	return b
}

func (b *ExecuteRequestBuilder) WithParentBlockHash(hash types.Digest) *ExecuteRequestBuilder {
	b.parentBlockHash = &hash
	return b
}

func (b *ExecuteRequestBuilder) WithBlockHeight(height uint64) *ExecuteRequestBuilder {
	b.blockHeight = &height
	return b
}

func (b *ExecuteRequestBuilder) Build() (ExecuteRequest, error) {
	switch {
	case b.initiator == nil:
		return ExecuteRequest{}, errors.New("Initiator is not set")
	case b.callerKey == nil:
		return ExecuteRequest{}, errors.New("Caller is not set")
	case b.gasLimit == nil:
		return ExecuteRequest{}, errors.New("Gas limit is not set")
	case b.target == nil:
		return ExecuteRequest{}, errors.New("Target is not set")
	case !b.inputSet:
		return ExecuteRequest{}, errors.New("Input is not set")
	case b.value == nil:
		return ExecuteRequest{}, errors.New("Value is not set")
	case b.transactionHash == nil:
		return ExecuteRequest{}, errors.New("Transaction hash is not set")
	case b.addressGenerator == nil:
		return ExecuteRequest{}, errors.New("Address generator is not set")
	case b.chainName == nil:
		return ExecuteRequest{}, errors.New("Chain name is not set")
	case b.blockTime == nil:
		return ExecuteRequest{}, errors.New("Block time is not set")
	case b.stateHash == nil:
		return ExecuteRequest{}, errors.New("State hash is not set")
	case b.parentBlockHash == nil:
		return ExecuteRequest{}, errors.New("Parent block hash is not set")
	case b.blockHeight == nil:
		return ExecuteRequest{}, errors.New("Block height is not set")
	}
	return ExecuteRequest{
		Initiator:        *b.initiator,
		CallerKey:        *b.callerKey,
		GasLimit:         *b.gasLimit,
		ExecutionKind:    *b.target,
		Input:            b.input,
		TransferredValue: *b.value,
		TransactionHash:  *b.transactionHash,
		AddressGenerator: b.addressGenerator,
		ChainName:        *b.chainName,
		BlockTime:        *b.blockTime,
		StateHash:        *b.stateHash,
		ParentBlockHash:  *b.parentBlockHash,
		BlockHeight:      *b.blockHeight,
	}, nil
}

// ExecuteResult is the outcome of one executed invocation: a possible
// guest-level error, output bytes, gas accounting and the state delta.
type ExecuteResult struct {
	HostError *CallError
	Output    []byte
	GasUsage  GasUsage
	Effects   *types.Effects
	Cache     *storage.TrackingCopyCache
	Messages  []types.Message
	Transfers []types.Transfer
}

// ExecuteWithProviderResult additionally carries the committed post state
// hash.
type ExecuteWithProviderResult struct {
	HostError     *CallError
	Output        []byte
	GasUsage      GasUsage
	Effects       *types.Effects
	PostStateHash types.Digest
	Messages      []types.Message
	Transfers     []types.Transfer
}

// ExecuteError covers preparation-time failures: nothing ran, nothing is
// charged.
var (
	ErrWasmPreparation = errors.New("wasm preparation failed")
	ErrGlobalState     = errors.New("global state error")
	ErrRootNotFound    = errors.New("state root not found")
)

// ExecuteErrorf wraps a preparation failure with its cause.
func ExecuteErrorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// Executor runs execute requests. Implementations must be safe to share
// across invocations of the same transaction.
type Executor interface {
	Execute(ctx context.Context, tc *storage.TrackingCopy, req ExecuteRequest) (*ExecuteResult, error)
	ExecuteWithProvider(ctx context.Context, provider storage.GlobalStateProvider, req ExecuteRequest) (*ExecuteWithProviderResult, error)
}
