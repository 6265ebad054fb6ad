package executor

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/host"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/log"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/storage"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm/wazerovm"
)

var tracer = otel.Tracer("casperexec")

const (
	// defaultEntryPoint is the export run when the target does not name
	// one.
	defaultEntryPoint = "call"

	// mintTransferGasCost is charged for the value transfer performed
	// before the session runs.
	mintTransferGasCost = 1

	// maxCallDepth bounds re-entrant contract calls per transaction.
	maxCallDepth = 12
)

// Config parameterizes an executor instance.
type Config struct {
	// MemoryLimit is the wasm memory cap in pages handed to every
	// sandbox.
	MemoryLimit uint32
	// Gatekeeper is the module admission policy.
	Gatekeeper wazerovm.GatekeeperConfig
	// Costs price the host function surface.
	Costs types.HostFunctionCostsV2
}

func DefaultConfig() Config {
	return Config{
		MemoryLimit: 64,
		Gatekeeper:  wazerovm.DefaultGatekeeperConfig(),
		Costs:       types.DefaultHostFunctionCostsV2(),
	}
}

// ExecutorV2 runs wasm invocations against tracking copies. A single
// instance serves all calls of a transaction, including re-entrant ones
// made through the call host function.
type ExecutorV2 struct {
	config Config

	mu     sync.Mutex
	depths map[types.Digest]int
}

var _ vm.Executor = (*ExecutorV2)(nil)

func New(config Config) *ExecutorV2 {
	return &ExecutorV2{config: config, depths: make(map[types.Digest]int)}
}

func (e *ExecutorV2) push(txHash types.Digest) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.depths[txHash] >= maxCallDepth {
		return false
	}
	e.depths[txHash]++
	return true
}

func (e *ExecutorV2) pop(txHash types.Digest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.depths[txHash] <= 1 {
		delete(e.depths, txHash)
		return
	}
	e.depths[txHash]--
}

// resolveTarget turns the execution kind into runnable bytes, the callee
// key and the entry point name. A nil wasm result with a nil error means
// the target is not callable.
func resolveTarget(tc *storage.TrackingCopy, req vm.ExecuteRequest) ([]byte, types.Key, string, error) {
	kind := req.ExecutionKind
	switch kind.Tag {
	case vm.ExecutionKindSessionBytes, vm.ExecutionKindInstaller:
		return kind.WasmBytes, types.AccountKey(req.Initiator), defaultEntryPoint, nil

	case vm.ExecutionKindStored:
		calleeKey := types.HashKey(kind.Address)
		footprint, err := tc.Read(calleeKey)
		if err != nil {
			return nil, types.Key{}, "", err
		}
		if footprint == nil || footprint.Tag != types.StoredValueTagAccount || footprint.Account == nil {
			return nil, types.Key{}, "", nil
		}
		bytecodeKey, ok := footprint.Account.NamedKeys[host.BytecodeNamedKey]
		if !ok {
			return nil, types.Key{}, "", nil
		}
		stored, err := tc.Read(bytecodeKey)
		if err != nil {
			return nil, types.Key{}, "", err
		}
		if stored == nil || stored.Tag != types.StoredValueTagContractWasm {
			return nil, types.Key{}, "", nil
		}
		entryPoint := kind.EntryPoint
		if entryPoint == "" {
			entryPoint = defaultEntryPoint
		}
		return stored.Wasm, calleeKey, entryPoint, nil

	default:
		return nil, types.Key{}, "", fmt.Errorf("unknown execution kind %d", kind.Tag)
	}
}

func notCallable(gasLimit uint64) *vm.ExecuteResult {
	code := vm.CallErrorNotCallable
	return &vm.ExecuteResult{
		HostError: &code,
		GasUsage:  vm.NewGasUsage(gasLimit, gasLimit),
		Effects:   types.NewEffects(),
	}
}

// transferValue moves the attached motes from the caller entity to the
// callee before any guest code runs.
func transferValue(tc *storage.TrackingCopy, req vm.ExecuteRequest, calleeKey types.Key) error {
	sourceEntity, err := tc.Read(req.CallerKey)
	if err != nil {
		return err
	}
	if sourceEntity == nil || sourceEntity.Tag != types.StoredValueTagAccount || sourceEntity.Account == nil {
		return fmt.Errorf("caller entity %v has no purse", req.CallerKey)
	}
	targetEntity, err := tc.Read(calleeKey)
	if err != nil {
		return err
	}
	if targetEntity == nil || targetEntity.Tag != types.StoredValueTagAccount || targetEntity.Account == nil {
		return fmt.Errorf("callee entity %v has no purse", calleeKey)
	}
	_, err = host.MintTransfer(tc, req.TransactionHash, host.MintTransferArgs{
		From:   req.CallerKey.Address,
		To:     calleeKey.Address,
		Source: sourceEntity.Account.MainPurse,
		Target: targetEntity.Account.MainPurse,
		Amount: types.U512FromUint64(req.TransferredValue),
	})
	return err
}

// Execute runs one invocation against the given tracking copy. The
// returned result carries the state delta; the caller decides whether to
// merge it. A non-nil error means nothing ran.
func (e *ExecutorV2) Execute(ctx context.Context, tc *storage.TrackingCopy, req vm.ExecuteRequest) (*vm.ExecuteResult, error) {
	if !e.push(req.TransactionHash) {
		return notCallable(req.GasLimit), nil
	}
	defer e.pop(req.TransactionHash)

	wasm, calleeKey, entryPoint, err := resolveTarget(tc, req)
	if err != nil {
		return nil, vm.ExecuteErrorf(vm.ErrGlobalState, "resolving target: %v", err)
	}
	if wasm == nil {
		return notCallable(req.GasLimit), nil
	}

	gasLimit := req.GasLimit
	if req.TransferredValue != 0 && !req.CallerKey.Equal(calleeKey) {
		if gasLimit < mintTransferGasCost {
			code := vm.CallErrorCalleeGasDepleted
			return &vm.ExecuteResult{
				HostError: &code,
				GasUsage:  vm.NewGasUsage(req.GasLimit, 0),
				Effects:   types.NewEffects(),
			}, nil
		}
		gasLimit -= mintTransferGasCost
		if err := transferValue(tc, req, calleeKey); err != nil {
			if err == host.ErrInsufficientFunds {
				code := vm.CallErrorCalleeReverted
				return &vm.ExecuteResult{
					HostError: &code,
					GasUsage:  vm.NewGasUsage(req.GasLimit, gasLimit),
					Effects:   types.NewEffects(),
				}, nil
			}
			return nil, vm.ExecuteErrorf(vm.ErrGlobalState, "transferring value: %v", err)
		}
	}

	addrGen := req.AddressGenerator
	if addrGen == nil {
		addrGen = storage.NewAddressGenerator(req.TransactionHash, types.PhaseSession)
	}

	vmCtx := &vm.Context{
		Initiator:        req.Initiator,
		Caller:           req.CallerKey,
		Callee:           calleeKey,
		TransferredValue: req.TransferredValue,
		Costs:            e.config.Costs,
		TrackingCopy:     tc,
		Executor:         e,
		TransactionHash:  req.TransactionHash,
		AddressGenerator: addrGen,
		ChainName:        req.ChainName,
		Input:            req.Input,
		BlockTime:        req.BlockTime,
	}

	config, err := vm.NewConfigBuilder().
		WithGasLimit(gasLimit).
		WithMemoryLimit(e.config.MemoryLimit).
		WithInput(req.Input).
		WithTransferredValue(req.TransferredValue).
		Build()
	if err != nil {
		return nil, vm.ExecuteErrorf(vm.ErrWasmPreparation, "%v", err)
	}

	instance, err := wazerovm.NewInstance(ctx, wasm, vmCtx, config, e.config.Gatekeeper)
	if err != nil {
		return nil, vm.ExecuteErrorf(vm.ErrWasmPreparation, "%v", err)
	}

	log.Debug(log.ExecMonitoring, "calling export",
		"entry_point", entryPoint, "callee", calleeKey, "gas_limit", gasLimit)
	verr, _ := instance.CallExport(ctx, entryPoint)
	vmCtx = instance.Teardown()

	points := instance.RemainingPoints()
	remaining := points.Remaining
	if points.Exhausted {
		remaining = 0
	}
	usage := vm.NewGasUsage(req.GasLimit, remaining)

	result := &vm.ExecuteResult{GasUsage: usage, Effects: types.NewEffects()}
	fail := func(code vm.CallError) (*vm.ExecuteResult, error) {
		result.HostError = &code
		return result, nil
	}

	if verr == nil {
		result.Effects = tc.Effects()
		result.Cache = tc.Cache()
		result.Messages = tc.Messages()
		result.Transfers = vmCtx.Transfers
		return result, nil
	}

	switch verr.Kind {
	case vm.VMErrorReturn:
		result.Output = verr.Output
		if verr.Flags&vm.ReturnFlagRevert != 0 {
			return fail(vm.CallErrorCalleeReverted)
		}
		result.Effects = tc.Effects()
		result.Cache = tc.Cache()
		result.Messages = tc.Messages()
		result.Transfers = vmCtx.Transfers
		return result, nil
	case vm.VMErrorOutOfGas:
		return fail(vm.CallErrorCalleeGasDepleted)
	case vm.VMErrorTrap:
		log.Debug(log.ExecMonitoring, "guest trapped", "trap", verr.Trap)
		return fail(vm.CallErrorCalleeTrapped)
	case vm.VMErrorExport:
		return fail(vm.CallErrorNotCallable)
	default:
		return nil, vm.ExecuteErrorf(vm.ErrWasmPreparation, "internal vm error: %v", verr)
	}
}

// ExecuteWithProvider resolves a tracking copy at the requested state
// root, executes, and commits successful effects.
func (e *ExecutorV2) ExecuteWithProvider(ctx context.Context, provider storage.GlobalStateProvider, req vm.ExecuteRequest) (*vm.ExecuteWithProviderResult, error) {
	ctx, span := tracer.Start(ctx, "ExecuteWithProvider", trace.WithAttributes(
		attribute.String("transaction_hash", req.TransactionHash.String()),
		attribute.Int64("gas_limit", int64(req.GasLimit)),
	))
	defer span.End()

	tc, err := provider.TrackingCopyAt(req.StateHash)
	if err != nil {
		return nil, vm.ExecuteErrorf(vm.ErrRootNotFound, "state root %s: %v", req.StateHash.String(), err)
	}

	res, err := e.Execute(ctx, tc, req)
	if err != nil {
		return nil, err
	}

	postState := req.StateHash
	if res.HostError == nil {
		postState, err = provider.CommitEffects(req.StateHash, res.Effects)
		if err != nil {
			return nil, vm.ExecuteErrorf(vm.ErrGlobalState, "committing effects: %v", err)
		}
	}

	return &vm.ExecuteWithProviderResult{
		HostError:     res.HostError,
		Output:        res.Output,
		GasUsage:      res.GasUsage,
		Effects:       res.Effects,
		PostStateHash: postState,
		Messages:      res.Messages,
		Transfers:     res.Transfers,
	}, nil
}
