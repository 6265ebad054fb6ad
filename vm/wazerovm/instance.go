package wazerovm

import (
	"context"
	"errors"
	"strings"

	"github.com/tetratelabs/wazero"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/log"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm"
)

// Instance is one prepared wazero sandbox. Each instance owns a private
// runtime so nothing is shared between executions.
type Instance struct {
	runtime wazero.Runtime
	caller  *wazeroCaller
	vmCtx   *vm.Context
	config  vm.Config
	version vm.InterfaceVersion
}

var _ vm.WasmInstance = (*Instance)(nil)

func prepError(kind vm.WasmPreparationErrorKind, msg string) *vm.WasmPreparationError {
	return &vm.WasmPreparationError{Kind: kind, Msg: msg}
}

// NewInstance validates, instruments, compiles and instantiates a guest
// module. The gatekeeper runs against the original binary; the
// instrumented one is what actually executes.
func NewInstance(ctx context.Context, wasm []byte, vmCtx *vm.Context, config vm.Config, gk GatekeeperConfig) (*Instance, error) {
	raw, err := parseRawModule(wasm)
	if err != nil {
		return nil, prepError(vm.PreparationDeserialization, err.Error())
	}
	if err := gk.Validate(raw); err != nil {
		return nil, prepError(vm.PreparationGatekeeper, err.Error())
	}
	versions, maxVersion, err := scanInterfaceVersions(raw)
	if err != nil {
		return nil, prepError(vm.PreparationDeserialization, err.Error())
	}

	instrumented, err := instrument(wasm)
	if err != nil {
		return nil, prepError(vm.PreparationDeserialization, err.Error())
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(config.MemoryLimit).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	caller := &wazeroCaller{
		vmCtx:    vmCtx,
		meter:    &fuelMeter{remaining: config.GasLimit},
		bytecode: wasm,
		hasAlloc: instrumented.hasAlloc,
		callCtx:  ctx,
	}

	if err := instantiateEnv(ctx, runtime, caller, versions); err != nil {
		_ = runtime.Close(ctx)
		return nil, prepError(vm.PreparationInstantiation, err.Error())
	}

	compiled, err := runtime.CompileModule(ctx, instrumented.wasm)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, prepError(vm.PreparationCompile, err.Error())
	}

	// The start section, if any, runs here and is already metered.
	moduleConfig := wazero.NewModuleConfig().
		WithName("contract").
		WithStartFunctions()
	mod, err := runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, prepError(vm.PreparationInstantiation, err.Error())
	}
	caller.mod = mod

	return &Instance{
		runtime: runtime,
		caller:  caller,
		vmCtx:   vmCtx,
		config:  config,
		version: maxVersion,
	}, nil
}

// InterfaceVersion is the highest ABI version the module declared, zero
// when it declared none.
func (i *Instance) InterfaceVersion() vm.InterfaceVersion { return i.version }

func (i *Instance) RemainingPoints() vm.MeteringPoints { return i.caller.meter.points() }

func (i *Instance) gasUsage() vm.GasUsage {
	points := i.caller.meter.points()
	if points.Exhausted {
		return vm.NewGasUsage(i.config.GasLimit, 0)
	}
	return vm.NewGasUsage(i.config.GasLimit, points.Remaining)
}

// CallExport runs the named export to completion and classifies the
// outcome. A nil VMError means the export returned normally without going
// through the return host function.
func (i *Instance) CallExport(ctx context.Context, name string) (*vm.VMError, vm.GasUsage) {
	fn := i.caller.mod.ExportedFunction(name)
	if fn == nil {
		return vm.ExportVMError(name), i.gasUsage()
	}

	i.caller.callCtx = ctx
	_, err := fn.Call(ctx)
	if err == nil {
		return nil, i.gasUsage()
	}

	verr := classifyFault(err)
	if verr.Kind == vm.VMErrorReturn {
		i.vmCtx.Output = verr.Output
		i.vmCtx.ReturnFlags = verr.Flags
	}
	log.Debug(log.VMMonitoring, "export call ended", "export", name, "outcome", verr)
	return verr, i.gasUsage()
}

// Teardown releases the sandbox and hands back the execution context.
// The context's tracking copy is forked once more so the returned view
// merges independently of anything the sandbox still referenced.
func (i *Instance) Teardown() *vm.Context {
	_ = i.runtime.Close(context.Background())
	i.vmCtx.TrackingCopy = i.vmCtx.TrackingCopy.Fork()
	return i.vmCtx
}

// guestFault normalizes an error coming out of a guest call, keeping
// VMError values that unwound through host function panics.
func guestFault(err error) *vm.VMError {
	return classifyFault(err)
}

func classifyFault(err error) *vm.VMError {
	var verr *vm.VMError
	if errors.As(err, &verr) {
		return verr
	}
	return vm.TrapError(trapCodeOf(err))
}

// trapCodeOf maps wazero runtime faults onto deterministic trap codes.
func trapCodeOf(err error) vm.TrapCode {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unreachable"):
		return vm.TrapUnreachableCodeReached
	case strings.Contains(msg, "out of bounds memory access"):
		return vm.TrapMemoryOutOfBounds
	case strings.Contains(msg, "integer divide by zero"):
		return vm.TrapIntegerDivisionByZero
	case strings.Contains(msg, "integer overflow"):
		return vm.TrapIntegerOverflow
	case strings.Contains(msg, "invalid conversion to integer"):
		return vm.TrapBadConversionToInteger
	case strings.Contains(msg, "indirect call type mismatch"):
		return vm.TrapBadSignature
	case strings.Contains(msg, "invalid table access"):
		return vm.TrapIndirectCallToNull
	case strings.Contains(msg, "table out of bounds"):
		return vm.TrapTableAccessOutOfBounds
	case strings.Contains(msg, "stack overflow"):
		return vm.TrapStackOverflow
	case strings.Contains(msg, "unaligned atomic"):
		return vm.TrapHeapMisaligned
	default:
		return vm.TrapUnreachableCodeReached
	}
}
