package vm

import (
	"errors"
	"fmt"
)

// TrapCode classifies deterministic sandbox faults.
type TrapCode uint8

const (
	TrapStackOverflow TrapCode = iota
	TrapMemoryOutOfBounds
	TrapHeapMisaligned
	TrapTableAccessOutOfBounds
	TrapIndirectCallToNull
	TrapBadSignature
	TrapIntegerOverflow
	TrapIntegerDivisionByZero
	TrapBadConversionToInteger
	TrapUnreachableCodeReached
)

func (t TrapCode) String() string {
	switch t {
	case TrapStackOverflow:
		return "stack overflow"
	case TrapMemoryOutOfBounds:
		return "memory out of bounds"
	case TrapHeapMisaligned:
		return "heap misaligned"
	case TrapTableAccessOutOfBounds:
		return "table access out of bounds"
	case TrapIndirectCallToNull:
		return "indirect call to null"
	case TrapBadSignature:
		return "bad signature"
	case TrapIntegerOverflow:
		return "integer overflow"
	case TrapIntegerDivisionByZero:
		return "integer division by zero"
	case TrapBadConversionToInteger:
		return "bad conversion to integer"
	case TrapUnreachableCodeReached:
		return "unreachable code reached"
	default:
		return fmt.Sprintf("trap code %d", uint8(t))
	}
}

// ReturnFlags passed by the guest through the ret host function.
const ReturnFlagRevert uint32 = 1 << 0

type VMErrorKind uint8

const (
	VMErrorReturn VMErrorKind = iota
	VMErrorOutOfGas
	VMErrorExport
	VMErrorTrap
	VMErrorInternal
)

// VMError is the typed outcome of a failed or early-returning sandbox
// call. Return is not strictly a failure: the guest stopped itself,
// possibly carrying output data and a revert flag.
type VMError struct {
	Kind   VMErrorKind
	Flags  uint32
	Output []byte
	Trap   TrapCode
	Export string
	Err    error
}

func ReturnError(flags uint32, output []byte) *VMError {
	return &VMError{Kind: VMErrorReturn, Flags: flags, Output: output}
}

func OutOfGasError() *VMError {
	return &VMError{Kind: VMErrorOutOfGas}
}

func ExportVMError(name string) *VMError {
	return &VMError{Kind: VMErrorExport, Export: name}
}

func TrapError(code TrapCode) *VMError {
	return &VMError{Kind: VMErrorTrap, Trap: code}
}

// InternalError marks an invariant violation inside the host, never a
// guest-observable outcome.
func InternalError(err error) *VMError {
	return &VMError{Kind: VMErrorInternal, Err: err}
}

func (e *VMError) Error() string {
	switch e.Kind {
	case VMErrorReturn:
		return fmt.Sprintf("return flags=%d output=%d bytes", e.Flags, len(e.Output))
	case VMErrorOutOfGas:
		return "out of gas"
	case VMErrorExport:
		return fmt.Sprintf("export error: %s", e.Export)
	case VMErrorTrap:
		return fmt.Sprintf("trap: %s", e.Trap)
	case VMErrorInternal:
		return fmt.Sprintf("internal error: %v", e.Err)
	default:
		return "unknown vm error"
	}
}

func (e *VMError) Unwrap() error { return e.Err }

// CallError is the guest-visible classification of a failed call,
// delivered as a host error code.
type CallError uint32

const (
	CallErrorCalleeReverted CallError = iota + 1
	CallErrorCalleeTrapped
	CallErrorCalleeGasDepleted
	CallErrorNotCallable
)

func (c CallError) String() string {
	switch c {
	case CallErrorCalleeReverted:
		return "callee reverted"
	case CallErrorCalleeTrapped:
		return "callee trapped"
	case CallErrorCalleeGasDepleted:
		return "callee gas depleted"
	case CallErrorNotCallable:
		return "not callable"
	default:
		return fmt.Sprintf("call error %d", uint32(c))
	}
}

// WasmPreparationError covers failures before any guest code ran.
type WasmPreparationErrorKind uint8

const (
	PreparationDeserialization WasmPreparationErrorKind = iota
	PreparationGatekeeper
	PreparationCompile
	PreparationMemory
	PreparationInstantiation
	PreparationMissingExport
)

type WasmPreparationError struct {
	Kind WasmPreparationErrorKind
	Msg  string
}

func (e *WasmPreparationError) Error() string {
	switch e.Kind {
	case PreparationDeserialization:
		return fmt.Sprintf("deserialization error: %s", e.Msg)
	case PreparationGatekeeper:
		return e.Msg
	case PreparationCompile:
		return fmt.Sprintf("compilation error: %s", e.Msg)
	case PreparationMemory:
		return fmt.Sprintf("memory instantiation error: %s", e.Msg)
	case PreparationInstantiation:
		return fmt.Sprintf("instantiation error: %s", e.Msg)
	case PreparationMissingExport:
		return fmt.Sprintf("missing export: %s", e.Msg)
	default:
		return fmt.Sprintf("preparation error: %s", e.Msg)
	}
}

// ErrNoFunctionTable names the absence of an indirect function table; the
// allocator capability is simply unavailable for such modules.
var ErrNoFunctionTable = errors.New("module exports no function table")
