package vm

import "context"

// WasmInstance is one prepared sandbox: compiled module, guest memory and
// fuel counter. CallExport runs an entry point; Teardown recovers the
// execution context once the instance is finished with. An instance is
// single-use and not safe for concurrent calls.
type WasmInstance interface {
	// CallExport invokes a zero-argument zero-result export. The VMError
	// result carries traps, guest returns and gas exhaustion; gas usage
	// is computed from the fuel counter whether or not the call
	// succeeded.
	CallExport(ctx context.Context, name string) (*VMError, GasUsage)

	// RemainingPoints reads the fuel counter.
	RemainingPoints() MeteringPoints

	// Teardown consumes the instance and returns the execution context.
	// The returned context owns a fresh fork of the tracking copy so its
	// changes merge independently of the sandbox's private state.
	Teardown() *Context
}

// InterfaceVersion is the ABI version a module declares by importing an
// interface_version_N marker.
type InterfaceVersion uint32
