package vm

// Caller is the capability handed to every host function. It is the only
// channel between the trusted host and the sandboxed guest: bounds-checked
// memory access, the guest allocator, fuel introspection and the execution
// context.
type Caller interface {
	// Context returns the execution context of the current call.
	Context() *Context

	// MemoryRead copies size bytes of guest memory at offset.
	MemoryRead(offset uint32, size uint32) ([]byte, error)

	// MemoryReadInto fills buf from guest memory at offset.
	MemoryReadInto(offset uint32, buf []byte) error

	// MemoryWrite copies data into guest memory at offset.
	MemoryWrite(offset uint32, data []byte) error

	// Alloc obtains a size-byte guest buffer by invoking the guest
	// allocator funcref cbAlloc through the module's function table.
	// Fails with ErrNoFunctionTable when the module has no function
	// table.
	Alloc(cbAlloc uint32, size uint32, ctx uint32) (uint32, error)

	// HasExport reports whether the guest module exports name.
	HasExport(name string) bool

	// Bytecode returns the original wasm bytes of the executing module.
	Bytecode() []byte

	// GasConsumed reports the current fuel counter.
	GasConsumed() MeteringPoints

	// ConsumeGas checked-subtracts amount from the fuel counter and
	// reports the resulting state. An Exhausted result means the charge
	// did not fit; the caller decides whether that is a trap or an error
	// code.
	ConsumeGas(amount uint64) MeteringPoints
}
