package host

import (
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm"
)

// chargeHostFunction debits the per-call price of a host function before
// it runs. An overflowing cost calculation means the limit was exceeded
// by definition.
func chargeHostFunction(caller vm.Caller, fn types.HostFunctionV2, sizes ...uint64) *vm.VMError {
	cost, ok := fn.CalculateGasCost(sizes...)
	if !ok {
		return vm.OutOfGasError()
	}
	if points := caller.ConsumeGas(cost.Value()); points.Exhausted {
		return vm.OutOfGasError()
	}
	return nil
}

// asVMError normalizes bridge errors. Memory and alloc failures arrive
// as VMError already; anything else is an invariant violation.
func asVMError(err error) *vm.VMError {
	if ve, ok := err.(*vm.VMError); ok {
		return ve
	}
	return vm.InternalError(err)
}

// allocOut resolves the guest output pointer: through the guest allocator
// funcref when one is given, otherwise the context word is the pointer.
func allocOut(caller vm.Caller, cbAlloc uint32, size int, allocCtx uint32) (uint32, *vm.VMError) {
	if cbAlloc == 0 {
		return allocCtx, nil
	}
	ptr, err := caller.Alloc(cbAlloc, uint32(size), allocCtx)
	if err != nil {
		return 0, asVMError(err)
	}
	return ptr, nil
}
