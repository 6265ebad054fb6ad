package wazerovm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm"
)

// fuelMeter is the shared gas counter of one instance. Host functions and
// the injected gas_charge import both debit it. Once exhausted it stays
// exhausted.
type fuelMeter struct {
	remaining uint64
	exhausted bool
}

func (m *fuelMeter) points() vm.MeteringPoints {
	if m.exhausted {
		return vm.ExhaustedPoints()
	}
	return vm.RemainingPoints(m.remaining)
}

func (m *fuelMeter) consume(amount uint64) vm.MeteringPoints {
	if m.exhausted || amount > m.remaining {
		m.remaining = 0
		m.exhausted = true
		return vm.ExhaustedPoints()
	}
	m.remaining -= amount
	return vm.RemainingPoints(m.remaining)
}

// wazeroCaller bridges host functions to one instantiated guest module.
type wazeroCaller struct {
	vmCtx    *vm.Context
	mod      api.Module
	meter    *fuelMeter
	bytecode []byte
	hasAlloc bool

	// callCtx is the Go context of the in-flight export call; guest
	// re-entry through the allocator trampoline uses it.
	callCtx context.Context
}

var _ vm.Caller = (*wazeroCaller)(nil)

func (c *wazeroCaller) Context() *vm.Context { return c.vmCtx }

func (c *wazeroCaller) MemoryRead(offset uint32, size uint32) ([]byte, error) {
	data, ok := c.mod.Memory().Read(offset, size)
	if !ok {
		return nil, vm.TrapError(vm.TrapMemoryOutOfBounds)
	}
	// The returned slice aliases guest memory; copy before the guest can
	// touch it again.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *wazeroCaller) MemoryReadInto(offset uint32, buf []byte) error {
	data, ok := c.mod.Memory().Read(offset, uint32(len(buf)))
	if !ok {
		return vm.TrapError(vm.TrapMemoryOutOfBounds)
	}
	copy(buf, data)
	return nil
}

func (c *wazeroCaller) MemoryWrite(offset uint32, data []byte) error {
	if !c.mod.Memory().Write(offset, data) {
		return vm.TrapError(vm.TrapMemoryOutOfBounds)
	}
	return nil
}

func (c *wazeroCaller) Alloc(cbAlloc uint32, size uint32, allocCtx uint32) (uint32, error) {
	if !c.hasAlloc {
		return 0, vm.ErrNoFunctionTable
	}
	fn := c.mod.ExportedFunction(allocExportName)
	if fn == nil {
		return 0, vm.ErrNoFunctionTable
	}
	results, err := fn.Call(c.callCtx, uint64(cbAlloc), uint64(size), uint64(allocCtx))
	if err != nil {
		return 0, guestFault(err)
	}
	if len(results) != 1 {
		return 0, vm.InternalError(fmt.Errorf("allocator returned %d results", len(results)))
	}
	return uint32(results[0]), nil
}

func (c *wazeroCaller) HasExport(name string) bool {
	return c.mod.ExportedFunction(name) != nil
}

func (c *wazeroCaller) Bytecode() []byte { return c.bytecode }

func (c *wazeroCaller) GasConsumed() vm.MeteringPoints { return c.meter.points() }

func (c *wazeroCaller) ConsumeGas(amount uint64) vm.MeteringPoints {
	return c.meter.consume(amount)
}
