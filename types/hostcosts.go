package types

import "math/bits"

// HostFunctionV2 prices one host function: a flat per-call cost plus a
// weight per byte of each argument. A zero weight means the argument's
// size does not influence the charge.
type HostFunctionV2 struct {
	Cost      uint64
	Arguments []uint64
}

func FixedHostFunction(cost uint64) HostFunctionV2 {
	return HostFunctionV2{Cost: cost}
}

// CalculateGasCost computes cost + Σ weight_i×size_i with checked
// accumulation. The bool result is false on overflow.
func (h HostFunctionV2) CalculateGasCost(sizes ...uint64) (Gas, bool) {
	total := h.Cost
	for i, weight := range h.Arguments {
		if i >= len(sizes) {
			break
		}
		hi, product := bits.Mul64(weight, sizes[i])
		if hi != 0 {
			return 0, false
		}
		sum, carry := bits.Add64(total, product, 0)
		if carry != 0 {
			return 0, false
		}
		total = sum
	}
	return Gas(total), true
}

// HostFunctionCostsV2 is the cost table for the V2 host ABI.
type HostFunctionCostsV2 struct {
	Read       HostFunctionV2
	Write      HostFunctionV2
	Remove     HostFunctionV2
	CopyInput  HostFunctionV2
	Ret        HostFunctionV2
	Create     HostFunctionV2
	Transfer   HostFunctionV2
	EnvBalance HostFunctionV2
	Upgrade    HostFunctionV2
	Call       HostFunctionV2
	Print      HostFunctionV2
	Emit       HostFunctionV2
	EnvInfo    HostFunctionV2
}

const (
	defaultFixedCost      = 200
	defaultReadCost       = 1_000
	defaultReadKeyWeight  = 100
	defaultWriteCost      = 25_000
	defaultWriteWeight    = 100_000
	defaultRemoveCost     = 15_000
	defaultCopyInputCost  = 300
	defaultRetCost        = 300
	defaultRetWeight      = 100
	defaultTransferCost   = 2_500_000_000
	defaultCallCost       = 10_000
	defaultEnvBalanceCost = 100
	defaultEnvInfoCost    = 10_000
	defaultPrintCost      = 100
	defaultEmitCost       = 200
	defaultEmitWeight     = 100
)

func DefaultHostFunctionCostsV2() HostFunctionCostsV2 {
	return HostFunctionCostsV2{
		Read:       HostFunctionV2{Cost: defaultReadCost, Arguments: []uint64{0, 0, defaultReadKeyWeight, 0, 0, 0}},
		Write:      HostFunctionV2{Cost: defaultWriteCost, Arguments: []uint64{0, 0, 0, 0, defaultWriteWeight}},
		Remove:     HostFunctionV2{Cost: defaultRemoveCost, Arguments: []uint64{0, 0, 0}},
		CopyInput:  HostFunctionV2{Cost: defaultCopyInputCost, Arguments: []uint64{0, 0}},
		Ret:        HostFunctionV2{Cost: defaultRetCost, Arguments: []uint64{0, defaultRetWeight}},
		Create:     HostFunctionV2{Cost: 0, Arguments: make([]uint64, 10)},
		Transfer:   HostFunctionV2{Cost: defaultTransferCost, Arguments: []uint64{0, 0, 0}},
		EnvBalance: FixedHostFunction(defaultEnvBalanceCost),
		Upgrade:    HostFunctionV2{Cost: defaultFixedCost, Arguments: make([]uint64, 6)},
		Call:       HostFunctionV2{Cost: defaultCallCost, Arguments: make([]uint64, 9)},
		Print:      HostFunctionV2{Cost: defaultPrintCost, Arguments: []uint64{0, 0}},
		Emit:       HostFunctionV2{Cost: defaultEmitCost, Arguments: []uint64{0, defaultEmitWeight, 0, defaultEmitWeight}},
		EnvInfo:    HostFunctionV2{Cost: defaultEnvInfoCost, Arguments: []uint64{0, 0}},
	}
}

func ZeroHostFunctionCostsV2() HostFunctionCostsV2 {
	return HostFunctionCostsV2{}
}
