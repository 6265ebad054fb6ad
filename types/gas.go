package types

import (
	"fmt"
	"math/bits"
)

// Gas counts computational cost in abstract units. All arithmetic is
// checked: the bool result reports whether the operation stayed in range.
type Gas uint64

func NewGas(v uint64) Gas { return Gas(v) }

func (g Gas) Value() uint64 { return uint64(g) }

func (g Gas) IsZero() bool { return g == 0 }

func (g Gas) CheckedAdd(other Gas) (Gas, bool) {
	sum, carry := bits.Add64(uint64(g), uint64(other), 0)
	return Gas(sum), carry == 0
}

func (g Gas) CheckedSub(other Gas) (Gas, bool) {
	diff, borrow := bits.Sub64(uint64(g), uint64(other), 0)
	return Gas(diff), borrow == 0
}

func (g Gas) CheckedMul(other Gas) (Gas, bool) {
	hi, lo := bits.Mul64(uint64(g), uint64(other))
	return Gas(lo), hi == 0
}

func (g Gas) SaturatingAdd(other Gas) Gas {
	sum, ok := g.CheckedAdd(other)
	if !ok {
		return Gas(^uint64(0))
	}
	return sum
}

func (g Gas) String() string { return fmt.Sprintf("%d", uint64(g)) }

// CostOf converts gas to motes at the given price, reporting overflow.
func (g Gas) CostOf(gasPrice uint8) (U512, bool) {
	hi, lo := bits.Mul64(uint64(g), uint64(gasPrice))
	if hi != 0 {
		return U512{}, false
	}
	return U512FromUint64(lo), true
}
