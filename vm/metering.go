package vm

// MeteringPoints reports the state of the fuel counter: either some
// remaining budget or definitive exhaustion.
type MeteringPoints struct {
	Remaining uint64
	Exhausted bool
}

func RemainingPoints(n uint64) MeteringPoints {
	return MeteringPoints{Remaining: n}
}

func ExhaustedPoints() MeteringPoints {
	return MeteringPoints{Exhausted: true}
}

// GasUsage summarizes the fuel accounting of one finished call.
type GasUsage struct {
	GasLimit  uint64
	Remaining uint64
}

func NewGasUsage(gasLimit, remaining uint64) GasUsage {
	return GasUsage{GasLimit: gasLimit, Remaining: remaining}
}

// GasSpent is the consumed portion of the limit.
func (g GasUsage) GasSpent() uint64 {
	return g.GasLimit - g.Remaining
}
