package types

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// U512 is a 512-bit unsigned integer held as two 256-bit limbs, used for
// motes balances and transfer amounts. Lo holds the least significant 256
// bits.
type U512 struct {
	Lo uint256.Int
	Hi uint256.Int
}

func U512FromUint64(v uint64) U512 {
	var u U512
	u.Lo.SetUint64(v)
	return u
}

func U512FromUint256(v *uint256.Int) U512 {
	var u U512
	u.Lo.Set(v)
	return u
}

// MaxU512 is the spending limit used for system-phase calls.
func MaxU512() U512 {
	var u U512
	u.Lo.SetAllOne()
	u.Hi.SetAllOne()
	return u
}

func (u U512) IsZero() bool { return u.Lo.IsZero() && u.Hi.IsZero() }

func (u U512) IsUint64() bool { return u.Hi.IsZero() && u.Lo.IsUint64() }

func (u U512) Uint64() uint64 { return u.Lo.Uint64() }

// Add returns u+other and reports whether the sum stayed below 2^512.
func (u U512) Add(other U512) (U512, bool) {
	var out U512
	_, carryLo := out.Lo.AddOverflow(&u.Lo, &other.Lo)
	_, carryHi := out.Hi.AddOverflow(&u.Hi, &other.Hi)
	if carryLo {
		var one uint256.Int
		one.SetOne()
		if _, carry := out.Hi.AddOverflow(&out.Hi, &one); carry {
			carryHi = true
		}
	}
	return out, !carryHi
}

// Sub returns u-other and reports whether the subtraction did not underflow.
func (u U512) Sub(other U512) (U512, bool) {
	var out U512
	_, borrowLo := out.Lo.SubOverflow(&u.Lo, &other.Lo)
	_, borrowHi := out.Hi.SubOverflow(&u.Hi, &other.Hi)
	if borrowLo {
		var one uint256.Int
		one.SetOne()
		if _, borrow := out.Hi.SubOverflow(&out.Hi, &one); borrow {
			borrowHi = true
		}
	}
	return out, !borrowHi
}

func (u U512) Cmp(other U512) int {
	if c := u.Hi.Cmp(&other.Hi); c != 0 {
		return c
	}
	return u.Lo.Cmp(&other.Lo)
}

func (u U512) ToBig() *big.Int {
	hi := u.Hi.ToBig()
	hi.Lsh(hi, 256)
	return hi.Add(hi, u.Lo.ToBig())
}

func (u U512) String() string { return u.ToBig().String() }

// Bytes returns the 64-byte big-endian representation.
func (u U512) Bytes() []byte {
	out := make([]byte, 64)
	hi := u.Hi.Bytes32()
	lo := u.Lo.Bytes32()
	copy(out[:32], hi[:])
	copy(out[32:], lo[:])
	return out
}

func U512FromBytes(b []byte) (U512, error) {
	if len(b) > 64 {
		return U512{}, fmt.Errorf("u512: %d bytes exceeds 64", len(b))
	}
	padded := make([]byte, 64)
	copy(padded[64-len(b):], b)
	var u U512
	u.Hi.SetBytes(padded[:32])
	u.Lo.SetBytes(padded[32:])
	return u, nil
}

func (u U512) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

func (u *U512) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("u512: invalid decimal %q", s)
	}
	if b.Sign() < 0 || b.BitLen() > 512 {
		return fmt.Errorf("u512: %s out of range", s)
	}
	raw := b.Bytes()
	v, err := U512FromBytes(raw)
	if err != nil {
		return err
	}
	*u = v
	return nil
}
