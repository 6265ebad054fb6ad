package host

import "golang.org/x/crypto/blake2b"

// BytecodeNamedKey is the named key under which a contract footprint
// points at its bytecode record.
const BytecodeNamedKey = "bytecode"

// PredictableAddress derives a contract address from the chain name, the
// creating entity, the bytecode hash and an optional seed. The same
// inputs always yield the same address, so repeated creation attempts
// collide instead of shadowing each other.
func PredictableAddress(chainName string, creator [32]byte, bytecodeHash [32]byte, seed *[32]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(chainName))
	h.Write(creator[:])
	h.Write(bytecodeHash[:])
	if seed != nil {
		h.Write(seed[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
