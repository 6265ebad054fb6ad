package types

import "encoding/binary"

// EnvInfo is the environment bundle handed to a guest by the env_info host
// function. The byte layout is fixed little-endian and part of the ABI.
type EnvInfo struct {
	BlockTime        uint64
	TransferredValue uint64
	Balance          uint64
	CallerAddr       [32]byte
	CallerKind       uint32
}

// EnvInfoSize is the serialized size in bytes.
const EnvInfoSize = 8 + 8 + 8 + 32 + 4

func (e EnvInfo) Serialize() []byte {
	out := make([]byte, EnvInfoSize)
	binary.LittleEndian.PutUint64(out[0:8], e.BlockTime)
	binary.LittleEndian.PutUint64(out[8:16], e.TransferredValue)
	binary.LittleEndian.PutUint64(out[16:24], e.Balance)
	copy(out[24:56], e.CallerAddr[:])
	binary.LittleEndian.PutUint32(out[56:60], e.CallerKind)
	return out
}
