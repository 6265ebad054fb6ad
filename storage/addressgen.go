package storage

import (
	"encoding/binary"
	"sync"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

// AddressGenerator produces deterministic fresh addresses for one
// transaction. It is the single piece of state shared across the chain of
// dependent invocations (payment, session, finalization), so access is
// serialized by a lock. The lock is acquired per call and never held
// across a dispatch.
type AddressGenerator struct {
	mu    sync.RWMutex
	seed  []byte
	count uint64
}

// NewAddressGenerator seeds the generator from a transaction hash and
// phase, matching the per-phase address streams of transaction processing.
func NewAddressGenerator(txHash types.Digest, phase types.Phase) *AddressGenerator {
	seed := make([]byte, 0, types.DigestLength+1)
	seed = append(seed, txHash.Bytes()...)
	seed = append(seed, byte(phase))
	return &AddressGenerator{seed: seed}
}

func (g *AddressGenerator) NewAddress() [32]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	buf := make([]byte, len(g.seed)+8)
	copy(buf, g.seed)
	binary.LittleEndian.PutUint64(buf[len(g.seed):], g.count)
	g.count++
	return types.HashBytes(buf)
}

// Count reports how many addresses have been handed out.
func (g *AddressGenerator) Count() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.count
}
