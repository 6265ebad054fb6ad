package storage

import (
	"fmt"
	"sync"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

// InMemoryGlobalState keeps every state root as a full key/value snapshot
// in memory. Used by tests and the standalone runner.
type InMemoryGlobalState struct {
	mu    sync.RWMutex
	roots map[types.Digest]map[string][]byte
}

func NewInMemoryGlobalState() *InMemoryGlobalState {
	empty := make(map[string][]byte)
	root := stateRoot(empty)
	return &InMemoryGlobalState{
		roots: map[types.Digest]map[string][]byte{root: empty},
	}
}

// EmptyRoot returns the root of the empty snapshot.
func (s *InMemoryGlobalState) EmptyRoot() types.Digest {
	return stateRoot(make(map[string][]byte))
}

type memReader struct {
	state *InMemoryGlobalState
	root  types.Digest
}

func (r *memReader) Read(key types.Key) (*types.StoredValue, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	pairs, ok := r.state.roots[r.root]
	if !ok {
		return nil, fmt.Errorf("unknown state root %s", r.root)
	}
	raw, ok := pairs[string(key.Serialize())]
	if !ok {
		return nil, nil
	}
	return decodeStoredValue(raw)
}

func (s *InMemoryGlobalState) TrackingCopyAt(root types.Digest) (*TrackingCopy, error) {
	s.mu.RLock()
	_, ok := s.roots[root]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown state root %s", root)
	}
	return NewTrackingCopy(&memReader{state: s, root: root}), nil
}

func (s *InMemoryGlobalState) CommitEffects(root types.Digest, effects *types.Effects) (types.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.roots[root]
	if !ok {
		return types.Digest{}, fmt.Errorf("unknown state root %s", root)
	}
	next := make(map[string][]byte, len(parent))
	for k, v := range parent {
		next[k] = v
	}
	if err := applyEffects(next, effects); err != nil {
		return types.Digest{}, err
	}
	newRoot := stateRoot(next)
	s.roots[newRoot] = next
	return newRoot, nil
}

// WriteGenesis seeds a snapshot directly, bypassing the effect log, and
// returns its root. Only used to set up initial state.
func (s *InMemoryGlobalState) WriteGenesis(values map[string]types.StoredValue) (types.Digest, error) {
	pairs := make(map[string][]byte, len(values))
	for k, sv := range values {
		raw, err := encodeStoredValue(&sv)
		if err != nil {
			return types.Digest{}, err
		}
		pairs[k] = raw
	}
	root := stateRoot(pairs)
	s.mu.Lock()
	s.roots[root] = pairs
	s.mu.Unlock()
	return root, nil
}
