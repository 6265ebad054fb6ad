package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

// GlobalStateReader is the capability the engine needs from persisted
// state: point reads at one state root. A nil result with nil error means
// the key is absent.
type GlobalStateReader interface {
	Read(key types.Key) (*types.StoredValue, error)
}

// GlobalStateProvider produces tracking copies over a state root and
// commits effects, yielding the post-state root.
type GlobalStateProvider interface {
	TrackingCopyAt(root types.Digest) (*TrackingCopy, error)
	CommitEffects(root types.Digest, effects *types.Effects) (types.Digest, error)
}

func encodeStoredValue(sv *types.StoredValue) ([]byte, error) {
	return json.Marshal(sv)
}

func decodeStoredValue(raw []byte) (*types.StoredValue, error) {
	var sv types.StoredValue
	if err := json.Unmarshal(raw, &sv); err != nil {
		return nil, fmt.Errorf("decode stored value: %w", err)
	}
	return &sv, nil
}

// stateRoot hashes the full key/value content of a state snapshot. Pairs
// are hashed in ascending serialized-key order so every node derives the
// same root for the same content.
func stateRoot(pairs map[string][]byte) types.Digest {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.Write(pairs[k])
	}
	return types.HashBytes(buf.Bytes())
}

// applyEffects folds an effect log into a key/value snapshot.
func applyEffects(pairs map[string][]byte, effects *types.Effects) error {
	for _, t := range effects.Transforms() {
		mapKey := string(t.Key.Serialize())
		var current *types.StoredValue
		if raw, ok := pairs[mapKey]; ok {
			sv, err := decodeStoredValue(raw)
			if err != nil {
				return err
			}
			current = sv
		}
		next, err := t.ApplyTo(current)
		if err != nil {
			return err
		}
		if next == nil {
			delete(pairs, mapKey)
			continue
		}
		raw, err := encodeStoredValue(next)
		if err != nil {
			return err
		}
		pairs[mapKey] = raw
	}
	return nil
}
