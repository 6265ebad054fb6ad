package storage

import (
	"fmt"
	"sort"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/log"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

const defaultMaxCachedReads = 4096

// TrackingCopyCache holds pending mutations and a bounded read cache.
// Reads are evicted least-recently-used; mutations are never evicted.
type TrackingCopyCache struct {
	maxReads  int
	reads     map[string]*types.StoredValue
	readOrder []string
	muts      map[string]*types.StoredValue
	prunes    map[string]struct{}
}

func NewTrackingCopyCache(maxReads int) *TrackingCopyCache {
	if maxReads <= 0 {
		maxReads = defaultMaxCachedReads
	}
	return &TrackingCopyCache{
		maxReads: maxReads,
		reads:    make(map[string]*types.StoredValue),
		muts:     make(map[string]*types.StoredValue),
		prunes:   make(map[string]struct{}),
	}
}

func (c *TrackingCopyCache) insertRead(key string, value *types.StoredValue) {
	if _, ok := c.reads[key]; !ok {
		c.readOrder = append(c.readOrder, key)
	}
	c.reads[key] = value
	for len(c.readOrder) > c.maxReads {
		evicted := c.readOrder[0]
		c.readOrder = c.readOrder[1:]
		delete(c.reads, evicted)
	}
}

func (c *TrackingCopyCache) insertWrite(key string, value *types.StoredValue) {
	c.muts[key] = value
	delete(c.prunes, key)
}

func (c *TrackingCopyCache) insertPrune(key string) {
	c.prunes[key] = struct{}{}
	delete(c.muts, key)
}

// get reports (value, pruned, cached).
func (c *TrackingCopyCache) get(key string) (*types.StoredValue, bool, bool) {
	if _, pruned := c.prunes[key]; pruned {
		return nil, true, true
	}
	if v, ok := c.muts[key]; ok {
		return v, false, true
	}
	if v, ok := c.reads[key]; ok {
		return v, false, true
	}
	return nil, false, false
}

// mutKeys returns pending-write keys in ascending byte order.
func (c *TrackingCopyCache) mutKeys() []string {
	keys := make([]string, 0, len(c.muts))
	for k := range c.muts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TrackingCopy is a copy-on-read/write overlay over a GlobalStateReader.
// All mutation is local until the copy's effects are committed, or, for a
// fork, applied back to its parent. Not safe for concurrent use; the
// fork/merge protocol assumes exclusive ownership.
type TrackingCopy struct {
	reader   GlobalStateReader
	cache    *TrackingCopyCache
	effects  *types.Effects
	messages []types.Message
	merged   bool
}

func NewTrackingCopy(reader GlobalStateReader) *TrackingCopy {
	return &TrackingCopy{
		reader:  reader,
		cache:   NewTrackingCopyCache(defaultMaxCachedReads),
		effects: types.NewEffects(),
	}
}

func (tc *TrackingCopy) Effects() *types.Effects { return tc.effects }

func (tc *TrackingCopy) Cache() *TrackingCopyCache { return tc.cache }

func (tc *TrackingCopy) Messages() []types.Message { return tc.messages }

// peek resolves a key against the overlay without recording a transform.
func (tc *TrackingCopy) peek(key types.Key) (*types.StoredValue, error) {
	mapKey := string(key.Serialize())
	if v, pruned, cached := tc.cache.get(mapKey); cached {
		if pruned {
			return nil, nil
		}
		return v, nil
	}
	v, err := tc.reader.Read(key)
	if err != nil {
		return nil, err
	}
	tc.cache.insertRead(mapKey, v)
	return v, nil
}

// Read resolves a key and records an identity transform for it. A miss
// leaves the effect log untouched.
func (tc *TrackingCopy) Read(key types.Key) (*types.StoredValue, error) {
	v, err := tc.peek(key)
	if err != nil {
		return nil, err
	}
	if v != nil {
		tc.effects.Push(types.IdentityTransform(key))
	}
	return v, nil
}

func (tc *TrackingCopy) Write(key types.Key, value types.StoredValue) {
	tc.cache.insertWrite(string(key.Serialize()), &value)
	tc.effects.Push(types.WriteTransform(key, value))
}

// Add applies an AddUInt512 to the value at key. The summed value lands in
// the cache so later reads observe it; the effect log records the delta.
func (tc *TrackingCopy) Add(key types.Key, amount types.U512) error {
	current, err := tc.peek(key)
	if err != nil {
		return err
	}
	t := types.AddUInt512Transform(key, amount)
	next, err := t.ApplyTo(current)
	if err != nil {
		return err
	}
	tc.cache.insertWrite(string(key.Serialize()), next)
	tc.effects.Push(t)
	return nil
}

func (tc *TrackingCopy) Prune(key types.Key) {
	tc.cache.insertPrune(string(key.Serialize()))
	tc.effects.Push(types.PruneTransform(key))
}

// EmitMessage records a message and the transform marking its topic.
func (tc *TrackingCopy) EmitMessage(msg types.Message) {
	checksum := types.HashBytes(msg.Payload)
	tc.Write(types.MessageKey(msg.EntityAddr, msg.Topic), types.CLValueStoredValue(types.CLTypeBytes, checksum.Bytes()))
	tc.messages = append(tc.messages, msg)
}

// Read implements GlobalStateReader so a TrackingCopy can back a fork.
// Peer reads do not pollute this copy's effect log.
func (tc *TrackingCopy) ReadForPeer(key types.Key) (*types.StoredValue, error) {
	return tc.peek(key)
}

type peerReader struct{ parent *TrackingCopy }

func (r peerReader) Read(key types.Key) (*types.StoredValue, error) {
	return r.parent.ReadForPeer(key)
}

// Fork creates an isolated child view. The child observes the parent's
// pending writes through reads but accumulates its own cache, effects and
// messages until ApplyChangesTo merges them back.
func (tc *TrackingCopy) Fork() *TrackingCopy {
	return NewTrackingCopy(peerReader{parent: tc})
}

// ApplyChangesTo merges this fork's effects, cache mutations and messages
// into parent, consuming the fork. Using a fork after merge, or merging it
// twice, is a programming error.
func (tc *TrackingCopy) ApplyChangesTo(parent *TrackingCopy) {
	if tc.merged {
		panic("tracking copy: fork merged twice")
	}
	tc.merged = true
	parent.ApplyChanges(tc.effects, tc.cache, tc.messages)
	log.Trace(log.StateMonitoring, "fork merged", "effects", tc.effects.Len(), "messages", len(tc.messages))
	tc.reader = nil
	tc.cache = nil
	tc.effects = nil
	tc.messages = nil
}

// ApplyChanges merges a detached execution result into this copy. Child
// executions hand back their effects, cache and messages by value; the
// merge order is effects in append order, mutations in ascending key
// order, then prunes.
func (tc *TrackingCopy) ApplyChanges(effects *types.Effects, cache *TrackingCopyCache, messages []types.Message) {
	tc.effects.Append(effects)
	for _, k := range cache.mutKeys() {
		tc.cache.insertWrite(k, cache.muts[k])
	}
	pruneKeys := make([]string, 0, len(cache.prunes))
	for k := range cache.prunes {
		pruneKeys = append(pruneKeys, k)
	}
	sort.Strings(pruneKeys)
	for _, k := range pruneKeys {
		tc.cache.insertPrune(k)
	}
	tc.messages = append(tc.messages, messages...)
}

const maxQueryDepth = 5

// Query resolves a key, following named-key and registry indirection up to
// a fixed depth, detecting cycles.
func (tc *TrackingCopy) Query(key types.Key, path ...string) (*types.StoredValue, error) {
	seen := make(map[string]struct{})
	current := key
	for depth := 0; ; depth++ {
		if depth > maxQueryDepth {
			return nil, fmt.Errorf("query depth limit %d exceeded at %s", maxQueryDepth, current)
		}
		mapKey := string(current.Serialize())
		if _, ok := seen[mapKey]; ok {
			return nil, fmt.Errorf("circular reference at %s", current)
		}
		seen[mapKey] = struct{}{}
		value, err := tc.peek(current)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, nil
		}
		if len(path) == 0 {
			return value, nil
		}
		name := path[0]
		path = path[1:]
		switch value.Tag {
		case types.StoredValueTagAccount:
			next, ok := value.Account.NamedKeys[name]
			if !ok {
				return nil, fmt.Errorf("named key %q not found", name)
			}
			current = next
		case types.StoredValueTagRegistry:
			addr, ok := value.Registry[name]
			if !ok {
				return nil, fmt.Errorf("registry entry %q not found", name)
			}
			current = types.HashKey(addr)
		default:
			return nil, fmt.Errorf("cannot traverse %q through value at %s", name, current)
		}
	}
}
