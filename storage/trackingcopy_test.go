package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

func addrOf(b byte) [32]byte {
	var a [32]byte
	a[0] = b
	return a
}

func seededCopy(t *testing.T, values map[string]types.StoredValue) *TrackingCopy {
	t.Helper()
	state := NewInMemoryGlobalState()
	root, err := state.WriteGenesis(values)
	require.NoError(t, err)
	tc, err := state.TrackingCopyAt(root)
	require.NoError(t, err)
	return tc
}

func TestReadRecordsIdentityTransform(t *testing.T) {
	key := types.AccountKey(addrOf(1))
	tc := seededCopy(t, map[string]types.StoredValue{
		string(key.Serialize()): types.U512StoredValue(types.U512FromUint64(5)),
	})

	v, err := tc.Read(key)
	require.NoError(t, err)
	require.NotNil(t, v)

	transforms := tc.Effects().Transforms()
	require.Len(t, transforms, 1)
	assert.Equal(t, types.TransformIdentity, transforms[0].Kind)
	assert.True(t, transforms[0].Key.Equal(key))
}

func TestReadMissRecordsNoTransform(t *testing.T) {
	tc := seededCopy(t, nil)

	v, err := tc.Read(types.AccountKey(addrOf(9)))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 0, tc.Effects().Len())
}

func TestPeekViaForkLeavesEffectsEmpty(t *testing.T) {
	key := types.AccountKey(addrOf(1))
	parent := seededCopy(t, map[string]types.StoredValue{
		string(key.Serialize()): types.U512StoredValue(types.U512FromUint64(5)),
	})

	v, err := parent.ReadForPeer(key)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, parent.Effects().IsEmpty())
}

func TestWriteThenReadObservesOverlay(t *testing.T) {
	tc := seededCopy(t, nil)
	key := types.AccountKey(addrOf(2))

	tc.Write(key, types.U512StoredValue(types.U512FromUint64(42)))
	v, err := tc.Read(key)
	require.NoError(t, err)
	require.NotNil(t, v)
	amount, err := v.AsU512()
	require.NoError(t, err)
	assert.Equal(t, types.U512FromUint64(42), amount)
}

func TestAddSumsIntoCache(t *testing.T) {
	key := types.BalanceKey(addrOf(3))
	tc := seededCopy(t, map[string]types.StoredValue{
		string(key.Serialize()): types.U512StoredValue(types.U512FromUint64(10)),
	})

	require.NoError(t, tc.Add(key, types.U512FromUint64(7)))

	v, err := tc.ReadForPeer(key)
	require.NoError(t, err)
	require.NotNil(t, v)
	amount, err := v.AsU512()
	require.NoError(t, err)
	assert.Equal(t, types.U512FromUint64(17), amount)

	// The effect log records the delta, not the sum.
	transforms := tc.Effects().Transforms()
	require.Len(t, transforms, 1)
	assert.Equal(t, types.TransformAddUInt512, transforms[0].Kind)
	assert.Equal(t, types.U512FromUint64(7), transforms[0].Amount)
}

func TestAddToAbsentKeyStartsFromZero(t *testing.T) {
	tc := seededCopy(t, nil)
	key := types.BalanceKey(addrOf(4))

	require.NoError(t, tc.Add(key, types.U512FromUint64(9)))
	v, err := tc.ReadForPeer(key)
	require.NoError(t, err)
	require.NotNil(t, v)
	amount, err := v.AsU512()
	require.NoError(t, err)
	assert.Equal(t, types.U512FromUint64(9), amount)
}

func TestPruneHidesValue(t *testing.T) {
	key := types.AccountKey(addrOf(5))
	tc := seededCopy(t, map[string]types.StoredValue{
		string(key.Serialize()): types.U512StoredValue(types.U512FromUint64(1)),
	})

	tc.Prune(key)
	v, err := tc.Read(key)
	require.NoError(t, err)
	assert.Nil(t, v)

	// A later write resurrects the key.
	tc.Write(key, types.U512StoredValue(types.U512FromUint64(2)))
	v, err = tc.Read(key)
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestForkObservesParentWrites(t *testing.T) {
	parent := seededCopy(t, nil)
	key := types.AccountKey(addrOf(6))
	parent.Write(key, types.U512StoredValue(types.U512FromUint64(3)))

	fork := parent.Fork()
	v, err := fork.Read(key)
	require.NoError(t, err)
	require.NotNil(t, v)
}

func TestForkIsolatesUntilMerge(t *testing.T) {
	parent := seededCopy(t, nil)
	key := types.AccountKey(addrOf(7))

	fork := parent.Fork()
	fork.Write(key, types.U512StoredValue(types.U512FromUint64(8)))
	fork.EmitMessage(types.Message{EntityAddr: addrOf(7), Topic: "t", Payload: []byte("p")})

	// Parent sees nothing before the merge.
	v, err := parent.ReadForPeer(key)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Empty(t, parent.Messages())
	assert.True(t, parent.Effects().IsEmpty())

	fork.ApplyChangesTo(parent)

	v, err = parent.ReadForPeer(key)
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Len(t, parent.Messages(), 1)
	assert.False(t, parent.Effects().IsEmpty())
}

func TestDoubleMergePanics(t *testing.T) {
	parent := seededCopy(t, nil)
	fork := parent.Fork()
	fork.ApplyChangesTo(parent)
	assert.Panics(t, func() { fork.ApplyChangesTo(parent) })
}

func TestDiscardedForkLeavesParentUntouched(t *testing.T) {
	parent := seededCopy(t, nil)
	key := types.AccountKey(addrOf(8))

	fork := parent.Fork()
	fork.Write(key, types.U512StoredValue(types.U512FromUint64(1)))
	// Fork dropped without merging.

	v, err := parent.ReadForPeer(key)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, parent.Effects().IsEmpty())
}

func TestCommitEffectsRoundTrip(t *testing.T) {
	state := NewInMemoryGlobalState()
	root := state.EmptyRoot()
	tc, err := state.TrackingCopyAt(root)
	require.NoError(t, err)

	key := types.AccountKey(addrOf(9))
	tc.Write(key, types.U512StoredValue(types.U512FromUint64(11)))

	next, err := state.CommitEffects(root, tc.Effects())
	require.NoError(t, err)
	assert.NotEqual(t, root, next)

	tc2, err := state.TrackingCopyAt(next)
	require.NoError(t, err)
	v, err := tc2.Read(key)
	require.NoError(t, err)
	require.NotNil(t, v)
	amount, err := v.AsU512()
	require.NoError(t, err)
	assert.Equal(t, types.U512FromUint64(11), amount)
}

func TestCommitEffectsIsDeterministic(t *testing.T) {
	key := types.AccountKey(addrOf(10))
	effects := types.NewEffects()
	effects.Push(types.WriteTransform(key, types.U512StoredValue(types.U512FromUint64(1))))

	a := NewInMemoryGlobalState()
	b := NewInMemoryGlobalState()
	rootA, err := a.CommitEffects(a.EmptyRoot(), effects)
	require.NoError(t, err)
	rootB, err := b.CommitEffects(b.EmptyRoot(), effects)
	require.NoError(t, err)
	assert.Equal(t, rootA, rootB)
}

func TestCommitEffectsUnknownRoot(t *testing.T) {
	state := NewInMemoryGlobalState()
	_, err := state.CommitEffects(types.Digest{0xFF}, types.NewEffects())
	assert.Error(t, err)
}

func TestQueryFollowsNamedKeys(t *testing.T) {
	target := types.HashKey(addrOf(21))
	accountKey := types.AccountKey(addrOf(20))
	tc := seededCopy(t, map[string]types.StoredValue{
		string(accountKey.Serialize()): types.AccountStoredValue(types.Account{
			AccountHash: addrOf(20),
			NamedKeys:   map[string]types.Key{"wasm": target},
		}),
		string(target.Serialize()): types.U512StoredValue(types.U512FromUint64(77)),
	})

	v, err := tc.Query(accountKey, "wasm")
	require.NoError(t, err)
	require.NotNil(t, v)
	amount, err := v.AsU512()
	require.NoError(t, err)
	assert.Equal(t, types.U512FromUint64(77), amount)
}

func TestQueryFollowsRegistry(t *testing.T) {
	registryKey := types.SystemEntityRegistryKey()
	mintKey := types.HashKey(addrOf(22))
	tc := seededCopy(t, map[string]types.StoredValue{
		string(registryKey.Serialize()): types.RegistryStoredValue(map[string][32]byte{
			"mint": addrOf(22),
		}),
		string(mintKey.Serialize()): types.U512StoredValue(types.U512FromUint64(1)),
	})

	v, err := tc.Query(registryKey, "mint")
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestQueryMissingNamedKey(t *testing.T) {
	accountKey := types.AccountKey(addrOf(23))
	tc := seededCopy(t, map[string]types.StoredValue{
		string(accountKey.Serialize()): types.AccountStoredValue(types.Account{AccountHash: addrOf(23)}),
	})

	_, err := tc.Query(accountKey, "nope")
	assert.Error(t, err)
}

func TestQueryCycleDetection(t *testing.T) {
	a := types.AccountKey(addrOf(24))
	b := types.AccountKey(addrOf(25))
	tc := seededCopy(t, map[string]types.StoredValue{
		string(a.Serialize()): types.AccountStoredValue(types.Account{
			NamedKeys: map[string]types.Key{"next": b},
		}),
		string(b.Serialize()): types.AccountStoredValue(types.Account{
			NamedKeys: map[string]types.Key{"next": a},
		}),
	})

	_, err := tc.Query(a, "next", "next", "next", "next")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular reference")
}

func TestReadCacheEviction(t *testing.T) {
	backing := map[string]types.StoredValue{}
	keys := make([]types.Key, 4)
	for i := range keys {
		keys[i] = types.AccountKey(addrOf(byte(30 + i)))
		backing[string(keys[i].Serialize())] = types.U512StoredValue(types.U512FromUint64(uint64(i)))
	}
	tc := seededCopy(t, backing)
	tc.cache = NewTrackingCopyCache(2)

	for _, k := range keys {
		_, err := tc.ReadForPeer(k)
		require.NoError(t, err)
	}
	assert.Len(t, tc.cache.reads, 2)

	// Mutations survive regardless of read pressure.
	mutKey := types.AccountKey(addrOf(40))
	tc.Write(mutKey, types.U512StoredValue(types.U512FromUint64(1)))
	for _, k := range keys {
		_, err := tc.ReadForPeer(k)
		require.NoError(t, err)
	}
	v, pruned, cached := tc.cache.get(string(mutKey.Serialize()))
	assert.True(t, cached)
	assert.False(t, pruned)
	assert.NotNil(t, v)
}
