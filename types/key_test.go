package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeySerializeIsUnique(t *testing.T) {
	var addr [32]byte
	addr[0] = 1

	keys := []Key{
		AccountKey(addr),
		HashKey(addr),
		BalanceKey(addr),
		NamedKeyKey(addr, "n"),
		SystemEntityRegistryKey(),
		StateKey(addr, []byte("s")),
		MessageKey(addr, "t"),
	}
	seen := make(map[string]struct{})
	for _, k := range keys {
		s := string(k.Serialize())
		_, dup := seen[s]
		assert.False(t, dup, "duplicate serialization for %s", k)
		seen[s] = struct{}{}
	}
}

func TestKeyEqual(t *testing.T) {
	var addr [32]byte
	addr[0] = 1

	assert.True(t, NamedKeyKey(addr, "a").Equal(NamedKeyKey(addr, "a")))
	assert.False(t, NamedKeyKey(addr, "a").Equal(NamedKeyKey(addr, "b")))
	assert.False(t, AccountKey(addr).Equal(HashKey(addr)))
}

func TestStoredValueAsU512(t *testing.T) {
	sv := U512StoredValue(U512FromUint64(7))
	got, err := sv.AsU512()
	require.NoError(t, err)
	assert.Equal(t, U512FromUint64(7), got)

	_, err = CLValueStoredValue(CLTypeBytes, []byte{1}).AsU512()
	assert.Error(t, err)

	_, err = UnitStoredValue().AsU512()
	assert.Error(t, err)
}

func TestStoredValueAsRegistry(t *testing.T) {
	var addr [32]byte
	addr[0] = 9
	sv := RegistryStoredValue(map[string][32]byte{"mint": addr})
	reg, err := sv.AsRegistry()
	require.NoError(t, err)
	assert.Equal(t, addr, reg["mint"])

	_, err = UnitStoredValue().AsRegistry()
	assert.Error(t, err)
}
