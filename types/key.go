package types

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// KeyTag discriminates global-state key spaces.
type KeyTag uint8

const (
	KeyTagAccount KeyTag = iota
	KeyTagHash
	KeyTagBalance
	KeyTagNamedKey
	KeyTagSystemEntityRegistry
	KeyTagState
	KeyTagMessage
)

func (t KeyTag) String() string {
	switch t {
	case KeyTagAccount:
		return "account"
	case KeyTagHash:
		return "hash"
	case KeyTagBalance:
		return "balance"
	case KeyTagNamedKey:
		return "named-key"
	case KeyTagSystemEntityRegistry:
		return "system-entity-registry"
	case KeyTagState:
		return "state"
	case KeyTagMessage:
		return "message"
	default:
		return fmt.Sprintf("key-tag-%d", uint8(t))
	}
}

// Key addresses a single value in global state. Payload layout depends on
// the tag: fixed 32-byte addresses for accounts, entities and balances,
// entity address plus arbitrary suffix bytes for named keys, state and
// message keys.
type Key struct {
	Tag     KeyTag
	Address [32]byte
	Suffix  []byte
}

func AccountKey(addr [32]byte) Key { return Key{Tag: KeyTagAccount, Address: addr} }

func HashKey(addr [32]byte) Key { return Key{Tag: KeyTagHash, Address: addr} }

func BalanceKey(addr [32]byte) Key { return Key{Tag: KeyTagBalance, Address: addr} }

func NamedKeyKey(entity [32]byte, name string) Key {
	return Key{Tag: KeyTagNamedKey, Address: entity, Suffix: []byte(name)}
}

func SystemEntityRegistryKey() Key {
	return Key{Tag: KeyTagSystemEntityRegistry}
}

// StateKey addresses entity-scoped raw state written by contracts.
func StateKey(entity [32]byte, payload []byte) Key {
	return Key{Tag: KeyTagState, Address: entity, Suffix: append([]byte(nil), payload...)}
}

func MessageKey(entity [32]byte, topic string) Key {
	return Key{Tag: KeyTagMessage, Address: entity, Suffix: []byte(topic)}
}

// Serialize renders the key as tag || address || suffix. The byte form is
// the canonical ordering and map identity for transforms.
func (k Key) Serialize() []byte {
	out := make([]byte, 0, 1+32+len(k.Suffix))
	out = append(out, byte(k.Tag))
	out = append(out, k.Address[:]...)
	out = append(out, k.Suffix...)
	return out
}

func (k Key) Equal(other Key) bool {
	return k.Tag == other.Tag && k.Address == other.Address && bytes.Equal(k.Suffix, other.Suffix)
}

func (k Key) String() string {
	if len(k.Suffix) == 0 {
		return fmt.Sprintf("%s-%s", k.Tag, hexutil.Encode(k.Address[:]))
	}
	return fmt.Sprintf("%s-%s-%s", k.Tag, hexutil.Encode(k.Address[:]), hexutil.Encode(k.Suffix))
}
