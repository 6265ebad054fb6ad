package host

import (
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm"
)

// Keyspace tags received from guests over the ABI. Each tag maps to a
// callee-scoped region of global state.
const (
	KeyspaceState uint64 = iota
	KeyspaceContext
	KeyspaceNamedKey
	KeyspacePaymentInfo
)

// Entry point payment variants stored under the PaymentInfo keyspace.
const (
	EntryPointPaymentCaller byte = iota
	EntryPointPaymentDirectInvocationOnly
	EntryPointPaymentSelfOnward
)

// keyspaceKey maps a guest (tag, payload) pair to the callee-scoped
// global state key it addresses. Context and NamedKey payloads are hashed
// so arbitrary guest bytes become fixed-size key suffixes.
func keyspaceKey(ctx *vm.Context, tag uint64, payload []byte) (types.Key, bool) {
	entity := ctx.CalleeAddr()
	switch tag {
	case KeyspaceState:
		return types.StateKey(entity, nil), true
	case KeyspaceContext, KeyspaceNamedKey:
		digest := types.HashBytes(payload)
		return types.Key{Tag: types.KeyTagNamedKey, Address: entity, Suffix: digest.Bytes()}, true
	case KeyspacePaymentInfo:
		return types.Key{Tag: types.KeyTagNamedKey, Address: entity, Suffix: append([]byte("pay:"), payload...)}, true
	default:
		return types.Key{}, false
	}
}
