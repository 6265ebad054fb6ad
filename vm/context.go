package vm

import (
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/storage"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

// Context holds everything a host function may observe or mutate on
// behalf of the executing guest. The tracking copy is the fork private to
// this invocation; the address generator is shared across the chain of
// invocations that make up one transaction.
type Context struct {
	// Initiator is the account that started the transaction.
	Initiator [32]byte
	// Caller is the entity invoking the current code.
	Caller types.Key
	// Callee is the entity being executed.
	Callee types.Key
	// TransferredValue is the amount of motes sent along with the call.
	TransferredValue uint64

	Costs types.HostFunctionCostsV2

	TrackingCopy     *storage.TrackingCopy
	Executor         Executor
	TransactionHash  types.Digest
	AddressGenerator *storage.AddressGenerator
	ChainName        string
	Input            []byte
	BlockTime        uint64

	// Output captured from the ret host function, if the guest produced
	// any.
	Output      []byte
	ReturnFlags uint32

	// Transfers completed through the mint during this invocation.
	Transfers []types.Transfer
}

// CalleeAddr returns the 32-byte address of the callee entity.
func (c *Context) CalleeAddr() [32]byte {
	return c.Callee.Address
}

// CallerKind reports whether the caller is an account or a contract.
func (c *Context) CallerKind() types.EntityKind {
	if c.Caller.Tag == types.KeyTagAccount {
		return types.EntityKindAccount
	}
	return types.EntityKindContract
}
