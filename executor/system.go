package executor

import (
	"fmt"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/host"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/log"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/storage"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm"
)

// SystemContract names a native contract resolvable through the system
// entity registry.
type SystemContract uint8

const (
	SystemContractMint SystemContract = iota
	SystemContractHandlePayment
)

func (s SystemContract) registryName() string {
	switch s {
	case SystemContractMint:
		return "mint"
	case SystemContractHandlePayment:
		return "handle_payment"
	default:
		return fmt.Sprintf("system-contract-%d", uint8(s))
	}
}

func (s SystemContract) String() string { return s.registryName() }

// DispatchErrorKind classifies setup failures of a system dispatch.
// These occur before any fork exists, so the parent state is untouched.
type DispatchErrorKind uint8

const (
	DispatchStorage DispatchErrorKind = iota
	DispatchCLValue
	DispatchRegistryNotFound
	DispatchMissingSystemContract
	DispatchRuntimeFootprint
)

type DispatchError struct {
	Kind DispatchErrorKind
	Name string
	Err  error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case DispatchStorage:
		return fmt.Sprintf("storage error: %v", e.Err)
	case DispatchCLValue:
		return fmt.Sprintf("registry value error: %v", e.Err)
	case DispatchRegistryNotFound:
		return "system entity registry not found"
	case DispatchMissingSystemContract:
		return fmt.Sprintf("missing system contract: %s", e.Name)
	case DispatchRuntimeFootprint:
		return fmt.Sprintf("missing runtime footprint for %s", e.Name)
	default:
		return "dispatch error"
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// RuntimeNative is the execution context a native operation runs in: an
// isolated fork, the footprint of the resolved contract and a spending
// limit that system calls never hit.
type RuntimeNative struct {
	TrackingCopy     *storage.TrackingCopy
	TransactionHash  types.Digest
	AddressGenerator *storage.AddressGenerator
	Address          [32]byte
	Footprint        *types.Account
	SpendingLimit    types.U512
	Phase            types.Phase
}

// SystemOperation is one native operation. run mutates the fork held by
// the runtime; out-parameters live on the concrete operation struct.
type SystemOperation interface {
	run(rt *RuntimeNative) error
}

// MintMint creates a purse with an initial balance. Purse carries the
// created address after a successful dispatch.
type MintMint struct {
	InitialBalance types.U512

	Purse [32]byte
}

func (op *MintMint) run(rt *RuntimeNative) error {
	purse, err := host.MintMint(rt.TrackingCopy, rt.AddressGenerator, host.MintArgs{
		InitialBalance: op.InitialBalance,
	})
	if err != nil {
		return err
	}
	op.Purse = purse
	return nil
}

// MintTransfer moves motes between purses. Result carries the transfer
// record after a successful dispatch.
type MintTransfer struct {
	From   [32]byte
	To     [32]byte
	Source [32]byte
	Target [32]byte
	Amount types.U512

	Result types.Transfer
}

func (op *MintTransfer) run(rt *RuntimeNative) error {
	if rt.SpendingLimit.Cmp(op.Amount) < 0 {
		return host.ErrMintGasLimit
	}
	transfer, err := host.MintTransfer(rt.TrackingCopy, rt.TransactionHash, host.MintTransferArgs{
		From:   op.From,
		To:     op.To,
		Source: op.Source,
		Target: op.Target,
		Amount: op.Amount,
	})
	if err != nil {
		return err
	}
	op.Result = transfer
	return nil
}

// MintBurn removes motes from a purse.
type MintBurn struct {
	Purse  [32]byte
	Amount types.U512
}

func (op *MintBurn) run(rt *RuntimeNative) error {
	return host.MintBurn(rt.TrackingCopy, op.Purse, op.Amount)
}

// HandlePaymentFinalize settles a transaction's payment purse: the cost
// goes to the rewards purse and the remainder refunds to the source.
type HandlePaymentFinalize struct {
	PaymentPurse [32]byte
	SourcePurse  [32]byte
	RewardsPurse [32]byte
	Cost         types.U512

	Refunded types.U512
}

func (op *HandlePaymentFinalize) run(rt *RuntimeNative) error {
	tc := rt.TrackingCopy
	stored, err := tc.Read(types.BalanceKey(op.PaymentPurse))
	if err != nil {
		return err
	}
	balance := types.U512{}
	if stored != nil {
		if balance, err = stored.AsU512(); err != nil {
			return err
		}
	}
	refund, ok := balance.Sub(op.Cost)
	if !ok {
		return host.ErrInsufficientFunds
	}

	tc.Write(types.BalanceKey(op.PaymentPurse), types.U512StoredValue(types.U512{}))
	if err := tc.Add(types.BalanceKey(op.RewardsPurse), op.Cost); err != nil {
		return err
	}
	if !refund.IsZero() {
		if err := tc.Add(types.BalanceKey(op.SourcePurse), refund); err != nil {
			return err
		}
	}
	op.Refunded = refund
	return nil
}

// DispatchSystemContract resolves a system contract through the registry
// and runs one native operation against an isolated fork. Setup failures
// abort before the fork exists and leave the parent untouched. Once the
// operation ran, the fork merges whether or not the operation succeeded:
// a failed native operation may still have produced chargeable effects.
func DispatchSystemContract(tc *storage.TrackingCopy, txHash types.Digest, addrGen *storage.AddressGenerator, contract SystemContract, op SystemOperation) error {
	registryValue, err := tc.Read(types.SystemEntityRegistryKey())
	if err != nil {
		return &DispatchError{Kind: DispatchStorage, Err: err}
	}
	if registryValue == nil {
		return &DispatchError{Kind: DispatchRegistryNotFound}
	}
	registry, err := registryValue.AsRegistry()
	if err != nil {
		return &DispatchError{Kind: DispatchCLValue, Err: err}
	}
	addr, ok := registry[contract.registryName()]
	if !ok {
		return &DispatchError{Kind: DispatchMissingSystemContract, Name: contract.registryName()}
	}

	footprint, err := tc.Read(types.HashKey(addr))
	if err != nil {
		return &DispatchError{Kind: DispatchStorage, Err: err}
	}
	if footprint == nil || footprint.Tag != types.StoredValueTagAccount || footprint.Account == nil {
		return &DispatchError{Kind: DispatchRuntimeFootprint, Name: contract.registryName()}
	}

	fork := tc.Fork()
	rt := &RuntimeNative{
		TrackingCopy:     fork,
		TransactionHash:  txHash,
		AddressGenerator: addrGen,
		Address:          addr,
		Footprint:        footprint.Account,
		SpendingLimit:    types.MaxU512(),
		Phase:            types.PhaseSystem,
	}

	opErr := op.run(rt)
	fork.ApplyChangesTo(tc)
	if opErr != nil {
		log.Debug(log.SystemMonitoring, "system operation failed",
			"contract", contract, "err", opErr)
	}
	return opErr
}

// SystemCallError maps a native operation failure onto the guest-visible
// call error space.
func SystemCallError(err error) vm.CallError {
	switch err {
	case host.ErrInsufficientFunds:
		return vm.CallErrorCalleeReverted
	case host.ErrMintGasLimit:
		return vm.CallErrorCalleeGasDepleted
	default:
		return vm.CallErrorCalleeTrapped
	}
}
