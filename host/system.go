package host

import (
	"errors"
	"fmt"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/log"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/storage"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

// Mint failure modes observable by callers.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMintGasLimit      = errors.New("mint gas limit exceeded")
)

// MintArgs configures purse creation.
type MintArgs struct {
	InitialBalance types.U512
}

// MintTransferArgs moves motes between two purses on behalf of two
// entities.
type MintTransferArgs struct {
	From   [32]byte
	To     [32]byte
	Source [32]byte
	Target [32]byte
	Amount types.U512
}

// MintMint creates a purse with the given balance and returns its
// address. The purse address comes from the shared deterministic address
// generator so repeated executions agree across nodes.
func MintMint(tc *storage.TrackingCopy, addrGen *storage.AddressGenerator, args MintArgs) ([32]byte, error) {
	purse := addrGen.NewAddress()
	tc.Write(types.BalanceKey(purse), types.U512StoredValue(args.InitialBalance))
	log.Debug(log.SystemMonitoring, "minted purse", "purse", types.BalanceKey(purse), "balance", args.InitialBalance)
	return purse, nil
}

// MintTransfer debits the source purse and credits the target purse,
// returning the transfer record. ErrInsufficientFunds when the source
// balance does not cover the amount.
func MintTransfer(tc *storage.TrackingCopy, txHash types.Digest, args MintTransferArgs) (types.Transfer, error) {
	sourceKey := types.BalanceKey(args.Source)
	current, err := tc.Read(sourceKey)
	if err != nil {
		return types.Transfer{}, fmt.Errorf("read source purse: %w", err)
	}
	balance := types.U512{}
	if current != nil {
		if balance, err = current.AsU512(); err != nil {
			return types.Transfer{}, fmt.Errorf("source purse: %w", err)
		}
	}
	remaining, ok := balance.Sub(args.Amount)
	if !ok {
		return types.Transfer{}, ErrInsufficientFunds
	}
	tc.Write(sourceKey, types.U512StoredValue(remaining))
	if err := tc.Add(types.BalanceKey(args.Target), args.Amount); err != nil {
		return types.Transfer{}, fmt.Errorf("credit target purse: %w", err)
	}
	return types.Transfer{
		TransactionHash: txHash,
		From:            args.From,
		To:              args.To,
		Source:          args.Source,
		Target:          args.Target,
		Amount:          args.Amount,
	}, nil
}

// MintBurn removes motes from a purse permanently.
func MintBurn(tc *storage.TrackingCopy, purse [32]byte, amount types.U512) error {
	purseKey := types.BalanceKey(purse)
	current, err := tc.Read(purseKey)
	if err != nil {
		return fmt.Errorf("read purse: %w", err)
	}
	balance := types.U512{}
	if current != nil {
		if balance, err = current.AsU512(); err != nil {
			return fmt.Errorf("purse: %w", err)
		}
	}
	remaining, ok := balance.Sub(amount)
	if !ok {
		return ErrInsufficientFunds
	}
	tc.Write(purseKey, types.U512StoredValue(remaining))
	return nil
}
