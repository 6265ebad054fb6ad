package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/executor"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/log"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/storage"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm"
	"github.com/EdHastingsCasperAssociation/casper-node-sub004/vm/wazerovm"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "casperexec",
		Short: "Casper wasm execution engine",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var (
		wasmPath  string
		gasLimit  uint64
		statePath string
		chainName string
		inputHex  string
		logLevel  string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a session wasm against a state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.InitLogger(logLevel)

			wasm, err := os.ReadFile(wasmPath)
			if err != nil {
				return fmt.Errorf("reading wasm: %w", err)
			}
			var input []byte
			if inputHex != "" {
				if input, err = hex.DecodeString(inputHex); err != nil {
					return fmt.Errorf("decoding input: %w", err)
				}
			}

			var provider storage.GlobalStateProvider
			var root types.Digest
			if statePath != "" {
				db, err := storage.NewLevelDBGlobalState(statePath)
				if err != nil {
					return fmt.Errorf("opening state: %w", err)
				}
				defer db.Close()
				provider = db
			} else {
				mem := storage.NewInMemoryGlobalState()
				root = mem.EmptyRoot()
				provider = mem
			}

			var initiator [32]byte
			txHash := types.HashBytes(wasm)

			req, err := vm.NewExecuteRequestBuilder().
				WithInitiator(initiator).
				WithCallerKey(types.AccountKey(initiator)).
				WithGasLimit(gasLimit).
				WithTarget(vm.SessionBytes(wasm)).
				WithInput(input).
				WithTransferredValue(0).
				WithTransactionHash(txHash).
				WithAddressGenerator(storage.NewAddressGenerator(txHash, types.PhaseSession)).
				WithChainName(chainName).
				WithBlockTime(0).
				WithStateHash(root).
				WithParentBlockHash(types.Digest{}).
				WithBlockHeight(0).
				Build()
			if err != nil {
				return err
			}

			exec := executor.New(executor.DefaultConfig())
			res, err := exec.ExecuteWithProvider(context.Background(), provider, req)
			if err != nil {
				return err
			}

			if res.HostError != nil {
				fmt.Printf("host error: %s\n", *res.HostError)
			}
			if len(res.Output) > 0 {
				fmt.Printf("output: %s\n", hex.EncodeToString(res.Output))
			}
			fmt.Printf("gas spent: %d / %d\n", res.GasUsage.GasSpent(), res.GasUsage.GasLimit)
			fmt.Printf("effects: %d\n", res.Effects.Len())
			fmt.Printf("post state: %s\n", res.PostStateHash)
			return nil
		},
	}
	runCmd.Flags().StringVar(&wasmPath, "wasm", "", "path to the wasm module")
	runCmd.Flags().Uint64Var(&gasLimit, "gas-limit", 1_000_000_000, "gas budget")
	runCmd.Flags().StringVar(&statePath, "state", "", "state directory (in-memory when empty)")
	runCmd.Flags().StringVar(&chainName, "chain-name", "casper-dev", "chain name")
	runCmd.Flags().StringVar(&inputHex, "input", "", "hex-encoded input bytes")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	_ = runCmd.MarkFlagRequired("wasm")

	var allowFloats bool
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the module admission checks without executing",
		RunE: func(cmd *cobra.Command, args []string) error {
			wasm, err := os.ReadFile(wasmPath)
			if err != nil {
				return fmt.Errorf("reading wasm: %w", err)
			}
			config := wazerovm.DefaultGatekeeperConfig()
			config.AllowFloatingPoints = allowFloats
			if err := wazerovm.ValidateModule(wasm, config); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	validateCmd.Flags().StringVar(&wasmPath, "wasm", "", "path to the wasm module")
	validateCmd.Flags().BoolVar(&allowFloats, "allow-floats", false, "permit floating point opcodes")
	_ = validateCmd.MarkFlagRequired("wasm")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("casperexec %s (%s)\n", Version, Commit)
		},
	}

	rootCmd.AddCommand(runCmd, validateCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
