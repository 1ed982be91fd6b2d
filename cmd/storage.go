package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"intent-swap/config"
	"intent-swap/pkg/swap"
)

var storageCheckCmd = &cobra.Command{
	Use:   "storage-check <token-contract>",
	Short: "Ensure the swap account is registered with a token",
	Long: `Check the swap account's storage registration on a NEP-141 token
contract and register it when missing. A token contract rejects transfers to
unregistered accounts, so run this before swapping a new pair.

Examples:
  intent-swap storage-check usdt.tether-token.near
  intent-swap storage-check usdc.near --json`,
	Args: cobra.ExactArgs(1),
	Run:  runStorageCheck,
}

func init() {
	rootCmd.AddCommand(storageCheckCmd)
}

func runStorageCheck(cmd *cobra.Command, args []string) {
	tokenContract := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg := config.Get()
	if err := cfg.WorkerReady(); err != nil {
		printError(err)
		os.Exit(1)
	}
	if cfg.ContractID == "" {
		printError(errors.New("SWAP_CONTRACT_ID not set"))
		os.Exit(1)
	}

	executor, err := buildExecutor(cfg, cfg.ContractID)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	job := swap.Job{
		Action:         swap.ActionTestStorage,
		TokenContract:  tokenContract,
		SwapContractID: cfg.ContractID,
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking storage registration..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	result := executor.CheckStorage(ctx, job)

	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(jsonData))
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	if !result.Success {
		if result.Error != nil {
			printError(errors.New(*result.Error))
		} else {
			printError(errors.New("storage check failed"))
		}
		os.Exit(1)
	}

	if result.AlreadyRegistered {
		balance := "unknown"
		if result.StorageBalance != nil {
			balance = *result.StorageBalance
		}
		printSuccess(fmt.Sprintf("Already registered with %s (storage balance: %s)", tokenContract, balance))
		return
	}

	tx := ""
	if result.TxHash != nil {
		tx = *result.TxHash
	}
	printSuccess(fmt.Sprintf("Registered with %s (tx: %s)", tokenContract, tx))
}
