package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"intent-swap/config"
	"intent-swap/pkg/nearrpc"
	"intent-swap/pkg/neartx"
	"intent-swap/pkg/solver"
	"intent-swap/pkg/swap"
)

var runTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one swap job from stdin",
	Long: `Read one JSON job from stdin, execute it and print exactly one JSON
result on stdout. This is the entry point the escrow dispatcher invokes.

A swap job:
  {"sender_id":"user.near","token_in":"nep141:usdt.near","token_out":"nep141:usdc.near",
   "amount_in":"1000000","min_amount_out":"990000","swap_contract_id":"escrow.near"}

A storage check job:
  {"action":"test_storage","token_contract":"usdt.near","swap_contract_id":"escrow.near"}

Examples:
  echo "$JOB" | intent-swap run
  intent-swap run --timeout 5m < job.json`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "Overall job deadline")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read job from stdin: %w", err)
	}

	var job swap.Job
	if err := json.Unmarshal(input, &job); err != nil {
		return fmt.Errorf("failed to parse job: %w", err)
	}

	cfg := config.Get()

	// Configuration problems become a structured failure so the dispatcher
	// still receives exactly one result on stdout.
	if err := cfg.WorkerReady(); err != nil {
		return emitFailure(job, err.Error())
	}

	accountID := job.SwapContractID
	if accountID == "" {
		accountID = cfg.ContractID
	}
	if accountID == "" {
		return errors.New("no swap contract account: set swap_contract_id in the job or SWAP_CONTRACT_ID in the environment")
	}

	executor, err := buildExecutor(cfg, accountID)
	if err != nil {
		return emitFailure(job, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if job.IsStorageTest() {
		return emit(executor.CheckStorage(ctx, job))
	}
	return emit(executor.Execute(ctx, job))
}

// buildExecutor assembles the saga's network dependencies from config.
func buildExecutor(cfg *config.Config, accountID string) (*swap.Executor, error) {
	key, err := neartx.ParseKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid SWAP_CONTRACT_PRIVATE_KEY: %w", err)
	}

	near := nearrpc.NewClient(cfg.NearRPCURL, nil, logger)
	venue := solver.NewClient(cfg.IntentsRPCURL, logger)
	venue.Contract = cfg.IntentsContractID

	return &swap.Executor{
		Near:    near,
		Venue:   venue,
		Account: nearrpc.NewAccount(near, accountID, key),
		Log:     logger,
	}, nil
}

func emit(v interface{}) error {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func emitFailure(job swap.Job, message string) error {
	if job.IsStorageTest() {
		return emit(swap.StorageResult{Success: false, Error: &message})
	}
	return emit(swap.Result{Success: false, ErrorMessage: &message})
}
