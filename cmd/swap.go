package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"intent-swap/config"
	"intent-swap/pkg/swap"
)

var (
	swapTokenIn  string
	swapTokenOut string
	swapAmount   string
	swapMinOut   string
	swapSender   string
)

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap tokens through the NEAR Intents venue",
	Long: `Swap tokens held by the swap account through NEAR Intents.

The swap runs the same saga a dispatched job does: quote the pair, deposit
the input tokens with the venue, publish the signed swap intent, then
withdraw the output tokens to the recipient.

Tokens are named by their venue asset id, nep141:<contract>. Amounts are in
the token's smallest units.

Examples:
  intent-swap swap --token-in nep141:usdt.near --token-out nep141:usdc.near --amount 1000000 --min-out 990000
  intent-swap swap --token-in nep141:usdt.near --token-out nep141:wrap.near --amount 500000 --sender you.near --json`,
	Args: cobra.NoArgs,
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&swapTokenIn, "token-in", "", "Input token as nep141:<contract> (REQUIRED)")
	swapCmd.Flags().StringVar(&swapTokenOut, "token-out", "", "Output token as nep141:<contract> (REQUIRED)")
	swapCmd.Flags().StringVar(&swapAmount, "amount", "", "Amount to swap in smallest units (REQUIRED)")
	swapCmd.Flags().StringVar(&swapMinOut, "min-out", "0", "Minimum acceptable output amount")
	swapCmd.Flags().StringVar(&swapSender, "sender", "", "Account receiving the output tokens (defaults to the swap account)")
	_ = swapCmd.MarkFlagRequired("token-in")
	_ = swapCmd.MarkFlagRequired("token-out")
	_ = swapCmd.MarkFlagRequired("amount")
}

func runSwap(cmd *cobra.Command, args []string) {
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

	sender := swapSender
	if sender == "" {
		sender = cfg.ContractID
	}

	job := swap.Job{
		SenderID:       sender,
		TokenIn:        swapTokenIn,
		TokenOut:       swapTokenOut,
		AmountIn:       swapAmount,
		MinAmountOut:   swapMinOut,
		SwapContractID: cfg.ContractID,
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Executing swap..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	result := executor.Execute(ctx, job)

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

	displaySwapResult(result, job)
}

func displaySwapResult(result swap.Result, job swap.Job) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	if result.Success {
		color.Green("                        SWAP COMPLETED")
	} else {
		color.Red("                         SWAP FAILED")
	}
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Token In:        %s\n", job.TokenIn)
	fmt.Printf("  Token Out:       %s\n", job.TokenOut)
	fmt.Printf("  Amount In:       %s\n", job.AmountIn)
	if result.AmountOut != nil {
		fmt.Printf("  Amount Out:      %s\n", *result.AmountOut)
	}
	if result.IntentHash != nil {
		fmt.Printf("  Intent Hash:     %s\n", color.CyanString(*result.IntentHash))
	}
	if result.ErrorMessage != nil {
		fmt.Printf("  Error:           %s\n", color.RedString(*result.ErrorMessage))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")

	if !result.Success {
		os.Exit(1)
	}
}
