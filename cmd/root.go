package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"intent-swap/config"
)

var logger zerolog.Logger

var rootCmd = &cobra.Command{
	Use:   "intent-swap",
	Short: "Token swaps through NEAR Intents with an escrow ledger",
	Long: `intent-swap swaps NEP-141 tokens through the NEAR Intents settlement
venue. The same binary is the off-chain worker that an escrow ledger
dispatches jobs to and the operator CLI for the ledger itself.

Examples:
  echo "$JOB" | intent-swap run
  intent-swap swap --token-in nep141:usdt.near --token-out nep141:usdc.near --amount 1000000
  intent-swap status <intent-hash>
  intent-swap storage-check usdt.tether-token.near
  intent-swap escrow tokens list`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(cmd)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

// setupLogger sends structured logs to stderr; stdout stays reserved for
// command output, the worker result in particular.
func setupLogger(cmd *cobra.Command) {
	level, err := zerolog.ParseLevel(config.Get().LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
