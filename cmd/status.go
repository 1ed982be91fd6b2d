package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"intent-swap/config"
	"intent-swap/pkg/solver"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <intent-hash>",
	Short: "Check the settlement status of an intent",
	Long: `Check the settlement status of a published intent by its hash.

Examples:
  intent-swap status 7gcpDLJvjkxQ3Zt9cbZ9GPkqU5pVc24e9pXp5FnrtgQd
  intent-swap status 7gcpDLJvjkxQ3Zt9cbZ9GPkqU5pVc24e9pXp5FnrtgQd --watch
  intent-swap status 7gcpDLJvjkxQ3Zt9cbZ9GPkqU5pVc24e9pXp5FnrtgQd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	intentHash := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg := config.Get()
	venue := solver.NewClient(cfg.IntentsRPCURL, logger)
	venue.Contract = cfg.IntentsContractID

	if watchStatus {
		watchIntentStatus(venue, intentHash, jsonOutput)
	} else {
		checkIntentStatus(venue, intentHash, jsonOutput)
	}
}

func checkIntentStatus(venue *solver.Client, intentHash string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking intent status..."
		s.Start()
	}

	status, err := venue.GetStatus(context.Background(), intentHash)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(map[string]string{
			"intent_hash": intentHash,
			"status":      status,
		}, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayIntentStatus(intentHash, status)
	}
}

func watchIntentStatus(venue *solver.Client, intentHash string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching intent status (Hash: %s)\n", color.CyanString(intentHash))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	checkAndDisplayIntent(venue, intentHash)

	// Then check periodically
	for range ticker.C {
		checkAndDisplayIntent(venue, intentHash)
	}
}

func checkAndDisplayIntent(venue *solver.Client, intentHash string) {
	status, err := venue.GetStatus(context.Background(), intentHash)
	if err != nil {
		color.Red("Error: %v", err)
		return
	}

	displayIntentStatus(intentHash, status)
}

func displayIntentStatus(intentHash, status string) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                         INTENT STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Intent Hash:     %s\n", color.CyanString(intentHash))
	fmt.Printf("  Status:          %s\n", getColoredStatus(status))
	fmt.Printf("  Checked At:      %s\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	switch strings.ToUpper(status) {
	case "SETTLED":
		return color.GreenString(status)
	case "PENDING", "TX_BROADCASTED":
		return color.YellowString(status)
	case "FAILED", "NOT_FOUND_OR_NOT_VALID", "NOT_FOUND_OR_NOT_VALID_ANYMORE":
		return color.RedString(status)
	default:
		return status
	}
}
