package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"intent-swap/config"
	"intent-swap/pkg/escrow"
	"intent-swap/pkg/nearrpc"
	"intent-swap/pkg/neartx"
)

var (
	escrowDSN string
	escrowAs  string

	escrowOwner    string
	escrowOperator string
	escrowProfile  string
	escrowFeeBps   uint32

	depositSender   string
	depositToken    string
	depositAmount   string
	depositTokenOut string
	depositMinOut   string
	depositWorker   string

	tokenAssetID   string
	tokenMinAmount string

	feeAmount   string
	feeReceiver string

	pauseSwapsOnly bool
)

var escrowCmd = &cobra.Command{
	Use:   "escrow",
	Short: "Operate the escrow ledger",
	Long: `Operate the escrow ledger that accepts token deposits, dispatches swap
jobs to the worker and settles each request exactly once.

State lives in PostgreSQL; point the commands at it with --dsn or the
POSTGRES_DSN environment variable.

Examples:
  intent-swap escrow init --owner you.near
  intent-swap escrow tokens whitelist usdt.near --min-amount 1000000
  intent-swap escrow deposit --sender alice.near --token usdt.near --amount 5000000 --token-out usdc.near --min-out 4900000
  intent-swap escrow fees show
  intent-swap escrow fees withdraw usdt.near --amount 1000`,
}

var escrowInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the escrow ledger",
	Args:  cobra.NoArgs,
	Run:   runEscrowInit,
}

var escrowDepositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Escrow a deposit and run the swap it requests",
	Long: `Record an incoming token deposit, dispatch the swap job to the worker
and wait for the request to settle. This drives the same path a NEP-141
ft_transfer_call deposit takes.`,
	Args: cobra.NoArgs,
	Run:  runEscrowDeposit,
}

var escrowTokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Manage the token whitelist",
}

var escrowTokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List whitelisted tokens",
	Args:  cobra.NoArgs,
	Run:   runEscrowTokensList,
}

var escrowTokensWhitelistCmd = &cobra.Command{
	Use:   "whitelist <token-contract>",
	Short: "Whitelist a token for swapping",
	Args:  cobra.ExactArgs(1),
	Run:   runEscrowTokensWhitelist,
}

var escrowTokensUpdateCmd = &cobra.Command{
	Use:   "update <token-contract>",
	Short: "Update a whitelisted token's config",
	Args:  cobra.ExactArgs(1),
	Run:   runEscrowTokensUpdate,
}

var escrowTokensRemoveCmd = &cobra.Command{
	Use:   "remove <token-contract>",
	Short: "Remove a token from the whitelist",
	Args:  cobra.ExactArgs(1),
	Run:   runEscrowTokensRemove,
}

var escrowFeesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Inspect and withdraw collected fees",
}

var escrowFeesShowCmd = &cobra.Command{
	Use:   "show [token-contract]",
	Short: "Show collected fees",
	Args:  cobra.MaximumNArgs(1),
	Run:   runEscrowFeesShow,
}

var escrowFeesWithdrawCmd = &cobra.Command{
	Use:   "withdraw <token-contract>",
	Short: "Withdraw collected fees",
	Args:  cobra.ExactArgs(1),
	Run:   runEscrowFeesWithdraw,
}

var escrowPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the ledger",
	Args:  cobra.NoArgs,
	Run:   runEscrowPause,
}

var escrowUnpauseCmd = &cobra.Command{
	Use:   "unpause",
	Short: "Resume the ledger",
	Args:  cobra.NoArgs,
	Run:   runEscrowUnpause,
}

var escrowConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the ledger's control state",
	Args:  cobra.NoArgs,
	Run:   runEscrowConfig,
}

var escrowPendingCmd = &cobra.Command{
	Use:   "pending <request-id>",
	Short: "Show an in-flight swap request",
	Args:  cobra.ExactArgs(1),
	Run:   runEscrowPending,
}

func init() {
	rootCmd.AddCommand(escrowCmd)

	escrowCmd.PersistentFlags().StringVar(&escrowDSN, "dsn", "", "PostgreSQL DSN (defaults to POSTGRES_DSN)")
	escrowCmd.PersistentFlags().StringVar(&escrowAs, "as", "", "Account performing the call (defaults to SWAP_CONTRACT_ID)")

	escrowCmd.AddCommand(escrowInitCmd)
	escrowInitCmd.Flags().StringVar(&escrowOwner, "owner", "", "Owner account (REQUIRED)")
	escrowInitCmd.Flags().StringVar(&escrowOperator, "operator", "", "Operator account (defaults to the owner)")
	escrowInitCmd.Flags().StringVar(&escrowProfile, "profile", "", "Worker secrets profile")
	escrowInitCmd.Flags().Uint32Var(&escrowFeeBps, "fee-bps", 0, "Swap fee in basis points")
	_ = escrowInitCmd.MarkFlagRequired("owner")

	escrowCmd.AddCommand(escrowDepositCmd)
	escrowDepositCmd.Flags().StringVar(&depositSender, "sender", "", "Account the deposit came from (REQUIRED)")
	escrowDepositCmd.Flags().StringVar(&depositToken, "token", "", "Deposited token contract (REQUIRED)")
	escrowDepositCmd.Flags().StringVar(&depositAmount, "amount", "", "Deposited amount in smallest units (REQUIRED)")
	escrowDepositCmd.Flags().StringVar(&depositTokenOut, "token-out", "", "Token contract to swap into (REQUIRED)")
	escrowDepositCmd.Flags().StringVar(&depositMinOut, "min-out", "", "Minimum acceptable output amount")
	escrowDepositCmd.Flags().StringVar(&depositWorker, "worker", "", "Worker binary to dispatch (defaults to this binary)")
	_ = escrowDepositCmd.MarkFlagRequired("sender")
	_ = escrowDepositCmd.MarkFlagRequired("token")
	_ = escrowDepositCmd.MarkFlagRequired("amount")
	_ = escrowDepositCmd.MarkFlagRequired("token-out")

	escrowCmd.AddCommand(escrowTokensCmd)
	escrowTokensCmd.AddCommand(escrowTokensListCmd)
	escrowTokensCmd.AddCommand(escrowTokensWhitelistCmd)
	escrowTokensWhitelistCmd.Flags().StringVar(&tokenAssetID, "asset-id", "", "Venue asset id (defaults to nep141:<token>)")
	escrowTokensWhitelistCmd.Flags().StringVar(&tokenMinAmount, "min-amount", "", "Minimum swap amount in smallest units")
	escrowTokensCmd.AddCommand(escrowTokensUpdateCmd)
	escrowTokensUpdateCmd.Flags().StringVar(&tokenAssetID, "asset-id", "", "Venue asset id")
	escrowTokensUpdateCmd.Flags().StringVar(&tokenMinAmount, "min-amount", "", "Minimum swap amount in smallest units")
	escrowTokensCmd.AddCommand(escrowTokensRemoveCmd)

	escrowCmd.AddCommand(escrowFeesCmd)
	escrowFeesCmd.AddCommand(escrowFeesShowCmd)
	escrowFeesCmd.AddCommand(escrowFeesWithdrawCmd)
	escrowFeesWithdrawCmd.Flags().StringVar(&feeAmount, "amount", "", "Amount to withdraw (defaults to the full balance)")
	escrowFeesWithdrawCmd.Flags().StringVar(&feeReceiver, "receiver", "", "Receiving account (defaults to the owner)")

	escrowCmd.AddCommand(escrowPauseCmd)
	escrowPauseCmd.Flags().BoolVar(&pauseSwapsOnly, "swaps", false, "Pause new swaps only, continuations still settle")
	escrowCmd.AddCommand(escrowUnpauseCmd)
	escrowUnpauseCmd.Flags().BoolVar(&pauseSwapsOnly, "swaps", false, "Resume new swaps only")

	escrowCmd.AddCommand(escrowConfigCmd)
	escrowCmd.AddCommand(escrowPendingCmd)
}

// openLedger connects the ledger to its PostgreSQL store. The token client
// is attached when signing credentials are configured; commands that move
// tokens must call requireTransfers first.
func openLedger(ctx context.Context) (*escrow.Ledger, func(), error) {
	cfg := config.Get()

	dsn := escrowDSN
	if dsn == "" {
		dsn = cfg.PostgresDSN
	}
	if dsn == "" {
		return nil, nil, errors.New("postgres dsn required: set --dsn or POSTGRES_DSN")
	}

	store, err := escrow.NewPostgresStore(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open escrow store: %w", err)
	}

	ledger := escrow.NewLedger(store, nil, nil, cfg.ContractID, logger)

	if cfg.PrivateKey != "" && cfg.ContractID != "" {
		key, err := neartx.ParseKey(cfg.PrivateKey)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("invalid SWAP_CONTRACT_PRIVATE_KEY: %w", err)
		}
		near := nearrpc.NewClient(cfg.NearRPCURL, nil, logger)
		ledger.Tokens = &escrow.AccountTokenClient{Account: nearrpc.NewAccount(near, cfg.ContractID, key)}
	}

	return ledger, store.Close, nil
}

func requireTransfers(l *escrow.Ledger) error {
	if l.Tokens == nil {
		return errors.New("token transfers need SWAP_CONTRACT_ID and SWAP_CONTRACT_PRIVATE_KEY")
	}
	return nil
}

func escrowCaller() string {
	if escrowAs != "" {
		return escrowAs
	}
	return config.Get().ContractID
}

func runEscrowInit(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()

	params := escrow.Params{
		Owner:          escrowOwner,
		Operator:       escrowOperator,
		SecretsProfile: escrowProfile,
	}
	if cmd.Flags().Changed("fee-bps") {
		fee := escrowFeeBps
		params.FeeBps = &fee
	}

	if err := ledger.Init(ctx, params); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Escrow ledger initialized (owner: %s)", escrowOwner))
}

func runEscrowDeposit(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()
	if err := requireTransfers(ledger); err != nil {
		printError(err)
		os.Exit(1)
	}

	amount, ok := new(big.Int).SetString(depositAmount, 10)
	if !ok {
		printError(fmt.Errorf("invalid amount %q", depositAmount))
		os.Exit(1)
	}

	workerPath := depositWorker
	if workerPath == "" {
		exe, err := os.Executable()
		if err != nil {
			printError(fmt.Errorf("failed to locate worker binary: %w", err))
			os.Exit(1)
		}
		workerPath = exe
	}

	done := make(chan *escrow.Outcome, 1)
	handler := func(ctx context.Context, requestID uint64, resp *escrow.ExecutionResponse, dispatchErr error) {
		outcome, err := ledger.HandleResult(ctx, requestID, resp, dispatchErr)
		if err != nil {
			logger.Error().Uint64("request_id", requestID).Err(err).Msg("failed to settle swap request")
		}
		done <- outcome
	}
	dispatcher := escrow.NewExecDispatcher(workerPath, []string{"run"}, handler, logger)
	ledger.Dispatcher = dispatcher

	msg := fmt.Sprintf(`{"Swap":{"token_out":%q}}`, depositTokenOut)
	if depositMinOut != "" {
		msg = fmt.Sprintf(`{"Swap":{"token_out":%q,"min_amount_out":%q}}`, depositTokenOut, depositMinOut)
	}

	requestID, err := ledger.OnTransfer(ctx, depositSender, depositToken, amount, msg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = fmt.Sprintf(" Swap request #%d dispatched, waiting for the worker...", requestID)
		s.Start()
	}

	var outcome *escrow.Outcome
	select {
	case outcome = <-done:
	case <-time.After(dispatcher.Timeout + 30*time.Second):
	}

	if !jsonOutput {
		s.Stop()
	}

	if outcome == nil {
		printError(fmt.Errorf("request #%d did not settle", requestID))
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(outcome, "", "  ")
		fmt.Println(string(jsonData))
		if outcome.Kind != escrow.Fulfilled {
			os.Exit(1)
		}
		return
	}

	displayOutcome(outcome)
}

func displayOutcome(outcome *escrow.Outcome) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	switch outcome.Kind {
	case escrow.Fulfilled:
		color.Green("                        SWAP FULFILLED")
	case escrow.Refunded:
		color.Yellow("                        SWAP REFUNDED")
	default:
		color.Red("                         SWAP ABORTED")
	}
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Request ID:      %d\n", outcome.RequestID)
	if outcome.AmountOut != nil {
		fmt.Printf("  Amount Out:      %s\n", outcome.AmountOut)
	}
	if outcome.TxHash != "" {
		fmt.Printf("  Transfer Tx:     %s\n", color.HiBlackString(outcome.TxHash))
	}
	if outcome.Reason != "" {
		fmt.Printf("  Reason:          %s\n", outcome.Reason)
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")

	if outcome.Kind != escrow.Fulfilled {
		os.Exit(1)
	}
}

func runEscrowTokensList(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()

	tokens, err := ledger.WhitelistedTokens(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(tokens, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(tokens) == 0 {
		fmt.Println("\nNo tokens whitelisted.")
		return
	}

	names := make([]string, 0, len(tokens))
	for token := range tokens {
		names = append(names, token)
	}
	sort.Strings(names)

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       WHITELISTED TOKENS")
	fmt.Println(strings.Repeat("=", 70) + "\n")
	for _, token := range names {
		cfg := tokens[token]
		fmt.Printf("  %s\n", color.CyanString(token))
		fmt.Printf("    Venue Asset:     %s\n", cfg.VenueAssetID)
		fmt.Printf("    Min Swap Amount: %s\n", cfg.MinSwapAmount)
	}
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func runEscrowTokensWhitelist(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()

	min, err := parseOptionalAmount(tokenMinAmount)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if err := ledger.WhitelistToken(ctx, escrowCaller(), args[0], tokenAssetID, min); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Token %s whitelisted", args[0]))
}

func runEscrowTokensUpdate(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()

	min, err := parseOptionalAmount(tokenMinAmount)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if err := ledger.UpdateTokenConfig(ctx, escrowCaller(), args[0], tokenAssetID, min); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Token %s updated", args[0]))
}

func runEscrowTokensRemove(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()

	if err := ledger.RemoveToken(ctx, escrowCaller(), args[0]); err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Token %s removed from the whitelist", args[0]))
}

func runEscrowFeesShow(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()

	if len(args) == 1 {
		balance, err := ledger.CollectedFees(ctx, args[0])
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		if jsonOutput {
			jsonData, _ := json.MarshalIndent(map[string]*big.Int{args[0]: balance}, "", "  ")
			fmt.Println(string(jsonData))
			return
		}
		fmt.Printf("\n  %s: %s\n\n", args[0], balance)
		return
	}

	fees, err := ledger.AllFees(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(fees, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(fees) == 0 {
		fmt.Println("\nNo fees collected.")
		return
	}

	names := make([]string, 0, len(fees))
	for token := range fees {
		names = append(names, token)
	}
	sort.Strings(names)

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        COLLECTED FEES")
	fmt.Println(strings.Repeat("=", 70) + "\n")
	for _, token := range names {
		fmt.Printf("  %-40s %s\n", token, fees[token])
	}
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func runEscrowFeesWithdraw(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()
	if err := requireTransfers(ledger); err != nil {
		printError(err)
		os.Exit(1)
	}

	amount, err := parseOptionalAmount(feeAmount)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	txHash, err := ledger.WithdrawFees(ctx, escrowCaller(), args[0], amount, feeReceiver)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	printSuccess(fmt.Sprintf("Fees withdrawn (tx: %s)", txHash))
}

func runEscrowPause(cmd *cobra.Command, args []string) {
	setEscrowPause(true)
}

func runEscrowUnpause(cmd *cobra.Command, args []string) {
	setEscrowPause(false)
}

func setEscrowPause(paused bool) {
	ctx := context.Background()
	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()

	if pauseSwapsOnly {
		err = ledger.SetSwapsPaused(ctx, escrowCaller(), paused)
	} else {
		err = ledger.SetPaused(ctx, escrowCaller(), paused)
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	what := "Ledger"
	if pauseSwapsOnly {
		what = "New swaps"
	}
	if paused {
		printSuccess(fmt.Sprintf("%s paused", what))
	} else {
		printSuccess(fmt.Sprintf("%s resumed", what))
	}
}

func runEscrowConfig(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()

	state, err := ledger.Config(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(state, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        ESCROW CONFIG")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Owner:           %s\n", state.Owner)
	fmt.Printf("  Operator:        %s\n", state.Operator)
	fmt.Printf("  Secrets Profile: %s\n", state.SecretsProfile)
	fmt.Printf("  Fee:             %d bps\n", state.FeeBps)
	fmt.Printf("  Paused:          %t\n", state.Paused)
	fmt.Printf("  Swaps Paused:    %t\n", state.SwapsPaused)
	fmt.Printf("  Next Request ID: %d\n", state.NextRequestID)

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func runEscrowPending(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	ctx := context.Background()

	requestID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		printError(fmt.Errorf("invalid request id %q", args[0]))
		os.Exit(1)
	}

	ledger, closeStore, err := openLedger(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer closeStore()

	pending, err := ledger.PendingSwapOf(ctx, requestID)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if pending == nil {
		printError(fmt.Errorf("no pending swap with request id %d", requestID))
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(pending, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        PENDING SWAP")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Request ID:      %d\n", pending.RequestID)
	fmt.Printf("  Sender:          %s\n", pending.SenderID)
	fmt.Printf("  Token In:        %s\n", pending.TokenIn)
	fmt.Printf("  Token Out:       %s\n", pending.TokenOut)
	fmt.Printf("  Amount In:       %s\n", pending.AmountIn)
	fmt.Printf("  Min Amount Out:  %s\n", pending.MinAmountOut)
	fmt.Printf("  Fee:             %s\n", pending.Fee)
	fmt.Printf("  Created At:      %s\n", pending.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func parseOptionalAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
