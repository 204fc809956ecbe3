package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"tenure/crypto"
)

// vaultRPCCall is swapped out in tests.
var vaultRPCCall = callRPC

func runVaultCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, vaultUsage())
		return 1
	}

	switch args[0] {
	case "open":
		return runVaultOpen(args[1:], stdout, stderr)
	case "close":
		return runVaultClose(args[1:], stdout, stderr, "vault_closeScheduled")
	case "close-early":
		return runVaultClose(args[1:], stdout, stderr, "vault_closeEarly")
	case "stake":
		return runVaultStake(args[1:], stdout, stderr)
	case "yield":
		return runVaultYield(args[1:], stdout, stderr)
	case "preview":
		return runVaultPreview(args[1:], stdout, stderr)
	case "aggregates":
		return runVaultAggregates(args[1:], stdout, stderr)
	case "topup":
		return runVaultTopUp(args[1:], stdout, stderr)
	case "sweep":
		return runVaultSweep(args[1:], stdout, stderr)
	case "pause":
		return runVaultPause(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown vault subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, vaultUsage())
		return 1
	}
}

func newVaultFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, vaultUsage())
	}
	return fs
}

func printVaultError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func printVaultRPCError(w io.Writer, rpcErr *rpcError) int {
	if len(rpcErr.Data) > 0 {
		var detail string
		if err := json.Unmarshal(rpcErr.Data, &detail); err == nil && strings.TrimSpace(detail) != "" {
			fmt.Fprintf(w, "Error: %s: %s\n", rpcErr.Message, detail)
			return 1
		}
	}
	fmt.Fprintf(w, "Error: %s\n", rpcErr.Message)
	return 1
}

// resolveOwner prefers an explicit bech32 address and falls back to the
// address inside the keystore file.
func resolveOwner(owner, keyPath string) (string, error) {
	trimmed := strings.TrimSpace(owner)
	if trimmed != "" {
		if _, err := crypto.DecodeAddress(trimmed); err != nil {
			return "", fmt.Errorf("invalid owner address: %v", err)
		}
		return trimmed, nil
	}
	if strings.TrimSpace(keyPath) == "" {
		return "", fmt.Errorf("provide --owner or --key")
	}
	secret, err := keystorePass.Get()
	if err != nil {
		return "", err
	}
	key, err := crypto.LoadFromKeystore(keyPath, secret)
	if err != nil {
		return "", fmt.Errorf("failed to open keystore %s: %v", keyPath, err)
	}
	return key.PubKey().Address().String(), nil
}

func parsePositiveAmount(raw string) (string, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() <= 0 {
		return "", fmt.Errorf("--amount must be a positive integer")
	}
	return value.String(), nil
}

type vaultStakeView struct {
	Owner        string `json:"owner"`
	Principal    string `json:"principal"`
	DurationDays uint64 `json:"durationDays"`
	StartedAt    uint64 `json:"startedAt"`
	Shares       string `json:"shares"`
	EarnedYield  string `json:"earnedYield"`
	Active       bool   `json:"active"`
	ClosedAt     uint64 `json:"closedAt"`
	Payout       string `json:"payout"`
}

type vaultClosureView struct {
	Scope             string `json:"scope"`
	ElapsedDays       uint64 `json:"elapsedDays"`
	PrincipalReturned string `json:"principalReturned"`
	YieldReturned     string `json:"yieldReturned"`
	Payout            string `json:"payout"`
	Penalty           string `json:"penalty"`
	Burned            string `json:"burned"`
	PoolCredited      string `json:"poolCredited"`
	TreasuryPaid      string `json:"treasuryPaid"`
	SharePrice        string `json:"sharePrice"`
	Ratcheted         bool   `json:"ratcheted"`
	ClosedAt          int64  `json:"closedAt"`
}

func runVaultOpen(args []string, stdout, stderr io.Writer) int {
	fs := newVaultFlagSet("vault open", stderr)
	var (
		owner    string
		keyPath  string
		amount   string
		duration uint64
	)
	fs.StringVar(&owner, "owner", "", "owner bech32 address (defaults to the keystore address)")
	fs.StringVar(&keyPath, "key", "", "path to the owner keystore file")
	fs.StringVar(&amount, "amount", "", "principal to lock")
	fs.Uint64Var(&duration, "duration", 0, "lock duration in days")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	resolved, err := resolveOwner(owner, keyPath)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if amount == "" {
		return printVaultError(stderr, "--amount is required")
	}
	normalized, err := parsePositiveAmount(amount)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if duration == 0 {
		return printVaultError(stderr, "--duration is required")
	}

	params := map[string]interface{}{
		"owner":        resolved,
		"amount":       normalized,
		"durationDays": duration,
	}
	result, rpcErr, err := vaultRPCCall("vault_open", params, true)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var stake vaultStakeView
	if err := json.Unmarshal(result, &stake); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}
	fmt.Fprintf(stdout, "Opened stake for %s\n", stake.Owner)
	printStake(stdout, &stake)
	return 0
}

func runVaultClose(args []string, stdout, stderr io.Writer, method string) int {
	fs := newVaultFlagSet("vault close", stderr)
	var (
		owner   string
		keyPath string
	)
	fs.StringVar(&owner, "owner", "", "owner bech32 address (defaults to the keystore address)")
	fs.StringVar(&keyPath, "key", "", "path to the owner keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	resolved, err := resolveOwner(owner, keyPath)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}

	result, rpcErr, err := vaultRPCCall(method, map[string]string{"owner": resolved}, true)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var receipt vaultClosureView
	if err := json.Unmarshal(result, &receipt); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}
	fmt.Fprintf(stdout, "Closed stake (%s) after %d days\n", receipt.Scope, receipt.ElapsedDays)
	fmt.Fprintf(stdout, "  Principal returned: %s\n", receipt.PrincipalReturned)
	fmt.Fprintf(stdout, "  Yield returned:     %s\n", receipt.YieldReturned)
	fmt.Fprintf(stdout, "  Payout:             %s\n", receipt.Payout)
	fmt.Fprintf(stdout, "  Penalty:            %s\n", receipt.Penalty)
	if receipt.Burned != "" && receipt.Burned != "0" {
		fmt.Fprintf(stdout, "    Burned:           %s\n", receipt.Burned)
	}
	if receipt.PoolCredited != "" && receipt.PoolCredited != "0" {
		fmt.Fprintf(stdout, "    Pool credited:    %s\n", receipt.PoolCredited)
	}
	if receipt.TreasuryPaid != "" && receipt.TreasuryPaid != "0" {
		fmt.Fprintf(stdout, "    Treasury paid:    %s\n", receipt.TreasuryPaid)
	}
	fmt.Fprintf(stdout, "  Share price:        %s", receipt.SharePrice)
	if receipt.Ratcheted {
		fmt.Fprint(stdout, " (ratcheted)")
	}
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  Closed at:          %s\n", time.Unix(receipt.ClosedAt, 0).UTC().Format(time.RFC3339))
	return 0
}

func runVaultStake(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		return printVaultError(stderr, "usage: vault stake <address>")
	}
	result, rpcErr, err := vaultRPCCall("vault_get", args[0], false)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var stake vaultStakeView
	if err := json.Unmarshal(result, &stake); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}
	fmt.Fprintf(stdout, "Stake for %s\n", stake.Owner)
	printStake(stdout, &stake)
	return 0
}

func printStake(w io.Writer, stake *vaultStakeView) {
	fmt.Fprintf(w, "  Principal: %s\n", stake.Principal)
	fmt.Fprintf(w, "  Duration:  %d days\n", stake.DurationDays)
	fmt.Fprintf(w, "  Started:   %s\n", time.Unix(int64(stake.StartedAt), 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  Shares:    %s\n", stake.Shares)
	fmt.Fprintf(w, "  Earned:    %s\n", stake.EarnedYield)
	fmt.Fprintf(w, "  Active:    %t\n", stake.Active)
	if !stake.Active && stake.ClosedAt > 0 {
		fmt.Fprintf(w, "  Closed:    %s\n", time.Unix(int64(stake.ClosedAt), 0).UTC().Format(time.RFC3339))
		fmt.Fprintf(w, "  Payout:    %s\n", stake.Payout)
	}
}

func runVaultYield(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		return printVaultError(stderr, "usage: vault yield <address>")
	}
	owner := args[0]

	result, rpcErr, err := vaultRPCCall("vault_projectedYield", owner, false)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var projected struct {
		ProjectedYield string `json:"projectedYield"`
	}
	if err := json.Unmarshal(result, &projected); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}

	result, rpcErr, err = vaultRPCCall("vault_elapsedDays", owner, false)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var elapsed struct {
		ElapsedDays uint64 `json:"elapsedDays"`
	}
	if err := json.Unmarshal(result, &elapsed); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}

	result, rpcErr, err = vaultRPCCall("vault_periodComplete", owner, false)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var complete struct {
		Complete bool `json:"complete"`
	}
	if err := json.Unmarshal(result, &complete); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}

	fmt.Fprintf(stdout, "Yield for %s\n", args[0])
	fmt.Fprintf(stdout, "  Elapsed days:    %d\n", elapsed.ElapsedDays)
	fmt.Fprintf(stdout, "  Period complete: %t\n", complete.Complete)
	fmt.Fprintf(stdout, "  Projected yield: %s\n", projected.ProjectedYield)
	return 0
}

func runVaultPreview(args []string, stdout, stderr io.Writer) int {
	fs := newVaultFlagSet("vault preview", stderr)
	var (
		amount   string
		duration uint64
	)
	fs.StringVar(&amount, "amount", "", "principal to quote")
	fs.Uint64Var(&duration, "duration", 0, "lock duration in days")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if amount == "" {
		return printVaultError(stderr, "--amount is required")
	}
	normalized, err := parsePositiveAmount(amount)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if duration == 0 {
		return printVaultError(stderr, "--duration is required")
	}

	params := map[string]interface{}{"amount": normalized, "durationDays": duration}
	result, rpcErr, err := vaultRPCCall("vault_preview", params, false)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var quote struct {
		QuantityBonus string `json:"quantityBonus"`
		TimeBonus     string `json:"timeBonus"`
		Effective     string `json:"effective"`
		Shares        string `json:"shares"`
		SharePrice    string `json:"sharePrice"`
	}
	if err := json.Unmarshal(result, &quote); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}
	fmt.Fprintf(stdout, "Preview for %s over %d days\n", normalized, duration)
	fmt.Fprintf(stdout, "  Quantity bonus: %s\n", quote.QuantityBonus)
	fmt.Fprintf(stdout, "  Time bonus:     %s\n", quote.TimeBonus)
	fmt.Fprintf(stdout, "  Effective:      %s\n", quote.Effective)
	fmt.Fprintf(stdout, "  Shares:         %s\n", quote.Shares)
	fmt.Fprintf(stdout, "  Share price:    %s\n", quote.SharePrice)
	return 0
}

func runVaultAggregates(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		return printVaultError(stderr, "vault aggregates takes no arguments")
	}
	result, rpcErr, err := vaultRPCCall("vault_aggregates", nil, false)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var agg struct {
		TotalShares   string `json:"totalShares"`
		SharePrice    string `json:"sharePrice"`
		RewardPool    string `json:"rewardPool"`
		LastTopUp     uint64 `json:"lastTopUp"`
		TotalBurned   string `json:"totalBurned"`
		ModuleAddress string `json:"moduleAddress"`
		Paused        bool   `json:"paused"`
	}
	if err := json.Unmarshal(result, &agg); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}
	fmt.Fprintln(stdout, "Vault aggregates")
	fmt.Fprintf(stdout, "  Total shares:   %s\n", agg.TotalShares)
	fmt.Fprintf(stdout, "  Share price:    %s\n", agg.SharePrice)
	fmt.Fprintf(stdout, "  Reward pool:    %s\n", agg.RewardPool)
	if agg.LastTopUp > 0 {
		fmt.Fprintf(stdout, "  Last top-up:    %s\n", time.Unix(int64(agg.LastTopUp), 0).UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(stdout, "  Last top-up:    never")
	}
	fmt.Fprintf(stdout, "  Total burned:   %s\n", agg.TotalBurned)
	fmt.Fprintf(stdout, "  Module address: %s\n", agg.ModuleAddress)
	fmt.Fprintf(stdout, "  Paused:         %t\n", agg.Paused)
	return 0
}

func runVaultTopUp(args []string, stdout, stderr io.Writer) int {
	fs := newVaultFlagSet("vault topup", stderr)
	var (
		authority string
		supply    string
	)
	fs.StringVar(&authority, "authority", "", "vault authority bech32 address")
	fs.StringVar(&supply, "supply", "", "override the on-record total supply for the credit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(authority) == "" {
		return printVaultError(stderr, "--authority is required")
	}
	params := map[string]interface{}{"authority": authority}
	if strings.TrimSpace(supply) != "" {
		normalized, err := parsePositiveAmount(supply)
		if err != nil {
			return printVaultError(stderr, "--supply must be a positive integer")
		}
		params["currentSupply"] = normalized
	}
	result, rpcErr, err := vaultRPCCall("vault_topUp", params, true)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var topUp struct {
		Credited    string `json:"credited"`
		RewardPool  string `json:"rewardPool"`
		TotalSupply string `json:"totalSupply"`
	}
	if err := json.Unmarshal(result, &topUp); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}
	fmt.Fprintf(stdout, "Credited %s to the reward pool\n", topUp.Credited)
	fmt.Fprintf(stdout, "  Reward pool:  %s\n", topUp.RewardPool)
	fmt.Fprintf(stdout, "  Total supply: %s\n", topUp.TotalSupply)
	return 0
}

func runVaultSweep(args []string, stdout, stderr io.Writer) int {
	fs := newVaultFlagSet("vault sweep", stderr)
	var (
		authority string
		recipient string
		incident  string
	)
	fs.StringVar(&authority, "authority", "", "vault authority bech32 address")
	fs.StringVar(&recipient, "recipient", "", "recipient bech32 address for the swept funds")
	fs.StringVar(&incident, "incident", "", "optional incident reference recorded with the sweep")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(authority) == "" {
		return printVaultError(stderr, "--authority is required")
	}
	if strings.TrimSpace(recipient) == "" {
		return printVaultError(stderr, "--recipient is required")
	}
	params := map[string]interface{}{"authority": authority, "recipient": recipient}
	if strings.TrimSpace(incident) != "" {
		params["incidentRef"] = incident
	}
	result, rpcErr, err := vaultRPCCall("vault_sweep", params, true)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var sweep struct {
		Swept       string `json:"swept"`
		Recipient   string `json:"recipient"`
		IncidentRef string `json:"incidentRef"`
	}
	if err := json.Unmarshal(result, &sweep); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}
	fmt.Fprintf(stdout, "Swept %s to %s\n", sweep.Swept, sweep.Recipient)
	if strings.TrimSpace(sweep.IncidentRef) != "" {
		fmt.Fprintf(stdout, "  Incident: %s\n", sweep.IncidentRef)
	}
	return 0
}

func runVaultPause(args []string, stdout, stderr io.Writer) int {
	fs := newVaultFlagSet("vault pause", stderr)
	var (
		authority string
		paused    bool
	)
	fs.StringVar(&authority, "authority", "", "vault authority bech32 address")
	fs.BoolVar(&paused, "paused", true, "pause (true) or resume (false) new stakes")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(authority) == "" {
		return printVaultError(stderr, "--authority is required")
	}
	params := map[string]interface{}{"authority": authority, "paused": paused}
	result, rpcErr, err := vaultRPCCall("vault_pause", params, true)
	if err != nil {
		return printVaultError(stderr, err.Error())
	}
	if rpcErr != nil {
		return printVaultRPCError(stderr, rpcErr)
	}
	var state struct {
		Paused bool `json:"paused"`
	}
	if err := json.Unmarshal(result, &state); err != nil {
		return printVaultError(stderr, fmt.Sprintf("failed to decode response: %v", err))
	}
	if state.Paused {
		fmt.Fprintln(stdout, "Vault paused; new stakes are rejected.")
	} else {
		fmt.Fprintln(stdout, "Vault resumed; new stakes are accepted.")
	}
	return 0
}

func vaultUsage() string {
	return strings.TrimSpace(`
Usage: tenure-cli vault <subcommand> [flags]

Subcommands:
  open        --amount <n> --duration <days> [--owner <addr> | --key <file>]
  close       [--owner <addr> | --key <file>]   (after the lock period)
  close-early [--owner <addr> | --key <file>]   (before the lock period, with penalty)
  stake       <address>                         show the stake for an address
  yield       <address>                         show elapsed days and projected yield
  preview     --amount <n> --duration <days>    quote bonus-weighted shares
  aggregates                                    show pool totals and share price
  topup       --authority <addr> [--supply <n>] credit the daily reward pool
  sweep       --authority <addr> --recipient <addr> [--incident <ref>]
  pause       --authority <addr> [--paused=false]

Mutating subcommands require ` + rpcTokenEnv + ` for the node bearer token.`)
}
