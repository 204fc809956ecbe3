package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"

	"tenure/cmd/internal/passphrase"
	"tenure/crypto"
)

const (
	rpcURLEnv       = "TENURE_RPC_URL"
	rpcTokenEnv     = "TENURE_RPC_TOKEN"
	keystorePassEnv = "TENURE_KEYSTORE_PASSPHRASE"

	defaultKeystoreFile = "tenure.key"
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv(rpcTokenEnv)
	keystorePass = passphrase.NewSource(keystorePassEnv)
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func main() {
	args := os.Args[1:]
	var err error
	rpcEndpoint = defaultRPCEndpoint()
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	switch args[0] {
	case "gen-key":
		out := defaultKeystoreFile
		if len(args) > 1 {
			out = args[1]
		}
		generateKey(out)
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "supply":
		getSupply()
	case "fund":
		if len(args) < 3 {
			fmt.Println("Usage: fund <address> <amount>")
			return
		}
		fund(args[1], args[2])
	case "vault":
		code := runVaultCommand(args[1:], os.Stdout, os.Stderr)
		if code != 0 {
			os.Exit(code)
		}
		return
	default:
		fmt.Printf("Unknown command: %s\n", args[0])
		printUsage()
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func generateKey(path string) {
	secret, err := keystorePass.Get()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Printf("Error generating key: %v\n", err)
		return
	}
	if err := crypto.SaveToKeystore(path, key, secret); err != nil {
		fmt.Printf("Error saving keystore: %v\n", err)
		return
	}
	fmt.Printf("Generated new key and saved to %s\n", path)
	fmt.Printf("Your address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file and its passphrase securely; they cannot be recovered.")
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

func getBalance(addr string) {
	result, rpcErr, err := callRPC("tenure_getBalance", addr, false)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		return
	}
	if rpcErr != nil {
		fmt.Printf("Error fetching balance: %s\n", rpcErr.Message)
		return
	}
	var account balanceResponse
	if err := json.Unmarshal(result, &account); err != nil {
		fmt.Printf("Error decoding balance: %v\n", err)
		return
	}
	fmt.Printf("Account: %s\n", account.Address)
	fmt.Printf("  Balance: %s\n", account.Balance)
	fmt.Printf("  Nonce:   %d\n", account.Nonce)
}

func getSupply() {
	result, rpcErr, err := callRPC("tenure_getSupply", nil, false)
	if err != nil {
		fmt.Printf("Error fetching supply: %v\n", err)
		return
	}
	if rpcErr != nil {
		fmt.Printf("Error fetching supply: %s\n", rpcErr.Message)
		return
	}
	var supply struct {
		TotalSupply string `json:"totalSupply"`
	}
	if err := json.Unmarshal(result, &supply); err != nil {
		fmt.Printf("Error decoding supply: %v\n", err)
		return
	}
	fmt.Printf("Total supply: %s\n", supply.TotalSupply)
}

func fund(addr, amountStr string) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(amountStr), 10)
	if !ok || amount.Sign() <= 0 {
		fmt.Println("Error: amount must be a positive integer.")
		return
	}
	params := map[string]string{"address": addr, "amount": amount.String()}
	result, rpcErr, err := callRPC("tenure_fund", params, true)
	if err != nil {
		fmt.Printf("Error funding account: %v\n", err)
		return
	}
	if rpcErr != nil {
		fmt.Printf("Error funding account: %s\n", rpcErr.Message)
		return
	}
	var account balanceResponse
	if err := json.Unmarshal(result, &account); err != nil {
		fmt.Printf("Error decoding response: %v\n", err)
		return
	}
	fmt.Printf("Funded %s\n", account.Address)
	fmt.Printf("  New balance: %s\n", account.Balance)
}

func callRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		if strings.TrimSpace(rpcAuthToken) == "" {
			return nil, fmt.Errorf("privileged RPC call requires %s to be set", rpcTokenEnv)
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

func printUsage() {
	fmt.Println("Usage: tenure-cli [--rpc <url>] <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  gen-key [file]          - Generates a key and saves it to an encrypted keystore (default tenure.key)")
	fmt.Println("  balance <address>       - Shows the balance and nonce of an address")
	fmt.Println("  supply                  - Shows the total token supply")
	fmt.Println("  fund <address> <amount> - Credits an account from the dev faucet (requires " + rpcTokenEnv + ")")
	fmt.Println("  vault                   - Staking vault subcommands (run 'vault' for details)")
	fmt.Println()
	fmt.Println("The RPC endpoint defaults to http://localhost:8080; override with --rpc or " + rpcURLEnv + ".")
}
