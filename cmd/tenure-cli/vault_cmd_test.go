package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"tenure/cmd/internal/passphrase"
	"tenure/crypto"
)

type recordedCall struct {
	method      string
	params      interface{}
	requireAuth bool
}

func cliTestAddress(suffix byte) string {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = suffix
	return crypto.MustNewAddress(crypto.TenurePrefix, raw).String()
}

func stubVaultRPC(t *testing.T, handler func(call recordedCall) (json.RawMessage, *rpcError, error)) *[]recordedCall {
	t.Helper()
	calls := &[]recordedCall{}
	original := vaultRPCCall
	vaultRPCCall = func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		call := recordedCall{method: method, params: params, requireAuth: requireAuth}
		*calls = append(*calls, call)
		return handler(call)
	}
	t.Cleanup(func() { vaultRPCCall = original })
	return calls
}

func forbidRPC(t *testing.T) {
	t.Helper()
	stubVaultRPC(t, func(call recordedCall) (json.RawMessage, *rpcError, error) {
		t.Fatalf("unexpected RPC call for method %s", call.method)
		return nil, nil, nil
	})
}

func TestVaultCommandUsage(t *testing.T) {
	forbidRPC(t)
	var stdout, stderr bytes.Buffer
	if code := runVaultCommand(nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: tenure-cli vault") {
		t.Fatalf("expected usage output, got %q", stderr.String())
	}
}

func TestVaultCommandUnknownSubcommand(t *testing.T) {
	forbidRPC(t)
	var stdout, stderr bytes.Buffer
	if code := runVaultCommand([]string{"freeze"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown vault subcommand: freeze") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestVaultOpenValidation(t *testing.T) {
	forbidRPC(t)
	owner := cliTestAddress(0x07)

	cases := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "missing_owner_and_key",
			args: []string{"open", "--amount", "1000000", "--duration", "365"},
			want: "provide --owner or --key",
		},
		{
			name: "bad_owner",
			args: []string{"open", "--owner", "nope", "--amount", "1000000", "--duration", "365"},
			want: "invalid owner address",
		},
		{
			name: "missing_amount",
			args: []string{"open", "--owner", owner, "--duration", "365"},
			want: "--amount is required",
		},
		{
			name: "negative_amount",
			args: []string{"open", "--owner", owner, "--amount", "-5", "--duration", "365"},
			want: "--amount must be a positive integer",
		},
		{
			name: "missing_duration",
			args: []string{"open", "--owner", owner, "--amount", "1000000"},
			want: "--duration is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := runVaultCommand(tc.args, &stdout, &stderr); code != 1 {
				t.Fatalf("expected exit code 1, got %d", code)
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("expected %q in stderr, got %q", tc.want, stderr.String())
			}
		})
	}
}

func TestVaultOpenSendsParams(t *testing.T) {
	owner := cliTestAddress(0x07)
	result := json.RawMessage(`{
		"owner": "` + owner + `",
		"principal": "1000000",
		"durationDays": 365,
		"startedAt": 1700000000,
		"shares": "1200000",
		"earnedYield": "0",
		"active": true,
		"payout": "0"
	}`)
	calls := stubVaultRPC(t, func(call recordedCall) (json.RawMessage, *rpcError, error) {
		return result, nil, nil
	})

	var stdout, stderr bytes.Buffer
	args := []string{"open", "--owner", owner, "--amount", "1000000", "--duration", "365"}
	if code := runVaultCommand(args, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d (stderr %q)", code, stderr.String())
	}
	if len(*calls) != 1 {
		t.Fatalf("expected one RPC call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.method != "vault_open" {
		t.Fatalf("unexpected method %s", call.method)
	}
	if !call.requireAuth {
		t.Fatal("vault_open must require the bearer token")
	}
	params, ok := call.params.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected params type %T", call.params)
	}
	if params["owner"] != owner || params["amount"] != "1000000" || params["durationDays"] != uint64(365) {
		t.Fatalf("unexpected params: %+v", params)
	}
	out := stdout.String()
	if !strings.Contains(out, "Opened stake for "+owner) || !strings.Contains(out, "Shares:    1200000") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestVaultCloseEarlyPrintsReceipt(t *testing.T) {
	owner := cliTestAddress(0x07)
	result := json.RawMessage(`{
		"scope": "early",
		"elapsedDays": 90,
		"principalReturned": "940000",
		"yieldReturned": "0",
		"payout": "940000",
		"penalty": "60000",
		"burned": "15000",
		"poolCredited": "30000",
		"treasuryPaid": "15000",
		"sharePrice": "10000",
		"ratcheted": false,
		"closedAt": 1700000000
	}`)
	calls := stubVaultRPC(t, func(call recordedCall) (json.RawMessage, *rpcError, error) {
		return result, nil, nil
	})

	var stdout, stderr bytes.Buffer
	if code := runVaultCommand([]string{"close-early", "--owner", owner}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d (stderr %q)", code, stderr.String())
	}
	if (*calls)[0].method != "vault_closeEarly" {
		t.Fatalf("unexpected method %s", (*calls)[0].method)
	}
	out := stdout.String()
	for _, want := range []string{
		"Closed stake (early) after 90 days",
		"Principal returned: 940000",
		"Penalty:            60000",
		"Burned:           15000",
		"Pool credited:    30000",
		"Treasury paid:    15000",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestVaultStakeSendsBareAddress(t *testing.T) {
	owner := cliTestAddress(0x07)
	result := json.RawMessage(`{
		"owner": "` + owner + `",
		"principal": "1000000",
		"durationDays": 365,
		"startedAt": 1700000000,
		"shares": "1200000",
		"earnedYield": "0",
		"active": true,
		"payout": "0"
	}`)
	calls := stubVaultRPC(t, func(call recordedCall) (json.RawMessage, *rpcError, error) {
		return result, nil, nil
	})

	var stdout, stderr bytes.Buffer
	if code := runVaultCommand([]string{"stake", owner}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d (stderr %q)", code, stderr.String())
	}
	call := (*calls)[0]
	if call.method != "vault_get" {
		t.Fatalf("unexpected method %s", call.method)
	}
	if call.requireAuth {
		t.Fatal("vault_get must not require auth")
	}
	if addr, ok := call.params.(string); !ok || addr != owner {
		t.Fatalf("expected bare address param, got %#v", call.params)
	}
}

func TestVaultYieldComposesQueries(t *testing.T) {
	owner := cliTestAddress(0x07)
	responses := map[string]json.RawMessage{
		"vault_projectedYield": json.RawMessage(`{"projectedYield": "1234"}`),
		"vault_elapsedDays":    json.RawMessage(`{"elapsedDays": 120}`),
		"vault_periodComplete": json.RawMessage(`{"complete": false}`),
	}
	calls := stubVaultRPC(t, func(call recordedCall) (json.RawMessage, *rpcError, error) {
		result, ok := responses[call.method]
		if !ok {
			t.Fatalf("unexpected method %s", call.method)
		}
		return result, nil, nil
	})

	var stdout, stderr bytes.Buffer
	if code := runVaultCommand([]string{"yield", owner}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d (stderr %q)", code, stderr.String())
	}
	if len(*calls) != 3 {
		t.Fatalf("expected three RPC calls, got %d", len(*calls))
	}
	for _, call := range *calls {
		if addr, ok := call.params.(string); !ok || addr != owner {
			t.Fatalf("expected bare address param for %s, got %#v", call.method, call.params)
		}
	}
	out := stdout.String()
	for _, want := range []string{"Elapsed days:    120", "Period complete: false", "Projected yield: 1234"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestVaultTopUpValidation(t *testing.T) {
	forbidRPC(t)
	var stdout, stderr bytes.Buffer
	if code := runVaultCommand([]string{"topup"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "--authority is required") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestVaultTopUpReportsRPCError(t *testing.T) {
	authority := cliTestAddress(0x01)
	stubVaultRPC(t, func(call recordedCall) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: -32001, Message: "vault authority required"}, nil
	})

	var stdout, stderr bytes.Buffer
	if code := runVaultCommand([]string{"topup", "--authority", authority}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "vault authority required") {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
}

func TestVaultPauseOutput(t *testing.T) {
	authority := cliTestAddress(0x01)
	stubVaultRPC(t, func(call recordedCall) (json.RawMessage, *rpcError, error) {
		params, ok := call.params.(map[string]interface{})
		if !ok {
			t.Fatalf("unexpected params type %T", call.params)
		}
		paused := params["paused"].(bool)
		if paused {
			return json.RawMessage(`{"paused": true}`), nil, nil
		}
		return json.RawMessage(`{"paused": false}`), nil, nil
	})

	var stdout, stderr bytes.Buffer
	if code := runVaultCommand([]string{"pause", "--authority", authority}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d (stderr %q)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Vault paused") {
		t.Fatalf("unexpected output: %q", stdout.String())
	}

	stdout.Reset()
	if code := runVaultCommand([]string{"pause", "--authority", authority, "--paused=false"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d (stderr %q)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Vault resumed") {
		t.Fatalf("unexpected output: %q", stdout.String())
	}
}

func TestResolveOwnerFromKeystore(t *testing.T) {
	t.Setenv(keystorePassEnv, "correct horse battery staple")
	original := keystorePass
	keystorePass = passphrase.NewSource(keystorePassEnv)
	t.Cleanup(func() { keystorePass = original })

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "tenure.key")
	if err := crypto.SaveToKeystore(path, key, "correct horse battery staple"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}

	resolved, err := resolveOwner("", path)
	if err != nil {
		t.Fatalf("resolve owner: %v", err)
	}
	if resolved != key.PubKey().Address().String() {
		t.Fatalf("expected %s, got %s", key.PubKey().Address().String(), resolved)
	}
}
