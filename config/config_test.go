package config

import (
	"os"
	"path/filepath"
	"testing"

	"tenure/crypto"
)

func testAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = suffix
	return crypto.MustNewAddress(crypto.TenurePrefix, raw)
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenured.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenured.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file to be written: %v", err)
	}
	if cfg.ListenAddress != ":8080" {
		t.Fatalf("expected default listen address, got %q", cfg.ListenAddress)
	}
	if cfg.DataDir != "./tenure-data" {
		t.Fatalf("expected default data dir, got %q", cfg.DataDir)
	}
	if cfg.RPCRateLimitPerMin != 600 {
		t.Fatalf("expected default rate limit, got %d", cfg.RPCRateLimitPerMin)
	}
	if cfg.FaucetEnabled {
		t.Fatalf("expected faucet disabled by default")
	}

	// The written template must itself round-trip through Load.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload default: %v", err)
	}
	if reloaded.ListenAddress != cfg.ListenAddress {
		t.Fatalf("expected reload to match, got %q", reloaded.ListenAddress)
	}
}

func TestLoadParsesFile(t *testing.T) {
	authority := testAddress(0x01)
	treasury := testAddress(0x02)
	path := writeConfig(t, `
ListenAddress = ":9090"
DataDir = "/var/lib/tenure"
LogEnvironment = "production"
LogFile = "/var/log/tenured.log"
RPCToken = "super-secret"
RPCTrustProxyHeaders = true
RPCRateLimitPerMin = 120
AuthorityAddress = "`+authority.String()+`"
TreasuryAddress = "`+treasury.String()+`"
FaucetEnabled = true
IndexerDSN = "file:closures.db"
IndexerExportDir = "/var/lib/tenure/exports"
OTLPEndpoint = "collector:4318"
OTLPHeaders = "authorization=Bearer abc"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":9090" || cfg.DataDir != "/var/lib/tenure" {
		t.Fatalf("unexpected server settings: %+v", cfg)
	}
	if cfg.LogEnvironment != "production" || cfg.LogFile != "/var/log/tenured.log" {
		t.Fatalf("unexpected logging settings: %+v", cfg)
	}
	if cfg.RPCToken != "super-secret" || !cfg.RPCTrustProxyHeaders || cfg.RPCRateLimitPerMin != 120 {
		t.Fatalf("unexpected rpc settings: %+v", cfg)
	}
	if !cfg.FaucetEnabled {
		t.Fatalf("expected faucet enabled")
	}
	if cfg.IndexerDSN != "file:closures.db" || cfg.IndexerExportDir != "/var/lib/tenure/exports" {
		t.Fatalf("unexpected indexer settings: %+v", cfg)
	}
	if cfg.OTLPEndpoint != "collector:4318" {
		t.Fatalf("unexpected otlp endpoint: %q", cfg.OTLPEndpoint)
	}

	decoded, err := cfg.Authority()
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	if decoded.String() != authority.String() {
		t.Fatalf("expected authority %s, got %s", authority.String(), decoded.String())
	}
}

func TestLoadReadsTokenFromEnvironment(t *testing.T) {
	t.Setenv("TENURE_RPC_TOKEN", "env-token")
	path := writeConfig(t, `
ListenAddress = ":8080"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCToken != "env-token" {
		t.Fatalf("expected token from environment, got %q", cfg.RPCToken)
	}
}

func TestLoadRejectsBadAuthority(t *testing.T) {
	path := writeConfig(t, `
AuthorityAddress = "not-a-bech32-address"
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected malformed authority address to be rejected")
	}
}

func TestLoadRejectsNegativeRateLimit(t *testing.T) {
	path := writeConfig(t, `
RPCRateLimitPerMin = -5
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected negative rate limit to be rejected")
	}
}

func TestAuthorityBlankIsZeroAddress(t *testing.T) {
	cfg := &Config{}
	addr, err := cfg.Authority()
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	if len(addr.Bytes()) != 0 {
		t.Fatalf("expected zero address for blank config, got %v", addr)
	}
}
