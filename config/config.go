package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"tenure/crypto"
)

// Config captures the tenured daemon settings.
type Config struct {
	ListenAddress        string `toml:"ListenAddress"`
	DataDir              string `toml:"DataDir"`
	LogEnvironment       string `toml:"LogEnvironment"`
	LogFile              string `toml:"LogFile"`
	RPCToken             string `toml:"RPCToken"`
	RPCTrustProxyHeaders bool   `toml:"RPCTrustProxyHeaders"`
	RPCRateLimitPerMin   int    `toml:"RPCRateLimitPerMin"`
	AuthorityAddress     string `toml:"AuthorityAddress"`
	TreasuryAddress      string `toml:"TreasuryAddress"`
	FaucetEnabled        bool   `toml:"FaucetEnabled"`
	IndexerDSN           string `toml:"IndexerDSN"`
	IndexerExportDir     string `toml:"IndexerExportDir"`
	OTLPEndpoint         string `toml:"OTLPEndpoint"`
	OTLPHeaders          string `toml:"OTLPHeaders"`
}

const rpcTokenEnv = "TENURE_RPC_TOKEN"

const defaultConfigTemplate = `# tenured configuration.

# Address the JSON-RPC server binds to.
ListenAddress = ":8080"

# LevelDB state directory.
DataDir = "./tenure-data"

# Logging environment ("production" switches to JSON without source locations).
LogEnvironment = "dev"

# Optional rotating log file. Blank logs to stdout only.
LogFile = ""

# Bearer token required for mutating RPC methods. Leave blank to read it from
# the TENURE_RPC_TOKEN environment variable instead.
RPCToken = ""

# Honor X-Forwarded-For / X-Real-IP when the daemon sits behind a proxy.
RPCTrustProxyHeaders = false

# Mutating requests allowed per source per minute. Zero disables the limiter.
RPCRateLimitPerMin = 600

# Bech32 address allowed to run top-ups, sweeps and pauses.
AuthorityAddress = ""

# Bech32 address credited with the treasury cut of withdrawal penalties.
TreasuryAddress = ""

# Enable the tenure_fund faucet method. Keep disabled outside dev networks.
FaucetEnabled = false

# GORM DSN for the history indexer. Blank disables indexing; a "file:" or
# ":memory:" DSN selects SQLite, anything else is treated as Postgres.
IndexerDSN = ""

# Directory for daily parquet closure exports. Blank disables exports.
IndexerExportDir = ""

# OTLP endpoint for traces and metrics, e.g. "localhost:4318". Blank disables.
OTLPEndpoint = ""

# Comma-separated OTLP headers, e.g. "authorization=Bearer abc".
OTLPHeaders = ""
`

// Load reads the daemon configuration, writing a commented default file first
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0o644); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if _, err := toml.Decode(defaultConfigTemplate, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.LogEnvironment = strings.TrimSpace(c.LogEnvironment)
	c.LogFile = strings.TrimSpace(c.LogFile)
	c.RPCToken = strings.TrimSpace(c.RPCToken)
	c.AuthorityAddress = strings.TrimSpace(c.AuthorityAddress)
	c.TreasuryAddress = strings.TrimSpace(c.TreasuryAddress)
	c.IndexerDSN = strings.TrimSpace(c.IndexerDSN)
	c.IndexerExportDir = strings.TrimSpace(c.IndexerExportDir)
	c.OTLPEndpoint = strings.TrimSpace(c.OTLPEndpoint)
	c.OTLPHeaders = strings.TrimSpace(c.OTLPHeaders)

	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./tenure-data"
	}
	if c.RPCToken == "" {
		c.RPCToken = strings.TrimSpace(os.Getenv(rpcTokenEnv))
	}
}

// Validate rejects malformed addresses and nonsensical limits before the
// daemon starts committing state.
func (c *Config) Validate() error {
	if c.RPCRateLimitPerMin < 0 {
		return fmt.Errorf("RPCRateLimitPerMin must not be negative")
	}
	if err := validateAddress("AuthorityAddress", c.AuthorityAddress); err != nil {
		return err
	}
	if err := validateAddress("TreasuryAddress", c.TreasuryAddress); err != nil {
		return err
	}
	return nil
}

// Authority decodes the configured authority address, or returns the zero
// address when none is set.
func (c *Config) Authority() (crypto.Address, error) {
	return decodeOptional(c.AuthorityAddress)
}

// Treasury decodes the configured treasury address, or returns the zero
// address when none is set.
func (c *Config) Treasury() (crypto.Address, error) {
	return decodeOptional(c.TreasuryAddress)
}

func decodeOptional(value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, nil
	}
	return crypto.DecodeAddress(value)
}

func validateAddress(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if _, err := crypto.DecodeAddress(value); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}
