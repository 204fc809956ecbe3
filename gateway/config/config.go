package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	nodeTokenEnv  = "TENURE_RPC_TOKEN"
	hmacSecretEnv = "TENURE_GATEWAY_SECRET"
)

// NodeConfig points the gateway at the node JSON-RPC endpoint. RPCToken is the
// node bearer token the bridge uses for privileged calls; it falls back to
// TENURE_RPC_TOKEN when unset.
type NodeConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	RPCToken string        `yaml:"rpcToken"`
}

type RateLimitConfig struct {
	ID                string  `yaml:"id"`
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	Burst             int     `yaml:"burst"`
}

type ObservabilityConfig struct {
	ServiceName string `yaml:"serviceName"`
	Metrics     bool   `yaml:"metrics"`
	Tracing     bool   `yaml:"tracing"`
	LogRequests bool   `yaml:"logRequests"`
}

// AuthConfig drives the JWT bearer check on the typed routes. The secret falls
// back to TENURE_GATEWAY_SECRET when unset.
type AuthConfig struct {
	Enabled    bool          `yaml:"enabled"`
	HMACSecret string        `yaml:"hmacSecret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ScopeClaim string        `yaml:"scopeClaim"`
	ClockSkew  time.Duration `yaml:"clockSkew"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowedMethods   []string `yaml:"allowedMethods"`
	AllowedHeaders   []string `yaml:"allowedHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

type Config struct {
	ListenAddress string              `yaml:"listen"`
	ReadTimeout   time.Duration       `yaml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout"`
	Node          NodeConfig          `yaml:"node"`
	RateLimits    []RateLimitConfig   `yaml:"rateLimits"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
	CORS          CORSConfig          `yaml:"cors"`
}

// Load reads the YAML config at path, or returns the defaults when path is
// empty. Auth stays enabled by default; a deployment opts out explicitly.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8081",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		Node: NodeConfig{
			Endpoint: "http://127.0.0.1:8080",
			Timeout:  10 * time.Second,
		},
		Observability: ObservabilityConfig{
			ServiceName: "tenure-gateway",
			Metrics:     true,
			Tracing:     true,
			LogRequests: true,
		},
		Auth: AuthConfig{
			Enabled:    true,
			ScopeClaim: "scope",
			ClockSkew:  2 * time.Minute,
		},
	}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg == nil {
		return
	}
	if cfg.Node.Timeout <= 0 {
		cfg.Node.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.Node.RPCToken) == "" {
		cfg.Node.RPCToken = strings.TrimSpace(os.Getenv(nodeTokenEnv))
	}
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		cfg.Auth.HMACSecret = strings.TrimSpace(os.Getenv(hmacSecretEnv))
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
}

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("listen address required")
	}
	if _, err := cfg.NodeURL(); err != nil {
		return err
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmacSecret (or %s) required while auth is enabled", hmacSecretEnv)
	}
	for i, entry := range cfg.RateLimits {
		if strings.TrimSpace(entry.ID) == "" {
			return fmt.Errorf("rateLimits[%d].id cannot be empty", i)
		}
	}
	return nil
}

// NodeURL parses the configured node endpoint.
func (cfg *Config) NodeURL() (*url.URL, error) {
	endpoint := strings.TrimSpace(cfg.Node.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("node endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse node endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("node endpoint requires scheme and host")
	}
	return parsed, nil
}
