package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tenure/config"
	"tenure/core"
	"tenure/indexer"
	nativecommon "tenure/native/common"
	"tenure/native/vault"
	"tenure/observability/logging"
	telemetry "tenure/observability/otel"
	"tenure/rpc"
	"tenure/storage"
)

func main() {
	var (
		cfgPath string
		dataDir string
		listen  string
	)
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to the configuration file")
	flag.StringVar(&dataDir, "db", "", "override the configured data directory")
	flag.StringVar(&listen, "listen", "", "override the configured RPC listen address")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TENURE_ENV"))
	logger := logging.Setup("tenured", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listen != "" {
		cfg.ListenAddress = listen
	}
	if cfg.LogFile != "" {
		logger = logging.SetupWithRotation("tenured", cfg.LogEnvironment, cfg.LogFile)
	} else if cfg.LogEnvironment != "" {
		logger = logging.Setup("tenured", cfg.LogEnvironment)
	}

	authority, err := cfg.Authority()
	if err != nil {
		logger.Error("invalid AuthorityAddress", slog.Any("error", err))
		os.Exit(1)
	}
	treasury, err := cfg.Treasury()
	if err != nil {
		logger.Error("invalid TreasuryAddress", slog.Any("error", err))
		os.Exit(1)
	}
	if len(authority.Bytes()) == 0 || len(treasury.Bytes()) == 0 {
		logger.Error("AuthorityAddress and TreasuryAddress must be set in the config before the vault can run")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "tenured",
			Environment: cfg.LogEnvironment,
			Endpoint:    endpoint,
			Insecure:    true,
			Headers:     telemetry.ParseHeaders(cfg.OTLPHeaders),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Error("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("path", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, core.Config{
		Params: vault.Params{
			Authority: authority,
			Treasury:  treasury,
		},
		FaucetEnabled: cfg.FaucetEnabled,
		// 120 mints per address per hour keeps dev faucet loops honest.
		FaucetQuota: nativecommon.Quota{MaxRequestsPerEpoch: 120, EpochSeconds: 3600},
	})
	if err != nil {
		logger.Error("failed to initialise node", slog.Any("error", err))
		os.Exit(1)
	}

	if dsn := strings.TrimSpace(cfg.IndexerDSN); dsn != "" {
		// DSNs can embed database credentials; log presence, not the value.
		logger.Info("indexer enabled", logging.MaskField("dsn", dsn))
		histDB, err := indexer.Open(dsn)
		if err != nil {
			logger.Error("failed to open indexer database", slog.Any("error", err))
			os.Exit(1)
		}
		ix, err := indexer.New(indexer.Config{DB: histDB, Source: node, Logger: logger})
		if err != nil {
			logger.Error("failed to initialise indexer", slog.Any("error", err))
			os.Exit(1)
		}
		go func() {
			if err := ix.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("indexer stopped", slog.Any("error", err))
			}
		}()
		if dir := strings.TrimSpace(cfg.IndexerExportDir); dir != "" {
			go runDailyExport(ctx, ix, dir, logger)
		}
	}

	server := rpc.NewServer(node, rpc.ServerConfig{
		AuthToken:          cfg.RPCToken,
		TrustProxyHeaders:  cfg.RPCTrustProxyHeaders,
		RateLimitPerMinute: cfg.RPCRateLimitPerMin,
	})
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.ListenAddress) }()
	logger.Info("tenured running",
		slog.String("listen", cfg.ListenAddress),
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("faucet", cfg.FaucetEnabled))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("rpc server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("rpc shutdown failed", slog.Any("error", err))
	}
	logger.Info("tenured stopped")
}

// runDailyExport writes the previous UTC day's closure report once at
// startup, then again after each midnight rollover. Reruns rewrite the
// same file, so a restart cannot leave a partial report behind.
func runDailyExport(ctx context.Context, ix *indexer.Indexer, dir string, logger *slog.Logger) {
	for {
		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		if _, _, err := ix.ExportClosures(dir, yesterday); err != nil {
			logger.Error("closure export failed", slog.Any("error", err))
		}
		next := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
