// Package main provides the atomicalminer binary - a commit/reveal
// proof-of-work miner for Atomicals fungible token (FT) distributions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/atomicalminer/atomicalminer/internal/config"
	"github.com/atomicalminer/atomicalminer/internal/indexer"
	"github.com/atomicalminer/atomicalminer/internal/mint"
	"github.com/atomicalminer/atomicalminer/internal/netparams"
	"github.com/atomicalminer/atomicalminer/internal/persistence"
	"github.com/atomicalminer/atomicalminer/internal/walletstore"
	"github.com/atomicalminer/atomicalminer/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		ticker      = flag.String("ticker", "", "FT ticker to mint (required)")
		dataDir     = flag.String("data-dir", "~/.atomicalminer", "Data directory")
		walletsDir  = flag.String("wallets-dir", "", "Wallet JSON directory, overrides config (default: <data-dir>/wallets)")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/atomicalminer.yaml)")
		network     = flag.String("network", "", "Network: mainnet or testnet, overrides config")
		electrumx   = flag.String("electrumx", "", "ElectrumX-proxy base URL, overrides config")
		feeOracle   = flag.String("fee-oracle", "", "Fee oracle base URL, overrides config")
		feeMin      = flag.Uint64("fee-min", 0, "Minimum sats/vByte, overrides config (0 = use config)")
		feeMax      = flag.Uint64("fee-max", 0, "Maximum sats/vByte, overrides config (0 = use config)")
		threadCount = flag.Int("threads", 0, "Mining worker threads, overrides config (0 = runtime.NumCPU())")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		jsEngine    = flag.Bool("js-engine", false, "Use the JavaScript mining engine (unsupported)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      "info",
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("atomicalminer %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	if *jsEngine {
		log.Fatal("js-engine is not supported by this build", "error", &mint.ConfigError{Field: "js-engine", Err: fmt.Errorf("only the native Go mining engine is available")})
	}

	if *ticker == "" {
		log.Fatal("missing required flag", "flag", "--ticker")
	}

	effectiveDataDir := expandPath(*dataDir)

	configPath := *configFile
	if configPath == "" {
		configPath = filepath.Join(effectiveDataDir, config.ConfigFileName)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	if *network != "" {
		cfg.Network = netparams.Network(*network)
	}
	if *electrumx != "" {
		cfg.ElectrumX = *electrumx
	}
	if *feeOracle != "" {
		cfg.FeeOracle = *feeOracle
	}
	if *feeMin != 0 {
		cfg.FeeMin = *feeMin
	}
	if *feeMax != 0 {
		cfg.FeeMax = *feeMax
	}
	if *threadCount != 0 {
		cfg.ThreadCount = *threadCount
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	cfg.DataDir = effectiveDataDir

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", "error", err)
	}

	log = logging.New(&logging.Config{
		Level:      cfg.LogLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("config loaded", "path", configPath, "network", cfg.Network)

	params, ok := netparams.Params(cfg.Network)
	if !ok {
		log.Fatal("unknown network", "network", cfg.Network)
	}

	walletDir := *walletsDir
	if walletDir == "" {
		walletDir = filepath.Join(cfg.DataDir, "wallets")
	}

	wallets, err := walletstore.LoadWallets(walletDir, params, log)
	if err != nil {
		log.Fatal("failed to load wallets", "error", err)
	}
	log.Info("wallets loaded", "count", len(wallets))

	cache, err := persistence.New(cfg.DataDir)
	if err != nil {
		log.Fatal("failed to open reveal cache", "error", err)
	}
	defer cache.Close()

	indexerClient := indexer.NewElectrumXClient(cfg.ElectrumX, params, log)
	oracle := indexer.NewMempoolFeeOracle(cfg.FeeOracle)

	threads := cfg.ThreadCount
	if threads < 1 {
		threads = runtime.NumCPU()
	}

	driver, err := mint.NewDriver(mint.Config{
		Indexer:     indexerClient,
		FeeOracle:   oracle,
		Cache:       cache,
		Log:         log,
		Network:     cfg.Network,
		FeeMin:      cfg.FeeMin,
		FeeMax:      cfg.FeeMax,
		ThreadCount: threads,
	})
	if err != nil {
		log.Fatal("failed to build driver", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	printBanner(log, cfg, *ticker, len(wallets))

	runErr := make(chan error, 1)
	go func() {
		runErr <- driver.Run(ctx, *ticker, wallets)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down...")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			log.Error("miner stopped", "error", err)
		}
	}

	log.Info("goodbye!")
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func printBanner(log *logging.Logger, cfg *config.Config, ticker string, walletCount int) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  Atomicals Miner (%s)", cfg.Network)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Ticker: %s", ticker)
	log.Infof("  Wallets: %d", walletCount)
	log.Infof("  ElectrumX: %s", cfg.ElectrumX)
	log.Infof("  Fee oracle: %s", cfg.FeeOracle)
	log.Infof("  Fee band: %d-%d sats/vByte", cfg.FeeMin, cfg.FeeMax)
	log.Infof("  Threads: %d", cfg.ThreadCount)
	log.Infof("  Data dir: %s", cfg.DataDir)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
