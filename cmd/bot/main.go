// cmd/bot/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/pumpbot/internal/blockchain/rpc"
	"github.com/rovshanmuradov/pumpbot/internal/bot"
	"github.com/rovshanmuradov/pumpbot/internal/config"
	"github.com/rovshanmuradov/pumpbot/internal/dex/pumpfun"
	"github.com/rovshanmuradov/pumpbot/internal/dex/pumpportal"
	"github.com/rovshanmuradov/pumpbot/internal/events"
	"github.com/rovshanmuradov/pumpbot/internal/license"
	"github.com/rovshanmuradov/pumpbot/internal/logger"
	"github.com/rovshanmuradov/pumpbot/internal/metrics"
	"github.com/rovshanmuradov/pumpbot/internal/monitor"
	"github.com/rovshanmuradov/pumpbot/internal/sniping"
	"github.com/rovshanmuradov/pumpbot/internal/storage"
	"github.com/rovshanmuradov/pumpbot/internal/ui"
	"github.com/rovshanmuradov/pumpbot/internal/wallet"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "pumpbot: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// .env is optional; the private key usually lives there
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		configPath = ""
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Debug = cfg.DebugLogging
	logCfg.LogFile = cfg.LogFile
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync(log) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validator := license.NewKeygenValidator(license.Settings{
		AccountID:    cfg.KeygenAccountID,
		ProductToken: cfg.KeygenProductToken,
		ProductID:    cfg.KeygenProductID,
		LicenseKey:   cfg.License,
	}, log)
	if err := validator.Check(ctx); err != nil {
		return err
	}

	w, err := wallet.NewWallet(cfg.PrivateKey)
	if err != nil {
		return err
	}

	log.Info("🚀 Starting pumpbot",
		zap.String("wallet", logger.ShortenAddress(w.PublicKey.String())),
		zap.String("rpc", cfg.MaskedRPC()),
		zap.Int("max_positions", cfg.MaxConcurrentPositions),
		zap.Float64s("profit_levels", cfg.ProfitTakingLevels))

	shutdown := bot.NewShutdownHandler(log, cfg.ShutdownTimeout)

	rpcClient, err := rpc.NewClient(cfg.RPCURLs(), log)
	if err != nil {
		return err
	}
	shutdown.Add("rpc", rpcClient)

	market := pumpfun.NewClient(pumpfun.ClientConfig{
		BaseURL:           cfg.MarketAPIURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, log)
	holdings := wallet.NewHoldings(rpcClient, w.PublicKey, log)
	executor := pumpportal.NewExecutor(cfg.TradeAPIURL, w, rpcClient, cfg.ConfirmTimeout, log)

	bus := events.NewBus(log, 0)

	store := monitor.NewStore(cfg.PriceHistoryCapacity, log)

	deps := bot.RunnerDeps{
		Store:  store,
		Events: bus,
		Logger: log,
	}

	if cfg.StorageDSN != "" {
		db, err := storage.Open(cfg.StorageDSN, log)
		if err != nil {
			return err
		}
		shutdown.Add("storage", db)

		saved, err := db.LoadPositions(ctx)
		if err != nil {
			return err
		}
		store.Restore(saved)
		db.Attach(bus)
		deps.Persister = db
	}

	if cfg.TradeLogDir != "" {
		journal, err := monitor.NewTradeHistory(cfg.TradeLogDir, 1000, log)
		if err != nil {
			return err
		}
		journal.Attach(bus)
		shutdown.Add("trade journal", journal)
	}

	if cfg.MetricsAddr != "" {
		collector := metrics.New(log)
		collector.Attach(bus)
		collector.Serve(cfg.MetricsAddr)
		shutdown.Add("metrics", collector)
		deps.Metrics = collector
	}

	if cfg.StatusTable {
		deps.Status = os.Stdout
		deps.Render = ui.RenderPositions
	}

	// registered last so queued events drain before their subscribers close
	shutdown.AddFunc("event bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return bus.Shutdown(ctx)
	})

	deps.Coordinator = bot.NewCoordinator(store, executor, bus, bot.CoordinatorConfig{
		Slippage:         cfg.Slippage,
		PriorityFee:      cfg.PriorityFee,
		Pool:             cfg.Pool,
		SellRetryInitial: cfg.SellRetryInitial,
		SellRetryMax:     cfg.SellRetryMax,
		MaxSellRetries:   cfg.MaxSellRetries,
	}, log)
	deps.Selector = sniping.NewSelector(market, sniping.Criteria{
		MinMarketCap:   cfg.MinMarketCap,
		MaxCandidates:  cfg.MaxCandidates,
		RequireSocials: cfg.RequireSocials,
	}, log)
	deps.Engine = monitor.NewEngine(monitor.ExitConfig{
		RapidRiseTrigger:    cfg.RapidRiseTrigger,
		PriceDeclineTrigger: cfg.PriceDeclineTrigger,
		ProfitTakingLevels:  cfg.ProfitTakingLevels,
		ReversalMinGain:     cfg.ReversalMinGain,
		StopLossTrigger:     cfg.StopLossTrigger,
	})
	deps.Market = market
	deps.Holdings = holdings

	runner := bot.NewRunner(bot.RunnerConfig{
		AcquireInterval:        cfg.AcquireInterval,
		MonitorInterval:        cfg.MonitorInterval,
		ShutdownTimeout:        cfg.ShutdownTimeout,
		FetchWorkers:           cfg.FetchWorkers,
		MaxConcurrentPositions: cfg.MaxConcurrentPositions,
		BuyAmount:              decimal.NewFromFloat(cfg.MinBuyAmount),
		HoldWalletTokens:       cfg.HoldWalletTokens,
	}, deps)

	runErr := runner.Run(ctx)
	if runErr != nil {
		log.Error("Runner stopped with error", zap.Error(runErr))
	}

	if err := shutdown.Shutdown(context.Background()); err != nil {
		log.Error("Shutdown finished with errors", zap.Error(err))
	}
	log.Info("👋 Bye")
	return runErr
}
