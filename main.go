package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tradehook/config"
	"tradehook/internal/adapters/binanceclient"
	"tradehook/internal/adapters/logger"
	"tradehook/internal/adapters/sqlite"
	"tradehook/internal/app"
	"tradehook/internal/risk"
	"tradehook/internal/server"
	tradingsignal "tradehook/internal/signal"
	"tradehook/internal/trading"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Console: cfg.LogConsole})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer repo.Close()

	exchange, err := binanceclient.New(binanceclient.Config{
		APIKey:         cfg.APIKey,
		SecretKey:      cfg.SecretKey,
		UseTestnet:     cfg.IsTestnet,
		Logger:         appLogger,
		RequestTimeout: cfg.ExchangeTimeout,
	})
	if err != nil {
		return fmt.Errorf("initialize exchange client: %w", err)
	}
	if err := exchange.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Exchange unreachable at startup, continuing anyway", map[string]interface{}{"error": err.Error()})
	}

	validator, err := tradingsignal.NewValidator(tradingsignal.Config{Bots: repo, Logger: appLogger})
	if err != nil {
		return fmt.Errorf("initialize validator: %w", err)
	}

	executor, err := trading.NewExecutor(trading.ExecutorConfig{Exchange: exchange, Logger: appLogger})
	if err != nil {
		return fmt.Errorf("initialize executor: %w", err)
	}

	ledger, err := trading.NewLedger(trading.LedgerConfig{Trades: repo.Trades(), Logger: appLogger})
	if err != nil {
		return fmt.Errorf("initialize ledger: %w", err)
	}

	pipeline, err := app.NewPipeline(app.PipelineConfig{
		Validator:  validator,
		Sizer:      risk.NewSizer(),
		Executor:   executor,
		Ledger:     ledger,
		Exchange:   exchange,
		Logger:     appLogger,
		QuoteAsset: cfg.QuoteAsset,
	})
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	bots, err := app.NewBotService(app.BotServiceConfig{
		Bots:          repo,
		Logger:        appLogger,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("initialize bot service: %w", err)
	}

	srv, err := server.NewServer(server.Config{
		Addr:     cfg.ListenAddr,
		Logger:   appLogger,
		Pipeline: pipeline,
		Bots:     bots,
		Ledger:   ledger,
		Closer:   executor,
		Exchange: exchange,
	})
	if err != nil {
		return fmt.Errorf("initialize HTTP server: %w", err)
	}

	appLogger.Info(ctx, "Starting webhook trading service", map[string]interface{}{
		"addr":    srv.Addr(),
		"testnet": cfg.IsTestnet,
	})
	return srv.Start(ctx)
}
