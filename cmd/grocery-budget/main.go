package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"grocerybudget/internal/amqp"
	"grocerybudget/internal/backend"
	"grocerybudget/internal/cache"
	"grocerybudget/internal/chain"
	"grocerybudget/internal/cli"
	apphttp "grocerybudget/internal/http"
	"grocerybudget/internal/log"
	"grocerybudget/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	// Set up logging before config so validation errors are structured too.
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := backend.NewFactory(logger).CreateBackend(startCtx, backendConfig)
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize chain backend", log.FieldError, err, log.FieldChainBackend, cfg.ChainBackend)
		os.Exit(1)
	}

	client := chain.NewClient(result.Backend, chain.Options{
		PollInterval:   cfg.ReceiptPollInterval,
		ReceiptTimeout: cfg.ReceiptTimeout,
		CacheSize:      cfg.ReadCacheSize,
		CacheTTL:       cfg.ReadCacheTTL,
		Logger:         logger,
	})

	caches := cache.NewManager(logger)
	caches.Register("chain_reads", client.ReadCache())
	caches.StartCleanup(cfg.ReadCacheTTL)

	// Confirmation broadcast is optional.
	var (
		broker    *amqp.Client
		publisher services.ConfirmationPublisher
	)
	if cfg.AMQPURL != "" {
		origin, _ := os.Hostname()
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, origin)
		if err != nil {
			logger.Warn("AMQP unavailable, confirmations will not be broadcast", log.FieldError, err)
			broker = nil
		} else {
			publisher = broker
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	}

	expenses := services.NewExpenseContractService(services.Config{
		Contract:     backendConfig.Binding,
		HistoryLimit: cfg.ExpenseHistoryLimit,
	}, client, publisher, logger)

	srv := apphttp.NewServer(":"+cfg.Port, expenses, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Probe:              result.Probe,
		Logger:             log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Component: log.ComponentHTTP, Handler: logger.Handler()}),
		CacheEntries:       client.CachedReads,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := expenses.Close(); err != nil {
			logger.Error("Expense service close error", log.FieldError, err)
		}
		client.Close()
		caches.Stop()
		if broker != nil {
			if err := broker.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err)
			}
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	// Another instance confirmed an expense: its totals are newer than ours.
	if broker != nil {
		aggregates := services.AggregateCalls(backendConfig.Binding)
		go func() {
			err := broker.ConsumeExpenseConfirmed(ctx, func(msg *amqp.ExpenseConfirmedMessage) error {
				client.Invalidate(aggregates...)
				logger.Debug("Invalidated aggregates after remote confirmation", log.FieldTxHash, msg.TxHash)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Confirmation consumer stopped", log.FieldError, err)
			}
		}()
	}

	go func() {
		logger.Info("Starting grocery-budget server",
			"port", cfg.Port,
			log.FieldChainBackend, cfg.ChainBackend,
			"contract", backendConfig.Binding.Address.Hex())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
