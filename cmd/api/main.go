package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/collectivehq/ledger-core/internal/config"
	"github.com/collectivehq/ledger-core/internal/fees"
	"github.com/collectivehq/ledger-core/internal/fx"
	"github.com/collectivehq/ledger-core/internal/handler"
	"github.com/collectivehq/ledger-core/internal/ledger"
	"github.com/collectivehq/ledger-core/internal/logging"
	"github.com/collectivehq/ledger-core/internal/middleware"
	"github.com/collectivehq/ledger-core/internal/provider"
	"github.com/collectivehq/ledger-core/internal/refund"
	"github.com/collectivehq/ledger-core/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("ledger-api", cfg.LogLevel, cfg.AppEnv)

	platformID, err := uuid.Parse(cfg.PlatformCollectiveID)
	if err != nil {
		slog.Error("invalid PLATFORM_COLLECTIVE_ID", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	db := repository.NewDB(pool)
	collectives := repository.NewCollectiveRepository(pool)
	transactions := repository.NewTransactionRepository(pool)
	orders := repository.NewOrderRepository(pool)
	paymentMethods := repository.NewPaymentMethodRepository(pool)
	expenses := repository.NewExpenseRepository(pool)

	rates := fx.NewRateService()
	policy := fees.Policy{
		DefaultHostFeePercent:      decimal.NewFromFloat(cfg.DefaultHostFeePercent),
		DefaultHostFeeSharePercent: decimal.NewFromFloat(cfg.DefaultHostFeeSharePercent),
		PlatformCollectiveID:       platformID,
	}

	factory := ledger.NewFactory(transactions)
	balances := ledger.NewBalanceEngine(db, transactions, expenses, rates)
	refunds := refund.NewEngine(db, transactions, collectives, orders, factory, balances)

	registry := provider.NewRegistry(provider.Deps{
		DB:             db,
		Collectives:    collectives,
		Orders:         orders,
		PaymentMethods: paymentMethods,
		Transactions:   transactions,
		Factory:        factory,
		Balances:       balances,
		Refunds:        refunds,
		FX:             rates,
		Policy:         policy,
	}, cfg.AppEnv)

	healthHandler := handler.NewHealthHandler(pool)
	balanceHandler := handler.NewBalanceHandler(collectives, balances)
	transactionHandler := handler.NewTransactionHandler(transactions)
	paymentMethodHandler := handler.NewPaymentMethodHandler(paymentMethods, registry)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.HandleFunc("GET /collectives/{id}/balance", balanceHandler.Get)
	mux.HandleFunc("GET /collectives/{id}/transactions", transactionHandler.ListByCollective)
	mux.HandleFunc("GET /collectives/{id}/transactions.csv", transactionHandler.ExportCSV)
	mux.HandleFunc("GET /transactions/groups/{group}", transactionHandler.GetByGroup)
	mux.HandleFunc("GET /orders/{id}/transactions", transactionHandler.GetByOrder)
	mux.HandleFunc("GET /payment-methods/{id}/balance", paymentMethodHandler.Balance)

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
