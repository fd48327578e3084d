// Command settle confirms pending manual orders for one fiscal host:
// orders whose bank transfer arrived are marked paid and posted to the
// ledger, orders older than the expiry window are abandoned.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/collectivehq/ledger-core/internal/config"
	"github.com/collectivehq/ledger-core/internal/fees"
	"github.com/collectivehq/ledger-core/internal/fx"
	"github.com/collectivehq/ledger-core/internal/ledger"
	"github.com/collectivehq/ledger-core/internal/logging"
	"github.com/collectivehq/ledger-core/internal/provider"
	"github.com/collectivehq/ledger-core/internal/refund"
	"github.com/collectivehq/ledger-core/internal/repository"
)

func main() {
	hostIDFlag := flag.String("host-id", "", "fiscal host whose pending manual orders to settle")
	expireAfter := flag.Duration("expire-after", 30*24*time.Hour, "expire pending orders older than this")
	dryRun := flag.Bool("dry-run", false, "list pending orders without settling")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("ledger-settle", cfg.LogLevel, cfg.AppEnv)

	hostID, err := uuid.Parse(*hostIDFlag)
	if err != nil {
		slog.Error("invalid -host-id", "error", err)
		os.Exit(1)
	}
	platformID, err := uuid.Parse(cfg.PlatformCollectiveID)
	if err != nil {
		slog.Error("invalid PLATFORM_COLLECTIVE_ID", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	pool, err := repository.NewPostgresDB(connectCtx, cfg.DatabaseURL, repository.PoolConfig{
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
	factory := ledger.NewFactory(transactions)
	balances := ledger.NewBalanceEngine(db, transactions, expenses, rates)
	refunds := refund.NewEngine(db, transactions, collectives, orders, factory, balances)

	manual := provider.NewManualProvider(provider.Deps{
		DB:             db,
		Collectives:    collectives,
		Orders:         orders,
		PaymentMethods: paymentMethods,
		Transactions:   transactions,
		Factory:        factory,
		Balances:       balances,
		Refunds:        refunds,
		FX:             rates,
		Policy: fees.Policy{
			DefaultHostFeePercent:      decimal.NewFromFloat(cfg.DefaultHostFeePercent),
			DefaultHostFeeSharePercent: decimal.NewFromFloat(cfg.DefaultHostFeeSharePercent),
			PlatformCollectiveID:       platformID,
		},
	})

	pending, err := orders.ListPendingManual(ctx, hostID)
	if err != nil {
		slog.Error("failed to list pending manual orders", "error", err)
		os.Exit(1)
	}
	slog.Info("pending manual orders", "host_id", hostID, "count", len(pending))

	cutoff := time.Now().UTC().Add(-*expireAfter)
	var settled, expired, failed int

	for i := range pending {
		order := &pending[i]

		if *dryRun {
			slog.Info("pending order",
				"order_id", order.ID,
				"amount", order.TotalAmount,
				"currency", order.Currency,
				"created_at", order.CreatedAt,
			)
			continue
		}

		if order.CreatedAt.Before(cutoff) {
			if err := manual.MarkExpired(ctx, order); err != nil {
				slog.Error("failed to expire order", "order_id", order.ID, "error", err)
				failed++
				continue
			}
			expired++
			continue
		}

		if _, err := manual.MarkAsPaid(ctx, order); err != nil {
			slog.Error("failed to settle order", "order_id", order.ID, "error", err)
			failed++
			continue
		}
		settled++
	}

	slog.Info("settlement run finished", "settled", settled, "expired", expired, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}
