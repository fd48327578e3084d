package provider_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectivehq/ledger-core/internal/domain"
	"github.com/collectivehq/ledger-core/internal/fees"
	"github.com/collectivehq/ledger-core/internal/fx"
	"github.com/collectivehq/ledger-core/internal/ledger"
	"github.com/collectivehq/ledger-core/internal/provider"
	"github.com/collectivehq/ledger-core/internal/refund"
	"github.com/collectivehq/ledger-core/internal/repository"
	"github.com/collectivehq/ledger-core/internal/testutil"
)

func setupDeps(t *testing.T, pool *sql.DB) provider.Deps {
	t.Helper()

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

	return provider.Deps{
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
			PlatformCollectiveID: testutil.PlatformID,
		},
	}
}

func TestCollectiveProvider_ContributionWithHostFee(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-x", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-x", host, domain.CurrencyUSD)
	payee := testutil.SeedCollectiveWithFee(t, pool, "payee-y", host, domain.CurrencyUSD, 10)
	testutil.SeedFunds(t, pool, host, payer, 5000)

	pm := testutil.SeedPaymentMethod(t, pool, payer, domain.TypeCollective, domain.CurrencyUSD, 0)
	order := testutil.SeedOrder(t, pool, payer, payee, pm, 1000, 0, domain.CurrencyUSD)

	p := provider.NewCollectiveProvider(deps)
	credit, err := p.ProcessOrder(ctx, order)

	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, domain.TransactionTypeCredit, credit.Type)
	assert.Equal(t, domain.KindContribution, credit.Kind)
	assert.Equal(t, int64(1000), credit.Amount)
	assert.Equal(t, int64(100), credit.HostFeeInHostCurrency)

	// 1000 contribution at 10% host fee leaves the payee with 900.
	assert.Equal(t, int64(900), testutil.GetBalance(t, pool, payee.ID))
	assert.Equal(t, int64(4000), testutil.GetBalance(t, pool, payer.ID))
	assert.Equal(t, int64(100)-int64(5000), testutil.GetBalance(t, pool, host.ID))

	// Main pair plus host fee pair.
	assert.Equal(t, 4, testutil.CountTransactionsByOrder(t, pool, order.ID))
	assert.Equal(t, domain.OrderStatusPaid, testutil.GetOrderStatus(t, pool, order.ID))

	assertGroupZeroSum(t, pool, credit.TransactionGroup)
}

func TestCollectiveProvider_PlatformTip(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	platform := testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-tip", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-tip", host, domain.CurrencyUSD)
	payee := testutil.SeedCollectiveWithFee(t, pool, "payee-tip", host, domain.CurrencyUSD, 10)
	testutil.SeedFunds(t, pool, host, payer, 5000)

	pm := testutil.SeedPaymentMethod(t, pool, payer, domain.TypeCollective, domain.CurrencyUSD, 0)
	order := testutil.SeedOrder(t, pool, payer, payee, pm, 1100, 100, domain.CurrencyUSD)

	credit, err := provider.NewCollectiveProvider(deps).ProcessOrder(ctx, order)

	require.NoError(t, err)
	require.NotNil(t, credit)

	// Tip is excluded from the fee base: fee is 10% of 1000, not of 1100.
	assert.Equal(t, int64(900), testutil.GetBalance(t, pool, payee.ID))
	assert.Equal(t, int64(100), testutil.GetBalance(t, pool, platform.ID))
	assert.Equal(t, int64(5000-1100), testutil.GetBalance(t, pool, payer.ID))

	// Main, host fee, and tip pairs.
	assert.Equal(t, 6, testutil.CountTransactionsByOrder(t, pool, order.ID))
	assertGroupZeroSum(t, pool, credit.TransactionGroup)
}

func TestCollectiveProvider_InsufficientFunds(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-if", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-if", host, domain.CurrencyUSD)
	payee := testutil.SeedCollective(t, pool, "payee-if", host, domain.CurrencyUSD)
	testutil.SeedFunds(t, pool, host, payer, 500)

	pm := testutil.SeedPaymentMethod(t, pool, payer, domain.TypeCollective, domain.CurrencyUSD, 0)
	order := testutil.SeedOrder(t, pool, payer, payee, pm, 1000, 0, domain.CurrencyUSD)

	_, err := provider.NewCollectiveProvider(deps).ProcessOrder(ctx, order)

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(500), testutil.GetBalance(t, pool, payer.ID))
	assert.Equal(t, int64(0), testutil.GetBalance(t, pool, payee.ID))
	assert.Equal(t, 0, testutil.CountTransactionsByOrder(t, pool, order.ID))
	assert.Equal(t, domain.OrderStatusPending, testutil.GetOrderStatus(t, pool, order.ID))
}

func TestCollectiveProvider_BlockedFundsReduceSpendable(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-bf", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-bf", host, domain.CurrencyUSD)
	payee := testutil.SeedCollective(t, pool, "payee-bf", host, domain.CurrencyUSD)
	testutil.SeedFunds(t, pool, host, payer, 1000)
	testutil.SeedProcessingExpense(t, pool, payer, payee, 400)

	pm := testutil.SeedPaymentMethod(t, pool, payer, domain.TypeCollective, domain.CurrencyUSD, 0)
	order := testutil.SeedOrder(t, pool, payer, payee, pm, 700, 0, domain.CurrencyUSD)

	_, err := provider.NewCollectiveProvider(deps).ProcessOrder(ctx, order)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestCollectiveProvider_ConcurrentOverdraft(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-co", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-co", host, domain.CurrencyUSD)
	payee := testutil.SeedCollective(t, pool, "payee-co", host, domain.CurrencyUSD)
	testutil.SeedFunds(t, pool, host, payer, 10000)

	pm := testutil.SeedPaymentMethod(t, pool, payer, domain.TypeCollective, domain.CurrencyUSD, 0)
	p := provider.NewCollectiveProvider(deps)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for range 2 {
		order := testutil.SeedOrder(t, pool, payer, payee, pm, 7000, 0, domain.CurrencyUSD)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.ProcessOrder(ctx, order)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			failures++
		}
	}

	assert.Equal(t, 1, successes, "exactly one order should settle")
	assert.Equal(t, 1, failures, "exactly one order should fail")
	assert.Equal(t, int64(3000), testutil.GetBalance(t, pool, payer.ID), "balance must not go negative")
}

func TestHostProvider_AddedFundsMonotonicity(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-af", domain.CurrencyUSD, 0)
	payee := testutil.SeedCollective(t, pool, "payee-af", host, domain.CurrencyUSD)
	pm := testutil.SeedPaymentMethod(t, pool, host, domain.TypeHost, domain.CurrencyUSD, 0)

	p := provider.NewHostProvider(deps)

	const amount, rounds = 2500, 4
	for i := 0; i < rounds; i++ {
		order := testutil.SeedOrder(t, pool, host, payee, pm, amount, 0, domain.CurrencyUSD)
		credit, err := p.ProcessOrder(ctx, order)
		require.NoError(t, err)
		require.NotNil(t, credit)
		assert.Equal(t, domain.KindAddedFunds, credit.Kind)
		assert.Equal(t, int64(amount*(i+1)), testutil.GetBalance(t, pool, payee.ID))
	}

	balance, err := p.Balance(ctx, pm)
	require.NoError(t, err)
	assert.Equal(t, provider.UnboundedBalance, balance)
}

func TestHostProvider_RejectsForeignPaymentMethod(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-fpm", domain.CurrencyUSD, 0)
	otherHost := testutil.SeedHost(t, pool, "other-host-fpm", domain.CurrencyUSD, 0)
	payee := testutil.SeedCollective(t, pool, "payee-fpm", host, domain.CurrencyUSD)
	pm := testutil.SeedPaymentMethod(t, pool, otherHost, domain.TypeHost, domain.CurrencyUSD, 0)

	order := testutil.SeedOrder(t, pool, otherHost, payee, pm, 1000, 0, domain.CurrencyUSD)
	_, err := provider.NewHostProvider(deps).ProcessOrder(ctx, order)

	require.ErrorIs(t, err, domain.ErrWrongPaymentMethod)
	assert.Equal(t, int64(0), testutil.GetBalance(t, pool, payee.ID))
}

func TestPrepaidProvider_SpendCap(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-pp", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-pp", host, domain.CurrencyUSD)
	payee := testutil.SeedCollective(t, pool, "payee-pp", host, domain.CurrencyUSD)
	card := testutil.SeedPaymentMethod(t, pool, payer, domain.TypePrepaid, domain.CurrencyUSD, 500)

	p := provider.NewPrepaidProvider(deps)

	first := testutil.SeedOrder(t, pool, payer, payee, card, 200, 0, domain.CurrencyUSD)
	credit, err := p.ProcessOrder(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, credit)

	remaining, err := p.Balance(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, int64(300), remaining, "500 initial minus 200 spent")

	second := testutil.SeedOrder(t, pool, payer, payee, card, 400, 0, domain.CurrencyUSD)
	_, err = p.ProcessOrder(ctx, second)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	remaining, err = p.Balance(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, int64(300), remaining, "failed order must not consume the card")
	assert.Equal(t, domain.OrderStatusPending, testutil.GetOrderStatus(t, pool, second.ID))
}

func TestPrepaidProvider_RefundRestoresSpend(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-pr", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-pr", host, domain.CurrencyUSD)
	payee := testutil.SeedCollective(t, pool, "payee-pr", host, domain.CurrencyUSD)
	card := testutil.SeedPaymentMethod(t, pool, payer, domain.TypePrepaid, domain.CurrencyUSD, 500)

	p := provider.NewPrepaidProvider(deps)

	order := testutil.SeedOrder(t, pool, payer, payee, card, 400, 0, domain.CurrencyUSD)
	credit, err := p.ProcessOrder(ctx, order)
	require.NoError(t, err)
	require.NotNil(t, credit)

	remaining, err := p.Balance(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, int64(100), remaining)

	// A full refund hands the spend back instead of counting it twice.
	_, err = p.RefundTransaction(ctx, credit, uuid.New(), "requested by contributor")
	require.NoError(t, err)

	spent, err := deps.Transactions.SumSpentByPaymentMethod(ctx, pool, card.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), spent)

	remaining, err = p.Balance(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, int64(500), remaining, "refund restores the full credit line")

	// The card is spendable again up to the restored cap.
	next := testutil.SeedOrder(t, pool, payer, payee, card, 450, 0, domain.CurrencyUSD)
	_, err = p.ProcessOrder(ctx, next)
	require.NoError(t, err)
}

func TestManualProvider_Lifecycle(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-man", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-man", host, domain.CurrencyUSD)
	payee := testutil.SeedCollective(t, pool, "payee-man", host, domain.CurrencyUSD)
	pm := testutil.SeedPaymentMethod(t, pool, payer, domain.TypeManual, domain.CurrencyUSD, 0)

	p := provider.NewManualProvider(deps)

	order := testutil.SeedOrder(t, pool, payer, payee, pm, 1500, 0, domain.CurrencyUSD)
	tx, err := p.ProcessOrder(ctx, order)
	require.NoError(t, err)
	assert.Nil(t, tx, "manual orders settle later, not at processing time")
	assert.Equal(t, 0, testutil.CountTransactionsByOrder(t, pool, order.ID))
	assert.Equal(t, domain.OrderStatusPending, testutil.GetOrderStatus(t, pool, order.ID))

	credit, err := p.MarkAsPaid(ctx, order)
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, int64(1500), testutil.GetBalance(t, pool, payee.ID))
	assert.Equal(t, domain.OrderStatusPaid, testutil.GetOrderStatus(t, pool, order.ID))

	abandoned := testutil.SeedOrder(t, pool, payer, payee, pm, 800, 0, domain.CurrencyUSD)
	require.NoError(t, p.MarkExpired(ctx, abandoned))
	assert.Equal(t, domain.OrderStatusExpired, testutil.GetOrderStatus(t, pool, abandoned.ID))
	assert.Equal(t, int64(1500), testutil.GetBalance(t, pool, payee.ID))
}

func TestTestProvider_SettlesOutsideProduction(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-tst", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-tst", host, domain.CurrencyUSD)
	payee := testutil.SeedCollective(t, pool, "payee-tst", host, domain.CurrencyUSD)
	pm := testutil.SeedPaymentMethod(t, pool, payer, domain.TypeTest, domain.CurrencyUSD, 0)

	order := testutil.SeedOrder(t, pool, payer, payee, pm, 1000, 0, domain.CurrencyUSD)
	credit, err := provider.NewTestProvider(deps, "test").ProcessOrder(ctx, order)

	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, int64(1000), testutil.GetBalance(t, pool, payee.ID))
}

func TestRegistry_ForOrder(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-reg", domain.CurrencyUSD, 0)
	payer := testutil.SeedCollective(t, pool, "payer-reg", host, domain.CurrencyUSD)
	payee := testutil.SeedCollective(t, pool, "payee-reg", host, domain.CurrencyUSD)
	pm := testutil.SeedPaymentMethod(t, pool, payer, domain.TypeCollective, domain.CurrencyUSD, 0)

	registry := provider.NewRegistry(deps, "test")

	order := testutil.SeedOrder(t, pool, payer, payee, pm, 100, 0, domain.CurrencyUSD)
	p, resolved, err := registry.ForOrder(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, pm.ID, resolved.ID)
	assert.True(t, p.Features().Recurring)

	order.PaymentMethodID = nil
	_, _, err = registry.ForOrder(ctx, order)
	require.ErrorIs(t, err, domain.ErrNoPaymentMethod)
}

func TestCollectiveProvider_EmptyBalance(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	deps := setupDeps(t, pool)
	ctx := context.Background()

	testutil.SeedPlatform(t, pool)
	host := testutil.SeedHost(t, pool, "host-eb", domain.CurrencyUSD, 0)
	c := testutil.SeedCollective(t, pool, "closing-eb", host, domain.CurrencyUSD)
	testutil.SeedFunds(t, pool, host, c, 900)

	hostBefore := testutil.GetBalance(t, pool, host.ID)

	p := provider.NewCollectiveProvider(deps)
	credit, err := p.EmptyBalance(ctx, c.ID, uuid.New())

	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, domain.KindBalanceTransfer, credit.Kind)
	assert.Equal(t, int64(0), testutil.GetBalance(t, pool, c.ID))
	assert.Equal(t, hostBefore+900, testutil.GetBalance(t, pool, host.ID))

	// A second run finds nothing to move.
	again, err := p.EmptyBalance(ctx, c.ID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, again)
}

func assertGroupZeroSum(t *testing.T, pool *sql.DB, group uuid.UUID) {
	t.Helper()

	var sum int64
	err := pool.QueryRow(
		`SELECT COALESCE(SUM(amount_in_host_currency), 0)
		 FROM transactions WHERE transaction_group = $1`, group,
	).Scan(&sum)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum, "every transaction group must sum to zero in host currency")
}
