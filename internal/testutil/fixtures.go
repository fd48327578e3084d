package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/collectivehq/ledger-core/internal/domain"
)

var (
	PlatformID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

	SystemUserID = uuid.MustParse("00000000-0000-0000-0000-0000000000ff")
)

// SeedPlatform creates the platform organization that receives tips and
// host fee shares.
func SeedPlatform(t *testing.T, db *sql.DB) *domain.Collective {
	t.Helper()

	c := &domain.Collective{
		ID:        PlatformID,
		Slug:      "platform",
		Name:      "Platform",
		Type:      domain.CollectiveTypeOrganization,
		Currency:  domain.CurrencyUSD,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	insertCollective(t, db, c)
	return c
}

func SeedHost(t *testing.T, db *sql.DB, slug string, currency domain.Currency, hostFeePercent float64) *domain.Collective {
	t.Helper()

	var feePct *decimal.Decimal
	if hostFeePercent > 0 {
		d := decimal.NewFromFloat(hostFeePercent)
		feePct = &d
	}

	c := &domain.Collective{
		ID:             uuid.New(),
		Slug:           slug,
		Name:           slug,
		Type:           domain.CollectiveTypeHost,
		Currency:       currency,
		HostFeePercent: feePct,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	insertCollective(t, db, c)
	return c
}

func SeedCollective(t *testing.T, db *sql.DB, slug string, host *domain.Collective, currency domain.Currency) *domain.Collective {
	t.Helper()

	now := time.Now().UTC()
	c := &domain.Collective{
		ID:         uuid.New(),
		Slug:       slug,
		Name:       slug,
		Type:       domain.CollectiveTypeCollective,
		Currency:   currency,
		HostID:     &host.ID,
		ApprovedAt: &now,
		IsActive:   true,
		CreatedAt:  now,
	}
	insertCollective(t, db, c)
	return c
}

// SeedCollectiveWithFee seeds a hosted collective carrying a per-collective
// host fee override.
func SeedCollectiveWithFee(t *testing.T, db *sql.DB, slug string, host *domain.Collective, currency domain.Currency, hostFeePercent float64) *domain.Collective {
	t.Helper()

	c := SeedCollective(t, db, slug, host, currency)
	fee := decimal.NewFromFloat(hostFeePercent)
	c.HostFeePercent = &fee
	_, err := db.Exec(`UPDATE collectives SET host_fee_percent = $1 WHERE id = $2`, fee, c.ID)
	if err != nil {
		t.Fatalf("set host fee on %s: %v", slug, err)
	}
	return c
}

func insertCollective(t *testing.T, db *sql.DB, c *domain.Collective) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO collectives (
			id, slug, name, type, currency, host_id, approved_at,
			host_fee_percent, host_fee_share_percent, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Slug, c.Name, c.Type, c.Currency, c.HostID, c.ApprovedAt,
		c.HostFeePercent, c.HostFeeSharePercent, c.IsActive, c.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed collective %s: %v", c.Slug, err)
	}
}

func SeedPaymentMethod(t *testing.T, db *sql.DB, owner *domain.Collective, typ domain.PaymentMethodType, currency domain.Currency, initialBalance int64) *domain.PaymentMethod {
	t.Helper()

	pm := &domain.PaymentMethod{
		ID:             uuid.New(),
		CollectiveID:   owner.ID,
		Service:        domain.ServiceOpenCollective,
		Type:           typ,
		Name:           string(typ),
		Currency:       currency,
		InitialBalance: initialBalance,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO payment_methods (
			id, collective_id, service, type, name, currency,
			initial_balance, data, expiry_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		pm.ID, pm.CollectiveID, pm.Service, pm.Type, pm.Name, pm.Currency,
		pm.InitialBalance, pm.Data, pm.ExpiryDate, pm.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed payment method %s: %v", typ, err)
	}
	return pm
}

func SeedOrder(t *testing.T, db *sql.DB, from, to *domain.Collective, pm *domain.PaymentMethod, totalAmount, tipAmount int64, currency domain.Currency) *domain.Order {
	t.Helper()

	now := time.Now().UTC()
	o := &domain.Order{
		ID:                uuid.New(),
		FromCollectiveID:  from.ID,
		CollectiveID:      to.ID,
		CreatedByID:       SystemUserID,
		TotalAmount:       totalAmount,
		Currency:          currency,
		PlatformTipAmount: tipAmount,
		Status:            domain.OrderStatusPending,
		Description:       "test order",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if pm != nil {
		o.PaymentMethodID = &pm.ID
	}

	_, err := db.Exec(
		`INSERT INTO orders (
			id, from_collective_id, collective_id, created_by_id,
			payment_method_id, total_amount, currency, platform_tip_amount,
			status, description, failure_reason, data, created_at, updated_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		o.ID, o.FromCollectiveID, o.CollectiveID, o.CreatedByID,
		o.PaymentMethodID, o.TotalAmount, o.Currency, o.PlatformTipAmount,
		o.Status, o.Description, o.FailureReason, o.Data, o.CreatedAt, o.UpdatedAt, o.ProcessedAt,
	)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return o
}

// SeedFunds gives a collective a starting balance by inserting a balanced
// ADDED_FUNDS pair from its host.
func SeedFunds(t *testing.T, db *sql.DB, host, to *domain.Collective, amount int64) {
	t.Helper()

	group := uuid.New()
	now := time.Now().UTC()

	legs := []struct {
		typ          domain.TransactionType
		collectiveID uuid.UUID
		fromID       uuid.UUID
		net          int64
		hostAmount   int64
	}{
		{domain.TransactionTypeCredit, to.ID, host.ID, amount, amount},
		{domain.TransactionTypeDebit, host.ID, to.ID, -amount, -amount},
	}

	for _, l := range legs {
		_, err := db.Exec(
			`INSERT INTO transactions (
				id, transaction_group, type, kind, collective_id,
				from_collective_id, host_collective_id, order_id, expense_id, payment_method_id,
				amount, currency, amount_in_host_currency, host_currency, host_currency_fx_rate,
				net_amount_in_collective_currency, host_fee_in_host_currency,
				description, data, refund_transaction_id, is_refund, created_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, NULL, NULL, NULL,
				$8, $9, $10, $11, 1, $12, 0, 'seed funds', NULL, NULL, FALSE, $13
			)`,
			uuid.New(), group, l.typ, domain.KindAddedFunds, l.collectiveID,
			l.fromID, host.ID,
			l.net, to.Currency, l.hostAmount, host.Currency, l.net, now,
		)
		if err != nil {
			t.Fatalf("seed funds: %v", err)
		}
	}
}

// SeedProcessingExpense earmarks funds as blocked.
func SeedProcessingExpense(t *testing.T, db *sql.DB, collective, payee *domain.Collective, amount int64) *domain.Expense {
	t.Helper()

	now := time.Now().UTC()
	e := &domain.Expense{
		ID:               uuid.New(),
		CollectiveID:     collective.ID,
		FromCollectiveID: payee.ID,
		Amount:           amount,
		Currency:         collective.Currency,
		Status:           domain.ExpenseStatusProcessing,
		Description:      "test expense",
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := db.Exec(
		`INSERT INTO expenses (
			id, collective_id, from_collective_id, amount, currency,
			status, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.CollectiveID, e.FromCollectiveID, e.Amount, e.Currency,
		e.Status, e.Description, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed expense: %v", err)
	}
	return e
}

func GetBalance(t *testing.T, db *sql.DB, collectiveID uuid.UUID) int64 {
	t.Helper()

	var sum int64
	err := db.QueryRow(
		`SELECT COALESCE(SUM(net_amount_in_collective_currency), 0)
		 FROM transactions WHERE collective_id = $1`, collectiveID,
	).Scan(&sum)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return sum
}

func CountTransactionsByOrder(t *testing.T, db *sql.DB, orderID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE order_id = $1`, orderID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return count
}

func GetOrderStatus(t *testing.T, db *sql.DB, orderID uuid.UUID) domain.OrderStatus {
	t.Helper()

	var status domain.OrderStatus
	err := db.QueryRow(`SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		t.Fatalf("get order status: %v", err)
	}
	return status
}
