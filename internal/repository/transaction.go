package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
)

const transactionColumns = `id, transaction_group, type, kind, collective_id,
	from_collective_id, host_collective_id, order_id, expense_id, payment_method_id,
	amount, currency, amount_in_host_currency, host_currency, host_currency_fx_rate,
	net_amount_in_collective_currency, host_fee_in_host_currency,
	description, data, refund_transaction_id, is_refund, created_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts one ledger leg. Always called inside the transaction that
// holds the whole economic event, so partial pairs never become visible.
func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, transaction_group, type, kind, collective_id,
			from_collective_id, host_collective_id, order_id, expense_id, payment_method_id,
			amount, currency, amount_in_host_currency, host_currency, host_currency_fx_rate,
			net_amount_in_collective_currency, host_fee_in_host_currency,
			description, data, refund_transaction_id, is_refund, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)`,
		t.ID, t.TransactionGroup, t.Type, t.Kind, t.CollectiveID,
		t.FromCollectiveID, t.HostCollectiveID, t.OrderID, t.ExpenseID, t.PaymentMethodID,
		t.Amount, t.Currency, t.AmountInHostCurrency, t.HostCurrency, t.HostCurrencyFxRate,
		t.NetAmountInCollectiveCurrency, t.HostFeeInHostCurrency,
		t.Description, t.Data, t.RefundTransactionID, t.IsRefund, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

// GetForUpdate locks the ledger row so the refund link is written exactly once.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transaction, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) GetByGroup(ctx context.Context, group uuid.UUID) ([]domain.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE transaction_group = $1 ORDER BY created_at, type`, group)
}

func (r *TransactionRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE order_id = $1 ORDER BY created_at, type`, orderID)
}

func (r *TransactionRepository) GetByExpenseID(ctx context.Context, expenseID uuid.UUID) ([]domain.Transaction, error) {
	return r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE expense_id = $1 ORDER BY created_at, type`, expenseID)
}

func (r *TransactionRepository) GetByCollectiveID(ctx context.Context, collectiveID uuid.UUID, limit, offset int) ([]domain.Transaction, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE collective_id = $1`, collectiveID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByCollectiveID: count: %w", err)
	}

	entries, err := r.list(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE collective_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		collectiveID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("GetByCollectiveID: %w", err)
	}
	return entries, total, nil
}

// SumNetAmount aggregates net_amount_in_collective_currency up to asOf.
// Runs on any Querier so providers can aggregate under their row lock.
func (r *TransactionRepository) SumNetAmount(ctx context.Context, q Querier, collectiveID uuid.UUID, asOf time.Time) (int64, error) {
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(net_amount_in_collective_currency), 0)
		FROM transactions WHERE collective_id = $1 AND created_at <= $2`,
		collectiveID, asOf,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("SumNetAmount: %w", err)
	}
	return sum, nil
}

// SumSpentByPaymentMethod totals what a payment method has been charged,
// as a positive number. Prepaid balances are the initial balance minus
// this. Non-refund debits are spend; refund credits returning funds to
// the payer hand the spend back, so a fully refunded order leaves the
// card where it started. Refund debits sit on the payee and never count.
func (r *TransactionRepository) SumSpentByPaymentMethod(ctx context.Context, q Querier, paymentMethodID uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(-SUM(net_amount_in_collective_currency), 0)
		FROM transactions
		WHERE payment_method_id = $1
		AND ((type = $2 AND NOT is_refund) OR (type = $3 AND is_refund))`,
		paymentMethodID, domain.TransactionTypeDebit, domain.TransactionTypeCredit,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("SumSpentByPaymentMethod: %w", err)
	}
	return sum, nil
}

// LinkRefund writes the one-shot back-reference on the original leg. The
// WHERE clause makes the second of two racing refunds lose deterministically.
func (r *TransactionRepository) LinkRefund(ctx context.Context, tx *sql.Tx, originalID, refundID uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET refund_transaction_id = $1
		WHERE id = $2 AND refund_transaction_id IS NULL`,
		refundID, originalID,
	)
	if err != nil {
		return fmt.Errorf("LinkRefund: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("LinkRefund: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("LinkRefund: %w", domain.ErrRefundConflict)
	}
	return nil
}

func (r *TransactionRepository) list(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var entries []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list: scan: %w", err)
		}
		entries = append(entries, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: rows: %w", err)
	}
	return entries, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	var hostCollectiveID, orderID, expenseID, paymentMethodID, refundID uuid.NullUUID
	var data *[]byte

	err := s.Scan(
		&t.ID, &t.TransactionGroup, &t.Type, &t.Kind, &t.CollectiveID,
		&t.FromCollectiveID, &hostCollectiveID, &orderID, &expenseID, &paymentMethodID,
		&t.Amount, &t.Currency, &t.AmountInHostCurrency, &t.HostCurrency, &t.HostCurrencyFxRate,
		&t.NetAmountInCollectiveCurrency, &t.HostFeeInHostCurrency,
		&t.Description, &data, &refundID, &t.IsRefund, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if hostCollectiveID.Valid {
		t.HostCollectiveID = &hostCollectiveID.UUID
	}
	if orderID.Valid {
		t.OrderID = &orderID.UUID
	}
	if expenseID.Valid {
		t.ExpenseID = &expenseID.UUID
	}
	if paymentMethodID.Valid {
		t.PaymentMethodID = &paymentMethodID.UUID
	}
	if refundID.Valid {
		t.RefundTransactionID = &refundID.UUID
	}
	if data != nil {
		t.Data = *data
	}

	return &t, nil
}
