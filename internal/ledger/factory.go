// Package ledger is the single authority for turning a transaction intent
// into balanced double-entry records, and for computing balances from them.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
	"github.com/collectivehq/ledger-core/internal/fx"
)

type transactionWriter interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
}

type Factory struct {
	transactions transactionWriter
}

func NewFactory(transactions transactionWriter) *Factory {
	return &Factory{transactions: transactions}
}

// CreateOrderTransactions persists every leg of one economic event inside
// the given sql transaction: the main CREDIT/DEBIT pair, a HOST_FEE pair
// when a fee applies, and a PLATFORM_TIP pair when a tip is present. All
// legs share one TransactionGroup and the intent's frozen fx rate. The
// caller owns commit/rollback, so either the full set lands or none does.
//
// Returns the main CREDIT leg, or nil when the amount nets to zero (legal
// for e.g. a zero-value order carrying only a tip).
func (f *Factory) CreateOrderTransactions(ctx context.Context, tx *sql.Tx, in Intent) (*domain.Transaction, error) {
	if in.Amount < 0 || in.HostFee < 0 || in.PlatformTip < 0 {
		return nil, fmt.Errorf("CreateOrderTransactions: %w", domain.ErrInvalidAmount)
	}
	if in.HostCurrencyFxRate.Sign() <= 0 {
		return nil, fmt.Errorf("CreateOrderTransactions: rate %s: %w", in.HostCurrencyFxRate, domain.ErrFxRateUnavailable)
	}

	group := uuid.New()
	now := in.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var credit *domain.Transaction

	if in.Amount > 0 {
		var err error
		credit, err = f.createPair(ctx, tx, pairSpec{
			intent:          in,
			group:           group,
			kind:            in.Kind,
			creditTo:        in.CollectiveID,
			debitFrom:       in.FromCollectiveID,
			amount:          in.Amount,
			currency:        in.Currency,
			hostFee:         fx.ApplyRate(in.HostFee, in.HostCurrencyFxRate),
			paymentMethodID: in.PaymentMethodID,
			description:     in.Description,
			data:            in.Data,
			createdAt:       now,
		})
		if err != nil {
			return nil, fmt.Errorf("CreateOrderTransactions: %w", err)
		}
	}

	if in.HostFee > 0 {
		if in.HostCollectiveID == nil {
			return nil, fmt.Errorf("CreateOrderTransactions: host fee without host: %w", domain.ErrNoHost)
		}
		data, err := hostFeeData(in)
		if err != nil {
			return nil, fmt.Errorf("CreateOrderTransactions: %w", err)
		}
		_, err = f.createPair(ctx, tx, pairSpec{
			intent:      in,
			group:       group,
			kind:        domain.KindHostFee,
			creditTo:    *in.HostCollectiveID,
			debitFrom:   in.CollectiveID,
			amount:      in.HostFee,
			currency:    in.Currency,
			description: "Host fee",
			data:        data,
			createdAt:   now,
		})
		if err != nil {
			return nil, fmt.Errorf("CreateOrderTransactions: host fee: %w", err)
		}
	}

	if in.PlatformTip > 0 {
		_, err := f.createPair(ctx, tx, pairSpec{
			intent:          in,
			group:           group,
			kind:            domain.KindPlatformTip,
			creditTo:        in.PlatformCollectiveID,
			debitFrom:       in.FromCollectiveID,
			amount:          in.PlatformTip,
			currency:        in.Currency,
			paymentMethodID: in.PaymentMethodID,
			description:     "Financial contribution to the platform",
			createdAt:       now,
		})
		if err != nil {
			return nil, fmt.Errorf("CreateOrderTransactions: platform tip: %w", err)
		}
	}

	return credit, nil
}

// CreateRefundPair mirrors an existing CREDIT leg: inverted amounts, same
// currency and same frozen fx rate, so the refund cancels the original
// exactly in host-currency terms.
func (f *Factory) CreateRefundPair(ctx context.Context, tx *sql.Tx, original *domain.Transaction, data json.RawMessage, now time.Time) (*domain.Transaction, *domain.Transaction, error) {
	if original.Type != domain.TransactionTypeCredit {
		return nil, nil, fmt.Errorf("CreateRefundPair: expected a CREDIT leg")
	}

	group := uuid.New()
	hostAmount := original.AmountInHostCurrency

	debit := &domain.Transaction{
		ID:                            uuid.New(),
		TransactionGroup:              group,
		Type:                          domain.TransactionTypeDebit,
		Kind:                          original.Kind,
		CollectiveID:                  original.CollectiveID,
		FromCollectiveID:              original.FromCollectiveID,
		HostCollectiveID:              original.HostCollectiveID,
		OrderID:                       original.OrderID,
		ExpenseID:                     original.ExpenseID,
		PaymentMethodID:               original.PaymentMethodID,
		Amount:                        -original.Amount,
		Currency:                      original.Currency,
		AmountInHostCurrency:          -hostAmount,
		HostCurrency:                  original.HostCurrency,
		HostCurrencyFxRate:            original.HostCurrencyFxRate,
		NetAmountInCollectiveCurrency: -original.NetAmountInCollectiveCurrency,
		Description:                   "Refund of \"" + original.Description + "\"",
		Data:                          data,
		RefundTransactionID:           &original.ID,
		IsRefund:                      true,
		CreatedAt:                     now,
	}

	credit := &domain.Transaction{
		ID:                            uuid.New(),
		TransactionGroup:              group,
		Type:                          domain.TransactionTypeCredit,
		Kind:                          original.Kind,
		CollectiveID:                  original.FromCollectiveID,
		FromCollectiveID:              original.CollectiveID,
		HostCollectiveID:              original.HostCollectiveID,
		OrderID:                       original.OrderID,
		ExpenseID:                     original.ExpenseID,
		PaymentMethodID:               original.PaymentMethodID,
		Amount:                        original.Amount,
		Currency:                      original.Currency,
		AmountInHostCurrency:          hostAmount,
		HostCurrency:                  original.HostCurrency,
		HostCurrencyFxRate:            original.HostCurrencyFxRate,
		NetAmountInCollectiveCurrency: original.NetAmountInCollectiveCurrency,
		Description:                   debit.Description,
		Data:                          data,
		RefundTransactionID:           &original.ID,
		IsRefund:                      true,
		CreatedAt:                     now,
	}

	if err := f.transactions.Create(ctx, tx, debit); err != nil {
		return nil, nil, fmt.Errorf("CreateRefundPair: debit: %w", err)
	}
	if err := f.transactions.Create(ctx, tx, credit); err != nil {
		return nil, nil, fmt.Errorf("CreateRefundPair: credit: %w", err)
	}

	return credit, debit, nil
}

type pairSpec struct {
	intent Intent
	group  uuid.UUID
	kind   domain.TransactionKind

	creditTo  uuid.UUID
	debitFrom uuid.UUID

	amount   int64
	currency domain.Currency
	hostFee  int64

	// paymentMethodID is set on payer-side pairs only, so spend tracked
	// against a payment method never counts the fee pair.
	paymentMethodID *uuid.UUID

	description string
	data        json.RawMessage
	createdAt   time.Time
}

// createPair writes one balanced CREDIT/DEBIT pair. The debit's
// host-currency amount is the exact negation of the credit's, computed
// once, so the pair sums to zero regardless of rounding.
func (f *Factory) createPair(ctx context.Context, tx *sql.Tx, spec pairSpec) (*domain.Transaction, error) {
	in := spec.intent
	hostAmount := fx.ApplyRate(spec.amount, in.HostCurrencyFxRate)

	credit := &domain.Transaction{
		ID:                            uuid.New(),
		TransactionGroup:              spec.group,
		Type:                          domain.TransactionTypeCredit,
		Kind:                          spec.kind,
		CollectiveID:                  spec.creditTo,
		FromCollectiveID:              spec.debitFrom,
		HostCollectiveID:              in.HostCollectiveID,
		OrderID:                       in.OrderID,
		ExpenseID:                     in.ExpenseID,
		PaymentMethodID:               spec.paymentMethodID,
		Amount:                        spec.amount,
		Currency:                      spec.currency,
		AmountInHostCurrency:          hostAmount,
		HostCurrency:                  in.HostCurrency,
		HostCurrencyFxRate:            in.HostCurrencyFxRate,
		NetAmountInCollectiveCurrency: spec.amount,
		HostFeeInHostCurrency:         spec.hostFee,
		Description:                   spec.description,
		Data:                          spec.data,
		CreatedAt:                     spec.createdAt,
	}

	debit := &domain.Transaction{
		ID:                            uuid.New(),
		TransactionGroup:              spec.group,
		Type:                          domain.TransactionTypeDebit,
		Kind:                          spec.kind,
		CollectiveID:                  spec.debitFrom,
		FromCollectiveID:              spec.creditTo,
		HostCollectiveID:              in.HostCollectiveID,
		OrderID:                       in.OrderID,
		ExpenseID:                     in.ExpenseID,
		PaymentMethodID:               spec.paymentMethodID,
		Amount:                        -spec.amount,
		Currency:                      spec.currency,
		AmountInHostCurrency:          -hostAmount,
		HostCurrency:                  in.HostCurrency,
		HostCurrencyFxRate:            in.HostCurrencyFxRate,
		NetAmountInCollectiveCurrency: -spec.amount,
		HostFeeInHostCurrency:         spec.hostFee,
		Description:                   spec.description,
		Data:                          spec.data,
		CreatedAt:                     spec.createdAt,
	}

	if err := f.transactions.Create(ctx, tx, credit); err != nil {
		return nil, fmt.Errorf("createPair: credit: %w", err)
	}
	if err := f.transactions.Create(ctx, tx, debit); err != nil {
		return nil, fmt.Errorf("createPair: debit: %w", err)
	}

	return credit, nil
}

func hostFeeData(in Intent) (json.RawMessage, error) {
	if in.HostFeeShare <= 0 {
		return nil, nil
	}
	raw, err := json.Marshal(map[string]int64{
		"hostFeeShare": fx.ApplyRate(in.HostFeeShare, in.HostCurrencyFxRate),
	})
	if err != nil {
		return nil, fmt.Errorf("hostFeeData: %w", err)
	}
	return raw, nil
}
