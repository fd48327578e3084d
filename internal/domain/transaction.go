package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "CREDIT"
	TransactionTypeDebit  TransactionType = "DEBIT"
)

type TransactionKind string

const (
	KindContribution    TransactionKind = "CONTRIBUTION"
	KindAddedFunds      TransactionKind = "ADDED_FUNDS"
	KindExpense         TransactionKind = "EXPENSE"
	KindHostFee         TransactionKind = "HOST_FEE"
	KindHostFeeShare    TransactionKind = "HOST_FEE_SHARE"
	KindPlatformTip     TransactionKind = "PLATFORM_TIP"
	KindPlatformTipDebt TransactionKind = "PLATFORM_TIP_DEBT"
	KindBalanceTransfer TransactionKind = "BALANCE_TRANSFER"
)

// Transaction is the atomic, append-only ledger record. Every economic
// event produces a CREDIT/DEBIT pair sharing a TransactionGroup; the sum
// of AmountInHostCurrency across a pair is always zero. Rows are never
// mutated after insert except for the one-shot RefundTransactionID link.
type Transaction struct {
	ID               uuid.UUID
	TransactionGroup uuid.UUID
	Type             TransactionType
	Kind             TransactionKind

	// CollectiveID owns this leg; FromCollectiveID is the counterparty.
	CollectiveID     uuid.UUID
	FromCollectiveID uuid.UUID
	HostCollectiveID *uuid.UUID

	OrderID         *uuid.UUID
	ExpenseID       *uuid.UUID
	PaymentMethodID *uuid.UUID

	// Amount is in the owning collective's currency, signed by Type.
	Amount   int64
	Currency Currency

	// Host-currency view, frozen at the fx rate of the moment of creation.
	AmountInHostCurrency int64
	HostCurrency         Currency
	HostCurrencyFxRate   decimal.Decimal

	// NetAmountInCollectiveCurrency is what the balance engine folds over.
	NetAmountInCollectiveCurrency int64

	HostFeeInHostCurrency int64

	Description string
	Data        json.RawMessage

	// RefundTransactionID marks this leg as reversed, or as the reversal
	// itself when IsRefund is set. Written at most once.
	RefundTransactionID *uuid.UUID
	IsRefund            bool

	CreatedAt time.Time
}

func (t *Transaction) IsRefunded() bool {
	return !t.IsRefund && t.RefundTransactionID != nil
}
