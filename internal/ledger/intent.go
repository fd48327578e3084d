package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/collectivehq/ledger-core/internal/domain"
)

// Intent is the immutable input to the transaction factory: built once,
// after fee and fx computation, and handed unchanged to CreateOrderTransactions.
// The factory never re-derives the fx rate, so every leg of the event
// freezes the same rate.
type Intent struct {
	Kind domain.TransactionKind

	// CollectiveID receives the credit; FromCollectiveID is debited.
	CollectiveID     uuid.UUID
	FromCollectiveID uuid.UUID
	HostCollectiveID *uuid.UUID

	// Amount is the portion destined for the collective, in Currency,
	// excluding the platform tip. Zero is legal and skips the main pair.
	Amount   int64
	Currency domain.Currency

	HostCurrency       domain.Currency
	HostCurrencyFxRate decimal.Decimal

	// HostFee, in Currency, moves via a HOST_FEE pair in the same group.
	HostFee int64
	// HostFeeShare, in Currency, is bookkeeping for the out-of-band
	// HOST_FEE_SHARE settlement job; it moves no funds here.
	HostFeeShare int64

	// PlatformTip, in Currency, moves via a PLATFORM_TIP pair to the
	// platform collective. Independent of HostFee: the two are additive,
	// never netted against each other.
	PlatformTip          int64
	PlatformCollectiveID uuid.UUID

	PaymentMethodID *uuid.UUID
	OrderID         *uuid.UUID
	ExpenseID       *uuid.UUID

	Description string
	Data        json.RawMessage

	CreatedAt time.Time
}
