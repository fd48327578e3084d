package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusRefunded OrderStatus = "refunded"
	OrderStatusExpired  OrderStatus = "expired"
	OrderStatusError    OrderStatus = "error"
)

// Order is a contribution request. TotalAmount includes the platform tip;
// the amount credited to the destination collective is TotalAmount minus
// PlatformTipAmount. Immutable once a transaction references it, except
// for status metadata.
type Order struct {
	ID               uuid.UUID
	FromCollectiveID uuid.UUID
	CollectiveID     uuid.UUID
	CreatedByID      uuid.UUID
	PaymentMethodID  *uuid.UUID

	TotalAmount       int64
	Currency          Currency
	PlatformTipAmount int64

	Status        OrderStatus
	Description   string
	FailureReason *string
	Data          json.RawMessage

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// NetAmount is the portion of TotalAmount destined for the collective.
func (o *Order) NetAmount() int64 {
	return o.TotalAmount - o.PlatformTipAmount
}
