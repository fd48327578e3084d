package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PaymentMethodService string

const (
	ServiceOpenCollective PaymentMethodService = "opencollective"
)

type PaymentMethodType string

const (
	// TypeCollective moves funds between two collectives under the same host.
	TypeCollective PaymentMethodType = "collective"
	// TypeHost issues credit ("add funds"), host admins only.
	TypeHost PaymentMethodType = "host"
	// TypeManual records a pending order settled out-of-band by the host.
	TypeManual PaymentMethodType = "manual"
	// TypePrepaid is a capped credit line spent down from an initial balance.
	TypePrepaid PaymentMethodType = "prepaid"
	// TypeTest bypasses validation; only usable outside production.
	TypeTest PaymentMethodType = "test"
)

type PaymentMethod struct {
	ID           uuid.UUID
	CollectiveID uuid.UUID
	Service      PaymentMethodService
	Type         PaymentMethodType
	Name         string
	Currency     Currency

	// InitialBalance caps prepaid methods; zero for every other type.
	InitialBalance int64

	Data       json.RawMessage
	ExpiryDate *time.Time
	CreatedAt  time.Time
}

func (pm *PaymentMethod) IsExpired(now time.Time) bool {
	return pm.ExpiryDate != nil && pm.ExpiryDate.Before(now)
}
