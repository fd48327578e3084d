package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidCurrency      = errors.New("invalid currency")
	ErrCurrencyMismatch     = errors.New("currency mismatch")
	ErrFxRateUnavailable    = errors.New("fx rate unavailable")
	ErrDifferentHost        = errors.New("collectives do not share the same host")
	ErrNoHost               = errors.New("collective has no fiscal host")
	ErrNoPaymentMethod      = errors.New("no payment method set on order")
	ErrPaymentMethodExpired = errors.New("payment method expired")
	ErrWrongPaymentMethod   = errors.New("payment method cannot be used for this order")
	ErrOrderNotPending      = errors.New("order is not pending")
	ErrAlreadyProcessed     = errors.New("order already has transactions")
	ErrAlreadyRefunded      = errors.New("transaction already refunded")
	ErrRefundConflict       = errors.New("concurrent refund detected")
	ErrProviderNotAllowed   = errors.New("payment provider not allowed in this environment")
	ErrCollectiveInactive   = errors.New("collective is not active")
)
