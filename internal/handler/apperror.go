package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds    = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrInvalidAmount        = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be positive"}
	ErrInvalidCurrency      = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrCurrencyMismatch     = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency mismatch"}
	ErrFxRateUnavailable    = &AppError{http.StatusUnprocessableEntity, "FX_RATE_UNAVAILABLE", "No exchange rate available for this currency pair"}
	ErrDifferentHost        = &AppError{http.StatusUnprocessableEntity, "DIFFERENT_HOST", "Accounts are not under the same fiscal host"}
	ErrNoHost               = &AppError{http.StatusUnprocessableEntity, "NO_HOST", "Collective has no fiscal host"}
	ErrNoPaymentMethod      = &AppError{http.StatusBadRequest, "NO_PAYMENT_METHOD", "Order has no payment method"}
	ErrPaymentMethodExpired = &AppError{http.StatusUnprocessableEntity, "PAYMENT_METHOD_EXPIRED", "Payment method has expired"}
	ErrWrongPaymentMethod   = &AppError{http.StatusUnprocessableEntity, "WRONG_PAYMENT_METHOD", "Payment method cannot be used for this order"}
	ErrOrderNotPending      = &AppError{http.StatusConflict, "ORDER_NOT_PENDING", "Order has already been processed"}
	ErrAlreadyProcessed     = &AppError{http.StatusConflict, "ALREADY_PROCESSED", "Already processed"}
	ErrAlreadyRefunded      = &AppError{http.StatusConflict, "ALREADY_REFUNDED", "Transaction has already been refunded"}
	ErrRefundConflict       = &AppError{http.StatusConflict, "REFUND_CONFLICT", "Transaction was refunded concurrently, please retry"}
	ErrProviderNotAllowed   = &AppError{http.StatusForbidden, "PROVIDER_NOT_ALLOWED", "Payment provider not allowed in this environment"}
	ErrCollectiveInactive   = &AppError{http.StatusUnprocessableEntity, "COLLECTIVE_INACTIVE", "Collective is not active"}
)
