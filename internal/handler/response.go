package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/collectivehq/ledger-core/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidCurrency):
		appErr = ErrInvalidCurrency
	case errors.Is(err, domain.ErrCurrencyMismatch):
		appErr = ErrCurrencyMismatch
	case errors.Is(err, domain.ErrFxRateUnavailable):
		appErr = ErrFxRateUnavailable
	case errors.Is(err, domain.ErrDifferentHost):
		appErr = ErrDifferentHost
	case errors.Is(err, domain.ErrNoHost):
		appErr = ErrNoHost
	case errors.Is(err, domain.ErrNoPaymentMethod):
		appErr = ErrNoPaymentMethod
	case errors.Is(err, domain.ErrPaymentMethodExpired):
		appErr = ErrPaymentMethodExpired
	case errors.Is(err, domain.ErrWrongPaymentMethod):
		appErr = ErrWrongPaymentMethod
	case errors.Is(err, domain.ErrOrderNotPending):
		appErr = ErrOrderNotPending
	case errors.Is(err, domain.ErrAlreadyProcessed):
		appErr = ErrAlreadyProcessed
	case errors.Is(err, domain.ErrAlreadyRefunded):
		appErr = ErrAlreadyRefunded
	case errors.Is(err, domain.ErrRefundConflict):
		appErr = ErrRefundConflict
	case errors.Is(err, domain.ErrProviderNotAllowed):
		appErr = ErrProviderNotAllowed
	case errors.Is(err, domain.ErrCollectiveInactive):
		appErr = ErrCollectiveInactive
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}
