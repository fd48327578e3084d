package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
	"github.com/collectivehq/ledger-core/internal/logging"
	"github.com/collectivehq/ledger-core/internal/provider"
)

type paymentMethodGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error)
}

type providerRegistry interface {
	Get(service domain.PaymentMethodService, typ domain.PaymentMethodType) (provider.Provider, error)
}

type PaymentMethodHandler struct {
	paymentMethods paymentMethodGetter
	registry       providerRegistry
}

func NewPaymentMethodHandler(paymentMethods paymentMethodGetter, registry providerRegistry) *PaymentMethodHandler {
	return &PaymentMethodHandler{paymentMethods: paymentMethods, registry: registry}
}

type paymentMethodBalanceDTO struct {
	PaymentMethodID string `json:"payment_method_id"`
	Type            string `json:"type"`
	Balance         int64  `json:"balance"`
	Currency        string `json:"currency"`
	Unbounded       bool   `json:"unbounded"`
}

// Balance reports the funds available through a payment method, as seen
// by its provider (real balance, prepaid remainder, or unbounded).
func (h *PaymentMethodHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a uuid"}})
		return
	}

	pm, err := h.paymentMethods.GetByID(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	p, err := h.registry.Get(pm.Service, pm.Type)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	balance, err := p.Balance(r.Context(), pm)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to read payment method balance", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, paymentMethodBalanceDTO{
		PaymentMethodID: pm.ID.String(),
		Type:            string(pm.Type),
		Balance:         balance,
		Currency:        string(pm.Currency),
		Unbounded:       balance == provider.UnboundedBalance,
	})
}
