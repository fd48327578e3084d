package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
	"github.com/collectivehq/ledger-core/internal/ledger"
	"github.com/collectivehq/ledger-core/internal/logging"
	"github.com/collectivehq/ledger-core/internal/repository"
)

type collectiveGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Collective, error)
}

type balancer interface {
	Balance(ctx context.Context, q repository.Querier, collective *domain.Collective, opts ledger.BalanceOptions) (int64, error)
}

type BalanceHandler struct {
	collectives collectiveGetter
	balances    balancer
}

func NewBalanceHandler(collectives collectiveGetter, balances balancer) *BalanceHandler {
	return &BalanceHandler{collectives: collectives, balances: balances}
}

type balanceDTO struct {
	CollectiveID string    `json:"collective_id"`
	Balance      int64     `json:"balance"`
	Currency     string    `json:"currency"`
	AsOf         time.Time `json:"as_of"`
}

// Get reports a collective's balance. Query params: currency (convert at
// query time), as_of (RFC3339), with_blocked (subtract earmarked funds).
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a uuid"}})
		return
	}

	var opts ledger.BalanceOptions

	if v := r.URL.Query().Get("currency"); v != "" {
		if !domain.Currency(v).IsValid() {
			RespondValidationError(w, []FieldError{{Field: "currency", Message: "must be USD, EUR, or GBP"}})
			return
		}
		opts.Currency = domain.Currency(v)
	}
	if v := r.URL.Query().Get("as_of"); v != "" {
		asOf, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "as_of", Message: "must be RFC3339"}})
			return
		}
		opts.AsOf = asOf
	}
	opts.WithBlockedFunds = r.URL.Query().Get("with_blocked") == "true"

	collective, err := h.collectives.GetByID(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	balance, err := h.balances.Balance(r.Context(), nil, collective, opts)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to compute balance", "error", err)
		RespondDomainError(w, err)
		return
	}

	currency := collective.Currency
	if opts.Currency != "" {
		currency = opts.Currency
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	RespondSuccess(w, http.StatusOK, balanceDTO{
		CollectiveID: collective.ID.String(),
		Balance:      balance,
		Currency:     string(currency),
		AsOf:         asOf,
	})
}
