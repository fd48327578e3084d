package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
	"github.com/collectivehq/ledger-core/internal/ledger"
	"github.com/collectivehq/ledger-core/internal/logging"
)

type transactionReader interface {
	GetByGroup(ctx context.Context, group uuid.UUID) ([]domain.Transaction, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]domain.Transaction, error)
	GetByCollectiveID(ctx context.Context, collectiveID uuid.UUID, limit, offset int) ([]domain.Transaction, int, error)
}

type TransactionHandler struct {
	transactions transactionReader
}

func NewTransactionHandler(transactions transactionReader) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

type transactionDTO struct {
	ID                   string    `json:"id"`
	TransactionGroup     string    `json:"transaction_group"`
	Type                 string    `json:"type"`
	Kind                 string    `json:"kind"`
	CollectiveID         string    `json:"collective_id"`
	FromCollectiveID     string    `json:"from_collective_id"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	AmountInHostCurrency int64     `json:"amount_in_host_currency"`
	HostCurrency         string    `json:"host_currency"`
	HostCurrencyFxRate   string    `json:"host_currency_fx_rate"`
	NetAmount            int64     `json:"net_amount_in_collective_currency"`
	HostFee              int64     `json:"host_fee_in_host_currency"`
	IsRefund             bool      `json:"is_refund"`
	RefundTransactionID  *string   `json:"refund_transaction_id"`
	Description          string    `json:"description"`
	CreatedAt            time.Time `json:"created_at"`
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	dto := transactionDTO{
		ID:                   t.ID.String(),
		TransactionGroup:     t.TransactionGroup.String(),
		Type:                 string(t.Type),
		Kind:                 string(t.Kind),
		CollectiveID:         t.CollectiveID.String(),
		FromCollectiveID:     t.FromCollectiveID.String(),
		Amount:               t.Amount,
		Currency:             string(t.Currency),
		AmountInHostCurrency: t.AmountInHostCurrency,
		HostCurrency:         string(t.HostCurrency),
		HostCurrencyFxRate:   t.HostCurrencyFxRate.String(),
		NetAmount:            t.NetAmountInCollectiveCurrency,
		HostFee:              t.HostFeeInHostCurrency,
		IsRefund:             t.IsRefund,
		Description:          t.Description,
		CreatedAt:            t.CreatedAt,
	}
	if t.RefundTransactionID != nil {
		s := t.RefundTransactionID.String()
		dto.RefundTransactionID = &s
	}
	return dto
}

type transactionListDTO struct {
	Transactions []transactionDTO `json:"transactions"`
	Total        int              `json:"total"`
	Limit        int              `json:"limit"`
	Offset       int              `json:"offset"`
}

// ListByCollective returns a collective's ledger page, newest first.
func (h *TransactionHandler) ListByCollective(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a uuid"}})
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 500 {
		RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be between 1 and 500"}})
		return
	}

	entries, total, err := h.transactions.GetByCollectiveID(r.Context(), id, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transactions", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(entries))
	for i := range entries {
		dtos[i] = toTransactionDTO(&entries[i])
	}

	RespondSuccess(w, http.StatusOK, transactionListDTO{
		Transactions: dtos,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	})
}

// GetByGroup returns every leg of one economic event.
func (h *TransactionHandler) GetByGroup(w http.ResponseWriter, r *http.Request) {
	group, err := uuid.Parse(r.PathValue("group"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "group", Message: "must be a uuid"}})
		return
	}

	entries, err := h.transactions.GetByGroup(r.Context(), group)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	if len(entries) == 0 {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	dtos := make([]transactionDTO, len(entries))
	for i := range entries {
		dtos[i] = toTransactionDTO(&entries[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

// GetByOrder returns the ledger rows an order produced.
func (h *TransactionHandler) GetByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a uuid"}})
		return
	}

	entries, err := h.transactions.GetByOrderID(r.Context(), orderID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transactionDTO, len(entries))
	for i := range entries {
		dtos[i] = toTransactionDTO(&entries[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

// ExportCSV streams a collective's full ledger as CSV.
func (h *TransactionHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a uuid"}})
		return
	}

	const exportPageCap = 10_000
	entries, _, err := h.transactions.GetByCollectiveID(r.Context(), id, exportPageCap, 0)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to export transactions", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	if err := ledger.WriteCSV(w, entries); err != nil {
		logging.FromContext(r.Context()).Error("failed to write csv", "error", err)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
