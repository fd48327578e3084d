package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/collectivehq/ledger-core/internal/domain"
)

// Export is the flat, reporting-friendly projection of a transaction. It
// is derived from the ledger row alone, never from provider state.
type Export struct {
	ID                   string
	TransactionGroup     string
	Type                 string
	Kind                 string
	CollectiveID         string
	FromCollectiveID     string
	Amount               int64
	Currency             string
	AmountInHostCurrency int64
	HostCurrency         string
	HostCurrencyFxRate   string
	NetAmount            int64
	HostFee              int64
	IsRefund             bool
	Description          string
	CreatedAt            time.Time
}

func ExportTransaction(t *domain.Transaction) Export {
	return Export{
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
}

var csvHeader = []string{
	"id", "transaction_group", "type", "kind", "collective_id", "from_collective_id",
	"amount", "currency", "amount_in_host_currency", "host_currency",
	"host_currency_fx_rate", "net_amount", "host_fee", "is_refund",
	"description", "created_at",
}

// WriteCSV streams transactions as CSV rows for reporting collaborators.
func WriteCSV(w io.Writer, transactions []domain.Transaction) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}

	for i := range transactions {
		e := ExportTransaction(&transactions[i])
		record := []string{
			e.ID, e.TransactionGroup, e.Type, e.Kind, e.CollectiveID, e.FromCollectiveID,
			strconv.FormatInt(e.Amount, 10), e.Currency,
			strconv.FormatInt(e.AmountInHostCurrency, 10), e.HostCurrency,
			e.HostCurrencyFxRate,
			strconv.FormatInt(e.NetAmount, 10),
			strconv.FormatInt(e.HostFee, 10),
			strconv.FormatBool(e.IsRefund),
			e.Description,
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteCSV: row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flush: %w", err)
	}
	return nil
}
