package fx

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/collectivehq/ledger-core/internal/domain"
)

// RateService resolves multiplicative conversion rates between currencies.
// An unresolvable rate is fatal for the caller: transaction creation must
// never proceed with an unknown rate.
type RateService struct {
	rates map[string]decimal.Decimal
}

func NewRateService() *RateService {
	return &RateService{
		rates: map[string]decimal.Decimal{
			"USD_EUR": decimal.NewFromFloat(0.92),
			"EUR_USD": decimal.NewFromFloat(1.087),
			"USD_GBP": decimal.NewFromFloat(0.79),
			"GBP_USD": decimal.NewFromFloat(1.266),
			"EUR_GBP": decimal.NewFromFloat(0.858),
			"GBP_EUR": decimal.NewFromFloat(1.166),
		},
	}
}

// NewRateServiceWithRates replaces the seeded table, for tests and for
// environments that sync rates from an external feed.
func NewRateServiceWithRates(rates map[string]decimal.Decimal) *RateService {
	return &RateService{rates: rates}
}

func pairKey(from, to domain.Currency) string {
	return string(from) + "_" + string(to)
}

func (s *RateService) Rate(_ context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if !from.IsValid() || !to.IsValid() {
		return decimal.Zero, fmt.Errorf("Rate: %s/%s: %w", from, to, domain.ErrInvalidCurrency)
	}

	if from == to {
		return decimal.NewFromInt(1), nil
	}

	rate, ok := s.rates[pairKey(from, to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("Rate: no rate for %s/%s: %w", from, to, domain.ErrFxRateUnavailable)
	}
	return rate, nil
}

// Convert re-expresses an amount of minor units in another currency,
// rounding half-up.
func (s *RateService) Convert(ctx context.Context, amount int64, from, to domain.Currency) (int64, error) {
	if from == to {
		return amount, nil
	}

	rate, err := s.Rate(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("Convert: %w", err)
	}

	return ApplyRate(amount, rate), nil
}

// ApplyRate multiplies minor units by a rate, rounding half-up. Used for
// both query-time conversion and freezing host-currency amounts.
func ApplyRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}
