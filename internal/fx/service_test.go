package fx

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectivehq/ledger-core/internal/domain"
)

func TestRate_SameCurrencyIsOne(t *testing.T) {
	svc := NewRateService()

	rate, err := svc.Rate(context.Background(), domain.CurrencyUSD, domain.CurrencyUSD)

	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestRate_UnknownPairIsFatal(t *testing.T) {
	svc := NewRateServiceWithRates(map[string]decimal.Decimal{})

	_, err := svc.Rate(context.Background(), domain.CurrencyUSD, domain.CurrencyEUR)

	require.ErrorIs(t, err, domain.ErrFxRateUnavailable)
}

func TestRate_InvalidCurrency(t *testing.T) {
	svc := NewRateService()

	_, err := svc.Rate(context.Background(), domain.Currency("XYZ"), domain.CurrencyUSD)

	require.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestConvert_RoundsHalfUp(t *testing.T) {
	svc := NewRateServiceWithRates(map[string]decimal.Decimal{
		"USD_EUR": decimal.NewFromFloat(0.925),
	})

	tests := []struct {
		name   string
		amount int64
		want   int64
	}{
		{"exact", 1000, 925},
		{"rounds up at half", 2, 2},     // 1.85 -> 2
		{"rounds down below half", 1, 1}, // 0.925 -> 1
		{"larger amount", 999, 924},      // 924.075 -> 924
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.Convert(context.Background(), tc.amount, domain.CurrencyUSD, domain.CurrencyEUR)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConvert_SameCurrencyPassthrough(t *testing.T) {
	svc := NewRateServiceWithRates(map[string]decimal.Decimal{})

	got, err := svc.Convert(context.Background(), 12345, domain.CurrencyGBP, domain.CurrencyGBP)

	require.NoError(t, err)
	assert.Equal(t, int64(12345), got)
}
