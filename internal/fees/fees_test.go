package fees

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/collectivehq/ledger-core/internal/domain"
)

func pct(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestCalc_RoundsHalfUp(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		percent decimal.Decimal
		want    int64
	}{
		{"exact", 1000, pct(10), 100},
		{"half rounds up", 5, pct(10), 1},     // 0.5 -> 1
		{"below half rounds down", 4, pct(10), 0}, // 0.4 -> 0
		{"above half rounds up", 6, pct(10), 1},   // 0.6 -> 1
		{"zero percent", 1000, decimal.Zero, 0},
		{"fractional percent", 1000, pct(2.9), 29},
		{"fractional percent half", 250, pct(2.9), 7}, // 7.25 -> 7
		{"zero amount", 0, pct(10), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Calc(tc.amount, tc.percent))
		})
	}
}

func TestHostFeePercent_Precedence(t *testing.T) {
	policy := Policy{DefaultHostFeePercent: pct(5)}
	override := pct(10)

	host := &domain.Collective{ID: uuid.New(), Type: domain.CollectiveTypeHost}
	plain := &domain.Collective{ID: uuid.New()}
	overridden := &domain.Collective{ID: uuid.New(), HostFeePercent: &override}

	assert.True(t, HostFeePercent(plain, host, policy).Equal(pct(5)))
	assert.True(t, HostFeePercent(overridden, host, policy).Equal(pct(10)))
	assert.True(t, HostFeePercent(plain, nil, policy).IsZero())
}

func TestHostFee_TipExcludedFromFeeBase(t *testing.T) {
	policy := Policy{DefaultHostFeePercent: pct(10)}
	host := &domain.Collective{ID: uuid.New(), Type: domain.CollectiveTypeHost}
	collective := &domain.Collective{ID: uuid.New()}

	withTip := &domain.Order{TotalAmount: 1100, PlatformTipAmount: 100}
	withoutTip := &domain.Order{TotalAmount: 1000}

	// Disabling the tip must not change the host fee.
	assert.Equal(t, int64(100), HostFee(withTip, collective, host, policy))
	assert.Equal(t, int64(100), HostFee(withoutTip, collective, host, policy))
}

func TestPlatformTip_CarriedNotDerived(t *testing.T) {
	order := &domain.Order{TotalAmount: 1100, PlatformTipAmount: 100}
	assert.Equal(t, int64(100), PlatformTip(order))

	order.PlatformTipAmount = 0
	assert.Equal(t, int64(0), PlatformTip(order))
}

func TestHostFeeShare(t *testing.T) {
	share := pct(15)
	host := &domain.Collective{ID: uuid.New(), Type: domain.CollectiveTypeHost, HostFeeSharePercent: &share}
	policy := Policy{DefaultHostFeeSharePercent: decimal.Zero}

	assert.Equal(t, int64(15), HostFeeShare(100, host, policy))

	hostNoShare := &domain.Collective{ID: uuid.New(), Type: domain.CollectiveTypeHost}
	assert.Equal(t, int64(0), HostFeeShare(100, hostNoShare, policy))
}
