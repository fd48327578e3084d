// Package fees computes host fees, platform fee shares and platform tips
// for an order. Everything here is a pure function over an explicit
// Policy value; no configuration is read from the environment.
package fees

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/collectivehq/ledger-core/internal/domain"
)

// Policy is the platform-level fee configuration, built once at startup
// from config and handed to every call site.
type Policy struct {
	DefaultHostFeePercent      decimal.Decimal
	DefaultHostFeeSharePercent decimal.Decimal
	PlatformCollectiveID       uuid.UUID
}

var hundred = decimal.NewFromInt(100)

// Calc returns round-half-up of amount * percent / 100. All fee call
// sites go through this so cross-entry rounding stays consistent.
func Calc(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).Round(0).IntPart()
}

// HostFeePercent resolves the fee the host takes on a contribution:
// collective-specific override first, then the host's default, then the
// platform default. A collective with no host pays no host fee, and a
// host pays no fee to itself.
func HostFeePercent(collective, host *domain.Collective, policy Policy) decimal.Decimal {
	if host == nil || collective.ID == host.ID {
		return decimal.Zero
	}
	if collective.HostFeePercent != nil {
		return *collective.HostFeePercent
	}
	if host.HostFeePercent != nil {
		return *host.HostFeePercent
	}
	return policy.DefaultHostFeePercent
}

// HostFeeSharePercent resolves the host's revenue-share agreement with
// the platform. Non-zero means shared revenue is active and a
// HOST_FEE_SHARE settlement is due later, outside this core.
func HostFeeSharePercent(host *domain.Collective, policy Policy) decimal.Decimal {
	if host == nil {
		return decimal.Zero
	}
	if host.HostFeeSharePercent != nil {
		return *host.HostFeeSharePercent
	}
	return policy.DefaultHostFeeSharePercent
}

// PlatformTip is carried from the order, never derived from other fees.
func PlatformTip(order *domain.Order) int64 {
	return order.PlatformTipAmount
}

// HostFee computes the host's cut of an order's net amount. The tip is
// excluded from the fee base: tip and host fee are independent and
// additive, never netted against each other.
func HostFee(order *domain.Order, collective, host *domain.Collective, policy Policy) int64 {
	return Calc(order.NetAmount(), HostFeePercent(collective, host, policy))
}

// HostFeeShare computes the platform's cut of a host fee amount.
func HostFeeShare(hostFee int64, host *domain.Collective, policy Policy) int64 {
	return Calc(hostFee, HostFeeSharePercent(host, policy))
}
