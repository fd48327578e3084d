package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	default:
		return false
	}
}

type CollectiveType string

const (
	CollectiveTypeCollective   CollectiveType = "collective"
	CollectiveTypeHost         CollectiveType = "host"
	CollectiveTypeOrganization CollectiveType = "organization"
)

// Collective is an economic actor: a hosted collective, a fiscal host, or
// an organization (e.g. the platform's own account). Balances are never
// stored on the row; they are derived from the transaction history.
type Collective struct {
	ID       uuid.UUID
	Slug     string
	Name     string
	Type     CollectiveType
	Currency Currency

	// HostID is the fiscal host legally responsible for this collective's
	// funds. Nil for hosts and unhosted organizations.
	HostID     *uuid.UUID
	ApprovedAt *time.Time

	// HostFeePercent overrides the host's default fee for this collective.
	HostFeePercent *decimal.Decimal

	// HostFeeSharePercent is only meaningful on host collectives: the
	// revenue-share agreement between the host and the platform.
	HostFeeSharePercent *decimal.Decimal

	IsActive  bool
	CreatedAt time.Time
}

func (c *Collective) IsHost() bool {
	return c.Type == CollectiveTypeHost
}

// IsHostedBy reports whether the collective's funds are held by the given
// host. A host holds its own funds.
func (c *Collective) IsHostedBy(hostID uuid.UUID) bool {
	if c.ID == hostID {
		return true
	}
	return c.HostID != nil && *c.HostID == hostID
}
