// Package provider implements the uniform payment-provider contract: a
// closed set of settlement mechanisms dispatched through one interface.
// Adding a mechanism means adding a variant here, not editing switches
// scattered across call sites.
package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/collectivehq/ledger-core/internal/domain"
	"github.com/collectivehq/ledger-core/internal/fees"
	"github.com/collectivehq/ledger-core/internal/ledger"
	"github.com/collectivehq/ledger-core/internal/repository"
)

// Features advertises provider capabilities to the order-scheduling layer.
type Features struct {
	Recurring                    bool
	WaitToCharge                 bool
	IsRecurringManagedExternally bool
}

// Provider is the settlement contract every payment mechanism implements.
type Provider interface {
	Features() Features

	// ProcessOrder validates the mechanism's preconditions, computes fees
	// and fx, and posts the balanced ledger entries. Returns nil when the
	// order nets to zero. Errors are domain sentinels naming the violated
	// precondition; nothing is ever partially applied.
	ProcessOrder(ctx context.Context, order *domain.Order) (*domain.Transaction, error)

	// Balance reports the funds available through the payment method.
	Balance(ctx context.Context, pm *domain.PaymentMethod) (int64, error)

	RefundTransaction(ctx context.Context, t *domain.Transaction, actorID uuid.UUID, reason string) (*domain.Transaction, error)
}

// UnboundedBalance is reported by credit-issuing providers ("add funds",
// test harness) that do not draw from a pre-funded pool.
const UnboundedBalance = int64(1) << 60

type collectiveReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Collective, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Collective, error)
}

type orderWriter interface {
	UpdateStatus(ctx context.Context, q repository.Querier, id uuid.UUID, status domain.OrderStatus, failureReason *string, processedAt *time.Time) error
}

type paymentMethodReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error)
}

type spendSummer interface {
	SumSpentByPaymentMethod(ctx context.Context, q repository.Querier, paymentMethodID uuid.UUID) (int64, error)
}

type intentFactory interface {
	CreateOrderTransactions(ctx context.Context, tx *sql.Tx, in ledger.Intent) (*domain.Transaction, error)
}

type balanceEngine interface {
	Balance(ctx context.Context, q repository.Querier, collective *domain.Collective, opts ledger.BalanceOptions) (int64, error)
}

type refunder interface {
	CreateRefundTransaction(ctx context.Context, t *domain.Transaction, processorFeeAdjustment int64, extraData json.RawMessage, actorID uuid.UUID) (*domain.Transaction, error)
}

type rater interface {
	Rate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error)
	Convert(ctx context.Context, amount int64, from, to domain.Currency) (int64, error)
}

// Deps is the shared wiring for every provider variant.
type Deps struct {
	DB             *repository.DB
	Collectives    collectiveReader
	Orders         orderWriter
	PaymentMethods paymentMethodReader
	Transactions   spendSummer
	Factory        intentFactory
	Balances       balanceEngine
	Refunds        refunder
	FX             rater
	Policy         fees.Policy
}

type registryKey struct {
	service domain.PaymentMethodService
	typ     domain.PaymentMethodType
}

// Registry maps (service, type) pairs to provider variants. The set is
// closed at construction time.
type Registry struct {
	providers      map[registryKey]Provider
	paymentMethods paymentMethodReader
}

func NewRegistry(deps Deps, appEnv string) *Registry {
	r := &Registry{
		providers:      make(map[registryKey]Provider),
		paymentMethods: deps.PaymentMethods,
	}
	r.register(domain.ServiceOpenCollective, domain.TypeCollective, NewCollectiveProvider(deps))
	r.register(domain.ServiceOpenCollective, domain.TypeHost, NewHostProvider(deps))
	r.register(domain.ServiceOpenCollective, domain.TypeManual, NewManualProvider(deps))
	r.register(domain.ServiceOpenCollective, domain.TypePrepaid, NewPrepaidProvider(deps))
	r.register(domain.ServiceOpenCollective, domain.TypeTest, NewTestProvider(deps, appEnv))
	return r
}

func (r *Registry) register(service domain.PaymentMethodService, typ domain.PaymentMethodType, p Provider) {
	r.providers[registryKey{service, typ}] = p
}

func (r *Registry) Get(service domain.PaymentMethodService, typ domain.PaymentMethodType) (Provider, error) {
	p, ok := r.providers[registryKey{service, typ}]
	if !ok {
		return nil, fmt.Errorf("Get: %s/%s: %w", service, typ, domain.ErrWrongPaymentMethod)
	}
	return p, nil
}

// ForOrder resolves the provider handling an order's payment method.
func (r *Registry) ForOrder(ctx context.Context, order *domain.Order) (Provider, *domain.PaymentMethod, error) {
	if order.PaymentMethodID == nil {
		return nil, nil, fmt.Errorf("ForOrder: %w", domain.ErrNoPaymentMethod)
	}

	pm, err := r.paymentMethods.GetByID(ctx, *order.PaymentMethodID)
	if err != nil {
		return nil, nil, fmt.Errorf("ForOrder: %w", err)
	}

	p, err := r.Get(pm.Service, pm.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("ForOrder: %w", err)
	}
	return p, pm, nil
}

// orderAccounts is the resolved account triple every provider works with.
type orderAccounts struct {
	from *domain.Collective
	to   *domain.Collective
	host *domain.Collective
}

func resolveOrderAccounts(ctx context.Context, collectives collectiveReader, order *domain.Order) (*orderAccounts, error) {
	from, err := collectives.GetByID(ctx, order.FromCollectiveID)
	if err != nil {
		return nil, fmt.Errorf("resolveOrderAccounts: from: %w", err)
	}
	to, err := collectives.GetByID(ctx, order.CollectiveID)
	if err != nil {
		return nil, fmt.Errorf("resolveOrderAccounts: to: %w", err)
	}

	host, err := resolveHost(ctx, collectives, to)
	if err != nil {
		return nil, fmt.Errorf("resolveOrderAccounts: %w", err)
	}

	return &orderAccounts{from: from, to: to, host: host}, nil
}

func resolveHost(ctx context.Context, collectives collectiveReader, c *domain.Collective) (*domain.Collective, error) {
	if c.IsHost() {
		return c, nil
	}
	if c.HostID == nil {
		return nil, fmt.Errorf("resolveHost: %s: %w", c.Slug, domain.ErrNoHost)
	}
	host, err := collectives.GetByID(ctx, *c.HostID)
	if err != nil {
		return nil, fmt.Errorf("resolveHost: %w", err)
	}
	return host, nil
}

func verifyOrderPending(order *domain.Order) error {
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("verifyOrderPending: status %s: %w", order.Status, domain.ErrOrderNotPending)
	}
	return nil
}

func verifyCollectiveActive(c *domain.Collective, role string) error {
	if !c.IsActive {
		return fmt.Errorf("%s %s: %w", role, c.Slug, domain.ErrCollectiveInactive)
	}
	return nil
}

func reasonData(reason string) []byte {
	if reason == "" {
		return nil
	}
	raw, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return nil
	}
	return raw
}

func lockCollectivesInOrder(ctx context.Context, tx *sql.Tx, collectives collectiveReader, ids ...uuid.UUID) (map[uuid.UUID]*domain.Collective, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Collective, len(ids))
	for _, id := range sorted {
		if _, ok := result[id]; ok {
			continue
		}
		c, err := collectives.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockCollectivesInOrder: %w", err)
		}
		result[id] = c
	}
	return result, nil
}
