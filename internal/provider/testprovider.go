package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
	"github.com/collectivehq/ledger-core/internal/fees"
	"github.com/collectivehq/ledger-core/internal/ledger"
	"github.com/collectivehq/ledger-core/internal/logging"
)

// TestProvider settles orders unconditionally for integration and staging
// runs. Every method refuses to operate in production.
type TestProvider struct {
	deps   Deps
	appEnv string
}

func NewTestProvider(deps Deps, appEnv string) *TestProvider {
	return &TestProvider{deps: deps, appEnv: appEnv}
}

func (p *TestProvider) Features() Features {
	return Features{Recurring: true}
}

func (p *TestProvider) guard() error {
	if p.appEnv == "production" {
		return domain.ErrProviderNotAllowed
	}
	return nil
}

func (p *TestProvider) ProcessOrder(ctx context.Context, order *domain.Order) (*domain.Transaction, error) {
	if err := p.guard(); err != nil {
		return nil, fmt.Errorf("TestProvider.ProcessOrder: %w", err)
	}
	if err := verifyOrderPending(order); err != nil {
		return nil, fmt.Errorf("TestProvider.ProcessOrder: %w", err)
	}
	if order.TotalAmount < 0 {
		return nil, fmt.Errorf("TestProvider.ProcessOrder: %w", domain.ErrInvalidAmount)
	}

	accounts, err := resolveOrderAccounts(ctx, p.deps.Collectives, order)
	if err != nil {
		return nil, fmt.Errorf("TestProvider.ProcessOrder: %w", err)
	}

	rate, err := p.deps.FX.Rate(ctx, order.Currency, accounts.host.Currency)
	if err != nil {
		return nil, fmt.Errorf("TestProvider.ProcessOrder: %w", err)
	}

	hostFee := fees.HostFee(order, accounts.to, accounts.host, p.deps.Policy)
	hostFeeShare := fees.HostFeeShare(hostFee, accounts.host, p.deps.Policy)

	tx, err := p.deps.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("TestProvider.ProcessOrder: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	credit, err := p.deps.Factory.CreateOrderTransactions(ctx, tx, ledger.Intent{
		Kind:                 domain.KindContribution,
		CollectiveID:         order.CollectiveID,
		FromCollectiveID:     order.FromCollectiveID,
		HostCollectiveID:     &accounts.host.ID,
		Amount:               order.NetAmount(),
		Currency:             order.Currency,
		HostCurrency:         accounts.host.Currency,
		HostCurrencyFxRate:   rate,
		HostFee:              hostFee,
		HostFeeShare:         hostFeeShare,
		PlatformTip:          fees.PlatformTip(order),
		PlatformCollectiveID: p.deps.Policy.PlatformCollectiveID,
		PaymentMethodID:      order.PaymentMethodID,
		OrderID:              &order.ID,
		Description:          order.Description,
		CreatedAt:            now,
	})
	if err != nil {
		return nil, fmt.Errorf("TestProvider.ProcessOrder: %w", err)
	}

	if err := p.deps.Orders.UpdateStatus(ctx, tx, order.ID, domain.OrderStatusPaid, nil, &now); err != nil {
		return nil, fmt.Errorf("TestProvider.ProcessOrder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("TestProvider.ProcessOrder: commit: %w", err)
	}

	logging.FromContext(ctx).Info("test order settled", "order_id", order.ID)
	return credit, nil
}

func (p *TestProvider) Balance(_ context.Context, _ *domain.PaymentMethod) (int64, error) {
	if err := p.guard(); err != nil {
		return 0, fmt.Errorf("TestProvider.Balance: %w", err)
	}
	return UnboundedBalance, nil
}

func (p *TestProvider) RefundTransaction(ctx context.Context, t *domain.Transaction, actorID uuid.UUID, reason string) (*domain.Transaction, error) {
	if err := p.guard(); err != nil {
		return nil, fmt.Errorf("TestProvider.RefundTransaction: %w", err)
	}
	refund, err := p.deps.Refunds.CreateRefundTransaction(ctx, t, 0, reasonData(reason), actorID)
	if err != nil {
		return nil, fmt.Errorf("TestProvider.RefundTransaction: %w", err)
	}
	return refund, nil
}
