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

// HostProvider settles "add funds": a host issuing credit to one of its
// hosted collectives, typically to mirror money received outside the
// platform. Credit issuance is unbounded; no balance check applies.
type HostProvider struct {
	deps Deps
}

func NewHostProvider(deps Deps) *HostProvider {
	return &HostProvider{deps: deps}
}

func (p *HostProvider) Features() Features {
	return Features{}
}

func (p *HostProvider) ProcessOrder(ctx context.Context, order *domain.Order) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if err := verifyOrderPending(order); err != nil {
		return nil, fmt.Errorf("HostProvider.ProcessOrder: %w", err)
	}
	if order.TotalAmount < 0 {
		return nil, fmt.Errorf("HostProvider.ProcessOrder: %w", domain.ErrInvalidAmount)
	}

	accounts, err := resolveOrderAccounts(ctx, p.deps.Collectives, order)
	if err != nil {
		return nil, fmt.Errorf("HostProvider.ProcessOrder: %w", err)
	}

	if err := p.verifyPaymentMethod(ctx, order, accounts); err != nil {
		return nil, fmt.Errorf("HostProvider.ProcessOrder: %w", err)
	}
	if err := verifyCollectiveActive(accounts.to, "payee"); err != nil {
		return nil, fmt.Errorf("HostProvider.ProcessOrder: %w", err)
	}

	rate, err := p.deps.FX.Rate(ctx, order.Currency, accounts.host.Currency)
	if err != nil {
		return nil, fmt.Errorf("HostProvider.ProcessOrder: %w", err)
	}

	hostFee := fees.HostFee(order, accounts.to, accounts.host, p.deps.Policy)
	hostFeeShare := fees.HostFeeShare(hostFee, accounts.host, p.deps.Policy)

	tx, err := p.deps.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("HostProvider.ProcessOrder: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	credit, err := p.deps.Factory.CreateOrderTransactions(ctx, tx, ledger.Intent{
		Kind:                 domain.KindAddedFunds,
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
		return nil, fmt.Errorf("HostProvider.ProcessOrder: %w", err)
	}

	if err := p.deps.Orders.UpdateStatus(ctx, tx, order.ID, domain.OrderStatusPaid, nil, &now); err != nil {
		return nil, fmt.Errorf("HostProvider.ProcessOrder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("HostProvider.ProcessOrder: commit: %w", err)
	}

	log.Info("funds added",
		"order_id", order.ID,
		"host", accounts.host.Slug,
		"to", accounts.to.Slug,
		"amount", order.TotalAmount,
		"currency", order.Currency,
	)

	// A zero-value order carrying only a tip legitimately produces no
	// main transaction.
	return credit, nil
}

// Balance is effectively unbounded: adding funds issues credit, it does
// not draw from a pre-funded pool.
func (p *HostProvider) Balance(_ context.Context, _ *domain.PaymentMethod) (int64, error) {
	return UnboundedBalance, nil
}

func (p *HostProvider) RefundTransaction(ctx context.Context, t *domain.Transaction, actorID uuid.UUID, reason string) (*domain.Transaction, error) {
	refund, err := p.deps.Refunds.CreateRefundTransaction(ctx, t, 0, reasonData(reason), actorID)
	if err != nil {
		return nil, fmt.Errorf("HostProvider.RefundTransaction: %w", err)
	}
	return refund, nil
}

// verifyPaymentMethod enforces that only the destination's own host can
// issue credit to it.
func (p *HostProvider) verifyPaymentMethod(ctx context.Context, order *domain.Order, accounts *orderAccounts) error {
	if order.PaymentMethodID == nil {
		return domain.ErrNoPaymentMethod
	}
	pm, err := p.deps.PaymentMethods.GetByID(ctx, *order.PaymentMethodID)
	if err != nil {
		return err
	}
	if pm.CollectiveID != accounts.host.ID {
		return fmt.Errorf("payment method owner %s is not the host of %s: %w",
			pm.CollectiveID, accounts.to.Slug, domain.ErrWrongPaymentMethod)
	}
	return nil
}
