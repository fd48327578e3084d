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

// ManualProvider handles contributions settled out-of-band, e.g. a bank
// transfer the host waits to receive. ProcessOrder records nothing in the
// ledger; the host later confirms receipt via MarkAsPaid, or expires the
// order when the money never shows up.
type ManualProvider struct {
	deps Deps
}

func NewManualProvider(deps Deps) *ManualProvider {
	return &ManualProvider{deps: deps}
}

func (p *ManualProvider) Features() Features {
	return Features{Recurring: true, WaitToCharge: true}
}

// ProcessOrder leaves the order pending. No transaction exists until the
// host confirms the funds arrived.
func (p *ManualProvider) ProcessOrder(ctx context.Context, order *domain.Order) (*domain.Transaction, error) {
	if err := verifyOrderPending(order); err != nil {
		return nil, fmt.Errorf("ManualProvider.ProcessOrder: %w", err)
	}
	if order.TotalAmount <= 0 {
		return nil, fmt.Errorf("ManualProvider.ProcessOrder: %w", domain.ErrInvalidAmount)
	}

	logging.FromContext(ctx).Info("manual order awaiting settlement",
		"order_id", order.ID,
		"amount", order.TotalAmount,
		"currency", order.Currency,
	)

	return nil, nil
}

// MarkAsPaid posts the ledger entries once the host confirms the funds
// were received. Fees and fx are computed at confirmation time.
func (p *ManualProvider) MarkAsPaid(ctx context.Context, order *domain.Order) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if err := verifyOrderPending(order); err != nil {
		return nil, fmt.Errorf("ManualProvider.MarkAsPaid: %w", err)
	}

	accounts, err := resolveOrderAccounts(ctx, p.deps.Collectives, order)
	if err != nil {
		return nil, fmt.Errorf("ManualProvider.MarkAsPaid: %w", err)
	}
	if err := verifyCollectiveActive(accounts.to, "payee"); err != nil {
		return nil, fmt.Errorf("ManualProvider.MarkAsPaid: %w", err)
	}

	rate, err := p.deps.FX.Rate(ctx, order.Currency, accounts.host.Currency)
	if err != nil {
		return nil, fmt.Errorf("ManualProvider.MarkAsPaid: %w", err)
	}

	hostFee := fees.HostFee(order, accounts.to, accounts.host, p.deps.Policy)
	hostFeeShare := fees.HostFeeShare(hostFee, accounts.host, p.deps.Policy)

	tx, err := p.deps.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ManualProvider.MarkAsPaid: begin tx: %w", err)
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
		return nil, fmt.Errorf("ManualProvider.MarkAsPaid: %w", err)
	}

	if err := p.deps.Orders.UpdateStatus(ctx, tx, order.ID, domain.OrderStatusPaid, nil, &now); err != nil {
		return nil, fmt.Errorf("ManualProvider.MarkAsPaid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ManualProvider.MarkAsPaid: commit: %w", err)
	}

	log.Info("manual order settled",
		"order_id", order.ID,
		"to", accounts.to.Slug,
		"amount", order.TotalAmount,
		"currency", order.Currency,
	)

	return credit, nil
}

// MarkExpired abandons a pending manual order whose funds never arrived.
func (p *ManualProvider) MarkExpired(ctx context.Context, order *domain.Order) error {
	if err := verifyOrderPending(order); err != nil {
		return fmt.Errorf("ManualProvider.MarkExpired: %w", err)
	}

	if err := p.deps.Orders.UpdateStatus(ctx, p.deps.DB.Conn(), order.ID, domain.OrderStatusExpired, nil, nil); err != nil {
		return fmt.Errorf("ManualProvider.MarkExpired: %w", err)
	}

	logging.FromContext(ctx).Info("manual order expired", "order_id", order.ID)
	return nil
}

// Balance is zero: a manual payment method holds no funds on platform.
func (p *ManualProvider) Balance(_ context.Context, _ *domain.PaymentMethod) (int64, error) {
	return 0, nil
}

func (p *ManualProvider) RefundTransaction(ctx context.Context, t *domain.Transaction, actorID uuid.UUID, reason string) (*domain.Transaction, error) {
	refund, err := p.deps.Refunds.CreateRefundTransaction(ctx, t, 0, reasonData(reason), actorID)
	if err != nil {
		return nil, fmt.Errorf("ManualProvider.RefundTransaction: %w", err)
	}
	return refund, nil
}
