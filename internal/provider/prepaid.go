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

// PrepaidProvider settles orders against a capped credit line: an initial
// balance spent down by historical debits. Cross-currency spend converts
// into the card's currency at the rate of the moment of spending.
type PrepaidProvider struct {
	deps Deps
}

func NewPrepaidProvider(deps Deps) *PrepaidProvider {
	return &PrepaidProvider{deps: deps}
}

func (p *PrepaidProvider) Features() Features {
	return Features{}
}

func (p *PrepaidProvider) ProcessOrder(ctx context.Context, order *domain.Order) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if err := verifyOrderPending(order); err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}
	if order.TotalAmount <= 0 {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", domain.ErrInvalidAmount)
	}

	accounts, err := resolveOrderAccounts(ctx, p.deps.Collectives, order)
	if err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}
	if err := verifyCollectiveActive(accounts.to, "payee"); err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}

	pm, err := p.verifyPaymentMethod(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}

	// The charge against the card is the full order amount expressed in
	// the card's currency, at the spend-time rate.
	charge, err := p.deps.FX.Convert(ctx, order.TotalAmount, order.Currency, pm.Currency)
	if err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}

	rate, err := p.deps.FX.Rate(ctx, order.Currency, accounts.host.Currency)
	if err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}

	hostFee := fees.HostFee(order, accounts.to, accounts.host, p.deps.Policy)
	hostFeeShare := fees.HostFeeShare(hostFee, accounts.host, p.deps.Policy)

	tx, err := p.deps.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Lock the card owner so concurrent spends serialize on the cap check.
	if _, err := lockCollectivesInOrder(ctx, tx, p.deps.Collectives, pm.CollectiveID); err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}

	spent, err := p.deps.Transactions.SumSpentByPaymentMethod(ctx, tx, pm.ID)
	if err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}
	available := pm.InitialBalance - spent
	if available < charge {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: available %d < %d: %w", available, charge, domain.ErrInsufficientFunds)
	}

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
		PaymentMethodID:      &pm.ID,
		OrderID:              &order.ID,
		Description:          order.Description,
		CreatedAt:            now,
	})
	if err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}

	if err := p.deps.Orders.UpdateStatus(ctx, tx, order.ID, domain.OrderStatusPaid, nil, &now); err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("PrepaidProvider.ProcessOrder: commit: %w", err)
	}

	log.Info("prepaid order settled",
		"order_id", order.ID,
		"payment_method", pm.ID,
		"charge", charge,
		"charge_currency", pm.Currency,
		"remaining", available-charge,
	)

	return credit, nil
}

// Balance is what remains of the credit line.
func (p *PrepaidProvider) Balance(ctx context.Context, pm *domain.PaymentMethod) (int64, error) {
	spent, err := p.deps.Transactions.SumSpentByPaymentMethod(ctx, p.deps.DB.Conn(), pm.ID)
	if err != nil {
		return 0, fmt.Errorf("PrepaidProvider.Balance: %w", err)
	}
	return pm.InitialBalance - spent, nil
}

func (p *PrepaidProvider) RefundTransaction(ctx context.Context, t *domain.Transaction, actorID uuid.UUID, reason string) (*domain.Transaction, error) {
	refund, err := p.deps.Refunds.CreateRefundTransaction(ctx, t, 0, reasonData(reason), actorID)
	if err != nil {
		return nil, fmt.Errorf("PrepaidProvider.RefundTransaction: %w", err)
	}
	return refund, nil
}

func (p *PrepaidProvider) verifyPaymentMethod(ctx context.Context, order *domain.Order) (*domain.PaymentMethod, error) {
	if order.PaymentMethodID == nil {
		return nil, domain.ErrNoPaymentMethod
	}
	pm, err := p.deps.PaymentMethods.GetByID(ctx, *order.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	if pm.Type != domain.TypePrepaid {
		return nil, fmt.Errorf("type %s: %w", pm.Type, domain.ErrWrongPaymentMethod)
	}
	if pm.CollectiveID != order.FromCollectiveID {
		return nil, fmt.Errorf("payment method owner %s: %w", pm.CollectiveID, domain.ErrWrongPaymentMethod)
	}
	if pm.IsExpired(time.Now().UTC()) {
		return nil, fmt.Errorf("%w", domain.ErrPaymentMethodExpired)
	}
	return pm, nil
}
