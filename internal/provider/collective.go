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

// CollectiveProvider settles internal transfers: one collective paying
// another under the same fiscal host, strictly balance-checked.
type CollectiveProvider struct {
	deps Deps
}

func NewCollectiveProvider(deps Deps) *CollectiveProvider {
	return &CollectiveProvider{deps: deps}
}

func (p *CollectiveProvider) Features() Features {
	return Features{Recurring: true}
}

func (p *CollectiveProvider) ProcessOrder(ctx context.Context, order *domain.Order) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if err := verifyOrderPending(order); err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", err)
	}
	if order.TotalAmount <= 0 {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", domain.ErrInvalidAmount)
	}

	accounts, err := resolveOrderAccounts(ctx, p.deps.Collectives, order)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", err)
	}

	pm, err := p.verifyPaymentMethod(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", err)
	}

	if err := p.validate(order, accounts); err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", err)
	}

	rate, err := p.deps.FX.Rate(ctx, order.Currency, accounts.host.Currency)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", err)
	}

	hostFee := fees.HostFee(order, accounts.to, accounts.host, p.deps.Policy)
	hostFeeShare := fees.HostFeeShare(hostFee, accounts.host, p.deps.Policy)

	tx, err := p.deps.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Row lock on both parties spans the balance check and the insert, so
	// two concurrent spends cannot both pass the check.
	locked, err := lockCollectivesInOrder(ctx, tx, p.deps.Collectives, order.FromCollectiveID, order.CollectiveID)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", err)
	}
	payer := locked[order.FromCollectiveID]

	balance, err := p.deps.Balances.Balance(ctx, tx, payer, ledger.BalanceOptions{WithBlockedFunds: true})
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", err)
	}
	if balance < order.TotalAmount {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: balance %d < %d: %w", balance, order.TotalAmount, domain.ErrInsufficientFunds)
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
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", err)
	}

	if err := p.deps.Orders.UpdateStatus(ctx, tx, order.ID, domain.OrderStatusPaid, nil, &now); err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CollectiveProvider.ProcessOrder: commit: %w", err)
	}

	log.Info("internal transfer settled",
		"order_id", order.ID,
		"from", accounts.from.Slug,
		"to", accounts.to.Slug,
		"amount", order.TotalAmount,
		"currency", order.Currency,
		"host_fee", hostFee,
		"platform_tip", order.PlatformTipAmount,
	)

	return credit, nil
}

// EmptyBalance moves a collective's remaining balance to its host, e.g.
// when the collective is being archived. A non-positive balance is a no-op.
func (p *CollectiveProvider) EmptyBalance(ctx context.Context, collectiveID, actorID uuid.UUID) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	c, err := p.deps.Collectives.GetByID(ctx, collectiveID)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.EmptyBalance: %w", err)
	}
	host, err := resolveHost(ctx, p.deps.Collectives, c)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.EmptyBalance: %w", err)
	}

	rate, err := p.deps.FX.Rate(ctx, c.Currency, host.Currency)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.EmptyBalance: %w", err)
	}

	tx, err := p.deps.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.EmptyBalance: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := lockCollectivesInOrder(ctx, tx, p.deps.Collectives, c.ID, host.ID); err != nil {
		return nil, fmt.Errorf("CollectiveProvider.EmptyBalance: %w", err)
	}

	balance, err := p.deps.Balances.Balance(ctx, tx, c, ledger.BalanceOptions{WithBlockedFunds: true})
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.EmptyBalance: %w", err)
	}
	if balance <= 0 {
		return nil, nil
	}

	credit, err := p.deps.Factory.CreateOrderTransactions(ctx, tx, ledger.Intent{
		Kind:               domain.KindBalanceTransfer,
		CollectiveID:       host.ID,
		FromCollectiveID:   c.ID,
		HostCollectiveID:   &host.ID,
		Amount:             balance,
		Currency:           c.Currency,
		HostCurrency:       host.Currency,
		HostCurrencyFxRate: rate,
		Description:        "Balance transfer to " + host.Slug,
		CreatedAt:          time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.EmptyBalance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CollectiveProvider.EmptyBalance: commit: %w", err)
	}

	log.Info("balance emptied",
		"collective", c.Slug,
		"host", host.Slug,
		"amount", balance,
		"actor_id", actorID,
	)

	return credit, nil
}

// Balance reports the real spendable balance of the paying collective,
// with blocked funds excluded.
func (p *CollectiveProvider) Balance(ctx context.Context, pm *domain.PaymentMethod) (int64, error) {
	owner, err := p.deps.Collectives.GetByID(ctx, pm.CollectiveID)
	if err != nil {
		return 0, fmt.Errorf("CollectiveProvider.Balance: %w", err)
	}

	balance, err := p.deps.Balances.Balance(ctx, nil, owner, ledger.BalanceOptions{WithBlockedFunds: true})
	if err != nil {
		return 0, fmt.Errorf("CollectiveProvider.Balance: %w", err)
	}
	return balance, nil
}

func (p *CollectiveProvider) RefundTransaction(ctx context.Context, t *domain.Transaction, actorID uuid.UUID, reason string) (*domain.Transaction, error) {
	refund, err := p.deps.Refunds.CreateRefundTransaction(ctx, t, 0, reasonData(reason), actorID)
	if err != nil {
		return nil, fmt.Errorf("CollectiveProvider.RefundTransaction: %w", err)
	}
	return refund, nil
}

func (p *CollectiveProvider) verifyPaymentMethod(ctx context.Context, order *domain.Order) (*domain.PaymentMethod, error) {
	if order.PaymentMethodID == nil {
		return nil, domain.ErrNoPaymentMethod
	}
	pm, err := p.deps.PaymentMethods.GetByID(ctx, *order.PaymentMethodID)
	if err != nil {
		return nil, err
	}
	// An internal transfer spends the payer's own funds; the method must
	// belong to the paying collective.
	if pm.CollectiveID != order.FromCollectiveID {
		return nil, fmt.Errorf("payment method owner %s: %w", pm.CollectiveID, domain.ErrWrongPaymentMethod)
	}
	return pm, nil
}

func (p *CollectiveProvider) validate(order *domain.Order, accounts *orderAccounts) error {
	if err := verifyCollectiveActive(accounts.from, "payer"); err != nil {
		return err
	}
	if err := verifyCollectiveActive(accounts.to, "payee"); err != nil {
		return err
	}

	if order.Currency != accounts.from.Currency || order.Currency != accounts.to.Currency {
		return fmt.Errorf("order %s, payer %s, payee %s: %w",
			order.Currency, accounts.from.Currency, accounts.to.Currency, domain.ErrCurrencyMismatch)
	}

	if !accounts.from.IsHostedBy(accounts.host.ID) {
		return fmt.Errorf("payer %s: %w", accounts.from.Slug, domain.ErrDifferentHost)
	}

	return nil
}

