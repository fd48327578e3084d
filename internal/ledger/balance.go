package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
	"github.com/collectivehq/ledger-core/internal/repository"
)

type netSummer interface {
	SumNetAmount(ctx context.Context, q repository.Querier, collectiveID uuid.UUID, asOf time.Time) (int64, error)
}

type blockedSummer interface {
	SumBlocked(ctx context.Context, q repository.Querier, collectiveID uuid.UUID) (int64, error)
}

type converter interface {
	Convert(ctx context.Context, amount int64, from, to domain.Currency) (int64, error)
}

// BalanceOptions tune a balance query. Zero value means: as of now, in the
// collective's own currency, without subtracting blocked funds.
type BalanceOptions struct {
	AsOf             time.Time
	Currency         domain.Currency
	WithBlockedFunds bool
}

// BalanceEngine derives a collective's balance by folding over its
// transaction history. Aggregation happens in SQL, never in memory.
type BalanceEngine struct {
	db           *repository.DB
	transactions netSummer
	expenses     blockedSummer
	fx           converter
}

func NewBalanceEngine(db *repository.DB, transactions netSummer, expenses blockedSummer, fxSvc converter) *BalanceEngine {
	return &BalanceEngine{
		db:           db,
		transactions: transactions,
		expenses:     expenses,
		fx:           fxSvc,
	}
}

// Balance computes the collective's spendable balance. Pass a non-nil
// Querier to aggregate inside an open transaction (providers do this while
// holding the collective's row lock across check-then-insert).
func (e *BalanceEngine) Balance(ctx context.Context, q repository.Querier, collective *domain.Collective, opts BalanceOptions) (int64, error) {
	if q == nil {
		q = e.db.Conn()
	}

	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	balance, err := e.transactions.SumNetAmount(ctx, q, collective.ID, asOf)
	if err != nil {
		return 0, fmt.Errorf("Balance: %w", err)
	}

	if opts.WithBlockedFunds {
		blocked, err := e.expenses.SumBlocked(ctx, q, collective.ID)
		if err != nil {
			return 0, fmt.Errorf("Balance: %w", err)
		}
		balance -= blocked
	}

	if opts.Currency != "" && opts.Currency != collective.Currency {
		converted, err := e.fx.Convert(ctx, balance, collective.Currency, opts.Currency)
		if err != nil {
			return 0, fmt.Errorf("Balance: %w", err)
		}
		balance = converted
	}

	return balance, nil
}
