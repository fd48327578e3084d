// Package refund posts the mirrored reversal entries for a ledger
// transaction, enforcing idempotency and balance sufficiency.
package refund

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
	"github.com/collectivehq/ledger-core/internal/ledger"
	"github.com/collectivehq/ledger-core/internal/logging"
	"github.com/collectivehq/ledger-core/internal/repository"
)

type transactionRepo interface {
	GetByGroup(ctx context.Context, group uuid.UUID) ([]domain.Transaction, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transaction, error)
	LinkRefund(ctx context.Context, tx *sql.Tx, originalID, refundID uuid.UUID) error
}

type collectiveRepo interface {
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Collective, error)
}

type orderRepo interface {
	UpdateStatus(ctx context.Context, q repository.Querier, id uuid.UUID, status domain.OrderStatus, failureReason *string, processedAt *time.Time) error
}

type refundFactory interface {
	CreateRefundPair(ctx context.Context, tx *sql.Tx, original *domain.Transaction, data json.RawMessage, now time.Time) (*domain.Transaction, *domain.Transaction, error)
}

type balanceEngine interface {
	Balance(ctx context.Context, q repository.Querier, collective *domain.Collective, opts ledger.BalanceOptions) (int64, error)
}

type Engine struct {
	db           *repository.DB
	transactions transactionRepo
	collectives  collectiveRepo
	orders       orderRepo
	factory      refundFactory
	balances     balanceEngine
}

func NewEngine(db *repository.DB, transactions transactionRepo, collectives collectiveRepo, orders orderRepo, factory refundFactory, balances balanceEngine) *Engine {
	return &Engine{
		db:           db,
		transactions: transactions,
		collectives:  collectives,
		orders:       orders,
		factory:      factory,
		balances:     balances,
	}
}

// CreateRefundTransaction reverses a transaction pair. Given a DEBIT leg
// it first resolves the paired CREDIT. A transaction can be refunded at
// most once: the second attempt is rejected with ErrAlreadyRefunded so
// callers can tell "refund already happened" from "refund failed".
func (e *Engine) CreateRefundTransaction(ctx context.Context, t *domain.Transaction, processorFeeAdjustment int64, extraData json.RawMessage, actorID uuid.UUID) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	credit, err := e.resolveCreditLeg(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: %w", err)
	}

	if credit.RefundTransactionID != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: %w", domain.ErrAlreadyRefunded)
	}

	data, err := refundData(actorID, processorFeeAdjustment, extraData)
	if err != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: %w", err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockCollectivesInOrder(ctx, tx, e.collectives, credit.CollectiveID, credit.FromCollectiveID)
	if err != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: %w", err)
	}
	receiver := locked[credit.CollectiveID]

	// Re-read under lock: a concurrent refund may have won since the
	// pre-check above.
	credit, err = e.transactions.GetForUpdate(ctx, tx, credit.ID)
	if err != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: %w", err)
	}
	if credit.RefundTransactionID != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: %w", domain.ErrAlreadyRefunded)
	}

	// The receiver must be able to give the money back, counting funds
	// already committed to in-flight payouts.
	balance, err := e.balances.Balance(ctx, tx, receiver, ledger.BalanceOptions{WithBlockedFunds: true})
	if err != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: %w", err)
	}
	if balance < credit.Amount {
		return nil, fmt.Errorf("CreateRefundTransaction: balance %d < %d: %w", balance, credit.Amount, domain.ErrInsufficientFunds)
	}

	now := time.Now().UTC()
	refundCredit, _, err := e.factory.CreateRefundPair(ctx, tx, credit, data, now)
	if err != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: %w", err)
	}

	if err := e.transactions.LinkRefund(ctx, tx, credit.ID, refundCredit.ID); err != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: %w", err)
	}

	if credit.OrderID != nil {
		if err := e.orders.UpdateStatus(ctx, tx, *credit.OrderID, domain.OrderStatusRefunded, nil, &now); err != nil {
			return nil, fmt.Errorf("CreateRefundTransaction: order status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateRefundTransaction: commit: %w", err)
	}

	log.Info("refund posted",
		"original_transaction", credit.ID,
		"refund_transaction", refundCredit.ID,
		"amount", credit.Amount,
		"currency", credit.Currency,
		"actor", actorID,
	)

	return refundCredit, nil
}

// resolveCreditLeg maps a DEBIT leg to its paired CREDIT in the same group.
func (e *Engine) resolveCreditLeg(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	if t.Type == domain.TransactionTypeCredit {
		return t, nil
	}

	legs, err := e.transactions.GetByGroup(ctx, t.TransactionGroup)
	if err != nil {
		return nil, fmt.Errorf("resolveCreditLeg: %w", err)
	}

	for i := range legs {
		leg := &legs[i]
		if leg.Type == domain.TransactionTypeCredit && leg.Kind == t.Kind && !leg.IsRefund {
			return leg, nil
		}
	}
	return nil, fmt.Errorf("resolveCreditLeg: no paired credit for %s: %w", t.ID, domain.ErrNotFound)
}

func refundData(actorID uuid.UUID, processorFeeAdjustment int64, extra json.RawMessage) (json.RawMessage, error) {
	payload := map[string]any{
		"refundedByID": actorID,
	}
	if processorFeeAdjustment != 0 {
		payload["processorFeeAdjustment"] = processorFeeAdjustment
	}
	if len(extra) > 0 {
		payload["extra"] = extra
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("refundData: %w", err)
	}
	return raw, nil
}

func lockCollectivesInOrder(ctx context.Context, tx *sql.Tx, collectives collectiveRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Collective, error) {
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
