package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
)

const expenseColumns = `id, collective_id, from_collective_id, amount, currency,
	status, description, created_at, updated_at`

type ExpenseRepository struct {
	db *sql.DB
}

func NewExpenseRepository(db *sql.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) Create(ctx context.Context, e *domain.Expense) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (
			id, collective_id, from_collective_id, amount, currency,
			status, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.CollectiveID, e.FromCollectiveID, e.Amount, e.Currency,
		e.Status, e.Description, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id,
	)
	var e domain.Expense
	err := row.Scan(
		&e.ID, &e.CollectiveID, &e.FromCollectiveID, &e.Amount, &e.Currency,
		&e.Status, &e.Description, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &e, nil
}

func (r *ExpenseRepository) UpdateStatus(ctx context.Context, q Querier, id uuid.UUID, status domain.ExpenseStatus) error {
	res, err := q.ExecContext(ctx,
		`UPDATE expenses SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// SumBlocked totals amounts earmarked by expenses awaiting external payout
// confirmation. These are excluded from the spendable balance.
func (r *ExpenseRepository) SumBlocked(ctx context.Context, q Querier, collectiveID uuid.UUID) (int64, error) {
	var sum int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses
		WHERE collective_id = $1 AND status = $2`,
		collectiveID, domain.ExpenseStatusProcessing,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("SumBlocked: %w", err)
	}
	return sum, nil
}
