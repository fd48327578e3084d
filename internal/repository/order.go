package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
)

const orderColumns = `id, from_collective_id, collective_id, created_by_id,
	payment_method_id, total_amount, currency, platform_tip_amount,
	status, description, failure_reason, data, created_at, updated_at, processed_at`

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (
			id, from_collective_id, collective_id, created_by_id,
			payment_method_id, total_amount, currency, platform_tip_amount,
			status, description, failure_reason, data, created_at, updated_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		o.ID, o.FromCollectiveID, o.CollectiveID, o.CreatedByID,
		o.PaymentMethodID, o.TotalAmount, o.Currency, o.PlatformTipAmount,
		o.Status, o.Description, o.FailureReason, o.Data, o.CreatedAt, o.UpdatedAt, o.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return o, nil
}

// UpdateStatus transitions an order's status metadata. The ledger rows an
// order produced are never touched here.
func (r *OrderRepository) UpdateStatus(ctx context.Context, q Querier, id uuid.UUID, status domain.OrderStatus, failureReason *string, processedAt *time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE orders SET status = $1, failure_reason = $2, processed_at = $3, updated_at = now()
		WHERE id = $4`,
		status, failureReason, processedAt, id,
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

// ListPendingManual returns orders awaiting out-of-band settlement by the
// host of the destination collective.
func (r *OrderRepository) ListPendingManual(ctx context.Context, hostID uuid.UUID) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderPrefixedColumns+` FROM orders o
		JOIN payment_methods pm ON pm.id = o.payment_method_id
		JOIN collectives c ON c.id = o.collective_id
		WHERE o.status = $1 AND pm.type = $2 AND (c.host_id = $3 OR c.id = $3)
		ORDER BY o.created_at`,
		domain.OrderStatusPending, domain.TypeManual, hostID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListPendingManual: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPendingManual: scan: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListPendingManual: rows: %w", err)
	}
	return orders, nil
}

const orderPrefixedColumns = `o.id, o.from_collective_id, o.collective_id, o.created_by_id,
	o.payment_method_id, o.total_amount, o.currency, o.platform_tip_amount,
	o.status, o.description, o.failure_reason, o.data, o.created_at, o.updated_at, o.processed_at`

func scanOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	var paymentMethodID uuid.NullUUID
	var data *[]byte

	err := s.Scan(
		&o.ID, &o.FromCollectiveID, &o.CollectiveID, &o.CreatedByID,
		&paymentMethodID, &o.TotalAmount, &o.Currency, &o.PlatformTipAmount,
		&o.Status, &o.Description, &o.FailureReason, &data, &o.CreatedAt, &o.UpdatedAt, &o.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentMethodID.Valid {
		o.PaymentMethodID = &paymentMethodID.UUID
	}
	if data != nil {
		o.Data = *data
	}

	return &o, nil
}
