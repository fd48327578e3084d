package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/collectivehq/ledger-core/internal/domain"
)

const paymentMethodColumns = `id, collective_id, service, type, name, currency,
	initial_balance, data, expiry_date, created_at`

type PaymentMethodRepository struct {
	db *sql.DB
}

func NewPaymentMethodRepository(db *sql.DB) *PaymentMethodRepository {
	return &PaymentMethodRepository{db: db}
}

func (r *PaymentMethodRepository) Create(ctx context.Context, pm *domain.PaymentMethod) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_methods (
			id, collective_id, service, type, name, currency,
			initial_balance, data, expiry_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		pm.ID, pm.CollectiveID, pm.Service, pm.Type, pm.Name, pm.Currency,
		pm.InitialBalance, pm.Data, pm.ExpiryDate, pm.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentMethodRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentMethod, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods WHERE id = $1`, id,
	)
	pm, err := scanPaymentMethod(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return pm, nil
}

func (r *PaymentMethodRepository) GetByCollectiveID(ctx context.Context, collectiveID uuid.UUID) ([]domain.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentMethodColumns+` FROM payment_methods
		WHERE collective_id = $1 ORDER BY created_at`, collectiveID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByCollectiveID: %w", err)
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		pm, err := scanPaymentMethod(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByCollectiveID: scan: %w", err)
		}
		methods = append(methods, *pm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByCollectiveID: rows: %w", err)
	}
	return methods, nil
}

func scanPaymentMethod(s scanner) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	var data *[]byte

	err := s.Scan(
		&pm.ID, &pm.CollectiveID, &pm.Service, &pm.Type, &pm.Name, &pm.Currency,
		&pm.InitialBalance, &data, &pm.ExpiryDate, &pm.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if data != nil {
		pm.Data = *data
	}

	return &pm, nil
}
