package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/collectivehq/ledger-core/internal/domain"
)

const collectiveColumns = `id, slug, name, type, currency, host_id, approved_at,
	host_fee_percent, host_fee_share_percent, is_active, created_at`

type CollectiveRepository struct {
	db *sql.DB
}

func NewCollectiveRepository(db *sql.DB) *CollectiveRepository {
	return &CollectiveRepository{db: db}
}

func (r *CollectiveRepository) Create(ctx context.Context, c *domain.Collective) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collectives (
			id, slug, name, type, currency, host_id, approved_at,
			host_fee_percent, host_fee_share_percent, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Slug, c.Name, c.Type, c.Currency, c.HostID, c.ApprovedAt,
		c.HostFeePercent, c.HostFeeSharePercent, c.IsActive, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *CollectiveRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Collective, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+collectiveColumns+` FROM collectives WHERE id = $1`, id,
	)
	c, err := scanCollective(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return c, nil
}

func (r *CollectiveRepository) GetBySlug(ctx context.Context, slug string) (*domain.Collective, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+collectiveColumns+` FROM collectives WHERE slug = $1`, slug,
	)
	c, err := scanCollective(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetBySlug: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetBySlug: %w", err)
	}
	return c, nil
}

// GetForUpdate row-locks the collective for the duration of the enclosing
// transaction. Providers take this lock before the balance check so a
// concurrent spend cannot sneak between check and insert.
func (r *CollectiveRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Collective, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+collectiveColumns+` FROM collectives WHERE id = $1 FOR UPDATE`, id,
	)
	c, err := scanCollective(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return c, nil
}

func scanCollective(s scanner) (*domain.Collective, error) {
	var c domain.Collective
	var hostID uuid.NullUUID
	var hostFeePercent, hostFeeSharePercent decimal.NullDecimal

	err := s.Scan(
		&c.ID, &c.Slug, &c.Name, &c.Type, &c.Currency, &hostID, &c.ApprovedAt,
		&hostFeePercent, &hostFeeSharePercent, &c.IsActive, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if hostID.Valid {
		c.HostID = &hostID.UUID
	}
	if hostFeePercent.Valid {
		c.HostFeePercent = &hostFeePercent.Decimal
	}
	if hostFeeSharePercent.Valid {
		c.HostFeeSharePercent = &hostFeeSharePercent.Decimal
	}

	return &c, nil
}
