package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"alert-engine/internal/models"
)

const thresholdColumns = `id, domain_type, metric, operator, threshold_value, level, advice_template, is_active, created_at, updated_at`

func scanThreshold(row pgx.Row) (models.ThresholdRule, error) {
	var t models.ThresholdRule
	var id uuid.UUID
	err := row.Scan(
		&id,
		&t.DomainType,
		&t.Metric,
		&t.Operator,
		&t.ThresholdValue,
		&t.Level,
		&t.AdviceTemplate,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return models.ThresholdRule{}, err
	}
	copy(t.ID[:], id[:])
	return t, nil
}

// CreateThreshold inserts a new threshold rule. The unique constraint on
// (domain_type, metric, operator, threshold_value) rejects duplicate tuples.
func (d *DB) CreateThreshold(ctx context.Context, in models.ThresholdCreate) (models.ThresholdRule, error) {
	newID := uuid.New()

	query := `
	INSERT INTO thresholds (
		id, domain_type, metric, operator, threshold_value, level, advice_template, is_active, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW(), NOW())
	RETURNING ` + thresholdColumns

	t, err := scanThreshold(d.Pool.QueryRow(ctx, query,
		newID,
		in.DomainType,
		in.Metric,
		in.Operator,
		*in.ThresholdValue,
		in.Level,
		in.AdviceTemplate,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ThresholdRule{}, models.ErrDuplicateRule
		}
		return models.ThresholdRule{}, fmt.Errorf("failed to create threshold: %w", err)
	}
	return t, nil
}

// GetThreshold retrieves a rule by its UUID string.
func (d *DB) GetThreshold(ctx context.Context, idStr string) (models.ThresholdRule, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return models.ThresholdRule{}, models.NewValidationError("invalid threshold id")
	}

	query := `SELECT ` + thresholdColumns + ` FROM thresholds WHERE id = $1`
	t, err := scanThreshold(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ThresholdRule{}, models.ErrNotFound
		}
		return models.ThresholdRule{}, fmt.Errorf("failed to get threshold: %w", err)
	}
	return t, nil
}

// ListThresholds returns all rules, or only active ones when activeOnly is set.
func (d *DB) ListThresholds(ctx context.Context, activeOnly bool) ([]models.ThresholdRule, error) {
	query := `SELECT ` + thresholdColumns + ` FROM thresholds`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}
	defer rows.Close()

	var list []models.ThresholdRule
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan threshold: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// UpdateThreshold applies a patch to an existing rule and returns the result.
func (d *DB) UpdateThreshold(ctx context.Context, idStr string, patch models.ThresholdUpdate) (models.ThresholdRule, error) {
	current, err := d.GetThreshold(ctx, idStr)
	if err != nil {
		return models.ThresholdRule{}, err
	}

	if patch.Metric != nil {
		current.Metric = *patch.Metric
	}
	if patch.Operator != nil {
		current.Operator = *patch.Operator
	}
	if patch.ThresholdValue != nil {
		current.ThresholdValue = *patch.ThresholdValue
	}
	if patch.Level != nil {
		current.Level = *patch.Level
	}
	if patch.AdviceTemplate != nil {
		current.AdviceTemplate = *patch.AdviceTemplate
	}
	if patch.IsActive != nil {
		current.IsActive = *patch.IsActive
	}

	if !models.ValidOperator(current.Operator) {
		return models.ThresholdRule{}, models.NewValidationError("operator must be one of GT, GTE, LT, LTE")
	}
	if !models.ValidLevel(current.Level) {
		return models.ThresholdRule{}, models.NewValidationError("level must be one of LOW, MEDIUM, HIGH, CRITICAL")
	}
	if current.ThresholdValue < 0 {
		return models.ThresholdRule{}, models.NewValidationError("threshold_value must be non-negative")
	}

	query := `
	UPDATE thresholds
	SET metric = $1,
	    operator = $2,
	    threshold_value = $3,
	    level = $4,
	    advice_template = $5,
	    is_active = $6,
	    updated_at = NOW()
	WHERE id = $7
	RETURNING ` + thresholdColumns

	t, err := scanThreshold(d.Pool.QueryRow(ctx, query,
		current.Metric,
		current.Operator,
		current.ThresholdValue,
		current.Level,
		current.AdviceTemplate,
		current.IsActive,
		uuid.UUID(current.ID),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ThresholdRule{}, models.ErrDuplicateRule
		}
		return models.ThresholdRule{}, fmt.Errorf("failed to update threshold: %w", err)
	}
	return t, nil
}

// ToggleThreshold flips is_active and returns the updated rule.
func (d *DB) ToggleThreshold(ctx context.Context, idStr string) (models.ThresholdRule, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return models.ThresholdRule{}, models.NewValidationError("invalid threshold id")
	}

	query := `
	UPDATE thresholds
	SET is_active = NOT is_active, updated_at = NOW()
	WHERE id = $1
	RETURNING ` + thresholdColumns

	t, err := scanThreshold(d.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ThresholdRule{}, models.ErrNotFound
		}
		return models.ThresholdRule{}, fmt.Errorf("failed to toggle threshold: %w", err)
	}
	return t, nil
}

// DeleteThreshold removes a rule permanently.
func (d *DB) DeleteThreshold(ctx context.Context, idStr string) error {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return models.NewValidationError("invalid threshold id")
	}

	result, err := d.Pool.Exec(ctx, `DELETE FROM thresholds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete threshold: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
