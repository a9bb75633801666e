package db

import (
	"context"
	"fmt"
)

// Migrate creates the schema when missing. The unique index on the rule
// tuple backs the Conflict semantics of CreateThreshold.
func (d *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS thresholds (
			id UUID PRIMARY KEY,
			domain_type TEXT NOT NULL,
			metric TEXT NOT NULL,
			operator TEXT NOT NULL,
			threshold_value DOUBLE PRECISION NOT NULL CHECK (threshold_value >= 0),
			level TEXT NOT NULL,
			advice_template TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS thresholds_tuple_idx
			ON thresholds (domain_type, metric, operator, threshold_value)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			level TEXT NOT NULL,
			domain_type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			advice TEXT NOT NULL DEFAULT '',
			area JSONB,
			sent_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			sent_count INT NOT NULL DEFAULT 0,
			is_automatic BOOLEAN NOT NULL,
			source_data JSONB,
			station_id INT,
			created_by BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS alerts_dedup_idx
			ON alerts (domain_type, level, station_id, sent_at)
			WHERE is_automatic = TRUE`,
	}

	for _, stmt := range statements {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
