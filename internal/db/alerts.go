package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"alert-engine/internal/models"
)

// CreateAlert inserts a new alert record. Records are immutable afterward.
func (d *DB) CreateAlert(ctx context.Context, alert models.AlertRecord) (models.AlertRecord, error) {
	if alert.ID == [16]byte{} {
		newID := uuid.New()
		copy(alert.ID[:], newID[:])
	}

	var areaJSON []byte
	if alert.Area != nil {
		b, err := json.Marshal(alert.Area)
		if err != nil {
			return models.AlertRecord{}, fmt.Errorf("failed to marshal alert area: %w", err)
		}
		areaJSON = b
	}

	var sourceJSON []byte
	if alert.Source != nil {
		b, err := json.Marshal(alert.Source)
		if err != nil {
			return models.AlertRecord{}, fmt.Errorf("failed to marshal alert source: %w", err)
		}
		sourceJSON = b
	}

	query := `
	INSERT INTO alerts (
		id, level, domain_type, title, message, advice, area, sent_at, expires_at,
		sent_count, is_automatic, source_data, station_id, created_by
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := d.Pool.Exec(ctx, query,
		uuid.UUID(alert.ID),
		alert.Level,
		alert.DomainType,
		alert.Title,
		alert.Message,
		alert.Advice,
		areaJSON,
		alert.SentAt,
		alert.ExpiresAt,
		alert.SentCount,
		alert.IsAutomatic,
		sourceJSON,
		alert.StationID,
		alert.CreatedBy,
	)
	if err != nil {
		return models.AlertRecord{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	return alert, nil
}

// FindDuplicate returns the most recent automatic alert with the same
// (domain_type, level, station_id) sent after since, or ErrNotFound.
// Manual alerts never participate in deduplication.
func (d *DB) FindDuplicate(ctx context.Context, domainType, level string, stationID int, since time.Time) (models.AlertRecord, error) {
	query := `
	SELECT id, level, domain_type, title, message, advice, area, sent_at, expires_at,
	       sent_count, is_automatic, source_data, station_id, created_by
	FROM alerts
	WHERE is_automatic = TRUE
	  AND domain_type = $1
	  AND level = $2
	  AND station_id = $3
	  AND sent_at > $4
	ORDER BY sent_at DESC
	LIMIT 1`

	alert, err := d.scanAlert(d.Pool.QueryRow(ctx, query, domainType, level, stationID, since))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AlertRecord{}, models.ErrNotFound
		}
		return models.AlertRecord{}, fmt.Errorf("failed to find duplicate alert: %w", err)
	}
	return alert, nil
}

// ListActiveAlerts returns alerts that have not yet expired, newest first.
func (d *DB) ListActiveAlerts(ctx context.Context) ([]models.AlertRecord, error) {
	query := `
	SELECT id, level, domain_type, title, message, advice, area, sent_at, expires_at,
	       sent_count, is_automatic, source_data, station_id, created_by
	FROM alerts
	WHERE expires_at > NOW()
	ORDER BY sent_at DESC`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	defer rows.Close()

	var list []models.AlertRecord
	for rows.Next() {
		alert, err := d.scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		list = append(list, alert)
	}
	return list, rows.Err()
}

// CountByLevel returns the number of alerts per severity level.
func (d *DB) CountByLevel(ctx context.Context) (map[string]int, error) {
	rows, err := d.Pool.Query(ctx, `SELECT level, COUNT(*) FROM alerts GROUP BY level`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by level: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		counts[level] = count
	}
	return counts, rows.Err()
}

// CountPerDayLastNDays returns one row per day for the last n days,
// including days with zero alerts.
func (d *DB) CountPerDayLastNDays(ctx context.Context, n int) ([]models.DailyCount, error) {
	query := `
	SELECT d::date::text, COALESCE(COUNT(a.id), 0)
	FROM generate_series(CURRENT_DATE - ($1::int - 1), CURRENT_DATE, '1 day') AS d
	LEFT JOIN alerts a ON a.sent_at::date = d::date
	GROUP BY d
	ORDER BY d`

	rows, err := d.Pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts per day: %w", err)
	}
	defer rows.Close()

	var list []models.DailyCount
	for rows.Next() {
		var dc models.DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily count: %w", err)
		}
		list = append(list, dc)
	}
	return list, rows.Err()
}

func (d *DB) scanAlert(row pgx.Row) (models.AlertRecord, error) {
	var a models.AlertRecord
	var id uuid.UUID
	var areaJSON, sourceJSON []byte

	err := row.Scan(
		&id,
		&a.Level,
		&a.DomainType,
		&a.Title,
		&a.Message,
		&a.Advice,
		&areaJSON,
		&a.SentAt,
		&a.ExpiresAt,
		&a.SentCount,
		&a.IsAutomatic,
		&sourceJSON,
		&a.StationID,
		&a.CreatedBy,
	)
	if err != nil {
		return models.AlertRecord{}, err
	}
	copy(a.ID[:], id[:])

	if len(areaJSON) > 0 {
		var p models.Polygon
		if err := json.Unmarshal(areaJSON, &p); err != nil {
			return models.AlertRecord{}, fmt.Errorf("failed to unmarshal alert area: %w", err)
		}
		a.Area = &p
	}
	if len(sourceJSON) > 0 {
		var s models.SourceData
		if err := json.Unmarshal(sourceJSON, &s); err != nil {
			return models.AlertRecord{}, fmt.Errorf("failed to unmarshal alert source: %w", err)
		}
		a.Source = &s
	}
	return a, nil
}
