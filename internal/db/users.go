package db

import (
	"context"
	"encoding/json"
	"fmt"

	"alert-engine/internal/models"
)

// FindWithinBuffer returns active users with a non-empty device token whose
// last known location lies within area expanded by bufferKm. The polygon is
// passed as GeoJSON and evaluated with a within-distance predicate.
func (d *DB) FindWithinBuffer(ctx context.Context, area *models.Polygon, bufferKm float64) ([]models.UserToken, error) {
	areaJSON, err := json.Marshal(area)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal area polygon: %w", err)
	}

	query := `
	SELECT id, device_token
	FROM users
	WHERE is_active = TRUE
	  AND device_token IS NOT NULL
	  AND device_token <> ''
	  AND latitude IS NOT NULL
	  AND longitude IS NOT NULL
	  AND ST_DWithin(
	      ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography,
	      ST_SetSRID(ST_GeomFromGeoJSON($1), 4326)::geography,
	      $2 * 1000
	  )`

	rows, err := d.Pool.Query(ctx, query, string(areaJSON), bufferKm)
	if err != nil {
		return nil, fmt.Errorf("failed to query users within buffer: %w", err)
	}
	defer rows.Close()

	var tokens []models.UserToken
	for rows.Next() {
		var ut models.UserToken
		if err := rows.Scan(&ut.UserID, &ut.Token); err != nil {
			return nil, fmt.Errorf("failed to scan user token: %w", err)
		}
		tokens = append(tokens, ut)
	}
	return tokens, rows.Err()
}

// FindAllActiveWithTokens returns every active user with a non-empty token.
func (d *DB) FindAllActiveWithTokens(ctx context.Context) ([]models.UserToken, error) {
	query := `
	SELECT id, device_token
	FROM users
	WHERE is_active = TRUE
	  AND device_token IS NOT NULL
	  AND device_token <> ''`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users with tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.UserToken
	for rows.Next() {
		var ut models.UserToken
		if err := rows.Scan(&ut.UserID, &ut.Token); err != nil {
			return nil, fmt.Errorf("failed to scan user token: %w", err)
		}
		tokens = append(tokens, ut)
	}
	return tokens, rows.Err()
}

// ClearToken clears one user's stored device token and bumps its timestamp.
// Clearing an already-cleared token is a no-op.
func (d *DB) ClearToken(ctx context.Context, userID int64) error {
	query := `
	UPDATE users
	SET device_token = NULL, token_updated_at = NOW()
	WHERE id = $1`
	if _, err := d.Pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to clear token for user %d: %w", userID, err)
	}
	return nil
}

// ClearTokens clears the stored tokens of every listed user in one statement.
func (d *DB) ClearTokens(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	query := `
	UPDATE users
	SET device_token = NULL, token_updated_at = NOW()
	WHERE id = ANY($1)`
	if _, err := d.Pool.Exec(ctx, query, userIDs); err != nil {
		return fmt.Errorf("failed to clear tokens for %d users: %w", len(userIDs), err)
	}
	return nil
}
