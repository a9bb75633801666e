package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AutomaticAlertTTL is the fixed lifetime of automatic alerts. Not
// configurable per rule.
const AutomaticAlertTTL = 4 * time.Hour

// Polygon is a GeoJSON polygon: exactly one ring, coordinates in (lon, lat)
// order, first and last pair identical.
type Polygon struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

// Ring returns the outer ring, or nil for a malformed polygon.
func (p *Polygon) Ring() [][2]float64 {
	if p == nil || len(p.Coordinates) == 0 {
		return nil
	}
	return p.Coordinates[0]
}

// SourceData records the breach that produced an automatic alert.
type SourceData struct {
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Operator  string    `json:"operator"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertRecord is one dispatch event. Immutable after creation.
type AlertRecord struct {
	ID          [16]byte    `json:"id"`
	Level       string      `json:"level"`
	DomainType  string      `json:"domain_type"`
	Title       string      `json:"title"`
	Message     string      `json:"message"`
	Advice      string      `json:"advice"`
	Area        *Polygon    `json:"area,omitempty"`
	SentAt      time.Time   `json:"sent_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	SentCount   int         `json:"sent_count"`
	IsAutomatic bool        `json:"is_automatic"`
	Source      *SourceData `json:"source_data,omitempty"`
	StationID   *int        `json:"station_id,omitempty"`
	CreatedBy   *int64      `json:"created_by,omitempty"`
}

// MarshalJSON serializes the record id as a UUID string.
func (a AlertRecord) MarshalJSON() ([]byte, error) {
	type Alias AlertRecord
	return json.Marshal(&struct {
		ID string `json:"id"`
		*Alias
	}{
		ID:    uuid.UUID(a.ID).String(),
		Alias: (*Alias)(&a),
	})
}

// LevelCount is one row of the per-level alert statistics.
type LevelCount struct {
	Level string `json:"level"`
	Count int    `json:"count"`
}

// DailyCount is one row of the per-day alert statistics.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// ManualAlertCreate is the input for operator-created alerts. A nil area
// means broadcast.
type ManualAlertCreate struct {
	DomainType string     `json:"domain_type" binding:"required"`
	Level      string     `json:"level" binding:"required"`
	Title      string     `json:"title" binding:"required"`
	Message    string     `json:"message" binding:"required"`
	Advice     string     `json:"advice"`
	Area       *Polygon   `json:"area,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
