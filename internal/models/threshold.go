package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Domain types for monitored telemetry.
const (
	DomainAirQuality = "AIR_QUALITY"
	DomainWeather    = "WEATHER"
)

// Comparison operators for threshold rules.
const (
	OpGT  = "GT"
	OpGTE = "GTE"
	OpLT  = "LT"
	OpLTE = "LTE"
)

// Alert severity levels.
const (
	LevelLow      = "LOW"
	LevelMedium   = "MEDIUM"
	LevelHigh     = "HIGH"
	LevelCritical = "CRITICAL"
)

// ThresholdRule is an operator-defined condition over a single metric.
// The tuple (domain_type, metric, operator, threshold_value) is unique.
type ThresholdRule struct {
	ID             [16]byte  `json:"id"`
	DomainType     string    `json:"domain_type"`
	Metric         string    `json:"metric"`
	Operator       string    `json:"operator"`
	ThresholdValue float64   `json:"threshold_value"`
	Level          string    `json:"level"`
	AdviceTemplate string    `json:"advice_template"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ThresholdCreate is the input structure for creating a new rule.
type ThresholdCreate struct {
	DomainType     string   `json:"domain_type" binding:"required"`
	Metric         string   `json:"metric" binding:"required"`
	Operator       string   `json:"operator" binding:"required"`
	ThresholdValue *float64 `json:"threshold_value" binding:"required"`
	Level          string   `json:"level" binding:"required"`
	AdviceTemplate string   `json:"advice_template"`
}

// ThresholdUpdate carries patch semantics: nil fields are left untouched.
type ThresholdUpdate struct {
	Metric         *string  `json:"metric,omitempty"`
	Operator       *string  `json:"operator,omitempty"`
	ThresholdValue *float64 `json:"threshold_value,omitempty"`
	Level          *string  `json:"level,omitempty"`
	AdviceTemplate *string  `json:"advice_template,omitempty"`
	IsActive       *bool    `json:"is_active,omitempty"`
}

// IDString returns the rule id as a UUID string.
func (r ThresholdRule) IDString() string {
	return uuid.UUID(r.ID).String()
}

// MarshalJSON serializes the rule id as a UUID string.
func (r ThresholdRule) MarshalJSON() ([]byte, error) {
	type Alias ThresholdRule
	return json.Marshal(&struct {
		ID string `json:"id"`
		*Alias
	}{
		ID:    uuid.UUID(r.ID).String(),
		Alias: (*Alias)(&r),
	})
}

// ValidOperator reports whether op is one of GT, GTE, LT, LTE.
func ValidOperator(op string) bool {
	switch op {
	case OpGT, OpGTE, OpLT, OpLTE:
		return true
	}
	return false
}

// ValidLevel reports whether level is a known severity.
func ValidLevel(level string) bool {
	switch level {
	case LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return true
	}
	return false
}

// ValidDomain reports whether domain is a known domain type.
func ValidDomain(domain string) bool {
	return domain == DomainAirQuality || domain == DomainWeather
}

// ValidateThresholdCreate checks a rule definition before persistence.
func ValidateThresholdCreate(in ThresholdCreate) error {
	if !ValidDomain(in.DomainType) {
		return NewValidationError("domain_type must be AIR_QUALITY or WEATHER")
	}
	if !ValidOperator(in.Operator) {
		return NewValidationError("operator must be one of GT, GTE, LT, LTE")
	}
	if !ValidLevel(in.Level) {
		return NewValidationError("level must be one of LOW, MEDIUM, HIGH, CRITICAL")
	}
	if in.ThresholdValue == nil || *in.ThresholdValue < 0 {
		return NewValidationError("threshold_value must be non-negative")
	}
	if in.Metric == "" {
		return NewValidationError("metric is required")
	}
	return nil
}
