package models

import "time"

// MetricSnapshot is the latest reading of one monitored station, produced
// fresh each tick by the sampler. Values are keyed by snapshot field name
// (aqi, pm25, temperature, ...), not by rule metric name.
type MetricSnapshot struct {
	StationID  int                `json:"station_id"`
	DomainType string             `json:"domain_type"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	Values     map[string]float64 `json:"values"`
	ObservedAt time.Time          `json:"observed_at"`
}

// Breach is one (rule, station, observed value) triple where the rule's
// operator relation holds.
type Breach struct {
	Rule     ThresholdRule
	Station  MetricSnapshot
	Observed float64
}

// UserToken pairs a user with their registered device token. The audience of
// a dispatch is computed fresh each time and never cached across ticks.
type UserToken struct {
	UserID int64
	Token  string
}

// PushPayload is the content of one push notification.
type PushPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// DispatchResult is the structured outcome of one push dispatch. Partial
// failure is a first-class result, not an error.
type DispatchResult struct {
	SuccessCount int
	FailedTokens []string
}
