package engine

import (
	"testing"
	"time"

	"alert-engine/internal/models"
)

func TestCompareOperators(t *testing.T) {
	cases := []struct {
		op        string
		value     float64
		threshold float64
		want      bool
	}{
		{models.OpGT, 151, 150, true},
		{models.OpGT, 150, 150, false},
		{models.OpGTE, 150, 150, true},
		{models.OpGTE, 149, 150, false},
		{models.OpLT, 149, 150, true},
		{models.OpLT, 150, 150, false},
		{models.OpLTE, 150, 150, true},
		{models.OpLTE, 151, 150, false},
		{"BETWEEN", 150, 150, false},
	}
	for _, tc := range cases {
		if got := Compare(tc.op, tc.value, tc.threshold); got != tc.want {
			t.Errorf("Compare(%s, %v, %v) got %v want %v", tc.op, tc.value, tc.threshold, got, tc.want)
		}
	}
}

func aqiRule(operator string, threshold float64, level string) models.ThresholdRule {
	return models.ThresholdRule{
		DomainType:     models.DomainAirQuality,
		Metric:         "AQI",
		Operator:       operator,
		ThresholdValue: threshold,
		Level:          level,
		IsActive:       true,
	}
}

func snapshot(stationID int, domain string, values map[string]float64) models.MetricSnapshot {
	return models.MetricSnapshot{
		StationID:  stationID,
		DomainType: domain,
		Latitude:   10.77,
		Longitude:  106.69,
		Values:     values,
		ObservedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateDetectsBreach(t *testing.T) {
	rules := []models.ThresholdRule{aqiRule(models.OpGT, 150, models.LevelHigh)}
	snaps := []models.MetricSnapshot{snapshot(1, models.DomainAirQuality, map[string]float64{"aqi": 180})}

	breaches := Evaluate(rules, snaps)
	if len(breaches) != 1 {
		t.Fatalf("expected 1 breach, got %d", len(breaches))
	}
	b := breaches[0]
	if b.Observed != 180 {
		t.Errorf("observed value got %v want 180", b.Observed)
	}
	if b.Rule.Level != models.LevelHigh {
		t.Errorf("breach level got %s want HIGH", b.Rule.Level)
	}
	if b.Station.StationID != 1 {
		t.Errorf("breach station got %d want 1", b.Station.StationID)
	}
}

func TestEvaluateSkipsMissingMetric(t *testing.T) {
	rules := []models.ThresholdRule{aqiRule(models.OpGT, 150, models.LevelHigh)}
	snaps := []models.MetricSnapshot{snapshot(1, models.DomainAirQuality, map[string]float64{"pm25": 300})}

	if breaches := Evaluate(rules, snaps); len(breaches) != 0 {
		t.Fatalf("expected no breaches for absent metric, got %d", len(breaches))
	}
}

func TestEvaluateSkipsUnmappedMetric(t *testing.T) {
	rule := aqiRule(models.OpGT, 0, models.LevelLow)
	rule.Metric = "RADON"
	snaps := []models.MetricSnapshot{snapshot(1, models.DomainAirQuality, map[string]float64{"aqi": 500})}

	if breaches := Evaluate([]models.ThresholdRule{rule}, snaps); len(breaches) != 0 {
		t.Fatalf("expected no breaches for unmapped metric, got %d", len(breaches))
	}
}

func TestEvaluateSkipsInactiveRule(t *testing.T) {
	rule := aqiRule(models.OpGT, 150, models.LevelHigh)
	rule.IsActive = false
	snaps := []models.MetricSnapshot{snapshot(1, models.DomainAirQuality, map[string]float64{"aqi": 180})}

	if breaches := Evaluate([]models.ThresholdRule{rule}, snaps); len(breaches) != 0 {
		t.Fatalf("expected no breaches for inactive rule, got %d", len(breaches))
	}
}

func TestEvaluateSkipsOtherDomainStations(t *testing.T) {
	rules := []models.ThresholdRule{aqiRule(models.OpGT, 150, models.LevelHigh)}
	snaps := []models.MetricSnapshot{snapshot(1, models.DomainWeather, map[string]float64{"aqi": 180})}

	if breaches := Evaluate(rules, snaps); len(breaches) != 0 {
		t.Fatalf("expected no breaches across domains, got %d", len(breaches))
	}
}

func TestEvaluateMultipleStations(t *testing.T) {
	rules := []models.ThresholdRule{aqiRule(models.OpGTE, 100, models.LevelMedium)}
	snaps := []models.MetricSnapshot{
		snapshot(1, models.DomainAirQuality, map[string]float64{"aqi": 100}),
		snapshot(2, models.DomainAirQuality, map[string]float64{"aqi": 99}),
		snapshot(3, models.DomainAirQuality, map[string]float64{"aqi": 250}),
	}

	breaches := Evaluate(rules, snaps)
	if len(breaches) != 2 {
		t.Fatalf("expected 2 breaches, got %d", len(breaches))
	}
}
