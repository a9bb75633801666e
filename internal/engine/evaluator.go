package engine

import "alert-engine/internal/models"

// snapshotField maps rule metric names to snapshot value keys, per domain.
// Unmapped metric/domain combinations are treated as no data.
var snapshotField = map[string]map[string]string{
	models.DomainAirQuality: {
		"AQI":   "aqi",
		"PM2.5": "pm25",
		"PM10":  "pm10",
		"CO":    "co",
		"SO2":   "so2",
		"NO2":   "no2",
		"O3":    "o3",
	},
	models.DomainWeather: {
		"TEMPERATURE": "temperature",
		"HUMIDITY":    "humidity",
		"WIND_SPEED":  "wind_speed",
		"RAINFALL":    "rainfall",
		"PRESSURE":    "pressure",
		"UV_INDEX":    "uv_index",
	},
}

// Compare applies an operator between an observed value and a threshold.
// GTE/LTE include equality, GT/LT exclude it.
func Compare(operator string, value, threshold float64) bool {
	switch operator {
	case models.OpGT:
		return value > threshold
	case models.OpGTE:
		return value >= threshold
	case models.OpLT:
		return value < threshold
	case models.OpLTE:
		return value <= threshold
	default:
		return false
	}
}

// Evaluate returns every (rule, station, observed value) triple where the
// rule's operator relation holds. A rule whose metric is absent from a
// station's snapshot is skipped for that station. Pure and side-effect-free.
func Evaluate(rules []models.ThresholdRule, snapshots []models.MetricSnapshot) []models.Breach {
	var breaches []models.Breach
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		field, ok := snapshotField[rule.DomainType][rule.Metric]
		if !ok {
			continue
		}
		for _, snap := range snapshots {
			if snap.DomainType != rule.DomainType {
				continue
			}
			value, ok := snap.Values[field]
			if !ok {
				continue
			}
			if Compare(rule.Operator, value, rule.ThresholdValue) {
				breaches = append(breaches, models.Breach{
					Rule:     rule,
					Station:  snap,
					Observed: value,
				})
			}
		}
	}
	return breaches
}
