package engine

import (
	"fmt"

	"alert-engine/internal/models"
)

// Localized label tables keyed by metric, level and domain. Kept as static
// data so a new target locale only needs new table entries.

var metricLabels = map[string]map[string]string{
	"vi": {
		"AQI":         "Chỉ số chất lượng không khí (AQI)",
		"PM2.5":       "Bụi mịn PM2.5",
		"PM10":        "Bụi mịn PM10",
		"CO":          "Nồng độ CO",
		"SO2":         "Nồng độ SO2",
		"NO2":         "Nồng độ NO2",
		"O3":          "Nồng độ O3",
		"TEMPERATURE": "Nhiệt độ",
		"HUMIDITY":    "Độ ẩm",
		"WIND_SPEED":  "Tốc độ gió",
		"RAINFALL":    "Lượng mưa",
		"PRESSURE":    "Áp suất khí quyển",
		"UV_INDEX":    "Chỉ số UV",
	},
	"en": {
		"AQI":         "Air quality index (AQI)",
		"PM2.5":       "PM2.5 fine dust",
		"PM10":        "PM10 fine dust",
		"CO":          "CO concentration",
		"SO2":         "SO2 concentration",
		"NO2":         "NO2 concentration",
		"O3":          "O3 concentration",
		"TEMPERATURE": "Temperature",
		"HUMIDITY":    "Humidity",
		"WIND_SPEED":  "Wind speed",
		"RAINFALL":    "Rainfall",
		"PRESSURE":    "Atmospheric pressure",
		"UV_INDEX":    "UV index",
	},
}

var levelLabels = map[string]map[string]string{
	"vi": {
		models.LevelLow:      "Thấp",
		models.LevelMedium:   "Trung bình",
		models.LevelHigh:     "Cao",
		models.LevelCritical: "Nguy hiểm",
	},
	"en": {
		models.LevelLow:      "Low",
		models.LevelMedium:   "Medium",
		models.LevelHigh:     "High",
		models.LevelCritical: "Critical",
	},
}

var domainLabels = map[string]map[string]string{
	"vi": {
		models.DomainAirQuality: "chất lượng không khí",
		models.DomainWeather:    "thời tiết",
	},
	"en": {
		models.DomainAirQuality: "air quality",
		models.DomainWeather:    "weather",
	},
}

var titleFormats = map[string]string{
	"vi": "Cảnh báo %s: %s ở mức %s",
	"en": "%s alert: %s is %s",
}

var messageFormats = map[string]string{
	"vi": "%s tại trạm %d hiện là %.1f, vượt ngưỡng %g.",
	"en": "%s at station %d is currently %.1f, exceeding the threshold of %g.",
}

func tableLookup(table map[string]map[string]string, locale, key string) string {
	if locale, ok := table[locale]; ok {
		if label, ok := locale[key]; ok {
			return label
		}
	}
	if label, ok := table["en"][key]; ok {
		return label
	}
	return key
}

// MetricLabel returns the localized display name of a metric.
func MetricLabel(metric, locale string) string {
	return tableLookup(metricLabels, locale, metric)
}

// LevelLabel returns the localized display name of a severity level.
func LevelLabel(level, locale string) string {
	return tableLookup(levelLabels, locale, level)
}

// DomainLabel returns the localized display name of a domain type.
func DomainLabel(domain, locale string) string {
	return tableLookup(domainLabels, locale, domain)
}

// FormatBreach renders the push title and body for one breach. The body
// states the observed value rounded to one decimal place and the threshold
// it exceeded.
func FormatBreach(b models.Breach, locale string) (title, body string) {
	titleFmt, ok := titleFormats[locale]
	if !ok {
		titleFmt = titleFormats["en"]
	}
	messageFmt, ok := messageFormats[locale]
	if !ok {
		messageFmt = messageFormats["en"]
	}

	title = fmt.Sprintf(titleFmt,
		DomainLabel(b.Rule.DomainType, locale),
		MetricLabel(b.Rule.Metric, locale),
		LevelLabel(b.Rule.Level, locale),
	)
	body = fmt.Sprintf(messageFmt,
		MetricLabel(b.Rule.Metric, locale),
		b.Station.StationID,
		b.Observed,
		b.Rule.ThresholdValue,
	)
	return title, body
}
