package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	FCM struct {
		ServerKey  string
		Endpoint   string
		RatePerSec int
	}
	Telegram struct {
		BotToken  string
		OpsChatID int64
	}
	API struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Alert struct {
		IntervalMinutes    int
		DedupWindowHours   int
		BufferRadiusKm     float64
		ExtraBufferKm      float64
		CallTimeoutSeconds int
		SnapshotMaxAgeMin  int
		Locale             string
	}
	Sweep struct {
		IntervalHours int
		BatchSize     int
	}
}

// CallTimeout returns the per-call timeout for external dependencies.
func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.Alert.CallTimeoutSeconds) * time.Second
}

// DedupWindow returns the duplicate-suppression window.
func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.Alert.DedupWindowHours) * time.Hour
}

// SnapshotMaxAge returns how old a station reading may be before the
// sampler omits it.
func (c Config) SnapshotMaxAge() time.Duration {
	return time.Duration(c.Alert.SnapshotMaxAgeMin) * time.Minute
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.FCM.ServerKey = os.Getenv("FCM_SERVER_KEY")
	cfg.FCM.Endpoint = os.Getenv("FCM_ENDPOINT")
	if r, err := strconv.Atoi(os.Getenv("FCM_RATE_PER_SEC")); err == nil {
		cfg.FCM.RatePerSec = r
	}

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_OPS_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.OpsChatID = id
	}

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	if v, err := strconv.Atoi(os.Getenv("ALERT_INTERVAL_MINUTES")); err == nil {
		cfg.Alert.IntervalMinutes = v
	}
	if v, err := strconv.Atoi(os.Getenv("DEDUP_WINDOW_HOURS")); err == nil {
		cfg.Alert.DedupWindowHours = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("BUFFER_RADIUS_KM"), 64); err == nil {
		cfg.Alert.BufferRadiusKm = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("EXTRA_BUFFER_KM"), 64); err == nil {
		cfg.Alert.ExtraBufferKm = v
	}
	if v, err := strconv.Atoi(os.Getenv("CALL_TIMEOUT_SECONDS")); err == nil {
		cfg.Alert.CallTimeoutSeconds = v
	}
	if v, err := strconv.Atoi(os.Getenv("SNAPSHOT_MAX_AGE_MINUTES")); err == nil {
		cfg.Alert.SnapshotMaxAgeMin = v
	}
	cfg.Alert.Locale = os.Getenv("ALERT_LOCALE")

	if v, err := strconv.Atoi(os.Getenv("SWEEP_INTERVAL_HOURS")); err == nil {
		cfg.Sweep.IntervalHours = v
	}
	if v, err := strconv.Atoi(os.Getenv("SWEEP_BATCH_SIZE")); err == nil {
		cfg.Sweep.BatchSize = v
	}

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "station_readings"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "alert-engine"
	}
	if cfg.FCM.Endpoint == "" {
		cfg.FCM.Endpoint = "https://fcm.googleapis.com/fcm/send"
	}
	if cfg.FCM.RatePerSec == 0 {
		cfg.FCM.RatePerSec = 20
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Alert.IntervalMinutes == 0 {
		cfg.Alert.IntervalMinutes = 10
	}
	if cfg.Alert.DedupWindowHours == 0 {
		cfg.Alert.DedupWindowHours = 2
	}
	if cfg.Alert.BufferRadiusKm == 0 {
		cfg.Alert.BufferRadiusKm = 10
	}
	if cfg.Alert.ExtraBufferKm == 0 {
		cfg.Alert.ExtraBufferKm = 5
	}
	if cfg.Alert.CallTimeoutSeconds == 0 {
		cfg.Alert.CallTimeoutSeconds = 30
	}
	if cfg.Alert.SnapshotMaxAgeMin == 0 {
		cfg.Alert.SnapshotMaxAgeMin = 60
	}
	if cfg.Alert.Locale == "" {
		cfg.Alert.Locale = "vi"
	}
	if cfg.Sweep.IntervalHours == 0 {
		cfg.Sweep.IntervalHours = 24
	}
	if cfg.Sweep.BatchSize == 0 {
		cfg.Sweep.BatchSize = 100
	}

	return cfg, nil
}
