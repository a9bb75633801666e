package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"alert-engine/internal/engine"
	"alert-engine/internal/models"
)

type fakeRules struct {
	rules []models.ThresholdRule
	err   error
}

func (f *fakeRules) ListThresholds(_ context.Context, _ bool) ([]models.ThresholdRule, error) {
	return f.rules, f.err
}

type fakeSampler struct {
	snapshots map[string][]models.MetricSnapshot
	errs      map[string]error

	started chan struct{} // closed on first fetch when set
	release chan struct{} // blocks the fetch when set
	once    sync.Once
}

func (f *fakeSampler) FetchCurrent(_ context.Context, domain string) ([]models.MetricSnapshot, error) {
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}
	if err := f.errs[domain]; err != nil {
		return nil, err
	}
	return f.snapshots[domain], nil
}

// memStore keeps created alerts in memory and answers FindDuplicate from
// them, so the real Guard runs against it.
type memStore struct {
	mu      sync.Mutex
	records []models.AlertRecord
}

func (m *memStore) CreateAlert(_ context.Context, alert models.AlertRecord) (models.AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, alert)
	return alert, nil
}

func (m *memStore) FindDuplicate(_ context.Context, domainType, level string, stationID int, since time.Time) (models.AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.IsAutomatic && rec.DomainType == domainType && rec.Level == level &&
			rec.StationID != nil && *rec.StationID == stationID && rec.SentAt.After(since) {
			return rec, nil
		}
	}
	return models.AlertRecord{}, models.ErrNotFound
}

type fakeResolver struct {
	recipients []models.UserToken
	lastArea   *models.Polygon
	broadcasts int
}

func (f *fakeResolver) Resolve(_ context.Context, area *models.Polygon) ([]models.UserToken, error) {
	f.lastArea = area
	if area == nil {
		f.broadcasts++
	}
	return f.recipients, nil
}

type fakeDispatcher struct {
	result models.DispatchResult
	err    error
	calls  int
}

func (f *fakeDispatcher) Dispatch(_ context.Context, tokens []string, _ models.PushPayload, _ bool) (models.DispatchResult, error) {
	f.calls++
	if f.err != nil {
		return models.DispatchResult{}, f.err
	}
	result := f.result
	if result.SuccessCount == 0 && len(result.FailedTokens) == 0 {
		result.SuccessCount = len(tokens)
	}
	return result, nil
}

type fakeLifecycle struct {
	failed []string
}

func (f *fakeLifecycle) OnDispatchFailures(_ context.Context, failed []string, _ []models.UserToken) {
	f.failed = append(f.failed, failed...)
}

func silentLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testOptions() Options {
	return Options{
		Interval:       10 * time.Minute,
		BufferRadiusKm: 10,
		CallTimeout:    5 * time.Second,
		Locale:         "en",
	}
}

func aqiHighRule() models.ThresholdRule {
	return models.ThresholdRule{
		DomainType:     models.DomainAirQuality,
		Metric:         "AQI",
		Operator:       models.OpGT,
		ThresholdValue: 150,
		Level:          models.LevelHigh,
		IsActive:       true,
	}
}

func aqiSnapshot(stationID int, aqi float64) models.MetricSnapshot {
	return models.MetricSnapshot{
		StationID:  stationID,
		DomainType: models.DomainAirQuality,
		Latitude:   10.77,
		Longitude:  106.69,
		Values:     map[string]float64{"aqi": aqi},
		ObservedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	}
}

func TestTickCreatesAutomaticAlert(t *testing.T) {
	store := &memStore{}
	guard := engine.NewGuard(store, 2*time.Hour)
	resolver := &fakeResolver{recipients: []models.UserToken{{UserID: 1, Token: "tok-1"}}}
	dispatcher := &fakeDispatcher{}
	lifecycle := &fakeLifecycle{}

	s := New(
		&fakeRules{rules: []models.ThresholdRule{aqiHighRule()}},
		&fakeSampler{snapshots: map[string][]models.MetricSnapshot{
			models.DomainAirQuality: {aqiSnapshot(1, 180)},
		}},
		store, guard, resolver, dispatcher, lifecycle, silentLogger(), testOptions(),
	)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("expected 1 alert record, got %d", len(store.records))
	}
	rec := store.records[0]
	if rec.Level != models.LevelHigh {
		t.Errorf("level got %s want HIGH", rec.Level)
	}
	if !rec.IsAutomatic {
		t.Error("scheduler-created alerts must be automatic")
	}
	if rec.CreatedBy != nil {
		t.Error("automatic alerts must have no creator")
	}
	if !rec.ExpiresAt.Equal(rec.SentAt.Add(4 * time.Hour)) {
		t.Errorf("expires_at got %v want sent_at+4h", rec.ExpiresAt)
	}
	if rec.Area == nil {
		t.Error("automatic alerts must carry a buffer polygon")
	}
	if rec.StationID == nil || *rec.StationID != 1 {
		t.Errorf("station id got %v want 1", rec.StationID)
	}
	if rec.SentCount != 1 {
		t.Errorf("sent count got %d want 1", rec.SentCount)
	}
	if rec.Source == nil || rec.Source.Value != 180 || rec.Source.Threshold != 150 {
		t.Errorf("source data got %+v", rec.Source)
	}
}

func TestTickSuppressesWithinDedupWindow(t *testing.T) {
	store := &memStore{}
	guard := engine.NewGuard(store, 2*time.Hour)
	dispatcher := &fakeDispatcher{}

	s := New(
		&fakeRules{rules: []models.ThresholdRule{aqiHighRule()}},
		&fakeSampler{snapshots: map[string][]models.MetricSnapshot{
			models.DomainAirQuality: {aqiSnapshot(1, 180)},
		}},
		store, guard, &fakeResolver{}, dispatcher, &fakeLifecycle{}, silentLogger(), testOptions(),
	)

	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}

	// Same breach re-evaluated while the first alert is still fresh.
	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("breach inside the window must be suppressed, got %d records", len(store.records))
	}

	// Age the stored alert past the window: the breach re-alerts.
	store.mu.Lock()
	store.records[0].SentAt = time.Now().Add(-2*time.Hour - time.Minute)
	store.mu.Unlock()
	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("third tick: %v", err)
	}
	if len(store.records) != 2 {
		t.Fatalf("breach after the window must re-alert, got %d records", len(store.records))
	}
}

func TestTickIsolatesDomainFailures(t *testing.T) {
	store := &memStore{}
	guard := engine.NewGuard(store, 2*time.Hour)

	weatherRule := models.ThresholdRule{
		DomainType:     models.DomainWeather,
		Metric:         "TEMPERATURE",
		Operator:       models.OpGTE,
		ThresholdValue: 40,
		Level:          models.LevelCritical,
		IsActive:       true,
	}
	weatherSnap := models.MetricSnapshot{
		StationID:  2,
		DomainType: models.DomainWeather,
		Latitude:   10.8,
		Longitude:  106.7,
		Values:     map[string]float64{"temperature": 41.5},
		ObservedAt: time.Now(),
	}

	s := New(
		&fakeRules{rules: []models.ThresholdRule{aqiHighRule(), weatherRule}},
		&fakeSampler{
			snapshots: map[string][]models.MetricSnapshot{models.DomainWeather: {weatherSnap}},
			errs:      map[string]error{models.DomainAirQuality: errors.New("upstream down")},
		},
		store, guard, &fakeResolver{}, &fakeDispatcher{}, &fakeLifecycle{}, silentLogger(), testOptions(),
	)

	err := s.TriggerNow(context.Background())
	if err == nil {
		t.Fatal("manual trigger must report the failed domain")
	}

	// The weather domain must still have been processed.
	if len(store.records) != 1 {
		t.Fatalf("expected 1 weather alert despite the air-quality failure, got %d", len(store.records))
	}
	if store.records[0].DomainType != models.DomainWeather {
		t.Errorf("record domain got %s want WEATHER", store.records[0].DomainType)
	}
}

func TestTickPassesFailedTokensToLifecycle(t *testing.T) {
	store := &memStore{}
	guard := engine.NewGuard(store, 2*time.Hour)
	lifecycle := &fakeLifecycle{}
	dispatcher := &fakeDispatcher{result: models.DispatchResult{
		SuccessCount: 7,
		FailedTokens: []string{"bad-1", "bad-2", "bad-3"},
	}}
	recipients := make([]models.UserToken, 10)
	for i := range recipients {
		recipients[i] = models.UserToken{UserID: int64(i), Token: string(rune('a' + i))}
	}

	s := New(
		&fakeRules{rules: []models.ThresholdRule{aqiHighRule()}},
		&fakeSampler{snapshots: map[string][]models.MetricSnapshot{
			models.DomainAirQuality: {aqiSnapshot(1, 180)},
		}},
		store, guard, &fakeResolver{recipients: recipients}, dispatcher, lifecycle, silentLogger(), testOptions(),
	)

	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if store.records[0].SentCount != 7 {
		t.Errorf("sent count got %d want 7", store.records[0].SentCount)
	}
	if len(lifecycle.failed) != 3 {
		t.Errorf("lifecycle must receive the 3 failed tokens, got %v", lifecycle.failed)
	}
}

func TestTriggerNowRejectsOverlap(t *testing.T) {
	sampler := &fakeSampler{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	store := &memStore{}
	s := New(
		&fakeRules{rules: []models.ThresholdRule{aqiHighRule()}},
		sampler, store, engine.NewGuard(store, 2*time.Hour),
		&fakeResolver{}, &fakeDispatcher{}, &fakeLifecycle{}, silentLogger(), testOptions(),
	)

	done := make(chan error, 1)
	go func() { done <- s.TriggerNow(context.Background()) }()

	<-sampler.started
	if err := s.TriggerNow(context.Background()); !errors.Is(err, models.ErrTickInProgress) {
		t.Errorf("overlapping trigger got %v want ErrTickInProgress", err)
	}

	close(sampler.release)
	if err := <-done; err != nil {
		t.Fatalf("first tick: %v", err)
	}
}

func TestDispatchManualBroadcasts(t *testing.T) {
	store := &memStore{}
	resolver := &fakeResolver{recipients: []models.UserToken{
		{UserID: 1, Token: "tok-1"},
		{UserID: 2, Token: "tok-2"},
	}}
	s := New(
		&fakeRules{}, &fakeSampler{}, store, engine.NewGuard(store, 2*time.Hour),
		resolver, &fakeDispatcher{}, &fakeLifecycle{}, silentLogger(), testOptions(),
	)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	expires := now.Add(24 * time.Hour)
	rec, err := s.DispatchManual(context.Background(), models.ManualAlertCreate{
		DomainType: models.DomainAirQuality,
		Level:      models.LevelMedium,
		Title:      "Planned maintenance",
		Message:    "Monitoring will be degraded tonight",
		ExpiresAt:  &expires,
	}, 42)
	if err != nil {
		t.Fatalf("DispatchManual: %v", err)
	}

	if resolver.broadcasts != 1 {
		t.Error("a manual alert with no area must broadcast")
	}
	if rec.IsAutomatic {
		t.Error("manual alerts must not be automatic")
	}
	if rec.CreatedBy == nil || *rec.CreatedBy != 42 {
		t.Errorf("created_by got %v want 42", rec.CreatedBy)
	}
	if !rec.ExpiresAt.Equal(expires) {
		t.Errorf("operator-chosen expiry got %v want %v", rec.ExpiresAt, expires)
	}
	if rec.SentCount != 2 {
		t.Errorf("sent count got %d want 2", rec.SentCount)
	}
}

func TestDispatchManualRejectsBadLevel(t *testing.T) {
	store := &memStore{}
	s := New(
		&fakeRules{}, &fakeSampler{}, store, engine.NewGuard(store, 2*time.Hour),
		&fakeResolver{}, &fakeDispatcher{}, &fakeLifecycle{}, silentLogger(), testOptions(),
	)

	_, err := s.DispatchManual(context.Background(), models.ManualAlertCreate{
		DomainType: models.DomainAirQuality,
		Level:      "EXTREME",
		Title:      "t",
		Message:    "m",
	}, 1)
	if !models.IsValidation(err) {
		t.Errorf("invalid level got %v want a validation error", err)
	}
}
