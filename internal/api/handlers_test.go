package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"alert-engine/internal/models"
)

type fakeThresholdStore struct {
	createErr error
	getErr    error
	listed    bool
	activeArg bool
}

func (f *fakeThresholdStore) CreateThreshold(_ context.Context, in models.ThresholdCreate) (models.ThresholdRule, error) {
	if f.createErr != nil {
		return models.ThresholdRule{}, f.createErr
	}
	return models.ThresholdRule{
		DomainType:     in.DomainType,
		Metric:         in.Metric,
		Operator:       in.Operator,
		ThresholdValue: *in.ThresholdValue,
		Level:          in.Level,
		IsActive:       true,
	}, nil
}

func (f *fakeThresholdStore) GetThreshold(_ context.Context, _ string) (models.ThresholdRule, error) {
	return models.ThresholdRule{}, f.getErr
}

func (f *fakeThresholdStore) ListThresholds(_ context.Context, activeOnly bool) ([]models.ThresholdRule, error) {
	f.listed = true
	f.activeArg = activeOnly
	return nil, nil
}

func (f *fakeThresholdStore) UpdateThreshold(_ context.Context, _ string, _ models.ThresholdUpdate) (models.ThresholdRule, error) {
	return models.ThresholdRule{}, f.getErr
}

func (f *fakeThresholdStore) ToggleThreshold(_ context.Context, _ string) (models.ThresholdRule, error) {
	return models.ThresholdRule{}, f.getErr
}

func (f *fakeThresholdStore) DeleteThreshold(_ context.Context, _ string) error {
	return f.getErr
}

type fakeAlertStore struct{}

func (fakeAlertStore) ListActiveAlerts(_ context.Context) ([]models.AlertRecord, error) {
	return nil, nil
}

func (fakeAlertStore) CountByLevel(_ context.Context) (map[string]int, error) {
	return map[string]int{"HIGH": 2}, nil
}

func (fakeAlertStore) CountPerDayLastNDays(_ context.Context, _ int) ([]models.DailyCount, error) {
	return nil, nil
}

type fakeEngine struct {
	tickErr   error
	createdBy int64
	manual    models.ManualAlertCreate
}

func (f *fakeEngine) TriggerNow(_ context.Context) error { return f.tickErr }

func (f *fakeEngine) DispatchManual(_ context.Context, in models.ManualAlertCreate, createdBy int64) (models.AlertRecord, error) {
	f.manual = in
	f.createdBy = createdBy
	return models.AlertRecord{Level: in.Level, SentCount: 3, CreatedBy: &createdBy}, nil
}

type fakeSweeper struct {
	cleaned int
	err     error
}

func (f *fakeSweeper) Sweep(_ context.Context) (int, error) { return f.cleaned, f.err }

func newTestRouter(t *testing.T, ts ThresholdStore, as AlertStore, eng Engine, sw Sweeper) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := NewHandler(ts, as, eng, sw, logger)

	r := gin.New()
	r.POST("/thresholds", h.CreateThreshold)
	r.GET("/thresholds", h.ListThresholds)
	r.GET("/thresholds/:id", h.GetThreshold)
	r.GET("/alerts/active", h.ListActiveAlerts)
	r.POST("/alerts", h.CreateManualAlert)
	r.POST("/alerts/trigger", h.TriggerTick)
	r.POST("/tokens/sweep", h.TriggerSweep)
	return r
}

func doRequest(r *gin.Engine, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateThresholdValidationFails(t *testing.T) {
	r := newTestRouter(t, &fakeThresholdStore{}, fakeAlertStore{}, &fakeEngine{}, &fakeSweeper{})

	w := doRequest(r, http.MethodPost, "/thresholds",
		`{"domain_type":"AIR_QUALITY","metric":"AQI","operator":"BETWEEN","threshold_value":150,"level":"HIGH"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown operator got status %d want 400", w.Code)
	}
}

func TestCreateThresholdDuplicateConflicts(t *testing.T) {
	store := &fakeThresholdStore{createErr: models.ErrDuplicateRule}
	r := newTestRouter(t, store, fakeAlertStore{}, &fakeEngine{}, &fakeSweeper{})

	w := doRequest(r, http.MethodPost, "/thresholds",
		`{"domain_type":"AIR_QUALITY","metric":"AQI","operator":"GT","threshold_value":150,"level":"HIGH"}`, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate tuple got status %d want 409", w.Code)
	}
}

func TestCreateThresholdSucceeds(t *testing.T) {
	r := newTestRouter(t, &fakeThresholdStore{}, fakeAlertStore{}, &fakeEngine{}, &fakeSweeper{})

	w := doRequest(r, http.MethodPost, "/thresholds",
		`{"domain_type":"WEATHER","metric":"TEMPERATURE","operator":"GTE","threshold_value":40,"level":"CRITICAL"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("valid rule got status %d want 201: %s", w.Code, w.Body.String())
	}
	var rule struct {
		Metric         string  `json:"metric"`
		ThresholdValue float64 `json:"threshold_value"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rule); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rule.Metric != "TEMPERATURE" || rule.ThresholdValue != 40 {
		t.Errorf("unexpected rule in response: %+v", rule)
	}
}

func TestListThresholdsActiveFilter(t *testing.T) {
	store := &fakeThresholdStore{}
	r := newTestRouter(t, store, fakeAlertStore{}, &fakeEngine{}, &fakeSweeper{})

	w := doRequest(r, http.MethodGet, "/thresholds?active=true", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list got status %d want 200", w.Code)
	}
	if !store.activeArg {
		t.Error("active=true must be forwarded to the store")
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("empty result must render as [], got %s", body)
	}
}

func TestGetThresholdNotFound(t *testing.T) {
	store := &fakeThresholdStore{getErr: models.ErrNotFound}
	r := newTestRouter(t, store, fakeAlertStore{}, &fakeEngine{}, &fakeSweeper{})

	w := doRequest(r, http.MethodGet, "/thresholds/4ac1a0b9-0000-0000-0000-000000000000", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing rule got status %d want 404", w.Code)
	}
}

func TestTriggerTick(t *testing.T) {
	r := newTestRouter(t, &fakeThresholdStore{}, fakeAlertStore{}, &fakeEngine{}, &fakeSweeper{})

	w := doRequest(r, http.MethodPost, "/alerts/trigger", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("trigger got status %d want 200", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["message"] != "alert check completed" {
		t.Errorf("unexpected message %q", resp["message"])
	}
}

func TestTriggerTickBusy(t *testing.T) {
	r := newTestRouter(t, &fakeThresholdStore{}, fakeAlertStore{},
		&fakeEngine{tickErr: models.ErrTickInProgress}, &fakeSweeper{})

	w := doRequest(r, http.MethodPost, "/alerts/trigger", "", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("busy tick got status %d want 409", w.Code)
	}
}

func TestTriggerSweep(t *testing.T) {
	r := newTestRouter(t, &fakeThresholdStore{}, fakeAlertStore{}, &fakeEngine{}, &fakeSweeper{cleaned: 4})

	w := doRequest(r, http.MethodPost, "/tokens/sweep", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep got status %d want 200", w.Code)
	}
	var resp struct {
		Message      string `json:"message"`
		CleanedCount int    `json:"cleaned_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CleanedCount != 4 {
		t.Errorf("cleaned_count got %d want 4", resp.CleanedCount)
	}
}

func TestCreateManualAlertRequiresUserHeader(t *testing.T) {
	r := newTestRouter(t, &fakeThresholdStore{}, fakeAlertStore{}, &fakeEngine{}, &fakeSweeper{})

	body := `{"domain_type":"AIR_QUALITY","level":"MEDIUM","title":"t","message":"m"}`
	w := doRequest(r, http.MethodPost, "/alerts", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing X-User-ID got status %d want 400", w.Code)
	}
}

func TestCreateManualAlertPassesCreator(t *testing.T) {
	eng := &fakeEngine{}
	r := newTestRouter(t, &fakeThresholdStore{}, fakeAlertStore{}, eng, &fakeSweeper{})

	body := `{"domain_type":"AIR_QUALITY","level":"MEDIUM","title":"Burn advisory","message":"Avoid outdoor exercise"}`
	w := doRequest(r, http.MethodPost, "/alerts", body, map[string]string{"X-User-ID": "42"})
	if w.Code != http.StatusCreated {
		t.Fatalf("manual alert got status %d want 201: %s", w.Code, w.Body.String())
	}
	if eng.createdBy != 42 {
		t.Errorf("created_by got %d want 42", eng.createdBy)
	}
	if eng.manual.Title != "Burn advisory" {
		t.Errorf("title got %q", eng.manual.Title)
	}
}
