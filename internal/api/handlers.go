package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"alert-engine/internal/models"
)

// ThresholdStore is the rule CRUD surface the handlers need.
type ThresholdStore interface {
	CreateThreshold(ctx context.Context, in models.ThresholdCreate) (models.ThresholdRule, error)
	GetThreshold(ctx context.Context, id string) (models.ThresholdRule, error)
	ListThresholds(ctx context.Context, activeOnly bool) ([]models.ThresholdRule, error)
	UpdateThreshold(ctx context.Context, id string, patch models.ThresholdUpdate) (models.ThresholdRule, error)
	ToggleThreshold(ctx context.Context, id string) (models.ThresholdRule, error)
	DeleteThreshold(ctx context.Context, id string) error
}

// AlertStore is the alert query surface the handlers need.
type AlertStore interface {
	ListActiveAlerts(ctx context.Context) ([]models.AlertRecord, error)
	CountByLevel(ctx context.Context) (map[string]int, error)
	CountPerDayLastNDays(ctx context.Context, n int) ([]models.DailyCount, error)
}

// Engine is the manual entry point into the alert pipeline.
type Engine interface {
	TriggerNow(ctx context.Context) error
	DispatchManual(ctx context.Context, in models.ManualAlertCreate, createdBy int64) (models.AlertRecord, error)
}

// Sweeper runs the token validation sweep on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Handler struct {
	thresholds ThresholdStore
	alerts     AlertStore
	engine     Engine
	sweeper    Sweeper
	logger     *logrus.Logger
}

func NewHandler(thresholds ThresholdStore, alerts AlertStore, engine Engine, sweeper Sweeper, logger *logrus.Logger) *Handler {
	return &Handler{
		thresholds: thresholds,
		alerts:     alerts,
		engine:     engine,
		sweeper:    sweeper,
		logger:     logger,
	}
}

// respondError maps the error taxonomy onto HTTP statuses.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrDuplicateRule):
		c.JSON(http.StatusConflict, gin.H{"error": "threshold rule with this tuple already exists"})
	case errors.Is(err, models.ErrTickInProgress), errors.Is(err, models.ErrSweepInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) CreateThreshold(c *gin.Context) {
	var in models.ThresholdCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Errorf("Invalid threshold request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := models.ValidateThresholdCreate(in); err != nil {
		h.respondError(c, err)
		return
	}

	rule, err := h.thresholds.CreateThreshold(c.Request.Context(), in)
	if err != nil {
		h.logger.Errorf("Create threshold failed: %v", err)
		h.respondError(c, err)
		return
	}
	h.logger.Infof("Created threshold %s (%s %s %s %g)", rule.IDString(), rule.DomainType, rule.Metric, rule.Operator, rule.ThresholdValue)
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) ListThresholds(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	rules, err := h.thresholds.ListThresholds(c.Request.Context(), activeOnly)
	if err != nil {
		h.logger.Errorf("List thresholds failed: %v", err)
		h.respondError(c, err)
		return
	}
	if rules == nil {
		rules = []models.ThresholdRule{}
	}
	c.JSON(http.StatusOK, rules)
}

func (h *Handler) GetThreshold(c *gin.Context) {
	rule, err := h.thresholds.GetThreshold(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) UpdateThreshold(c *gin.Context) {
	var patch models.ThresholdUpdate
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.Errorf("Invalid threshold patch: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := h.thresholds.UpdateThreshold(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.logger.Errorf("Update threshold %s failed: %v", c.Param("id"), err)
		h.respondError(c, err)
		return
	}
	h.logger.Infof("Updated threshold %s", rule.IDString())
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) ToggleThreshold(c *gin.Context) {
	rule, err := h.thresholds.ToggleThreshold(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Infof("Toggled threshold %s to is_active=%v", rule.IDString(), rule.IsActive)
	c.JSON(http.StatusOK, rule)
}

func (h *Handler) DeleteThreshold(c *gin.Context) {
	if err := h.thresholds.DeleteThreshold(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Infof("Deleted threshold %s", c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"message": "threshold deleted"})
}

func (h *Handler) ListActiveAlerts(c *gin.Context) {
	alerts, err := h.alerts.ListActiveAlerts(c.Request.Context())
	if err != nil {
		h.logger.Errorf("List active alerts failed: %v", err)
		h.respondError(c, err)
		return
	}
	if alerts == nil {
		alerts = []models.AlertRecord{}
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) AlertLevelStats(c *gin.Context) {
	counts, err := h.alerts.CountByLevel(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Alert level stats failed: %v", err)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) AlertDailyStats(c *gin.Context) {
	days := 7
	if v, err := strconv.Atoi(c.Query("days")); err == nil && v > 0 {
		days = v
	}
	counts, err := h.alerts.CountPerDayLastNDays(c.Request.Context(), days)
	if err != nil {
		h.logger.Errorf("Alert daily stats failed: %v", err)
		h.respondError(c, err)
		return
	}
	if counts == nil {
		counts = []models.DailyCount{}
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) CreateManualAlert(c *gin.Context) {
	var in models.ManualAlertCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Errorf("Invalid manual alert request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createdBy, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-User-ID header"})
		return
	}

	alert, err := h.engine.DispatchManual(c.Request.Context(), in, createdBy)
	if err != nil {
		h.logger.Errorf("Manual alert dispatch failed: %v", err)
		h.respondError(c, err)
		return
	}
	h.logger.Infof("Manual alert created by user %d, sent to %d devices", createdBy, alert.SentCount)
	c.JSON(http.StatusCreated, alert)
}

func (h *Handler) TriggerTick(c *gin.Context) {
	if err := h.engine.TriggerNow(c.Request.Context()); err != nil {
		h.logger.Errorf("Manual tick failed: %v", err)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert check completed"})
}

func (h *Handler) TriggerSweep(c *gin.Context) {
	cleaned, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		h.logger.Errorf("Manual token sweep failed: %v", err)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "token sweep completed", "cleaned_count": cleaned})
}
