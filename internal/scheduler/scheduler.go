package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"alert-engine/internal/engine"
	"alert-engine/internal/geo"
	"alert-engine/internal/metrics"
	"alert-engine/internal/models"
)

// RuleSource provides the active rule set, fetched once per tick.
type RuleSource interface {
	ListThresholds(ctx context.Context, activeOnly bool) ([]models.ThresholdRule, error)
}

// MetricSampler returns the latest known reading per monitored station.
type MetricSampler interface {
	FetchCurrent(ctx context.Context, domainType string) ([]models.MetricSnapshot, error)
}

// AlertStore persists alert records.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert models.AlertRecord) (models.AlertRecord, error)
}

// DedupGuard suppresses repeat alerts and serializes check-then-insert per key.
type DedupGuard interface {
	LockKey(domainType, level string, stationID int) func()
	ShouldSuppress(ctx context.Context, domainType, level string, stationID int) (bool, error)
}

// AudienceResolver computes the recipients of one dispatch.
type AudienceResolver interface {
	Resolve(ctx context.Context, area *models.Polygon) ([]models.UserToken, error)
}

// Dispatcher sends one push and reconciles the structured result.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, payload models.PushPayload, dryRun bool) (models.DispatchResult, error)
}

// TokenLifecycle reacts to failed tokens after a dispatch.
type TokenLifecycle interface {
	OnDispatchFailures(ctx context.Context, failed []string, recipients []models.UserToken)
}

// AlertSink receives every created alert (websocket feed, ops notifier).
type AlertSink interface {
	AlertCreated(ctx context.Context, alert models.AlertRecord)
}

// Options collects the tuning knobs passed in at construction.
type Options struct {
	Interval       time.Duration
	BufferRadiusKm float64
	CallTimeout    time.Duration
	Locale         string
}

// Scheduler runs the alert pipeline on a fixed interval. Ticks never
// overlap; a manual trigger while a tick is in flight is rejected.
type Scheduler struct {
	rules      RuleSource
	sampler    MetricSampler
	store      AlertStore
	guard      DedupGuard
	resolver   AudienceResolver
	dispatcher Dispatcher
	lifecycle  TokenLifecycle
	sinks      []AlertSink
	logger     *logrus.Logger
	opts       Options
	now        func() time.Time

	tickMu sync.Mutex
}

// New wires the scheduler from its collaborators.
func New(rules RuleSource, sampler MetricSampler, store AlertStore, guard DedupGuard,
	resolver AudienceResolver, dispatcher Dispatcher, lifecycle TokenLifecycle,
	logger *logrus.Logger, opts Options, sinks ...AlertSink) *Scheduler {
	return &Scheduler{
		rules:      rules,
		sampler:    sampler,
		store:      store,
		guard:      guard,
		resolver:   resolver,
		dispatcher: dispatcher,
		lifecycle:  lifecycle,
		sinks:      sinks,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// Start launches the periodic tick loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		s.logger.Infof("Alert scheduler started, interval %s", s.opts.Interval)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Alert scheduler stopped")
				return
			case <-ticker.C:
				if err := s.TriggerNow(ctx); err != nil {
					if errors.Is(err, models.ErrTickInProgress) {
						metrics.TicksTotal.WithLabelValues("skipped").Inc()
						s.logger.Warn("Previous tick still running, skipping")
						continue
					}
					s.logger.Errorf("Alert tick failed: %v", err)
				}
			}
		}
	}()
}

// TriggerNow runs one tick synchronously. Returns ErrTickInProgress when a
// tick is already running; the in-flight tick is never interrupted.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	if !s.tickMu.TryLock() {
		return models.ErrTickInProgress
	}
	defer s.tickMu.Unlock()
	return s.runTick(ctx)
}

// runTick fetches the rule set once, partitions it by domain, and processes
// each domain independently: a failure in one domain never blocks the other.
func (s *Scheduler) runTick(ctx context.Context) (err error) {
	start := s.now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
		// An escaped panic ends the tick early but must not kill the loop.
		if r := recover(); r != nil {
			err = fmt.Errorf("fatal scheduler error: %v", r)
			metrics.TicksTotal.WithLabelValues("error").Inc()
			s.logger.Errorf("Alert tick panicked: %v", r)
		}
	}()

	rulesCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	rules, rErr := s.rules.ListThresholds(rulesCtx, true)
	cancel()
	if rErr != nil {
		metrics.TicksTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load active rules: %w", rErr)
	}

	byDomain := map[string][]models.ThresholdRule{}
	for _, rule := range rules {
		byDomain[rule.DomainType] = append(byDomain[rule.DomainType], rule)
	}

	var domainErrs []error
	for _, domain := range []string{models.DomainAirQuality, models.DomainWeather} {
		domainRules := byDomain[domain]
		if len(domainRules) == 0 {
			continue
		}
		if dErr := s.processDomain(ctx, domain, domainRules); dErr != nil {
			metrics.DomainErrors.WithLabelValues(domain).Inc()
			s.logger.Errorf("Domain %s processing failed: %v", domain, dErr)
			domainErrs = append(domainErrs, fmt.Errorf("%s: %w", domain, dErr))
		}
	}

	if len(domainErrs) > 0 {
		metrics.TicksTotal.WithLabelValues("error").Inc()
		return errors.Join(domainErrs...)
	}
	metrics.TicksTotal.WithLabelValues("ok").Inc()
	return nil
}

func (s *Scheduler) processDomain(ctx context.Context, domain string, rules []models.ThresholdRule) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	snapshots, err := s.sampler.FetchCurrent(fetchCtx, domain)
	cancel()
	if err != nil {
		return fmt.Errorf("metric fetch failed: %w", err)
	}

	breaches := engine.Evaluate(rules, snapshots)
	if len(breaches) == 0 {
		return nil
	}
	s.logger.Infof("Domain %s: %d breaches across %d stations", domain, len(breaches), len(snapshots))

	var breachErrs []error
	for _, breach := range breaches {
		metrics.BreachesTotal.WithLabelValues(domain, breach.Rule.Level).Inc()
		if err := s.handleBreach(ctx, breach); err != nil {
			s.logger.Errorf("Breach handling failed (rule %s, station %d): %v",
				breach.Rule.IDString(), breach.Station.StationID, err)
			breachErrs = append(breachErrs, err)
		}
	}
	return errors.Join(breachErrs...)
}

// handleBreach runs dedup, audience resolution, dispatch, token cleanup and
// persistence for one breach. The per-key lock covers the whole
// check-then-insert sequence.
func (s *Scheduler) handleBreach(ctx context.Context, breach models.Breach) error {
	rule := breach.Rule
	station := breach.Station

	unlock := s.guard.LockKey(rule.DomainType, rule.Level, station.StationID)
	defer unlock()

	suppress, err := s.guard.ShouldSuppress(ctx, rule.DomainType, rule.Level, station.StationID)
	if err != nil {
		return fmt.Errorf("dedup check failed: %w", err)
	}
	if suppress {
		metrics.AlertsSuppressed.WithLabelValues(rule.DomainType, rule.Level).Inc()
		return nil
	}

	area := geo.BuildBufferPolygon(station.Latitude, station.Longitude, s.opts.BufferRadiusKm)

	resolveCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	recipients, err := s.resolver.Resolve(resolveCtx, area)
	cancel()
	if err != nil {
		return fmt.Errorf("audience resolution failed: %w", err)
	}

	title, body := engine.FormatBreach(breach, s.opts.Locale)
	payload := models.PushPayload{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"domain_type": rule.DomainType,
			"level":       rule.Level,
			"metric":      rule.Metric,
			"value":       fmt.Sprintf("%.1f", breach.Observed),
			"station_id":  fmt.Sprintf("%d", station.StationID),
		},
	}

	tokenList := make([]string, 0, len(recipients))
	for _, ut := range recipients {
		tokenList = append(tokenList, ut.Token)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	result, err := s.dispatcher.Dispatch(dispatchCtx, tokenList, payload, false)
	cancel()
	if err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	s.lifecycle.OnDispatchFailures(ctx, result.FailedTokens, recipients)

	sentAt := s.now()
	stationID := station.StationID
	record := models.AlertRecord{
		Level:       rule.Level,
		DomainType:  rule.DomainType,
		Title:       title,
		Message:     body,
		Advice:      rule.AdviceTemplate,
		Area:        area,
		SentAt:      sentAt,
		ExpiresAt:   sentAt.Add(models.AutomaticAlertTTL),
		SentCount:   result.SuccessCount,
		IsAutomatic: true,
		StationID:   &stationID,
		Source: &models.SourceData{
			Metric:    rule.Metric,
			Value:     breach.Observed,
			Threshold: rule.ThresholdValue,
			Operator:  rule.Operator,
			Timestamp: station.ObservedAt,
		},
	}

	created, err := s.store.CreateAlert(ctx, record)
	if err != nil {
		return fmt.Errorf("alert persistence failed: %w", err)
	}
	metrics.AlertsCreated.WithLabelValues(rule.DomainType, rule.Level, "automatic").Inc()

	for _, sink := range s.sinks {
		sink.AlertCreated(ctx, created)
	}
	return nil
}

// DispatchManual creates and dispatches an operator alert. A nil area is a
// broadcast to every active user with a token. Manual alerts are never
// deduplicated and never suppress automatic ones.
func (s *Scheduler) DispatchManual(ctx context.Context, in models.ManualAlertCreate, createdBy int64) (models.AlertRecord, error) {
	if !models.ValidLevel(in.Level) {
		return models.AlertRecord{}, models.NewValidationError("level must be one of LOW, MEDIUM, HIGH, CRITICAL")
	}
	if !models.ValidDomain(in.DomainType) {
		return models.AlertRecord{}, models.NewValidationError("domain_type must be AIR_QUALITY or WEATHER")
	}
	if in.Area != nil && len(in.Area.Ring()) < 4 {
		return models.AlertRecord{}, models.NewValidationError("area must be a closed polygon ring")
	}

	resolveCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	recipients, err := s.resolver.Resolve(resolveCtx, in.Area)
	cancel()
	if err != nil {
		return models.AlertRecord{}, fmt.Errorf("audience resolution failed: %w", err)
	}

	payload := models.PushPayload{
		Title: in.Title,
		Body:  in.Message,
		Data:  map[string]string{"level": in.Level},
	}

	tokenList := make([]string, 0, len(recipients))
	for _, ut := range recipients {
		tokenList = append(tokenList, ut.Token)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	result, err := s.dispatcher.Dispatch(dispatchCtx, tokenList, payload, false)
	cancel()
	if err != nil {
		return models.AlertRecord{}, fmt.Errorf("dispatch failed: %w", err)
	}

	s.lifecycle.OnDispatchFailures(ctx, result.FailedTokens, recipients)

	sentAt := s.now()
	expiresAt := sentAt.Add(models.AutomaticAlertTTL)
	if in.ExpiresAt != nil {
		expiresAt = *in.ExpiresAt
	}

	record := models.AlertRecord{
		Level:       in.Level,
		DomainType:  in.DomainType,
		Title:       in.Title,
		Message:     in.Message,
		Advice:      in.Advice,
		Area:        in.Area,
		SentAt:      sentAt,
		ExpiresAt:   expiresAt,
		SentCount:   result.SuccessCount,
		IsAutomatic: false,
		CreatedBy:   &createdBy,
	}

	created, err := s.store.CreateAlert(ctx, record)
	if err != nil {
		return models.AlertRecord{}, fmt.Errorf("alert persistence failed: %w", err)
	}
	metrics.AlertsCreated.WithLabelValues(record.DomainType, record.Level, "manual").Inc()

	for _, sink := range s.sinks {
		sink.AlertCreated(ctx, created)
	}
	return created, nil
}
