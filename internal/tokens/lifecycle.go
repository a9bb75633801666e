package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"alert-engine/internal/metrics"
	"alert-engine/internal/models"
)

// TokenRegistry is the slice of the user registry the lifecycle manager
// needs.
type TokenRegistry interface {
	FindAllActiveWithTokens(ctx context.Context) ([]models.UserToken, error)
	ClearTokens(ctx context.Context, userIDs []int64) error
}

// Validator sends the dry-run validation payload during sweeps.
type Validator interface {
	Dispatch(ctx context.Context, tokens []string, payload models.PushPayload, dryRun bool) (models.DispatchResult, error)
}

// Manager clears invalid device tokens, both reactively after dispatch
// failures and via a periodic validation sweep.
type Manager struct {
	registry  TokenRegistry
	validator Validator
	logger    *logrus.Logger
	batchSize int
	interval  time.Duration
	timeout   time.Duration

	sweepMu sync.Mutex
}

// NewManager builds a Manager. batchSize bounds the tokens per dry-run
// validation call during sweeps.
func NewManager(registry TokenRegistry, validator Validator, logger *logrus.Logger, batchSize int, interval, timeout time.Duration) *Manager {
	return &Manager{
		registry:  registry,
		validator: validator,
		logger:    logger,
		batchSize: batchSize,
		interval:  interval,
		timeout:   timeout,
	}
}

// OnDispatchFailures clears the tokens reported failed by a dispatch.
// Ownership is resolved by reverse lookup against the recipients of that
// dispatch; tokens that changed in between silently no-op.
func (m *Manager) OnDispatchFailures(ctx context.Context, failed []string, recipients []models.UserToken) {
	if len(failed) == 0 {
		return
	}

	byToken := make(map[string]int64, len(recipients))
	for _, ut := range recipients {
		byToken[ut.Token] = ut.UserID
	}

	var userIDs []int64
	for _, token := range failed {
		if userID, ok := byToken[token]; ok {
			userIDs = append(userIDs, userID)
		}
	}
	if len(userIDs) == 0 {
		return
	}

	if err := m.registry.ClearTokens(ctx, userIDs); err != nil {
		m.logger.Errorf("Failed to clear %d invalid tokens: %v", len(userIDs), err)
		return
	}
	metrics.TokensCleaned.Add(float64(len(userIDs)))
	m.logger.Infof("Cleared %d invalid tokens after dispatch failures", len(userIDs))
}

// Sweep validates every stored token with dry-run sends in fixed-size
// batches and clears the owners of failed ones. Returns
// countBefore - countAfter, both taken by re-querying storage around the
// sweep.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	if !m.sweepMu.TryLock() {
		return 0, models.ErrSweepInProgress
	}
	defer m.sweepMu.Unlock()

	before, err := m.registry.FindAllActiveWithTokens(ctx)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	countBefore := len(before)

	byToken := make(map[string]int64, len(before))
	allTokens := make([]string, 0, len(before))
	for _, ut := range before {
		byToken[ut.Token] = ut.UserID
		allTokens = append(allTokens, ut.Token)
	}

	payload := models.PushPayload{
		Title: "token validation",
		Body:  "token validation",
	}

	var invalidUsers []int64
	for start := 0; start < len(allTokens); start += m.batchSize {
		end := start + m.batchSize
		if end > len(allTokens) {
			end = len(allTokens)
		}
		batch := allTokens[start:end]

		batchCtx, cancel := context.WithTimeout(ctx, m.timeout)
		result, err := m.validator.Dispatch(batchCtx, batch, payload, true)
		cancel()
		if err != nil {
			m.logger.Errorf("Sweep batch %d-%d failed: %v", start, end, err)
			continue
		}
		for _, token := range result.FailedTokens {
			if userID, ok := byToken[token]; ok {
				invalidUsers = append(invalidUsers, userID)
			}
		}
	}

	if len(invalidUsers) > 0 {
		if err := m.registry.ClearTokens(ctx, invalidUsers); err != nil {
			metrics.SweepsTotal.WithLabelValues("error").Inc()
			return 0, err
		}
		metrics.TokensCleaned.Add(float64(len(invalidUsers)))
	}

	after, err := m.registry.FindAllActiveWithTokens(ctx)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	cleaned := countBefore - len(after)

	metrics.SweepsTotal.WithLabelValues("ok").Inc()
	m.logger.Infof("Token sweep done: %d tokens before, %d after, %d cleaned", countBefore, len(after), cleaned)
	return cleaned, nil
}

// Start launches the periodic sweep loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("Token sweep loop stopped")
				return
			case <-ticker.C:
				if _, err := m.Sweep(ctx); err != nil {
					if err == models.ErrSweepInProgress {
						metrics.SweepsTotal.WithLabelValues("skipped").Inc()
						continue
					}
					m.logger.Errorf("Scheduled token sweep failed: %v", err)
				}
			}
		}
	}()
}
