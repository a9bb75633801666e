package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"

	"alert-engine/internal/metrics"
	"alert-engine/internal/models"
)

// PushTransport performs the wire-level send. Batching and retries are the
// transport's concern; the dispatcher makes one logical call.
type PushTransport interface {
	Send(ctx context.Context, tokens []string, payload models.PushPayload, dryRun bool) (models.DispatchResult, error)
}

// Dispatcher owns the decision of who receives a push and how the structured
// result is reconciled into sent_count.
type Dispatcher struct {
	transport PushTransport
	logger    *logrus.Logger
}

func New(transport PushTransport, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{transport: transport, logger: logger}
}

// Dispatch sends payload to tokens. An empty token list is not an error:
// the result is zero sent, zero failed. The success count is clamped to
// [0, len(tokens)] so a misbehaving transport cannot corrupt sent_count.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, payload models.PushPayload, dryRun bool) (models.DispatchResult, error) {
	if len(tokens) == 0 {
		return models.DispatchResult{}, nil
	}

	result, err := d.transport.Send(ctx, tokens, payload, dryRun)
	if err != nil {
		return models.DispatchResult{}, err
	}

	if result.SuccessCount < 0 {
		result.SuccessCount = 0
	}
	if result.SuccessCount > len(tokens) {
		result.SuccessCount = len(tokens)
	}

	if !dryRun {
		metrics.NotificationsSent.Add(float64(result.SuccessCount))
		metrics.NotificationsFailed.Add(float64(len(result.FailedTokens)))
	}
	if len(result.FailedTokens) > 0 {
		d.logger.Warnf("Dispatch finished with %d/%d failed tokens", len(result.FailedTokens), len(tokens))
	}
	return result, nil
}
