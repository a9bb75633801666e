package audience

import (
	"context"

	"alert-engine/internal/models"
)

// UserRegistry is the external user registry the resolver queries. The
// audience is computed fresh on every call; locations and tokens change
// continuously.
type UserRegistry interface {
	FindWithinBuffer(ctx context.Context, area *models.Polygon, bufferKm float64) ([]models.UserToken, error)
	FindAllActiveWithTokens(ctx context.Context) ([]models.UserToken, error)
}

// Resolver computes the set of device tokens an alert should reach.
type Resolver struct {
	registry      UserRegistry
	extraBufferKm float64
}

// NewResolver builds a Resolver with the configured safety margin added to
// every geographic area.
func NewResolver(registry UserRegistry, extraBufferKm float64) *Resolver {
	return &Resolver{registry: registry, extraBufferKm: extraBufferKm}
}

// Resolve returns the recipients for area. A nil area is a broadcast: every
// active user with a non-empty token. Empty tokens are dropped either way.
func (r *Resolver) Resolve(ctx context.Context, area *models.Polygon) ([]models.UserToken, error) {
	var recipients []models.UserToken
	var err error
	if area == nil {
		recipients, err = r.registry.FindAllActiveWithTokens(ctx)
	} else {
		recipients, err = r.registry.FindWithinBuffer(ctx, area, r.extraBufferKm)
	}
	if err != nil {
		return nil, err
	}

	filtered := recipients[:0]
	for _, ut := range recipients {
		if ut.Token != "" {
			filtered = append(filtered, ut)
		}
	}
	return filtered, nil
}
