package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alert-engine/internal/models"
)

// DuplicateFinder is the slice of the alert store the guard needs.
type DuplicateFinder interface {
	FindDuplicate(ctx context.Context, domainType, level string, stationID int, since time.Time) (models.AlertRecord, error)
}

// Guard suppresses repeated automatic alerts for the same
// (domain, level, station) key within a time window. It also hands out
// per-key locks so the check-then-insert sequence cannot race against a
// concurrently breaching rule on the same key.
type Guard struct {
	store  DuplicateFinder
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGuard builds a Guard with the given suppression window.
func NewGuard(store DuplicateFinder, window time.Duration) *Guard {
	return &Guard{
		store:  store,
		window: window,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func dedupKey(domainType, level string, stationID int) string {
	return fmt.Sprintf("%s|%s|%d", domainType, level, stationID)
}

// LockKey serializes check-then-insert for one dedup key. The returned
// function releases the lock.
func (g *Guard) LockKey(domainType, level string, stationID int) func() {
	g.mu.Lock()
	key := dedupKey(domainType, level, stationID)
	lock, ok := g.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[key] = lock
	}
	g.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// ShouldSuppress reports whether an automatic alert for this key was already
// sent within the window. Manual alerts never suppress and are never checked.
func (g *Guard) ShouldSuppress(ctx context.Context, domainType, level string, stationID int) (bool, error) {
	since := g.now().Add(-g.window)
	_, err := g.store.FindDuplicate(ctx, domainType, level, stationID, since)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
