package sampler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"alert-engine/internal/models"
)

// Sampler consumes station readings from Kafka and keeps the latest
// snapshot per station. FetchCurrent serves those snapshots to the
// scheduler; stations whose last reading is older than maxAge are omitted.
type Sampler struct {
	reader *kafka.Reader
	logger *logrus.Logger
	maxAge time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	latest map[int]models.MetricSnapshot
}

// reading is the wire format of one station reading on the topic.
type reading struct {
	StationID  int                `json:"station_id"`
	DomainType string             `json:"domain_type"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	Values     map[string]float64 `json:"values"`
	ObservedAt time.Time          `json:"observed_at"`
}

// New builds a Sampler consuming from the given broker and topic.
func New(broker, topic, groupID string, maxAge time.Duration, logger *logrus.Logger) *Sampler {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{broker},
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Sampler{
		reader: reader,
		logger: logger,
		maxAge: maxAge,
		now:    time.Now,
		latest: make(map[int]models.MetricSnapshot),
	}
}

// Start consumes readings until ctx is cancelled.
func (s *Sampler) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Info("Station reading consumer started")
		for {
			msg, err := s.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Errorf("Read station reading failed: %v", err)
				continue
			}

			var r reading
			if err := json.Unmarshal(msg.Value, &r); err != nil {
				s.logger.Errorf("Unmarshal station reading failed: %v", err)
				continue
			}
			if r.StationID == 0 || !models.ValidDomain(r.DomainType) {
				s.logger.Errorf("Invalid station reading: station_id=%d domain=%s", r.StationID, r.DomainType)
				continue
			}
			if r.ObservedAt.IsZero() {
				r.ObservedAt = s.now()
			}

			s.mu.Lock()
			s.latest[r.StationID] = models.MetricSnapshot(r)
			s.mu.Unlock()
		}
	}()
}

// FetchCurrent returns the latest known reading per monitored station for
// one domain. Stations with no recent data are simply omitted.
func (s *Sampler) FetchCurrent(ctx context.Context, domainType string) ([]models.MetricSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-s.maxAge)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshots []models.MetricSnapshot
	for _, snap := range s.latest {
		if snap.DomainType != domainType {
			continue
		}
		if snap.ObservedAt.Before(cutoff) {
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Close shuts down the Kafka reader.
func (s *Sampler) Close() error {
	return s.reader.Close()
}
