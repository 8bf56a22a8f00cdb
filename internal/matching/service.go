package matching

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/messaging"
	"github.com/tastebuds/match-app/internal/metrics"
)

// DefaultCleanupInterval is how often the cleanup loop runs.
const DefaultCleanupInterval = 30 * time.Second

// SwipeSubscriber delivers swipe.recorded events.
type SwipeSubscriber interface {
	SubscribeSwipeRecorded(handler func(data []byte)) error
}

// Service is the background matcher: it re-runs detection for every
// recorded swipe and keeps session bookkeeping tidy.
type Service struct {
	detector        *Detector
	subscriber      SwipeSubscriber
	cleaner         *Cleaner
	cleanupInterval time.Duration
	logger          *zap.Logger
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewService creates a matcher service. cleaner may be nil to disable the
// cleanup loop.
func NewService(detector *Detector, subscriber SwipeSubscriber, cleaner *Cleaner, cleanupInterval time.Duration, logger *zap.Logger) *Service {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		detector:        detector,
		subscriber:      subscriber,
		cleaner:         cleaner,
		cleanupInterval: cleanupInterval,
		logger:          logger.Named("matcher"),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start subscribes to swipe.recorded and starts the cleanup loop.
func (s *Service) Start() error {
	if err := s.subscriber.SubscribeSwipeRecorded(s.handleSwipeRecorded); err != nil {
		return err
	}
	if s.cleaner != nil {
		go s.cleaner.Run(s.ctx, s.cleanupInterval)
	}
	s.logger.Info("service started")
	return nil
}

// Stop gracefully shuts down the matcher service.
func (s *Service) Stop() {
	s.cancel()
	s.logger.Info("service stopped")
}

func (s *Service) handleSwipeRecorded(data []byte) {
	var ev messaging.SwipeRecordedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn("invalid swipe.recorded payload", zap.Error(err))
		return
	}
	if !ev.Liked {
		// A dislike can never complete a match.
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	m, created, err := s.detector.OnSwipeRecorded(ctx, ev.SessionID, ev.RestaurantID)
	metrics.DetectorRuns.WithLabelValues("async").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("detection failed",
			zap.String("session_id", ev.SessionID),
			zap.String("restaurant_id", ev.RestaurantID),
			zap.Error(err))
		return
	}
	if created {
		s.logger.Info("match recovered from swipe.recorded",
			zap.String("session_id", ev.SessionID),
			zap.String("match_id", m.ID))
	}
}
