package service

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/playstack/internal/adapters/repository"
	"github.com/okian/playstack/internal/domain/classify"
	"github.com/okian/playstack/internal/domain/model"
	"github.com/okian/playstack/internal/domain/ratelimit"
	"github.com/okian/playstack/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many notification IDs are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRateLimit sets the per-tenant budget of Summarize calls.
func WithRateLimit(points int, window time.Duration) Option {
	return func(s *Service) {
		if points > 0 {
			s.ratePoints = points
		}
		if window > 0 {
			s.rateWindow = window
		}
	}
}

// WithLimiterStore shares limiter buckets through an external store.
func WithLimiterStore(store ratelimit.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.limiterStore = store
		}
	}
}

// WithLimiterFailOpen admits calls when the limiter store is unreachable.
func WithLimiterFailOpen(open bool) Option {
	return func(s *Service) {
		s.limiterFailOpen = open
	}
}

// WithDefaultPreferences sets the fallbacks applied to missing tenant preferences.
func WithDefaultPreferences(p model.Preferences) Option {
	return func(s *Service) {
		s.defaultPrefs = p
	}
}

// WithClassifierOptions overrides classifier thresholds for every tenant.
func WithClassifierOptions(opts ...classify.Option) Option {
	return func(s *Service) {
		s.classifierOpts = append(s.classifierOpts, opts...)
	}
}

// WithEventStore replaces the in-memory snapshot store.
func WithEventStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.events = store
		}
	}
}

// WithClock sets the clock used by the limiter and freshness checks.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
