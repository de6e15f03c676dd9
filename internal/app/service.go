// Package service wires the aggregation pipeline, the tenant rate limiter and
// the recompute workers into the operations served by the HTTP API, the
// Kafka consumer and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	eventqueue "github.com/okian/playstack/internal/adapters/mq/queue"
	workerpool "github.com/okian/playstack/internal/adapters/mq/worker"
	"github.com/okian/playstack/internal/adapters/repository"
	"github.com/okian/playstack/internal/domain/aggregate"
	"github.com/okian/playstack/internal/domain/classify"
	"github.com/okian/playstack/internal/domain/dedupe"
	"github.com/okian/playstack/internal/domain/freshness"
	"github.com/okian/playstack/internal/domain/model"
	"github.com/okian/playstack/internal/domain/overlay"
	"github.com/okian/playstack/internal/domain/ratelimit"
	"github.com/okian/playstack/pkg/logger"
	"github.com/okian/playstack/pkg/metrics"
)

// Notification reasons set by the service.
const (
	ReasonEvents      = "events"
	ReasonPreferences = "preferences"
)

// Request is one Summarize call.
type Request struct {
	TeamID      string             `json:"-"`
	Events      []model.PlayEvent  `json:"events"`
	Games       []model.GameMeta   `json:"games"`
	Preferences *model.Preferences `json:"preferences,omitempty"`
}

// Service implements the API dependencies for the play analytics system.
type Service struct {
	mu sync.RWMutex

	// Core components
	limiter  *ratelimit.Limiter
	pipeline *aggregate.Pipeline
	events   repository.Store
	deduper  dedupe.Deduper
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	ratePoints      int
	rateWindow      time.Duration
	limiterStore    ratelimit.Store
	limiterFailOpen bool
	defaultPrefs    model.Preferences
	classifierOpts  []classify.Option
	clock           clockwork.Clock

	// Tenant state
	stateMu sync.RWMutex
	prefs   map[string]model.Preferences
	latest  map[string]versioned

	// State
	started bool
	cancel  context.CancelFunc
	bg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. Summarize and Freshness work immediately;
// Submit needs Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU(),
		queueSize:   10_000,
		dedupeSize:  dedupe.DefaultMaxSize,
		ratePoints:  60,
		rateWindow:  time.Minute,
		clock:       clockwork.NewRealClock(),
		prefs:       make(map[string]model.Preferences),
		latest:      make(map[string]versioned),
		logger:      logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	defaults, rejected := overlay.Resolve(s.defaultPrefs)
	for _, err := range rejected {
		s.logger.Warn(context.Background(), "default preference rejected", logger.Error(err))
	}

	limiterOpts := []ratelimit.Option{
		ratelimit.WithClock(s.clock),
		ratelimit.WithLogger(s.logger.Named("ratelimit")),
		ratelimit.WithFailOpen(s.limiterFailOpen),
	}
	if s.limiterStore != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithStore(s.limiterStore))
	}
	s.limiter = ratelimit.New(s.ratePoints, s.rateWindow, limiterOpts...)
	s.pipeline = aggregate.New(
		aggregate.WithDefaults(defaults),
		aggregate.WithClassifierOptions(s.classifierOpts...),
		aggregate.WithLogger(s.logger.Named("aggregate")),
	)
	if s.events == nil {
		s.events = repository.NewSnapshotStore(repository.WithClock(s.clock))
	}
	return s
}

// Start launches the recompute workers and the limiter pruning loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting playstack service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s,
		workerpool.WithPoolLogger(s.logger.Named("worker")),
	)
	s.pool.Start(runCtx)
	metrics.UpdateQueueCapacity(s.queue.Capacity())

	s.bg.Add(1)
	go s.pruneLoop(runCtx)

	s.started = true
	s.logger.Info(ctx, "playstack service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("ratePoints", s.ratePoints),
		logger.Duration("rateWindow", s.rateWindow),
	)
	return nil
}

// Stop drains the recompute queue and stops background work.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping playstack service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	s.cancel()
	s.bg.Wait()

	s.started = false
	s.logger.Info(ctx, "playstack service stopped")
}

func (s *Service) pruneLoop(ctx context.Context) {
	defer s.bg.Done()
	ticker := s.clock.NewTicker(s.rateWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.limiter.Prune()
		}
	}
}

// Summarize charges one call to tenantKey and builds the stacks for the
// request. A denied call returns a *ratelimit.LimitError. An empty
// tenantKey falls back to the team ID.
func (s *Service) Summarize(ctx context.Context, tenantKey string, req Request) (aggregate.Result, error) {
	if strings.TrimSpace(req.TeamID) == "" {
		return aggregate.Result{}, fmt.Errorf("%w: %q", ErrInvalidTeamID, req.TeamID)
	}
	if strings.TrimSpace(tenantKey) == "" {
		tenantKey = req.TeamID
	}
	if _, err := s.limiter.Guard(ctx, tenantKey); err != nil {
		return aggregate.Result{}, err
	}

	prefs := req.Preferences
	if prefs == nil {
		if p, ok := s.Preferences(req.TeamID); ok {
			prefs = &p
		}
	}
	return s.pipeline.BuildStacksForGames(ctx, req.Events, req.Games, aggregate.Options{
		TeamID:      req.TeamID,
		Preferences: prefs,
	})
}

// Freshness classifies lastUpdated against now.
func (s *Service) Freshness(lastUpdated *string, now time.Time) freshness.Status {
	st := freshness.Describe(lastUpdated, now)
	metrics.RecordFreshness(string(st.State))
	return st
}

// Now returns the service clock's time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// SetPreferences stores a tenant's preferences and schedules a recompute.
func (s *Service) SetPreferences(ctx context.Context, teamID string, p model.Preferences) error {
	if strings.TrimSpace(teamID) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTeamID, teamID)
	}
	if _, rejected := overlay.Resolve(p); len(rejected) > 0 {
		return errors.Join(rejected...)
	}
	s.stateMu.Lock()
	s.prefs[teamID] = p
	s.stateMu.Unlock()

	if _, err := s.events.Snapshot(ctx, teamID); err == nil {
		s.Submit(ctx, s.notification(teamID, ReasonPreferences))
	}
	return nil
}

// Preferences returns the stored preferences for teamID.
func (s *Service) Preferences(teamID string) (model.Preferences, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	p, ok := s.prefs[teamID]
	return p, ok
}

// Ingest stores events and games for teamID and schedules a recompute. It
// returns the team's event count and whether the recompute was queued.
func (s *Service) Ingest(ctx context.Context, teamID string, events []model.PlayEvent, games []model.GameMeta) (int, bool, error) {
	if strings.TrimSpace(teamID) == "" {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidTeamID, teamID)
	}
	count, err := s.events.AppendEvents(ctx, teamID, events...)
	if err != nil {
		return 0, false, err
	}
	if len(games) > 0 {
		if err := s.events.UpsertGames(ctx, teamID, games...); err != nil {
			return 0, false, err
		}
	}
	return count, s.Submit(ctx, s.notification(teamID, ReasonEvents)), nil
}

func (s *Service) notification(teamID, reason string) model.Notification {
	return model.Notification{
		ID:     uuid.NewString(),
		TeamID: teamID,
		Reason: reason,
		At:     s.clock.Now(),
	}
}

// Submit dedupes n by ID and queues a recompute. It returns false when the
// service is stopped or the queue is full; a duplicate counts as handled.
func (s *Service) Submit(ctx context.Context, n model.Notification) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		metrics.RecordNotification(metrics.NotificationRejected)
		return false
	}
	if n.ID != "" {
		if s.deduper.SeenAndRecord(ctx, n.ID) {
			metrics.RecordNotification(metrics.NotificationDuplicate)
			s.logger.Debug(ctx, "duplicate notification, skipping",
				logger.String("id", n.ID),
				logger.String("team", n.TeamID),
			)
			return true
		}
		metrics.UpdateNotificationDedupeSize(s.deduper.Size())
	}

	if !s.queue.Enqueue(ctx, n) {
		if n.ID != "" {
			s.deduper.Unrecord(ctx, n.ID)
		}
		metrics.RecordNotification(metrics.NotificationRejected)
		s.logger.Warn(ctx, "recompute queue full", logger.String("team", n.TeamID))
		return false
	}
	metrics.RecordNotification(metrics.NotificationSubmitted)
	return true
}

// Recompute rebuilds teamID's summary from the event store and keeps it as
// the tenant's latest result. Worker recomputes are not rate limited.
func (s *Service) Recompute(ctx context.Context, n model.Notification) error {
	snap, err := s.events.Snapshot(ctx, n.TeamID)
	if err != nil {
		return fmt.Errorf("load snapshot for %q: %w", n.TeamID, err)
	}
	var prefs *model.Preferences
	if p, ok := s.Preferences(n.TeamID); ok {
		prefs = &p
	}
	res, err := s.pipeline.BuildStacksForGames(ctx, snap.Events, snap.Games, aggregate.Options{
		TeamID:      n.TeamID,
		Preferences: prefs,
	})
	if err != nil {
		return err
	}

	s.stateMu.Lock()
	stale := false
	if cur, ok := s.latest[n.TeamID]; ok && cur.version > snap.Version {
		stale = true
	} else {
		s.latest[n.TeamID] = versioned{result: res, version: snap.Version}
	}
	s.stateMu.Unlock()
	if stale {
		s.logger.Debug(ctx, "dropping stale recompute",
			logger.String("team", n.TeamID),
			logger.Int64("version", int64(snap.Version)),
		)
		return nil
	}

	s.logger.Debug(ctx, "tenant recomputed",
		logger.String("team", n.TeamID),
		logger.String("reason", n.Reason),
		logger.Int64("version", int64(snap.Version)),
		logger.Bool("cache_hit", res.CacheHit),
	)
	return nil
}

// versioned pairs a recompute result with the snapshot version it was built from.
type versioned struct {
	result  aggregate.Result
	version uint64
}

// Latest returns the last recompute result for teamID.
func (s *Service) Latest(teamID string) (aggregate.Result, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	v, ok := s.latest[teamID]
	return v.result, ok
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"ratePoints":   s.limiter.Points(),
		"rateWindowMs": s.limiter.Window().Milliseconds(),
		"cachedTeams":  s.pipeline.Store().Len(),
		"teams":        len(s.events.Teams(ctx)),
	}

	s.stateMu.RLock()
	stats["tenantPreferences"] = len(s.prefs)
	stats["latestResults"] = len(s.latest)
	s.stateMu.RUnlock()

	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["seenNotifications"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}
