// Package worker runs tenant recomputes off the notification queue. Each
// tenant is pinned to one worker so its recomputes never overlap.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/okian/playstack/internal/domain/model"
	"github.com/okian/playstack/pkg/logger"
	"github.com/okian/playstack/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultShardBuffer  = 64
	poolShutdownTimeout = 30 * time.Second
)

// Recomputer rebuilds one tenant's summaries.
type Recomputer interface {
	Recompute(ctx context.Context, n model.Notification) error
}

// RecomputeFunc adapts a function to Recomputer.
type RecomputeFunc func(ctx context.Context, n model.Notification) error

// Recompute calls f.
func (f RecomputeFunc) Recompute(ctx context.Context, n model.Notification) error { return f(ctx, n) }

// Queue defines how the pool receives notifications.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Notification
}

// InMemoryWorker processes the notifications routed to its shard.
type InMemoryWorker struct {
	in         chan model.Notification
	recomputer Recomputer
	name       string
	done       chan struct{}
	logger     logger.Logger
}

// NewInMemoryWorker creates a worker reading from its own shard channel.
func NewInMemoryWorker(recomputer Recomputer, buffer int, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		in:         make(chan model.Notification, buffer),
		recomputer: recomputer,
		name:       "worker",
		done:       make(chan struct{}),
		logger:     logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes notifications until the shard channel is closed or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-w.in:
			if !ok {
				return
			}
			if err := w.process(ctx, n); err != nil {
				w.logger.Error(ctx, "recompute failed",
					logger.String("notification", n.ID),
					logger.String("team", n.TeamID),
					logger.Error(err),
				)
			}
		}
	}
}

func (w *InMemoryWorker) process(ctx context.Context, n model.Notification) error {
	start := time.Now()
	err := w.recomputer.Recompute(ctx, n)
	metrics.RecordRecompute(float64(time.Since(start).Microseconds())/1000, err)
	if err != nil {
		return fmt.Errorf("recompute %s for team %s: %w", n.ID, n.TeamID, err)
	}
	return nil
}

// Pool shards notifications onto a fixed set of workers by team.
type Pool struct {
	workers    []*InMemoryWorker
	queue      Queue
	dispatched chan struct{}
	startOnce  sync.Once
	started    atomic.Bool
	logger     logger.Logger
}

// NewPool creates a pool of workerCount workers. workerCount < 1 means one
// worker per CPU.
func NewPool(workerCount int, queue Queue, recomputer Recomputer, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	cfg := poolConfig{shardBuffer: defaultShardBuffer, logger: logger.GetOrNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool{
		workers:    make([]*InMemoryWorker, workerCount),
		queue:      queue,
		dispatched: make(chan struct{}),
		logger:     cfg.logger.Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(recomputer, cfg.shardBuffer,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(cfg.logger),
		)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// ShardFor returns the index of the worker that owns teamID.
func (p *Pool) ShardFor(teamID string) int {
	return int(xxhash.Sum64String(teamID) % uint64(len(p.workers)))
}

// Start runs the workers and the dispatcher. It is safe to call once.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.started.Store(true)
		for _, w := range p.workers {
			go w.Run(ctx)
		}
		go p.dispatch(ctx)
	})
}

// dispatch routes queued notifications to their tenant's worker. When the
// queue closes it closes every shard so workers drain and exit.
func (p *Pool) dispatch(ctx context.Context) {
	defer close(p.dispatched)
	defer func() {
		for _, w := range p.workers {
			close(w.in)
		}
	}()

	src := p.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-src:
			if !ok {
				return
			}
			w := p.workers[p.ShardFor(n.TeamID)]
			select {
			case w.in <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Shutdown closes the queue when it supports it and waits for workers to
// finish what was already queued.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	if !p.started.Load() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	select {
	case <-p.dispatched:
	case <-shutdownCtx.Done():
		return fmt.Errorf("dispatcher shutdown timed out: %w", shutdownCtx.Err())
	}
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d shutdown timed out: %w", i, shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
