package worker

import (
	"github.com/okian/playstack/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

type poolConfig struct {
	shardBuffer int
	logger      logger.Logger
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*poolConfig)

// WithShardBuffer sets how many notifications each worker may hold pending.
func WithShardBuffer(n int) PoolOption {
	return func(c *poolConfig) {
		if n > 0 {
			c.shardBuffer = n
		}
	}
}

// WithPoolLogger sets the logger used by the pool and its workers.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(c *poolConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
