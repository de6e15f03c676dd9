package notify

import (
	"time"

	"github.com/okian/playstack/pkg/logger"
)

// Option applies a configuration option to the Consumer.
type Option func(*Consumer)

// WithLogger sets the consumer logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.log = l
		}
	}
}

// WithPollTimeout bounds every fetch and commit call.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.poll = d
		}
	}
}
