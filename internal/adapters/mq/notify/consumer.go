// Package notify consumes tenant update notifications from Kafka and hands
// them to the recompute service.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/okian/playstack/internal/domain/model"
	"github.com/okian/playstack/pkg/logger"
	"github.com/okian/playstack/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

const defaultPollTimeout = 5 * time.Second

// Config holds the Kafka connection settings.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// Validate reports the first missing setting.
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if strings.TrimSpace(c.Topic) == "" {
		return ErrNoTopic
	}
	if strings.TrimSpace(c.GroupID) == "" {
		return ErrNoGroup
	}
	return nil
}

// Fetcher is the subset of *kafka.Reader the consumer needs.
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Submitter accepts a notification for recompute. It returns false when the
// notification could not be queued.
type Submitter interface {
	Submit(ctx context.Context, n model.Notification) bool
}

// Consumer reads notifications and submits them, committing each message
// once it has been handled.
type Consumer struct {
	cfg       Config
	fetcher   Fetcher
	submitter Submitter
	log       logger.Logger
	poll      time.Duration
}

// New builds a consumer backed by a kafka-go reader.
func New(cfg Config, submitter Submitter, opts ...Option) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	c, err := NewWithFetcher(reader, submitter, opts...)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	c.cfg = cfg
	if cfg.PollTimeout > 0 {
		c.poll = cfg.PollTimeout
	}
	return c, nil
}

// NewWithFetcher builds a consumer over any Fetcher.
func NewWithFetcher(f Fetcher, submitter Submitter, opts ...Option) (*Consumer, error) {
	if submitter == nil {
		return nil, ErrNilSubmitter
	}
	c := &Consumer{
		fetcher:   f,
		submitter: submitter,
		log:       logger.Nop(),
		poll:      defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error {
	if c == nil || c.fetcher == nil {
		return nil
	}
	return c.fetcher.Close()
}

// Run blocks until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info(ctx, "notification consumer started",
		logger.String("topic", c.cfg.Topic),
		logger.String("group", c.cfg.GroupID),
		logger.String("brokers", strings.Join(c.cfg.Brokers, ",")),
		logger.Duration("poll_timeout", c.poll),
	)
	defer c.log.Info(context.Background(), "notification consumer stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.fetcher.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			c.log.Error(ctx, "fetch notification failed", logger.Error(err))
			continue
		}

		c.handle(ctx, msg)

		commitCtx, commitCancel := context.WithTimeout(ctx, c.poll)
		if err := c.fetcher.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.log.Error(ctx, "commit notification failed", logger.Error(err), logger.Int64("offset", msg.Offset))
			}
		}
		commitCancel()
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	n, err := Decode(msg)
	if err != nil {
		metrics.RecordNotification(metrics.NotificationInvalid)
		c.log.Warn(ctx, "dropping malformed notification",
			logger.Error(err),
			logger.Int("partition", msg.Partition),
			logger.Int64("offset", msg.Offset),
		)
		return
	}
	if !c.submitter.Submit(ctx, n) {
		c.log.Warn(ctx, "notification not queued",
			logger.String("id", n.ID),
			logger.String("team", n.TeamID),
		)
		return
	}
	c.log.Debug(ctx, "notification submitted",
		logger.String("id", n.ID),
		logger.String("team", n.TeamID),
		logger.String("reason", n.Reason),
	)
}

// Decode parses a message value into a Notification. A missing ID is derived
// from the message coordinates so redeliveries still dedupe; a missing team
// falls back to the message key.
func Decode(msg kafka.Message) (model.Notification, error) {
	var n model.Notification
	dec := json.NewDecoder(bytes.NewReader(msg.Value))
	if err := dec.Decode(&n); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	n.TeamID = strings.TrimSpace(n.TeamID)
	if n.TeamID == "" {
		n.TeamID = strings.TrimSpace(string(msg.Key))
	}
	if n.TeamID == "" {
		return model.Notification{}, fmt.Errorf("%w: teamId missing", ErrDecode)
	}
	if strings.TrimSpace(n.ID) == "" {
		n.ID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if n.At.IsZero() {
		n.At = msg.Time
	}
	return n, nil
}
