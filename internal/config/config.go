// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables on top of New().
// - Errors are wrapped with this package's sentinels.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/playstack/internal/domain/classify"
	"github.com/okian/playstack/internal/domain/model"
	"github.com/okian/playstack/pkg/metrics"
)

// Rate limit store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RateLimitPoints and RateLimitWindowMS size each tenant's fixed window.
	RateLimitPoints   int `koanf:"rate_limit_points"`
	RateLimitWindowMS int `koanf:"rate_limit_window_ms"`

	// RateLimitStore is "memory" or "redis".
	RateLimitStore string `koanf:"rate_limit_store"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPrefix    string `koanf:"redis_prefix"`

	// KafkaBrokers enables the update-notification consumer when non-empty.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
	KafkaGroupID string   `koanf:"kafka_group_id"`

	// RecomputeWorkers and RecomputeQueueSize size the recompute pool.
	RecomputeWorkers   int `koanf:"recompute_workers"`
	RecomputeQueueSize int `koanf:"recompute_queue_size"`

	// NotifyDedupeSize bounds the remembered notification IDs.
	NotifyDedupeSize int `koanf:"notify_dedupe_size"`

	// Default preferences for tenants that have not set their own.
	DefaultExplosiveRunYards      float64 `koanf:"default_explosive_run_yards"`
	DefaultExplosivePassYards     float64 `koanf:"default_explosive_pass_yards"`
	DefaultIncludeTurnoverOnDowns bool    `koanf:"default_include_turnover_on_downs"`

	// Classifier thresholds shared by every tenant. FirstDownMinYards of 0
	// keeps the fractional 1st-down rule.
	FirstDownMinYards    float64 `koanf:"first_down_min_yards"`
	SecondDownFraction   float64 `koanf:"second_down_fraction"`
	ReturnExplosiveYards float64 `koanf:"return_explosive_yards"`

	// MetricsEnabled turns off the Record* counters when false.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsNamespace and MetricsSubsystem prefix every collector name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsSampleIntervalMS is the system gauge refresh period.
	MetricsSampleIntervalMS int `koanf:"metrics_sample_interval_ms"`

	// MetricsLabels are constant labels as "k=v,k2=v2", e.g. "region=eu".
	MetricsLabels string `koanf:"metrics_labels"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                      "info",
		LogFormat:                     "text",
		Addr:                          ":9080",
		RateLimitPoints:               60,
		RateLimitWindowMS:             60_000,
		RateLimitStore:                StoreMemory,
		RedisAddr:                     "localhost:6379",
		RedisPrefix:                   "playstack:ratelimit",
		KafkaTopic:                    "play-updates",
		KafkaGroupID:                  "playstack",
		RecomputeWorkers:              runtime.NumCPU(),
		RecomputeQueueSize:            10_000,
		NotifyDedupeSize:              100_000,
		DefaultExplosiveRunYards:      10,
		DefaultExplosivePassYards:     15,
		DefaultIncludeTurnoverOnDowns: true,
		SecondDownFraction:            classify.DefaultSecondDownFraction,
		ReturnExplosiveYards:          classify.DefaultReturnExplosiveYards,
		MetricsEnabled:                true,
		MetricsNamespace:              "playstack",
		MetricsSubsystem:              "analytics",
		MetricsSampleIntervalMS:       10_000,
	}
}

// RateLimitWindow returns the window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// DefaultPreferences returns the configured tenant defaults.
func (c *Config) DefaultPreferences() model.Preferences {
	run, pass, downs := c.DefaultExplosiveRunYards, c.DefaultExplosivePassYards, c.DefaultIncludeTurnoverOnDowns
	return model.Preferences{ExplosiveRunYards: &run, ExplosivePassYards: &pass, IncludeTurnoverOnDowns: &downs}
}

// ClassifierOptions returns the configured classifier threshold overrides.
func (c *Config) ClassifierOptions() []classify.Option {
	opts := []classify.Option{
		classify.WithSecondDownFraction(c.SecondDownFraction),
		classify.WithReturnExplosiveYards(c.ReturnExplosiveYards),
	}
	if c.FirstDownMinYards > 0 {
		opts = append(opts, classify.WithFirstDownMinYards(c.FirstDownMinYards))
	}
	return opts
}

// ConstLabels parses MetricsLabels. Blank entries are skipped.
func (c *Config) ConstLabels() (map[string]string, error) {
	if strings.TrimSpace(c.MetricsLabels) == "" {
		return nil, nil
	}
	labels := make(map[string]string)
	for _, pair := range strings.Split(c.MetricsLabels, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%w: %q", ErrMetricsLabels, pair)
		}
		if _, dup := labels[k]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrMetricsLabels, k)
		}
		labels[k] = v
	}
	return labels, nil
}

// MetricsOptions returns the options passed to metrics.Init. Call it on a
// validated Config.
func (c *Config) MetricsOptions() []metrics.Option {
	labels, _ := c.ConstLabels()
	return []metrics.Option{
		metrics.WithMetricsEnabled(c.MetricsEnabled),
		metrics.WithNamespace(c.MetricsNamespace),
		metrics.WithSubsystem(c.MetricsSubsystem),
		metrics.WithSampleInterval(time.Duration(c.MetricsSampleIntervalMS) * time.Millisecond),
		metrics.WithConstLabels(labels),
	}
}

// KafkaEnabled reports whether the notification consumer should run.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// Validate checks the values Load cannot repair. Every failure is reported
// under ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []error
	add := func(msg string) { problems = append(problems, errors.New(msg)) }

	if c.Addr == "" {
		add("addr must not be empty")
	}
	if c.RateLimitPoints < 1 {
		add("rate_limit_points must be >= 1")
	}
	if c.RateLimitWindowMS < 1 {
		add("rate_limit_window_ms must be >= 1")
	}
	switch c.RateLimitStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			add("redis_addr is required for the redis store")
		}
	default:
		problems = append(problems, fmt.Errorf("%w %q", ErrUnknownStore, c.RateLimitStore))
	}
	if c.RecomputeWorkers < 1 {
		add("recompute_workers must be >= 1")
	}
	if c.RecomputeQueueSize < 1 {
		add("recompute_queue_size must be >= 1")
	}
	if c.NotifyDedupeSize < 1 {
		add("notify_dedupe_size must be >= 1")
	}
	if c.DefaultExplosiveRunYards <= 0 || c.DefaultExplosivePassYards <= 0 {
		add("default explosive yards must be > 0")
	}
	if c.FirstDownMinYards < 0 {
		add("first_down_min_yards must be >= 0")
	}
	if c.SecondDownFraction <= 0 || c.SecondDownFraction > 1 {
		add("second_down_fraction must be in (0, 1]")
	}
	if c.ReturnExplosiveYards <= 0 {
		add("return_explosive_yards must be > 0")
	}
	if c.MetricsNamespace == "" {
		add("metrics_namespace must not be empty")
	}
	if c.MetricsSampleIntervalMS < 1 {
		add("metrics_sample_interval_ms must be >= 1")
	}
	if _, err := c.ConstLabels(); err != nil {
		problems = append(problems, err)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, problemList(problems))
	}
	return nil
}

// problemList reports every Validate failure on one line and keeps each
// one reachable through errors.Is.
type problemList []error

func (p problemList) Error() string {
	msgs := make([]string, len(p))
	for i, err := range p {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (p problemList) Unwrap() []error { return p }
