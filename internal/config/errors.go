package config

import (
	"errors"
)

// Sentinel error kinds for this package. ErrInvalidConfig wraps every
// Validate failure; the narrower kinds below are matchable alongside it.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")

	// ErrUnknownStore is returned for a rate_limit_store other than memory or redis.
	ErrUnknownStore = errors.New("unknown rate_limit_store")

	// ErrMetricsLabels is returned when metrics_labels is not a k=v,k=v list.
	ErrMetricsLabels = errors.New("malformed metrics_labels")
)
