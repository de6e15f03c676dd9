// Package testevents drives a running playstack server: it pushes synthetic
// play batches through the ingest API and verifies the recomputed summaries.
package testevents

import (
	"errors"
	"time"
)

// Config holds configuration for a push run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Teams        int           // Number of synthetic teams
	Games        int           // Games per team
	PlaysPerGame int           // Plays per game
	Workers      int           // Number of concurrent workers
	Seed         int64         // Generator seed
	Timeout      time.Duration // HTTP request timeout
	VerifyWithin time.Duration // How long to wait for recomputes
	PollInterval time.Duration // Summary polling interval
}

// DefaultConfig returns a small run against a local server.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:9080",
		Teams:        4,
		Games:        3,
		PlaysPerGame: 60,
		Workers:      4,
		Seed:         1,
		Timeout:      5 * time.Second,
		VerifyWithin: 10 * time.Second,
		PollInterval: 100 * time.Millisecond,
	}
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.New("base url is required")
	case c.Teams < 1 || c.Games < 1 || c.PlaysPerGame < 1:
		return errors.New("teams, games and plays must be at least 1")
	case c.Workers < 1:
		return errors.New("workers must be at least 1")
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	Teams        int           `json:"teams"`
	Batches      int           `json:"batches"`
	Accepted     int           `json:"accepted"`
	Backpressure int           `json:"backpressure"`
	Failed       int           `json:"failed"`
	Verified     int           `json:"verified"`
	Mismatched   []string      `json:"mismatched,omitempty"`
	Duration     time.Duration `json:"duration"`
}
