// Package repository holds per-team play snapshots that stand in for the
// external storage layer: the recompute workers and the HTTP ingest path
// read and write whole event sets through it.
package repository

import (
	"context"
	"time"

	"github.com/okian/playstack/internal/domain/model"
)

// Snapshot is the full current event set and schedule for one team.
type Snapshot struct {
	TeamID    string
	Events    []model.PlayEvent
	Games     []model.GameMeta
	Version   uint64
	UpdatedAt time.Time
}

// EventSource loads the latest snapshot for a team.
type EventSource interface {
	// Snapshot returns a copy the caller may keep. Returns ErrNotFound if
	// the team is unknown.
	Snapshot(ctx context.Context, teamID string) (Snapshot, error)
}

// Store is an EventSource that can also be written.
type Store interface {
	EventSource

	// Put replaces the team's events and games.
	Put(ctx context.Context, teamID string, events []model.PlayEvent, games []model.GameMeta) error

	// AppendEvents upserts events by ID and returns the new event count.
	AppendEvents(ctx context.Context, teamID string, events ...model.PlayEvent) (int, error)

	// UpsertGames adds or replaces games by ID.
	UpsertGames(ctx context.Context, teamID string, games ...model.GameMeta) error

	// Teams returns the known team IDs in ascending order.
	Teams(ctx context.Context) []string
}
