package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/okian/playstack/internal/domain/model"
)

type teamData struct {
	events   []model.PlayEvent
	eventIdx map[string]int
	games    []model.GameMeta
	gameIdx  map[string]int
	version  uint64
	snapshot Snapshot
}

// SnapshotStore is an in-memory Store. Every read and write copies events
// so callers never share mutable state with the store.
type SnapshotStore struct {
	mu        sync.RWMutex
	teams     map[string]*teamData
	clock     clockwork.Clock
	maxEvents int
}

var _ Store = (*SnapshotStore)(nil)

// NewSnapshotStore creates an empty SnapshotStore.
func NewSnapshotStore(opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		teams: make(map[string]*teamData),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SnapshotStore) Put(_ context.Context, teamID string, events []model.PlayEvent, games []model.GameMeta) error {
	if err := validTeam(teamID); err != nil {
		return err
	}
	if s.maxEvents > 0 && len(events) > s.maxEvents {
		return fmt.Errorf("%w: %d > %d", ErrTooManyEvents, len(events), s.maxEvents)
	}
	fresh := &teamData{eventIdx: make(map[string]int), gameIdx: make(map[string]int)}
	for i := range events {
		if err := fresh.upsertEvent(teamID, events[i]); err != nil {
			return err
		}
	}
	for _, g := range games {
		fresh.upsertGame(g)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.teams[teamID]; ok {
		fresh.version = old.version
	}
	s.teams[teamID] = fresh
	s.touch(teamID, fresh)
	return nil
}

func (s *SnapshotStore) AppendEvents(_ context.Context, teamID string, events ...model.PlayEvent) (int, error) {
	if err := validTeam(teamID); err != nil {
		return 0, err
	}

	for i := range events {
		if id := events[i].TeamID; id != "" && id != teamID {
			return 0, fmt.Errorf("%w: event %s is for %s, not %s", ErrTeamMismatch, events[i].ID, id, teamID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	td := s.team(teamID)
	added := 0
	for i := range events {
		if _, exists := td.eventIdx[events[i].ID]; !exists {
			added++
		}
	}
	if s.maxEvents > 0 && len(td.events)+added > s.maxEvents {
		return len(td.events), fmt.Errorf("%w: %d > %d", ErrTooManyEvents, len(td.events)+added, s.maxEvents)
	}
	for i := range events {
		_ = td.upsertEvent(teamID, events[i]) // team checked above
	}
	s.touch(teamID, td)
	return len(td.events), nil
}

func (s *SnapshotStore) UpsertGames(_ context.Context, teamID string, games ...model.GameMeta) error {
	if err := validTeam(teamID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	td := s.team(teamID)
	for _, g := range games {
		td.upsertGame(g)
	}
	s.touch(teamID, td)
	return nil
}

func (s *SnapshotStore) Snapshot(_ context.Context, teamID string) (Snapshot, error) {
	s.mu.RLock()
	td, ok := s.teams[teamID]
	var snap Snapshot
	if ok {
		snap = td.snapshot
	}
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, teamID)
	}

	out := snap
	out.Events = make([]model.PlayEvent, len(snap.Events))
	for i := range snap.Events {
		out.Events[i] = snap.Events[i].Clone()
	}
	out.Games = append([]model.GameMeta(nil), snap.Games...)
	return out, nil
}

func (s *SnapshotStore) Teams(_ context.Context) []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.teams))
	for id := range s.teams {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Count returns the number of teams held.
func (s *SnapshotStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.teams)
}

// team returns the team's data, creating it. Caller holds s.mu.
func (s *SnapshotStore) team(teamID string) *teamData {
	td, ok := s.teams[teamID]
	if !ok {
		td = &teamData{eventIdx: make(map[string]int), gameIdx: make(map[string]int)}
		s.teams[teamID] = td
	}
	return td
}

// touch bumps the version and freezes a read view. Caller holds s.mu.
func (s *SnapshotStore) touch(teamID string, td *teamData) {
	td.version++
	td.snapshot = Snapshot{
		TeamID:    teamID,
		Events:    append([]model.PlayEvent(nil), td.events...),
		Games:     append([]model.GameMeta(nil), td.games...),
		Version:   td.version,
		UpdatedAt: s.clock.Now(),
	}
}

func (td *teamData) upsertEvent(teamID string, e model.PlayEvent) error {
	if e.TeamID == "" {
		e.TeamID = teamID
	}
	if e.TeamID != teamID {
		return fmt.Errorf("%w: event %s is for %s, not %s", ErrTeamMismatch, e.ID, e.TeamID, teamID)
	}
	e = e.Clone()
	if i, ok := td.eventIdx[e.ID]; ok {
		td.events[i] = e
		return nil
	}
	td.eventIdx[e.ID] = len(td.events)
	td.events = append(td.events, e)
	return nil
}

func (td *teamData) upsertGame(g model.GameMeta) {
	if i, ok := td.gameIdx[g.ID]; ok {
		td.games[i] = g
		return
	}
	td.gameIdx[g.ID] = len(td.games)
	td.games = append(td.games, g)
}

func validTeam(teamID string) error {
	if strings.TrimSpace(teamID) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTeamID, teamID)
	}
	return nil
}
