package repository

import "github.com/jonboulle/clockwork"

// Option applies a configuration option to the SnapshotStore.
type Option func(*SnapshotStore)

// WithClock sets the clock used for UpdatedAt.
func WithClock(c clockwork.Clock) Option {
	return func(s *SnapshotStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMaxEventsPerTeam caps a team's stored events. n <= 0 means unbounded.
func WithMaxEventsPerTeam(n int) Option {
	return func(s *SnapshotStore) {
		s.maxEvents = n
	}
}
