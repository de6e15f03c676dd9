package repository

import "errors"

// Sentinel kinds for snapshot errors.
var (
	ErrNotFound      = errors.New("team not found")
	ErrInvalidTeamID = errors.New("invalid team id")
	ErrTeamMismatch  = errors.New("event belongs to another team")
	ErrTooManyEvents = errors.New("team event limit reached")
)
