package service

import "errors"

var (
	ErrNotStarted    = errors.New("service not started")
	ErrInvalidTeamID = errors.New("invalid team id")
)
