package aggregate

import "errors"

// Sentinel errors for the aggregation pipeline.
var (
	ErrInvalidTeamID = errors.New("invalid team id")
)
