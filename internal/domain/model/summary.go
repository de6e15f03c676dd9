package model

import "time"

// LastEventLayout is the ISO-8601 layout used for LastEventAt values.
const LastEventLayout = "2006-01-02T15:04:05.000Z07:00"

// Preferences are the per-tenant classification settings. A nil field means
// "use the default".
type Preferences struct {
	ExplosiveRunYards      *float64 `json:"explosiveRunYards,omitempty" koanf:"explosive_run_yards"`
	ExplosivePassYards     *float64 `json:"explosivePassYards,omitempty" koanf:"explosive_pass_yards"`
	IncludeTurnoverOnDowns *bool    `json:"includeTurnoverOnDowns,omitempty" koanf:"include_turnover_on_downs"`
}

// Stack is the per-game rollup of a tenant's classified plays.
type Stack struct {
	GameID        string  `json:"gameId"`
	Opponent      string  `json:"opponent"`
	Plays         int     `json:"plays"`
	TotalYards    float64 `json:"totalYards"`
	SuccessRate   float64 `json:"successRate"`
	ExplosiveRate float64 `json:"explosiveRate"`
	TurnoverRate  float64 `json:"turnoverRate"`
	LastEventAt   *string `json:"lastEventAt"`
}

// Aggregate is the plays-weighted rollup of every Stack for one team.
type Aggregate struct {
	TeamID        string  `json:"teamId"`
	Games         int     `json:"games"`
	Plays         int     `json:"plays"`
	TotalYards    float64 `json:"totalYards"`
	SuccessRate   float64 `json:"successRate"`
	ExplosiveRate float64 `json:"explosiveRate"`
	TurnoverRate  float64 `json:"turnoverRate"`
	LastEventAt   *string `json:"lastEventAt"`
}

// Projection is the rule-based outlook derived from an Aggregate.
type Projection struct {
	ProjectedWinRate float64 `json:"projectedWinRate"`
}

// CacheEntry is the single most-recent result kept per tenant.
type CacheEntry struct {
	TeamID     string
	Signature  string
	Aggregate  *Aggregate
	Projection *Projection
}

// FormatLastEvent renders t the way LastEventAt values are serialized.
func FormatLastEvent(t time.Time) string {
	return t.UTC().Format(LastEventLayout)
}

// ParseTimestamp accepts the timestamp shapes the storage layer produces
// (RFC 3339 with or without fractional seconds). ok is false when s cannot
// be parsed.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var timestampLayouts = []string{ //nolint:gochecknoglobals // read-only layout table
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	// Postgres timestamptz text output uses an hour-only offset such as +00.
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999Z07",
}
