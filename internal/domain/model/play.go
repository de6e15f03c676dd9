// Package model contains domain models passed between layers.
package model

import "time"

// PlayFamily is the coarse play category recorded by the charting tool.
type PlayFamily string

// Known play families. Anything else is treated as unknown.
const (
	FamilyRun          PlayFamily = "RUN"
	FamilyPass         PlayFamily = "PASS"
	FamilyRPO          PlayFamily = "RPO"
	FamilySpecialTeams PlayFamily = "SPECIAL_TEAMS"
)

// TurnoverTypeOnDowns marks a drive stopped on fourth down.
const TurnoverTypeOnDowns = "DOWNS"

// Known reports whether f is one of the recognized families.
func (f PlayFamily) Known() bool {
	switch f {
	case FamilyRun, FamilyPass, FamilyRPO, FamilySpecialTeams:
		return true
	}
	return false
}

// TurnoverDetail describes how possession was lost.
type TurnoverDetail struct {
	Type       string `json:"type"`
	LostBy     string `json:"lostBy,omitempty"`
	LostBySide string `json:"lostBySide,omitempty"`
}

// Scoring describes points produced by a play.
type Scoring struct {
	Type     string `json:"type"`
	Points   int    `json:"points"`
	ScoredBy string `json:"scoredBy,omitempty"`
}

// PlayEvent is one charted play as emitted by the storage layer.
// Pointer fields are optional upstream and may be nil.
type PlayEvent struct {
	ID             string          `json:"id"`
	TeamID         string          `json:"teamId"`
	GameID         string          `json:"gameId"`
	PlayFamily     PlayFamily      `json:"playFamily"`
	GainedYards    *float64        `json:"gainedYards"`
	Down           *int            `json:"down"`
	Distance       *float64        `json:"distance"`
	BallOn         *string         `json:"ballOn"`
	Quarter        int             `json:"quarter"`
	ClockSeconds   int             `json:"clockSeconds"`
	CreatedAt      string          `json:"createdAt"`
	Turnover       bool            `json:"turnover"`
	TurnoverDetail *TurnoverDetail `json:"turnoverDetail"`
	Scoring        *Scoring        `json:"scoring"`
	Tags           []string        `json:"tags"`
}

// Clone returns a deep copy so callers can hand the event to code that
// must not observe later mutations (and vice versa).
func (e PlayEvent) Clone() PlayEvent {
	out := e
	if e.GainedYards != nil {
		v := *e.GainedYards
		out.GainedYards = &v
	}
	if e.Down != nil {
		v := *e.Down
		out.Down = &v
	}
	if e.Distance != nil {
		v := *e.Distance
		out.Distance = &v
	}
	if e.BallOn != nil {
		v := *e.BallOn
		out.BallOn = &v
	}
	if e.TurnoverDetail != nil {
		v := *e.TurnoverDetail
		out.TurnoverDetail = &v
	}
	if e.Scoring != nil {
		v := *e.Scoring
		out.Scoring = &v
	}
	if e.Tags != nil {
		out.Tags = append([]string(nil), e.Tags...)
	}
	return out
}

// ClassifiedEvent is a PlayEvent with the tenant-specific derived flags.
type ClassifiedEvent struct {
	PlayEvent
	Success       bool    `json:"success"`
	Explosive     bool    `json:"explosive"`
	FieldPosition float64 `json:"-"` // NaN when ballOn is missing or unparseable
}

// GameMeta is the schedule row a Stack is keyed on.
type GameMeta struct {
	ID           string `json:"id"`
	OpponentName string `json:"opponentName"`
	StartTime    string `json:"startTime"`
	SeasonLabel  string `json:"seasonLabel"`
	Status       string `json:"status"`
}

// Notification asks for a tenant's summaries to be recomputed.
type Notification struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	TenantKey string    `json:"tenantKey,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}
