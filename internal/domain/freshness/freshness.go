// Package freshness classifies how current a summary is from its last-update
// timestamp and a caller-supplied "now".
package freshness

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/playstack/internal/domain/model"
)

// State is the staleness category shown next to a summary.
type State string

// Freshness states.
const (
	Fresh   State = "fresh"
	Stale   State = "stale"
	Offline State = "offline"
)

// Window boundaries, both inclusive.
const (
	FreshWithin = 30 * time.Second
	StaleWithin = 150 * time.Second
)

// Status is a State with its display label.
type Status struct {
	State State         `json:"state"`
	Label string        `json:"label"`
	Age   time.Duration `json:"-"`
}

// Compute returns the State of lastUpdated at now. A nil or unparseable
// timestamp is Offline. Timestamps in the future count as Fresh.
func Compute(lastUpdated *string, now time.Time) State {
	age, ok := Age(lastUpdated, now)
	if !ok {
		return Offline
	}
	return ForAge(age)
}

// ComputeMillis is Compute with now given as epoch milliseconds.
func ComputeMillis(lastUpdated *string, nowMs int64) State {
	return Compute(lastUpdated, time.UnixMilli(nowMs))
}

// ForAge maps an age onto a State.
func ForAge(age time.Duration) State {
	switch {
	case age <= FreshWithin:
		return Fresh
	case age <= StaleWithin:
		return Stale
	default:
		return Offline
	}
}

// Age returns now - lastUpdated. ok is false when lastUpdated is nil or
// cannot be parsed.
func Age(lastUpdated *string, now time.Time) (time.Duration, bool) {
	if lastUpdated == nil {
		return 0, false
	}
	t, ok := model.ParseTimestamp(*lastUpdated)
	if !ok {
		return 0, false
	}
	return now.Sub(t), true
}

// FormatRelative renders age as "just now", "Ns ago", "Nm ago", "Nh ago" or
// "Nd ago", truncating to the unit.
func FormatRelative(age time.Duration) string {
	switch {
	case age < time.Second:
		return "just now"
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int64(age/time.Second))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int64(age/time.Minute))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int64(age/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int64(age/(24*time.Hour)))
	}
}

// Describe combines Compute and FormatRelative. The label is "never" when
// there is no usable timestamp.
func Describe(lastUpdated *string, now time.Time) Status {
	age, ok := Age(lastUpdated, now)
	if !ok {
		return Status{State: Offline, Label: "never"}
	}
	return Status{State: ForAge(age), Label: FormatRelative(age), Age: age}
}

// Evaluator binds Describe to a clock for callers that do not carry "now".
type Evaluator struct {
	clock clockwork.Clock
}

// NewEvaluator creates an Evaluator; a nil clock means the real clock.
func NewEvaluator(clock clockwork.Clock) *Evaluator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Evaluator{clock: clock}
}

// Describe evaluates lastUpdated against the evaluator's clock.
func (e *Evaluator) Describe(lastUpdated *string) Status {
	return Describe(lastUpdated, e.clock.Now())
}
