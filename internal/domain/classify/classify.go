// Package classify holds the per-play rules that decide success, explosiveness,
// turnovers and field position. Every rule is a pure, total function of the
// event and the thresholds it was built with.
package classify

import (
	"math"
	"strconv"
	"strings"

	"github.com/okian/playstack/internal/domain/model"
)

// Default classification constants.
const (
	DefaultFirstDownFraction    = 0.5
	DefaultSecondDownFraction   = 0.7
	DefaultExplosiveRunYards    = 10
	DefaultExplosivePassYards   = 15
	DefaultReturnExplosiveYards = 20

	fieldLength = 100
	midfield    = 50
)

// Thresholds parameterizes a Classifier.
type Thresholds struct {
	// FirstDownFraction is the share of distance a 1st-down play must gain.
	FirstDownFraction float64
	// FirstDownMinYards, when > 0, replaces the fractional 1st-down rule.
	FirstDownMinYards float64
	// SecondDownFraction is the share of distance a 2nd-down play must gain.
	SecondDownFraction float64

	ExplosiveRunYards    float64
	ExplosivePassYards   float64
	ReturnExplosiveYards float64
}

// DefaultThresholds returns the league-agnostic defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FirstDownFraction:    DefaultFirstDownFraction,
		SecondDownFraction:   DefaultSecondDownFraction,
		ExplosiveRunYards:    DefaultExplosiveRunYards,
		ExplosivePassYards:   DefaultExplosivePassYards,
		ReturnExplosiveYards: DefaultReturnExplosiveYards,
	}
}

// Classifier decides the derived flags for a single play.
type Classifier interface {
	IsSuccessful(e model.PlayEvent) bool
	IsExplosive(e model.PlayEvent) bool
	ClassifyTurnover(e model.PlayEvent, includeTurnoverOnDowns bool) bool
	FieldPosition(ballOn string) float64
}

// Option applies a configuration option to the RuleClassifier.
type Option func(*RuleClassifier)

// WithFirstDownMinYards switches the 1st-down rule to a fixed yardage.
func WithFirstDownMinYards(yards float64) Option {
	return func(c *RuleClassifier) {
		if validYards(yards) {
			c.t.FirstDownMinYards = yards
		}
	}
}

// WithSecondDownFraction overrides the 2nd-down share of distance.
func WithSecondDownFraction(f float64) Option {
	return func(c *RuleClassifier) {
		if validFraction(f) {
			c.t.SecondDownFraction = f
		}
	}
}

// WithReturnExplosiveYards overrides the special-teams return threshold.
func WithReturnExplosiveYards(yards float64) Option {
	return func(c *RuleClassifier) {
		if validYards(yards) {
			c.t.ReturnExplosiveYards = yards
		}
	}
}

// RuleClassifier implements Classifier with down-and-distance rules.
type RuleClassifier struct {
	t Thresholds
}

// New creates a RuleClassifier. Invalid threshold values are replaced by the
// defaults so the classifier is always total.
func New(t Thresholds, opts ...Option) *RuleClassifier {
	d := DefaultThresholds()
	if !validFraction(t.FirstDownFraction) {
		t.FirstDownFraction = d.FirstDownFraction
	}
	if !validFraction(t.SecondDownFraction) {
		t.SecondDownFraction = d.SecondDownFraction
	}
	if !validYards(t.FirstDownMinYards) {
		t.FirstDownMinYards = 0
	}
	if !validYards(t.ExplosiveRunYards) {
		t.ExplosiveRunYards = d.ExplosiveRunYards
	}
	if !validYards(t.ExplosivePassYards) {
		t.ExplosivePassYards = d.ExplosivePassYards
	}
	if !validYards(t.ReturnExplosiveYards) {
		t.ReturnExplosiveYards = d.ReturnExplosiveYards
	}

	c := &RuleClassifier{t: t}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Thresholds returns the effective thresholds.
func (c *RuleClassifier) Thresholds() Thresholds {
	return c.t
}

// IsSuccessful applies the down-and-distance efficiency rule.
func (c *RuleClassifier) IsSuccessful(e model.PlayEvent) bool {
	if !e.PlayFamily.Known() || e.GainedYards == nil || e.Down == nil || e.Distance == nil {
		return false
	}
	gain, dist := *e.GainedYards, *e.Distance
	if !finite(gain) || !finite(dist) || dist <= 0 {
		return false
	}

	switch *e.Down {
	case 1:
		if c.t.FirstDownMinYards > 0 {
			return gain >= c.t.FirstDownMinYards
		}
		return gain >= dist*c.t.FirstDownFraction
	case 2:
		return gain >= dist*c.t.SecondDownFraction
	case 3, 4:
		return gain >= dist
	default:
		return false
	}
}

// IsExplosive compares the gain with the family's yardage threshold.
func (c *RuleClassifier) IsExplosive(e model.PlayEvent) bool {
	if e.GainedYards == nil || !finite(*e.GainedYards) {
		return false
	}
	gain := *e.GainedYards

	switch e.PlayFamily {
	case model.FamilyRun:
		return gain >= c.t.ExplosiveRunYards
	case model.FamilyPass, model.FamilyRPO:
		return gain >= c.t.ExplosivePassYards
	case model.FamilySpecialTeams:
		return gain >= c.t.ReturnExplosiveYards
	default:
		return false
	}
}

// ClassifyTurnover returns the raw turnover flag, except that a turnover on
// downs is not counted when the tenant opted out of it.
func (c *RuleClassifier) ClassifyTurnover(e model.PlayEvent, includeTurnoverOnDowns bool) bool {
	if e.TurnoverDetail != nil && e.TurnoverDetail.Type == model.TurnoverTypeOnDowns && !includeTurnoverOnDowns {
		return false
	}
	return e.Turnover
}

// FieldPosition converts a zone-relative spot into yards from the offense's
// own goal line: "O25" is 25, "D43" is 57, "50" or "MID" is midfield.
// Unparseable input yields NaN.
func (c *RuleClassifier) FieldPosition(ballOn string) float64 {
	return FieldPosition(ballOn)
}

// FieldPosition is the threshold-independent spot parser used by RuleClassifier.
func FieldPosition(ballOn string) float64 {
	s := strings.ToUpper(strings.TrimSpace(ballOn))
	if s == "" {
		return math.NaN()
	}
	if s == "MID" || s == "MIDFIELD" {
		return midfield
	}

	side := s[0]
	rest := strings.TrimSpace(s[1:])
	switch side {
	case 'O', 'D':
	default:
		// bare number: only midfield is unambiguous
		if n, ok := parseYardLine(s); ok && n == midfield {
			return midfield
		}
		return math.NaN()
	}

	n, ok := parseYardLine(rest)
	if !ok {
		return math.NaN()
	}
	if side == 'D' {
		return fieldLength - n
	}
	return n
}

func parseYardLine(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(n) || n < 0 || n > fieldLength {
		return 0, false
	}
	return n, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func validYards(v float64) bool {
	return finite(v) && v > 0
}

func validFraction(v float64) bool {
	return finite(v) && v > 0 && v <= 1
}
