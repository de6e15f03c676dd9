// Package overlay re-derives the classification flags of a batch of plays
// under one tenant's preferences.
package overlay

import (
	"math"

	"github.com/okian/playstack/internal/domain/classify"
	"github.com/okian/playstack/internal/domain/model"
)

// DefaultIncludeTurnoverOnDowns is used when a tenant has not chosen.
const DefaultIncludeTurnoverOnDowns = true

// Resolved is a Preferences value with every field filled in.
type Resolved struct {
	ExplosiveRunYards      float64
	ExplosivePassYards     float64
	IncludeTurnoverOnDowns bool
}

// Preferences converts r back to the sparse wire form.
func (r Resolved) Preferences() model.Preferences {
	run, pass, downs := r.ExplosiveRunYards, r.ExplosivePassYards, r.IncludeTurnoverOnDowns
	return model.Preferences{ExplosiveRunYards: &run, ExplosivePassYards: &pass, IncludeTurnoverOnDowns: &downs}
}

// Thresholds merges r into the classifier defaults.
func (r Resolved) Thresholds() classify.Thresholds {
	t := classify.DefaultThresholds()
	t.ExplosiveRunYards = r.ExplosiveRunYards
	t.ExplosivePassYards = r.ExplosivePassYards
	return t
}

// Defaults returns the fixed fallbacks.
func Defaults() Resolved {
	return Resolved{
		ExplosiveRunYards:      classify.DefaultExplosiveRunYards,
		ExplosivePassYards:     classify.DefaultExplosivePassYards,
		IncludeTurnoverOnDowns: DefaultIncludeTurnoverOnDowns,
	}
}

// Resolve fills missing preference fields with defaults. Rejected thresholds
// (non-finite or not positive) also fall back and are reported as
// ValidationErrors; they are never fatal.
func Resolve(p model.Preferences) (Resolved, []error) {
	return ResolveWith(p, Defaults())
}

// ResolveWith is Resolve with caller-supplied fallbacks.
func ResolveWith(p model.Preferences, base Resolved) (Resolved, []error) {
	var errs []error
	r := base

	if p.ExplosiveRunYards != nil {
		if v := *p.ExplosiveRunYards; usable(v) {
			r.ExplosiveRunYards = v
		} else {
			errs = append(errs, &ValidationError{Field: "explosiveRunYards", Value: v, Fallback: base.ExplosiveRunYards})
		}
	}
	if p.ExplosivePassYards != nil {
		if v := *p.ExplosivePassYards; usable(v) {
			r.ExplosivePassYards = v
		} else {
			errs = append(errs, &ValidationError{Field: "explosivePassYards", Value: v, Fallback: base.ExplosivePassYards})
		}
	}
	if p.IncludeTurnoverOnDowns != nil {
		r.IncludeTurnoverOnDowns = *p.IncludeTurnoverOnDowns
	}
	return r, errs
}

// Apply returns a new slice where each play carries flags recomputed under
// prefs. Neither events nor its elements are modified.
func Apply(events []model.PlayEvent, prefs model.Preferences, opts ...classify.Option) []model.ClassifiedEvent {
	r, _ := Resolve(prefs)
	return ApplyResolved(events, r, opts...)
}

// ApplyResolved is Apply for already-resolved preferences.
func ApplyResolved(events []model.PlayEvent, r Resolved, opts ...classify.Option) []model.ClassifiedEvent {
	c := classify.New(r.Thresholds(), opts...)
	return ApplyWith(c, events, r.IncludeTurnoverOnDowns)
}

// ApplyWith classifies events with an explicit Classifier.
func ApplyWith(c classify.Classifier, events []model.PlayEvent, includeTurnoverOnDowns bool) []model.ClassifiedEvent {
	out := make([]model.ClassifiedEvent, len(events))
	for i := range events {
		e := events[i].Clone()
		e.Turnover = c.ClassifyTurnover(e, includeTurnoverOnDowns)

		fp := math.NaN()
		if e.BallOn != nil {
			fp = c.FieldPosition(*e.BallOn)
		}
		out[i] = model.ClassifiedEvent{
			PlayEvent:     e,
			Success:       c.IsSuccessful(e),
			Explosive:     c.IsExplosive(e),
			FieldPosition: fp,
		}
	}
	return out
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
