// Package aggregate turns a tenant's play events into per-game Stacks, a
// team Aggregate and a Projection, reusing the previous result while the
// content signature is unchanged.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/playstack/internal/domain/classify"
	"github.com/okian/playstack/internal/domain/model"
	"github.com/okian/playstack/internal/domain/overlay"
	"github.com/okian/playstack/pkg/logger"
	"github.com/okian/playstack/pkg/metrics"
)

// Data gap kinds reported by the pipeline.
const (
	GapUnknownFamily  = "unknown_family"
	GapBadTimestamp   = "bad_timestamp"
	GapBadBallOn      = "bad_ball_on"
	GapNonFiniteYards = "non_finite_yards"
)

// Options selects the tenant and its preferences for one call.
type Options struct {
	TeamID      string
	Preferences *model.Preferences
}

// Report counts the malformed inputs that were isolated during a call.
type Report struct {
	UnknownFamily  int
	BadTimestamp   int
	BadBallOn      int
	NonFiniteYards int
	// Rejected holds preference ValidationErrors that fell back to defaults.
	Rejected []error
}

// Gaps returns the total number of degraded plays.
func (r Report) Gaps() int {
	return r.UnknownFamily + r.BadTimestamp + r.BadBallOn + r.NonFiniteYards
}

// Result is the output of BuildStacksForGames. Aggregate and Projection are
// shared with the cache and must be treated as read-only.
type Result struct {
	Stacks     []model.Stack     `json:"stacks"`
	Aggregate  *model.Aggregate  `json:"aggregate"`
	Projection *model.Projection `json:"projection"`
	Signature  string            `json:"signature"`
	CacheHit   bool              `json:"cacheHit"`
	Report     Report            `json:"-"`
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithStore injects the cache store.
func WithStore(s Store) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.store = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithDefaults replaces the fallbacks used for missing preference fields.
func WithDefaults(r overlay.Resolved) Option {
	return func(p *Pipeline) {
		p.defaults = r
	}
}

// WithClassifierOptions passes extra options to every classifier built by the pipeline.
func WithClassifierOptions(opts ...classify.Option) Option {
	return func(p *Pipeline) {
		p.classifierOpts = append(p.classifierOpts, opts...)
	}
}

// Pipeline builds stacks and owns the per-tenant cache slot.
type Pipeline struct {
	store          Store
	log            logger.Logger
	defaults       overlay.Resolved
	classifierOpts []classify.Option
}

// New creates a Pipeline with an in-memory store unless one is injected.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    NewMemoryStore(),
		log:      logger.Nop(),
		defaults: overlay.Defaults(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the cache store.
func (p *Pipeline) Store() Store {
	return p.store
}

// Invalidate drops the cached result for teamID.
func (p *Pipeline) Invalidate(teamID string) {
	p.store.Delete(teamID)
	metrics.UpdateCacheEntries(p.store.Len())
}

// BuildStacksForGames filters events to opts.TeamID, reclassifies them under
// the tenant's preferences and rolls them up per game and per team. Malformed
// events are isolated and counted in Result.Report; the only error is
// ErrInvalidTeamID.
func (p *Pipeline) BuildStacksForGames(ctx context.Context, events []model.PlayEvent, games []model.GameMeta, opts Options) (Result, error) {
	teamID := opts.TeamID
	if strings.TrimSpace(teamID) == "" {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidTeamID, teamID)
	}
	start := time.Now()

	own := make([]model.PlayEvent, 0, len(events))
	for i := range events {
		if events[i].TeamID == teamID {
			own = append(own, events[i])
		}
	}

	var prefs model.Preferences
	if opts.Preferences != nil {
		prefs = *opts.Preferences
	}
	resolved, rejected := overlay.ResolveWith(prefs, p.defaults)
	for _, err := range rejected {
		var ve *overlay.ValidationError
		if errors.As(err, &ve) {
			metrics.RecordPreferenceFallback(ve.Field)
		}
		p.log.Warn(ctx, "preference rejected, using default", logger.String("team", teamID), logger.Error(err))
	}

	c := classify.New(resolved.Thresholds(), p.classifierOpts...)
	classified := overlay.ApplyWith(c, own, resolved.IncludeTurnoverOnDowns)
	stacks, last, report := buildStacks(classified, games)
	report.Rejected = rejected

	gameIDs := make([]string, len(games))
	for i := range games {
		gameIDs[i] = games[i].ID
	}
	sig := Signature(teamID, Rules{Thresholds: c.Thresholds(), IncludeTurnoverOnDowns: resolved.IncludeTurnoverOnDowns}, own, gameIDs)

	res := Result{Stacks: stacks, Signature: sig, Report: report}
	if entry, ok := p.store.Get(teamID); ok && entry.Signature == sig && entry.Aggregate != nil {
		res.Aggregate, res.Projection, res.CacheHit = entry.Aggregate, entry.Projection, true
	} else {
		res.Aggregate = rollup(teamID, stacks, last)
		res.Projection = Project(res.Aggregate)
		p.store.Put(model.CacheEntry{
			TeamID:     teamID,
			Signature:  sig,
			Aggregate:  res.Aggregate,
			Projection: res.Projection,
		})
		metrics.UpdateCacheEntries(p.store.Len())
	}

	p.record(ctx, teamID, res, len(own), time.Since(start))
	return res, nil
}

func (p *Pipeline) record(ctx context.Context, teamID string, res Result, plays int, took time.Duration) {
	metrics.RecordAggregation(res.CacheHit, float64(took.Microseconds())/1000, plays)
	metrics.RecordDataGaps(GapUnknownFamily, res.Report.UnknownFamily)
	metrics.RecordDataGaps(GapBadTimestamp, res.Report.BadTimestamp)
	metrics.RecordDataGaps(GapBadBallOn, res.Report.BadBallOn)
	metrics.RecordDataGaps(GapNonFiniteYards, res.Report.NonFiniteYards)

	fields := []logger.Field{
		logger.String("team", teamID),
		logger.Int("plays", plays),
		logger.Int("stacks", len(res.Stacks)),
		logger.Bool("cache_hit", res.CacheHit),
		logger.String("signature", res.Signature),
		logger.Duration("took", took),
	}
	if gaps := res.Report.Gaps(); gaps > 0 {
		p.log.Warn(ctx, "stacks built with data gaps", append(fields, logger.Int("gaps", gaps))...)
		return
	}
	p.log.Debug(ctx, "stacks built", fields...)
}

type gameAcc struct {
	stack                         model.Stack
	success, explosive, turnovers int
	last                          time.Time
	hasLast                       bool
}

// buildStacks groups classified plays by game. Requested games keep their
// input order; games seen only in events follow, sorted by ID.
func buildStacks(events []model.ClassifiedEvent, games []model.GameMeta) ([]model.Stack, *time.Time, Report) {
	var report Report
	index := make(map[string]*gameAcc, len(games))
	order := make([]string, 0, len(games))
	for _, g := range games {
		if _, dup := index[g.ID]; dup {
			continue
		}
		index[g.ID] = &gameAcc{stack: model.Stack{GameID: g.ID, Opponent: g.OpponentName}}
		order = append(order, g.ID)
	}

	var extra []string
	for i := range events {
		e := &events[i]
		acc, ok := index[e.GameID]
		if !ok {
			acc = &gameAcc{stack: model.Stack{GameID: e.GameID}}
			index[e.GameID] = acc
			extra = append(extra, e.GameID)
		}

		acc.stack.Plays++
		if e.GainedYards != nil {
			if y := *e.GainedYards; !math.IsNaN(y) && !math.IsInf(y, 0) {
				acc.stack.TotalYards += y
			} else {
				report.NonFiniteYards++
			}
		}
		if !e.PlayFamily.Known() {
			report.UnknownFamily++
		}
		if e.BallOn != nil && math.IsNaN(e.FieldPosition) {
			report.BadBallOn++
		}
		if e.Success {
			acc.success++
		}
		if e.Explosive {
			acc.explosive++
		}
		if e.Turnover {
			acc.turnovers++
		}
		if t, ok := model.ParseTimestamp(e.CreatedAt); ok {
			if !acc.hasLast || t.After(acc.last) {
				acc.last, acc.hasLast = t, true
			}
		} else {
			report.BadTimestamp++
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	stacks := make([]model.Stack, 0, len(order))
	var last *time.Time
	for _, id := range order {
		acc := index[id]
		s := acc.stack
		if s.Plays > 0 {
			n := float64(s.Plays)
			s.SuccessRate = float64(acc.success) / n
			s.ExplosiveRate = float64(acc.explosive) / n
			s.TurnoverRate = float64(acc.turnovers) / n
		}
		if acc.hasLast {
			ts := model.FormatLastEvent(acc.last)
			s.LastEventAt = &ts
			if last == nil || acc.last.After(*last) {
				t := acc.last
				last = &t
			}
		}
		stacks = append(stacks, s)
	}
	return stacks, last, report
}

// rollup weights every stack's rates by its play count.
func rollup(teamID string, stacks []model.Stack, last *time.Time) *model.Aggregate {
	a := &model.Aggregate{TeamID: teamID, Games: len(stacks)}
	var success, explosive, turnover float64
	for _, s := range stacks {
		w := float64(s.Plays)
		a.Plays += s.Plays
		a.TotalYards += s.TotalYards
		success += s.SuccessRate * w
		explosive += s.ExplosiveRate * w
		turnover += s.TurnoverRate * w
	}
	if a.Plays > 0 {
		n := float64(a.Plays)
		a.SuccessRate = success / n
		a.ExplosiveRate = explosive / n
		a.TurnoverRate = turnover / n
	}
	if last != nil {
		ts := model.FormatLastEvent(*last)
		a.LastEventAt = &ts
	}
	return a
}
