// Package playgen produces plausible synthetic play-by-play data for demos,
// load tests and fixtures. Output is fully determined by the seed.
package playgen

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/playstack/internal/domain/model"
)

const (
	playSpacing    = 35 * time.Second
	gameSpacing    = 7 * 24 * time.Hour
	quarterSeconds = 15 * 60
)

var opponents = []string{"Hawks", "Owls", "Bears", "Wolves", "Rams", "Falcons", "Tigers", "Comets"}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithTurnoverRate sets the probability that a play loses possession.
func WithTurnoverRate(p float64) Option {
	return func(g *Generator) {
		if p >= 0 && p <= 1 {
			g.turnoverRate = p
		}
	}
}

// WithSeason labels generated games.
func WithSeason(label string) Option {
	return func(g *Generator) {
		g.season = label
	}
}

// Generator builds games and plays from a seeded random source. It is not
// safe for concurrent use.
type Generator struct {
	rng          *rand.Rand
	turnoverRate float64
	season       string
}

// New creates a Generator for seed.
func New(seed int64, opts ...Option) *Generator {
	g := &Generator{
		rng:          rand.New(rand.NewSource(seed)),
		turnoverRate: 0.025,
		season:       "2024",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns games for teamID starting at start, one week apart, and
// playsPerGame events per game in chronological order.
func (g *Generator) Generate(teamID string, games, playsPerGame int, start time.Time) ([]model.GameMeta, []model.PlayEvent) {
	metas := make([]model.GameMeta, 0, games)
	events := make([]model.PlayEvent, 0, games*playsPerGame)
	for i := 0; i < games; i++ {
		kickoff := start.Add(time.Duration(i) * gameSpacing).UTC()
		meta := model.GameMeta{
			ID:           g.id(),
			OpponentName: opponents[g.rng.Intn(len(opponents))],
			StartTime:    kickoff.Format(time.RFC3339),
			SeasonLabel:  g.season,
			Status:       "final",
		}
		metas = append(metas, meta)
		events = append(events, g.game(teamID, meta.ID, kickoff, playsPerGame)...)
	}
	return metas, events
}

func (g *Generator) game(teamID, gameID string, kickoff time.Time, plays int) []model.PlayEvent {
	out := make([]model.PlayEvent, 0, plays)
	down, toGo, spot := 1, 10.0, 25.0
	for i := 0; i < plays; i++ {
		elapsed := i * quarterSeconds * 4 / max(plays, 1)
		e := model.PlayEvent{
			ID:           g.id(),
			TeamID:       teamID,
			GameID:       gameID,
			PlayFamily:   g.family(),
			Quarter:      1 + elapsed/quarterSeconds,
			ClockSeconds: quarterSeconds - elapsed%quarterSeconds,
			CreatedAt:    kickoff.Add(time.Duration(i) * playSpacing).Format(time.RFC3339Nano),
		}
		d, dist, ball := down, toGo, ballOn(spot)
		e.Down, e.Distance, e.BallOn = &d, &dist, &ball

		gain := g.gain(e.PlayFamily)
		e.GainedYards = &gain

		switch {
		case g.rng.Float64() < g.turnoverRate:
			e.Turnover = true
			e.TurnoverDetail = &model.TurnoverDetail{Type: turnoverType(e.PlayFamily)}
			down, toGo, spot = 1, 10, 25
		case spot+gain >= 100:
			e.Scoring = &model.Scoring{Type: "TD", Points: 6, ScoredBy: teamID}
			down, toGo, spot = 1, 10, 25
		case gain >= toGo:
			spot += gain
			down, toGo = 1, math.Min(10, 100-spot)
		case down == 4:
			e.Turnover = true
			e.TurnoverDetail = &model.TurnoverDetail{Type: model.TurnoverTypeOnDowns}
			down, toGo, spot = 1, 10, 25
		default:
			spot = math.Max(1, spot+gain)
			down, toGo = down+1, toGo-gain
		}
		out = append(out, e)
	}
	return out
}

func (g *Generator) family() model.PlayFamily {
	switch r := g.rng.Float64(); {
	case r < 0.45:
		return model.FamilyRun
	case r < 0.90:
		return model.FamilyPass
	case r < 0.95:
		return model.FamilyRPO
	default:
		return model.FamilySpecialTeams
	}
}

// gain draws whole yards; passes are incomplete about a third of the time.
func (g *Generator) gain(f model.PlayFamily) float64 {
	var y float64
	switch f {
	case model.FamilyPass:
		if g.rng.Float64() < 0.35 {
			return 0
		}
		y = 11 + 9*g.rng.NormFloat64()
	case model.FamilySpecialTeams:
		y = 20 + 10*g.rng.NormFloat64()
	default:
		y = 4.3 + 5*g.rng.NormFloat64()
	}
	return math.Round(math.Max(-10, math.Min(80, y)))
}

// id draws a UUID from the seeded source so runs are reproducible.
func (g *Generator) id() string {
	u, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return fmt.Sprintf("play-%d", g.rng.Int63())
	}
	return u.String()
}

func turnoverType(f model.PlayFamily) string {
	if f == model.FamilyPass {
		return "INT"
	}
	return "FUMBLE"
}

// ballOn renders a 0-100 spot measured from the offense's goal line.
func ballOn(spot float64) string {
	spot = math.Round(spot)
	switch {
	case spot == 50:
		return "MID"
	case spot < 50:
		return "O" + strconv.Itoa(int(spot))
	default:
		return "D" + strconv.Itoa(int(100-spot))
	}
}
