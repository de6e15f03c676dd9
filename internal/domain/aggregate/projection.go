package aggregate

import "github.com/okian/playstack/internal/domain/model"

// Projection weights.
const (
	successWeight   = 0.4
	explosiveWeight = 0.3
	turnoverWeight  = 0.5
)

// Project derives the win-rate outlook from an Aggregate's rates.
func Project(a *model.Aggregate) *model.Projection {
	if a == nil {
		return &model.Projection{ProjectedWinRate: 0.5}
	}
	v := 0.5 +
		successWeight*(a.SuccessRate-0.5) +
		explosiveWeight*a.ExplosiveRate -
		turnoverWeight*a.TurnoverRate
	return &model.Projection{ProjectedWinRate: clamp(v, 0, 1)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
