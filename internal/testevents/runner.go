package testevents

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/okian/playstack/internal/domain/model"
	"github.com/okian/playstack/internal/playgen"
	"github.com/okian/playstack/pkg/logger"
)

// batch is one POST /teams/{teamId}/events body.
type batch struct {
	TeamID string            `json:"-"`
	Events []model.PlayEvent `json:"events"`
	Games  []model.GameMeta  `json:"games"`
}

// dataset is everything generated for one team.
type dataset struct {
	teamID string
	games  []model.GameMeta
	events []model.PlayEvent
}

// Run checks health, pushes one batch per game for every team and verifies
// each team's recomputed summary.
func Run(ctx context.Context, cfg Config, log logger.Logger) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}
	start := time.Now()
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting playstack push",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("teams", cfg.Teams),
		logger.Int("games", cfg.Games),
		logger.Int("plays", cfg.PlaysPerGame),
		logger.Int("workers", cfg.Workers),
	)

	if status, err := client.do(ctx, http.MethodGet, "/healthz", nil, nil, nil); err != nil || status != http.StatusOK {
		return Stats{}, fmt.Errorf("service health check failed: status %d: %v", status, err)
	}

	data := generate(cfg)
	stats := Stats{Teams: len(data)}
	submit(ctx, client, cfg.Workers, batches(data), &stats)
	log.Info(ctx, "batches submitted",
		logger.Int("accepted", stats.Accepted),
		logger.Int("backpressure", stats.Backpressure),
		logger.Int("failed", stats.Failed),
	)

	for _, d := range data {
		ok, err := verifyTeam(ctx, client, cfg, d)
		if err != nil {
			log.Warn(ctx, "verification failed", logger.String("team", d.teamID), logger.Error(err))
		}
		if ok {
			stats.Verified++
		} else {
			stats.Mismatched = append(stats.Mismatched, d.teamID)
		}
	}
	stats.Duration = time.Since(start)
	log.Info(ctx, "push completed",
		logger.Int("verified", stats.Verified),
		logger.Int("mismatched", len(stats.Mismatched)),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func generate(cfg Config) []dataset {
	gen := playgen.New(cfg.Seed)
	kickoff := time.Date(2024, 9, 1, 17, 0, 0, 0, time.UTC)
	out := make([]dataset, cfg.Teams)
	for i := range out {
		teamID := fmt.Sprintf("team-%03d", i+1)
		games, events := gen.Generate(teamID, cfg.Games, cfg.PlaysPerGame, kickoff)
		out[i] = dataset{teamID: teamID, games: games, events: events}
	}
	return out
}

func batches(data []dataset) []batch {
	var out []batch
	for _, d := range data {
		for _, g := range d.games {
			b := batch{TeamID: d.teamID, Games: []model.GameMeta{g}}
			for _, e := range d.events {
				if e.GameID == g.ID {
					b.Events = append(b.Events, e)
				}
			}
			out = append(out, b)
		}
	}
	return out
}

// submit posts batches with a fixed worker pool.
func submit(ctx context.Context, client *httpClient, workers int, all []batch, stats *Stats) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	ch := make(chan batch, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range ch {
				status, err := client.do(ctx, http.MethodPost, "/teams/"+b.TeamID+"/events", b, nil, nil)
				mu.Lock()
				stats.Batches++
				switch {
				case err == nil && status == http.StatusAccepted:
					stats.Accepted++
				case err == nil && status == http.StatusTooManyRequests:
					stats.Backpressure++
				default:
					stats.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, b := range all {
			select {
			case <-ctx.Done():
				return
			case ch <- b:
			}
		}
	}()
	wg.Wait()
}
