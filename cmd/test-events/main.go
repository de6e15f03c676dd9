package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/okian/playstack/internal/testevents"
	"github.com/okian/playstack/pkg/logger"
)

const defaultRunTimeout = 5 * time.Minute

func main() {
	def := testevents.DefaultConfig()
	var (
		baseURL = flag.String("url", def.BaseURL, "Base URL of the service")
		teams   = flag.Int("teams", def.Teams, "Number of synthetic teams")
		games   = flag.Int("games", def.Games, "Games per team")
		plays   = flag.Int("plays", def.PlaysPerGame, "Plays per game")
		workers = flag.Int("workers", runtime.NumCPU(), "Number of concurrent workers")
		seed    = flag.Int64("seed", def.Seed, "Generator seed")
		timeout = flag.Duration("timeout", def.Timeout, "HTTP request timeout")
		verify  = flag.Duration("verify-within", def.VerifyWithin, "How long to wait for each team's summary")
		format  = flag.String("log-format", "text", "Log format: text or json")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Named("test-events")

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := def
	cfg.BaseURL, cfg.Teams, cfg.Games, cfg.PlaysPerGame = *baseURL, *teams, *games, *plays
	cfg.Workers, cfg.Seed, cfg.Timeout, cfg.VerifyWithin = *workers, *seed, *timeout, *verify

	stats, err := testevents.Run(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "push failed", logger.Error(err))
		os.Exit(1)
	}
	_ = json.NewEncoder(os.Stdout).Encode(stats)
	if len(stats.Mismatched) > 0 || stats.Failed > 0 {
		os.Exit(1)
	}
}
