package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/okian/playstack/internal/playgen"
	"github.com/spf13/cobra"
)

type generateFlags struct {
	team      string
	games     int
	plays     int
	seed      int64
	start     string
	eventsOut string
	gamesOut  string
}

func newGenerateCmd() *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic games and plays for a team",
		Long: `Generate a reproducible season of synthetic plays. Without --events-out
the games and events are printed to stdout as one JSON document.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.team, "team", "", "team ID for the generated plays")
	cmd.Flags().IntVar(&f.games, "games", 4, "number of games")
	cmd.Flags().IntVar(&f.plays, "plays", 60, "plays per game")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&f.start, "start", "2024-09-01T17:00:00Z", "kickoff of the first game (RFC3339)")
	cmd.Flags().StringVar(&f.eventsOut, "events-out", "", "write events to this file")
	cmd.Flags().StringVar(&f.gamesOut, "games-out", "", "write games to this file")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func runGenerate(cmd *cobra.Command, f *generateFlags) error {
	if f.games < 1 || f.plays < 1 {
		return errors.New("--games and --plays must be at least 1")
	}
	start, err := time.Parse(time.RFC3339, f.start)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	games, events := playgen.New(f.seed).Generate(f.team, f.games, f.plays, start)

	if f.eventsOut == "" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"games": games, "events": events})
	}
	if err := writeJSONFile(f.eventsOut, events); err != nil {
		return err
	}
	if f.gamesOut != "" {
		if err := writeJSONFile(f.gamesOut, games); err != nil {
			return err
		}
	}
	green.Fprintf(cmd.OutOrStdout(), "✓ wrote %d events across %d games\n", len(events), len(games))
	return nil
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeJSON(f, v); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
