package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/okian/playstack/internal/domain/aggregate"
	"github.com/okian/playstack/internal/domain/model"
	"github.com/spf13/cobra"
)

type summarizeFlags struct {
	events       string
	games        string
	team         string
	run          float64
	pass         float64
	excludeDowns bool
	json         bool
}

func newSummarizeCmd() *cobra.Command {
	f := &summarizeFlags{}
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Build per-game stacks for one team",
		Long: `Build per-game stacks, the team aggregate and its projection from a
JSON array of plays. Games are optional; without them one stack is built
per game seen in the events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummarize(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.events, "events", "", "path to a JSON array of play events")
	cmd.Flags().StringVar(&f.games, "games", "", "path to a JSON array of games")
	cmd.Flags().StringVar(&f.team, "team", "", "team ID to summarize")
	cmd.Flags().Float64Var(&f.run, "run", 0, "explosive run threshold in yards")
	cmd.Flags().Float64Var(&f.pass, "pass", 0, "explosive pass threshold in yards")
	cmd.Flags().BoolVar(&f.excludeDowns, "exclude-downs", false, "do not count turnovers on downs")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("events")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func runSummarize(cmd *cobra.Command, f *summarizeFlags) error {
	var events []model.PlayEvent
	if err := readJSONFile(f.events, &events); err != nil {
		return err
	}
	var games []model.GameMeta
	if f.games != "" {
		if err := readJSONFile(f.games, &games); err != nil {
			return err
		}
	}

	var prefs model.Preferences
	if cmd.Flags().Changed("run") {
		prefs.ExplosiveRunYards = &f.run
	}
	if cmd.Flags().Changed("pass") {
		prefs.ExplosivePassYards = &f.pass
	}
	if f.excludeDowns {
		include := false
		prefs.IncludeTurnoverOnDowns = &include
	}

	res, err := aggregate.New().BuildStacksForGames(cmd.Context(), events, games, aggregate.Options{
		TeamID:      f.team,
		Preferences: &prefs,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.json {
		return writeJSON(out, res)
	}
	printSummary(out, res)
	return nil
}

func printSummary(w io.Writer, res aggregate.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GAME\tOPPONENT\tPLAYS\tYARDS\tSUCCESS\tEXPLOSIVE\tTURNOVER\tLAST EVENT")
	for _, s := range res.Stacks {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f\t%s\t%s\t%s\t%s\n",
			s.GameID, s.Opponent, s.Plays, s.TotalYards,
			pct(s.SuccessRate), pct(s.ExplosiveRate), pct(s.TurnoverRate), orDash(s.LastEventAt))
	}
	_ = tw.Flush()

	a := res.Aggregate
	fmt.Fprintln(w)
	cyan.Fprintf(w, "Team %s: %d plays over %d games\n", a.TeamID, a.Plays, a.Games)
	fmt.Fprintf(w, "  success %s  explosive %s  turnover %s\n", pct(a.SuccessRate), pct(a.ExplosiveRate), pct(a.TurnoverRate))
	if p := res.Projection; p != nil {
		fmt.Fprintf(w, "  projected win rate %.3f\n", p.ProjectedWinRate)
	}
	fmt.Fprintf(w, "  signature %s\n", res.Signature)

	r := res.Report
	if r.Gaps() > 0 {
		yellow.Fprintf(w, "data gaps: %d unknown family, %d bad timestamp, %d bad ballOn, %d non-finite yards\n",
			r.UnknownFamily, r.BadTimestamp, r.BadBallOn, r.NonFiniteYards)
	}
	for _, err := range r.Rejected {
		yellow.Fprintf(w, "preference ignored: %v\n", err)
	}
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
