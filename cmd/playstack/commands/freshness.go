package commands

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/okian/playstack/internal/domain/freshness"
	"github.com/spf13/cobra"
)

func newFreshnessCmd() *cobra.Command {
	var (
		lastUpdated string
		nowMs       int64
	)
	cmd := &cobra.Command{
		Use:   "freshness",
		Short: "Classify a last-updated timestamp as fresh, stale or offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if cmd.Flags().Changed("now") {
				now = time.UnixMilli(nowMs)
			}
			var ts *string
			if cmd.Flags().Changed("last-updated") {
				ts = &lastUpdated
			}
			st := freshness.Describe(ts, now)
			stateColor(st.State).Fprintf(cmd.OutOrStdout(), "%s", st.State)
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)\n", st.Label)
			return nil
		},
	}
	cmd.Flags().StringVar(&lastUpdated, "last-updated", "", "ISO-8601 timestamp of the last update")
	cmd.Flags().Int64Var(&nowMs, "now", 0, "reference time in epoch milliseconds (default: current time)")
	return cmd
}

func stateColor(s freshness.State) *color.Color {
	switch s {
	case freshness.Fresh:
		return green
	case freshness.Stale:
		return yellow
	default:
		return red
	}
}
