// Package commands implements the playstack command line tool.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// NewRootCmd builds the playstack command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "playstack",
		Short: "playstack - per-game play analytics from the command line",
		Long: `playstack builds per-game stacks, a team aggregate and a projection
from play-by-play JSON, checks data freshness and generates synthetic plays.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(newSummarizeCmd(), newFreshnessCmd(), newGenerateCmd())
	return root
}

// SetVersionInfo sets the version shown by --version.
func SetVersionInfo(root *cobra.Command, v, c, d string) {
	root.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

// PrintError writes err in red.
func PrintError(w io.Writer, err error) {
	red.Fprintf(w, "error: %v\n", err)
}

func readJSONFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
