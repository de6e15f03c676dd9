package main

import (
	"os"

	"github.com/okian/playstack/cmd/playstack/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := commands.NewRootCmd()
	commands.SetVersionInfo(root, version, commit, date)
	if err := root.Execute(); err != nil {
		commands.PrintError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}
