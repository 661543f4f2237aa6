package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "0.1.0"
	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"
)

func newVersionCommand(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(app.stdout, "tailrisk %s\n", Version)
			fmt.Fprintf(app.stdout, "Git Commit: %s\n", GitCommit)
			fmt.Fprintf(app.stdout, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(app.stdout, "Go Version: %s\n", runtime.Version())
			fmt.Fprintf(app.stdout, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
