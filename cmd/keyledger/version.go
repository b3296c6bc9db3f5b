package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current version of " + appName,
		Run: func(cmd *cobra.Command, args []string) {
			goVersion := fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\nCommit ID: %s\nGo Version: %s\n", version, commit, goVersion)
		},
	}
}
