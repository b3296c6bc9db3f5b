package main

import (
	"os"

	"github.com/spf13/cobra"
)

const appName = "keyledger"

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "API key lifecycle and usage metering service",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "config.yaml", "path to the YAML config file")
	root.AddCommand(newServeCmd(), newIssueCmd(), newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
