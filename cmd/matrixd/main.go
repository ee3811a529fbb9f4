package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-matrix"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Every subcommand shares --config.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "matrixd",
		Short:        "Request policy matrix daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (yaml, json or toml)")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newEvalCmd(&configPath))
	root.AddCommand(newRulesCmd(&configPath))
	root.AddCommand(newBackupCmd(&configPath))
	root.AddCommand(newRestoreCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s version=%s\n", appName, version)
		},
	}
}
