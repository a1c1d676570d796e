package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildDate = "unknown"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "piifilter",
		Short:        "Local PII redaction service for the Superjective extension",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newFilterCmd(&configPath))
	root.AddCommand(newCheckCmd(&configPath))
	root.AddCommand(newSummaryCmd(&configPath))
	root.AddCommand(newBatchCmd(&configPath))
	root.AddCommand(newAuditCmd(&configPath))
	root.AddCommand(newCacheCmd(&configPath))
	root.AddCommand(newValidateCmd(&configPath))
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if _, err := buildEngine(cfg, nopLogger(), nil); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "config ok")
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "piifilter %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}
