package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/microbs-io/microbs/internal/plugins"
	"github.com/microbs-io/microbs/internal/plugins/kind"
	"github.com/microbs-io/microbs/internal/plugins/otlp"
	"github.com/microbs-io/microbs/internal/plugins/slack"
	"github.com/microbs-io/microbs/pkg/api"
)

// newCatalog registers the plugins compiled into microbs.
func newCatalog() *plugins.Registry {
	r := plugins.NewRegistry()
	r.Register(kind.Name, api.Kubernetes, kind.New)
	r.Register(otlp.Name, api.Observability, otlp.New)
	r.Register(slack.Name, api.Alerts, slack.New)
	return r
}

// Create the root command
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "microbs",
		Short: "microbs: observable microservice demos on Kubernetes",
		Long: "microbs sets up a Kubernetes cluster, an observability backend, an alerting\n" +
			"channel and a sample application, then rolls out variants of the application.",
		// Unknown or missing commands print help instead of failing.
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "Path to the config directory (default $CWD if it has config.yaml, else ~/.microbs)")
	cmd.PersistentFlags().StringP("log-level", "L", "info", "Minimum log level. Available: debug, info, warn, error")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Show timestamps and levels with each log line")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		level, _ := c.Flags().GetString("log-level")
		verbose, _ := c.Flags().GetBool("verbose")
		noColor, _ := c.Flags().GetBool("no-color")
		return setupLogger(level, verbose, noColor)
	}

	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newRolloutCmd())
	cmd.AddCommand(newStabilizeCmd())
	cmd.AddCommand(newDestroyCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newAppsCmd())
	cmd.AddCommand(newPluginsCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Create the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "microbs v%s\n", version)
			if commit != "" || buildDate != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "commit %s built %s\n", commit, buildDate)
			}
		},
	}
}
