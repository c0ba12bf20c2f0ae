// Package commands defines all Cobra CLI commands for the insight binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/guestlytics/insight-go/internal/audit"
	"github.com/guestlytics/insight-go/internal/config"
	"github.com/guestlytics/insight-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "insight",
		Short: "Guestlytics Insight Engine — analytics Q&A over hotel marketing data",
		Long: `The Guestlytics Insight Engine indexes each hotel's marketing metrics as
searchable text chunks and answers natural language questions about them.

A background worker periodically snapshots traffic, bookings, channel and
advertising performance per project, embeds the summaries, and stores them
in Qdrant. Questions are answered by an LLM with retrieval and live-data
tools, scoped to a single project.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.insight/config.yaml).
See 'insight --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.insight/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewSyncCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
