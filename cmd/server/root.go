package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/kay-gateway/internal/config"
)

// newRootCmd builds the command tree. The optional YAML file is loaded before
// any subcommand reads configuration.
func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "kay-gateway",
		Short: "Session, connection and credential gateway for the Kay CLI",
		Long: `kay-gateway issues CLI sessions, runs the provider connect flows
(Atlassian OAuth, Bitbucket API tokens, KYG logins) and keeps the stored
provider credentials usable.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadFile(configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", os.Getenv(config.ConfigFileEnvVar), "YAML file with settings keyed by environment variable name")

	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	return root
}
