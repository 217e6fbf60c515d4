// Package cmd assembles the command-line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/drguilhermecapel/medai/cmd/analyze"
	configcmd "github.com/drguilhermecapel/medai/cmd/config"
	"github.com/drguilhermecapel/medai/cmd/server"
	"github.com/drguilhermecapel/medai/internal/conf"
)

// RootCommand creates the root command and attaches the subcommands.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "medai",
		Short: "MedAI ECG analysis and clinical validation service",
	}

	rootCmd.AddCommand(
		server.Command(settings),
		analyze.Command(settings),
		configcmd.Command(settings),
	)
	return rootCmd
}
