// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/allev1985/topten-sub005/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the TopTen CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topten",
		Short: "TopTen - authentication service for the TopTen web app",
		Long: `TopTen serves the signup, login, session and password flows of the
TopTen web application, backed by GoTrue or a self-hosted identity store.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/topten/config.yaml if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the TopTen version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			v := cmd.Root().Version
			if v == "" {
				v = version
			}
			cmd.Println("topten " + v)
		},
	}
}

// resolveConfigFile returns --config, or the XDG config file when one exists.
func resolveConfigFile() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	return xdg.ConfigFile()
}
