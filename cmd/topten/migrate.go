// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TopTen Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/allev1985/topten-sub005/internal/config"
	"github.com/allev1985/topten-sub005/internal/store"
)

// NewMigrateCmd creates the migrate subcommand. Without a subcommand it
// applies every pending migration.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmdWithDeps(nil)
}

func newMigrateCmdWithDeps(deps *MigrateDeps) *cobra.Command {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}

	up := func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd, deps, func(m Migrator) error {
			cmd.Println("Running migrations...")
			if err := m.Up(); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
			}
			cmd.Println("Migrations completed successfully")
			return nil
		})
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Manage the identity schema of the local provider's PostgreSQL database.
Without a subcommand, all pending migrations are applied.`,
		RunE: up,
	}
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL (default: config or DATABASE_URL)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  up,
	})
	cmd.AddCommand(newMigrateDownCmd(deps))
	cmd.AddCommand(newMigrateStatusCmd(deps))
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the current schema version and clear the dirty flag.
Use it to recover after a migration failed part way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				if err := m.Force(target); err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "force version").With("version", target).Wrap(err)
				}
				cmd.Printf("Forced schema version to %d\n", target)
				return nil
			})
		},
	})
	return cmd
}

func newMigrateDownCmd(deps *MigrateDeps) *cobra.Command {
	var steps int
	var confirm bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the given number of migrations, or all of them with --all.
Rolling back drops identity tables and their data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if all && !confirm {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("rolling back every migration drops all identity data; pass --yes to confirm")
			}
			if !all && steps < 1 {
				return oops.Code("INVALID_STEPS").With("steps", steps).Errorf("steps must be at least 1")
			}
			return withMigrator(cmd, deps, func(m Migrator) error {
				var err error
				if all {
					cmd.Println("Rolling back all migrations...")
					err = m.Down()
				} else {
					cmd.Printf("Rolling back %d migration(s)...\n", steps)
					err = m.Steps(-steps)
				}
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.Flags().Bool("all", false, "roll back every migration")
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm rolling back every migration")
	return cmd
}

func newMigrateStatusCmd(deps *MigrateDeps) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"version"},
		Short:   "Show the applied schema version and pending migrations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m Migrator) error {
				status, err := m.Status()
				if err != nil {
					return oops.Code("MIGRATION_FAILED").With("operation", "read migration status").Wrap(err)
				}
				if jsonOutput {
					data, err := json.MarshalIndent(status, "", "  ")
					if err != nil {
						return fmt.Errorf("failed to marshal status: %w", err)
					}
					cmd.Println(string(data))
					return nil
				}
				cmd.Print(formatMigrationStatus(status))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")
	return cmd
}

// withMigrator resolves the database URL, opens a migrator and closes it
// after fn returns.
func withMigrator(cmd *cobra.Command, deps *MigrateDeps, fn func(Migrator) error) (err error) {
	path, err := resolveConfigFile()
	if err != nil {
		return err
	}
	cfg, err := config.LoadUnvalidated(path, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("field", "database.url").Errorf("database url is required (--database-url, TOPTEN_DATABASE__URL or DATABASE_URL)")
	}

	cmd.Println("Connecting to database...")
	m, err := deps.MigratorFactory(cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = oops.Code("MIGRATION_FAILED").With("operation", "close migrator").Wrap(closeErr)
		}
	}()
	return fn(m)
}

// parseForceVersion parses a non-negative schema version.
func parseForceVersion(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	v, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return v, nil
}

func formatMigrationStatus(status store.MigrationStatus) string {
	var b strings.Builder
	name := status.Name
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(&b, "Current version: %d (%s)\n", status.Current, name)
	fmt.Fprintf(&b, "Latest version:  %d\n", status.Latest)
	if status.Dirty {
		b.WriteString("State:           dirty (run 'topten migrate force VERSION' after fixing the schema)\n")
	} else if status.UpToDate() {
		b.WriteString("State:           up to date\n")
	} else {
		pending := make([]string, len(status.Pending))
		for i, v := range status.Pending {
			pending[i] = strconv.FormatUint(uint64(v), 10)
		}
		fmt.Fprintf(&b, "State:           %d pending (%s)\n", len(status.Pending), strings.Join(pending, ", "))
	}
	return b.String()
}
