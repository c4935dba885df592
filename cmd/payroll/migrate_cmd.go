package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
	}
	cmd.AddCommand(
		newMigrateStepCmd("up", "Apply all pending migrations", func(rt *runtime) error {
			return rt.app.Migrations().Run()
		}),
		newMigrateStepCmd("down", "Roll back the last migration", func(rt *runtime) error {
			return rt.app.Migrations().Rollback()
		}),
		newMigrateStepCmd("status", "Print migration status", func(rt *runtime) error {
			return rt.app.Migrations().Status()
		}),
		newMigrateStepCmd("version", "Print the current schema version", func(rt *runtime) error {
			v, err := rt.app.Migrations().Version()
			if err != nil {
				return err
			}
			return writeJSONLine(map[string]int64{"version": v})
		}),
	)
	return cmd
}

func newMigrateStepCmd(use, short string, step func(rt *runtime) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(_ context.Context, rt *runtime) error {
				if err := step(rt); err != nil {
					return withCode(exitDBWrite, fmt.Errorf("migrate %s: %w", use, err))
				}
				return nil
			})
		},
	}
}
