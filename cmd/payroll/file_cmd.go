package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
	"github.com/iota-uz/payroll-reconciler/pkg/application"
)

func newFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Inspect and manage standardized files",
	}
	cmd.AddCommand(newFileListCmd())
	cmd.AddCommand(newFileStatusCmd())
	cmd.AddCommand(newFileResumeCmd())
	cmd.AddCommand(newFileDeleteCmd())
	return cmd
}

func fileService(rt *runtime) *services.FileService {
	return application.GetService[services.FileService](rt.app)
}

func newFileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every file, one JSON line each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				files, err := fileService(rt).List(ctx)
				if err != nil {
					return err
				}
				for _, f := range files {
					if err := writeJSONLine(newFileView(f)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newFileStatusCmd() *cobra.Command {
	var fileID int64

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a file's status, stage state and queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				st, err := fileService(rt).Status(ctx, fileID)
				if err != nil {
					return err
				}
				return writeJSONLine(newStatusView(st))
			})
		},
	}
	cmd.Flags().Int64Var(&fileID, "file", 0, "Standardized file id (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newFileResumeCmd() *cobra.Command {
	var fileID int64

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Make a file's failed stages runnable again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				n, err := fileService(rt).Resume(ctx, fileID)
				if err != nil {
					return err
				}
				return writeJSONLine(map[string]int64{"file_id": fileID, "resumed": n})
			})
		},
	}
	cmd.Flags().Int64Var(&fileID, "file", 0, "Standardized file id (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newFileDeleteCmd() *cobra.Command {
	var (
		fileID int64
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a file with its canonical rows, raw tables and review queues",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return withCode(exitUsage, fmt.Errorf("refusing to delete file %d without --yes", fileID))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				deleted, err := fileService(rt).DeleteFile(ctx, fileID)
				if err != nil {
					return err
				}
				if !deleted {
					return withCode(exitUsage, fmt.Errorf("file %d not found", fileID))
				}
				return writeJSONLine(map[string]any{"file_id": fileID, "deleted": true})
			})
		},
	}
	cmd.Flags().Int64Var(&fileID, "file", 0, "Standardized file id (required)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
