package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
	"github.com/iota-uz/payroll-reconciler/pkg/application"
)

type uploadOptions struct {
	path      string
	year      int
	createdBy string
}

func (o *uploadOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.path, "path", "", "Standardized payroll CSV (required)")
	cmd.Flags().IntVar(&o.year, "year", 0, "Reporting year of the file (required)")
	cmd.Flags().StringVar(&o.createdBy, "created-by", "", "Uploader recorded on the upload")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("year")
}

func (o *uploadOptions) input() services.UploadInput {
	in := services.UploadInput{Path: o.path, ReportingYear: o.year}
	if v := strings.TrimSpace(o.createdBy); v != "" {
		in.CreatedBy = &v
	}
	return in
}

func newUploadCmd() *cobra.Command {
	var opts uploadOptions

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Validate a payroll CSV and queue it for import",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				file, err := uploadFile(ctx, rt, opts)
				if err != nil {
					return err
				}
				return writeJSONLine(newFileView(file))
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func uploadFile(ctx context.Context, rt *runtime, opts uploadOptions) (*upload.File, error) {
	return application.GetService[services.UploadService](rt.app).Upload(ctx, opts.input())
}
