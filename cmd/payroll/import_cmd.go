package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
	"github.com/iota-uz/payroll-reconciler/pkg/application"
	pkgoutbox "github.com/iota-uz/payroll-reconciler/pkg/outbox"
)

type importOptions struct {
	uploadOptions
	flush  bool
	rounds int
}

type importView struct {
	statusView
	Flushed int `json:"flushed"`
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upload a payroll CSV and run its stages in this process",
		Long: "Uploads the file and drains its stages without a worker. The import stops at the\n" +
			"first review queue unless --flush is set, which resolves every item as a new entity.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				file, err := uploadFile(ctx, rt, opts.uploadOptions)
				if err != nil {
					return err
				}
				relay, err := rt.newRelay(1, false)
				if err != nil {
					return err
				}
				view, err := runImport(ctx, rt, relay, file.ID, opts)
				if view != nil {
					if werr := writeJSONLine(view); werr != nil && err == nil {
						err = werr
					}
				}
				return err
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.flush, "flush", false, "Create a new entity for every review item")
	cmd.Flags().IntVar(&opts.rounds, "max-rounds", 16, "Upper bound on drain/flush rounds")
	return cmd
}

func runImport(ctx context.Context, rt *runtime, relay *pkgoutbox.Relay, fileID int64, opts importOptions) (*importView, error) {
	files := application.GetService[services.FileService](rt.app)
	reviews := application.GetService[services.ReviewService](rt.app)

	view := &importView{}
	for i := 0; i < opts.rounds; i++ {
		if _, err := relay.Drain(ctx); err != nil {
			return nil, withCode(exitDB, fmt.Errorf("drain stages: %w", err))
		}
		st, err := files.Status(ctx, fileID)
		if err != nil {
			return nil, err
		}
		view.statusView = newStatusView(st)
		if st.Tasks.Failed > 0 {
			return view, withCode(exitDBWrite, fmt.Errorf("file %d: stage failed: %s", fileID, st.Tasks.LastError))
		}
		if st.File.Status == upload.StatusComplete || !opts.flush {
			return view, nil
		}
		kind, ok := reviewKindFor(st.File.Status)
		if !ok {
			continue
		}
		res, err := reviews.Flush(ctx, fileID, kind)
		if err != nil {
			return view, err
		}
		view.Flushed += res.Resolved
	}
	return view, withCode(exitValidation, fmt.Errorf("file %d did not complete in %d rounds", fileID, opts.rounds))
}

// reviewKindFor is the queue a file waits on in status s.
func reviewKindFor(s upload.Status) (review.Kind, bool) {
	switch s {
	case upload.StatusRespondingAgencyUnmatched:
		return review.KindRespondingAgency, true
	case upload.StatusParentEmployerUnmatched:
		return review.KindParentEmployer, true
	case upload.StatusChildEmployerUnmatched:
		return review.KindChildEmployer, true
	default:
		return "", false
	}
}
