package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	payrollservices "github.com/iota-uz/payroll-reconciler/modules/payroll/services"
	"github.com/iota-uz/payroll-reconciler/pkg/application"
)

func newMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Load reference data used to classify employers",
	}
	cmd.AddCommand(newMetadataLoadCmd())
	cmd.AddCommand(newMetadataTagCmd())
	return cmd
}

func newMetadataLoadCmd() *cobra.Command {
	var taxonomy, population string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Replace the reference taxonomy and/or population from CSV files",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if taxonomy == "" && population == "" {
				return withCode(exitUsage, fmt.Errorf("at least one of --taxonomy or --population is required"))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				svc := application.GetService[payrollservices.ReferenceService](rt.app)
				out := map[string]int64{}
				if taxonomy != "" {
					n, err := loadReference(ctx, taxonomy, svc.LoadTaxonomy)
					if err != nil {
						return err
					}
					out["taxonomy"] = n
				}
				if population != "" {
					n, err := loadReference(ctx, population, svc.LoadPopulation)
					if err != nil {
						return err
					}
					out["population"] = n
				}
				return writeJSONLine(out)
			})
		},
	}
	cmd.Flags().StringVar(&taxonomy, "taxonomy", "", "Taxonomy CSV (entity, entity_type, chicago, cook_or_collar)")
	cmd.Flags().StringVar(&population, "population", "", "Population CSV (name, classification, geoid, population, data_year)")
	return cmd
}

func loadReference(ctx context.Context, path string, load func(context.Context, io.Reader) (int64, error)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, withCode(exitUsage, err)
	}
	defer f.Close()
	return load(ctx, f)
}

func newMetadataTagCmd() *cobra.Command {
	var agencyName, tag string

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Set or clear (empty --tag) the ISBE/IBHE tag of a responding agency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				a, err := application.GetService[payrollservices.ReferenceService](rt.app).TagAgency(ctx, agencyName, tag)
				if err != nil {
					return err
				}
				out := map[string]any{"id": a.ID(), "name": a.Name(), "tag": nil}
				if t := a.Tag(); t != nil {
					out["tag"] = string(*t)
				}
				return writeJSONLine(out)
			})
		},
	}
	cmd.Flags().StringVar(&agencyName, "agency", "", "Responding agency alias (required)")
	cmd.Flags().StringVar(&tag, "tag", "", "ISBE or IBHE; empty clears")
	_ = cmd.MarkFlagRequired("agency")
	return cmd
}
