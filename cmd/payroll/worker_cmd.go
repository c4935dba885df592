package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/payroll-reconciler/pkg/metrics"
	pkgoutbox "github.com/iota-uz/payroll-reconciler/pkg/outbox"
)

func newWorkerCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run import stages, the task cleaner and the ops endpoint until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				return runWorker(ctx, rt, workers)
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent stage workers (default TASKS_RELAY_WORKERS)")
	return cmd
}

func runWorker(ctx context.Context, rt *runtime, workers int) error {
	cfg := rt.conf
	log := rt.log.WithField("component", "worker")
	if workers <= 0 {
		workers = cfg.Tasks.RelayWorkers
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Tasks.RelayEnabled {
		relay, err := rt.newRelay(workers, true)
		if err != nil {
			return err
		}
		g.Go(func() error { return ignoreCanceled(relay.Run(gctx)) })
	} else {
		log.Info("relay disabled")
	}

	if cfg.Tasks.CleanerEnabled {
		table, err := rt.tasksTable()
		if err != nil {
			return err
		}
		cleaner, err := pkgoutbox.NewCleaner(rt.pool, table, pkgoutbox.CleanerOptions{
			Enabled:   true,
			Interval:  cfg.Tasks.CleanerInterval,
			Retention: cfg.Tasks.CleanerRetention,
			Logger:    rt.log.WithField("component", "cleaner"),
		})
		if err != nil {
			return withCode(exitUsage, err)
		}
		g.Go(func() error { return ignoreCanceled(cleaner.Run(gctx)) })
	}

	if cfg.Prometheus.Enabled {
		router := metrics.NewOpsRouter(cfg.Prometheus.Path, map[string]metrics.HealthFunc{
			"postgres": rt.pool.Ping,
		})
		g.Go(func() error { return metrics.Serve(gctx, cfg.Prometheus.Addr, router, log) })
	}

	log.WithField("workers", workers).Info("worker started")
	err := g.Wait()
	log.Info("worker stopped")
	return err
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
