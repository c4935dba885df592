package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/outbox"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/queue"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/search"
	"github.com/iota-uz/payroll-reconciler/modules/payroll"
	"github.com/iota-uz/payroll-reconciler/pkg/application"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/configuration"
	"github.com/iota-uz/payroll-reconciler/pkg/eventbus"
	"github.com/iota-uz/payroll-reconciler/pkg/logging"
	pkgoutbox "github.com/iota-uz/payroll-reconciler/pkg/outbox"
)

// runtime is one process's connection to the database, the review queues
// and the loaded modules.
type runtime struct {
	conf *configuration.Configuration
	pool *pgxpool.Pool
	app  application.Application
	log  *logrus.Logger

	closers []func()
}

func openRuntime(ctx context.Context) (*runtime, error) {
	conf := configuration.Use()
	rt := &runtime{conf: conf, log: conf.Logger()}

	if conf.OpenTelemetry.Enabled {
		rt.closers = append(rt.closers, logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL))
	}

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		rt.Close()
		return nil, withCode(exitDB, fmt.Errorf("connect db: %w", err))
	}
	rt.pool = pool
	rt.closers = append(rt.closers, pool.Close)
	if err := pool.Ping(ctx); err != nil {
		rt.Close()
		return nil, withCode(exitDB, fmt.Errorf("ping db: %w", err))
	}

	queues, closeQueues, err := queue.New(conf.ReviewQueue)
	if err != nil {
		rt.Close()
		return nil, withCode(exitUsage, err)
	}
	rt.closers = append(rt.closers, func() {
		if err := closeQueues(); err != nil {
			rt.log.WithError(err).Warn("close review queues")
		}
	})

	indexer, err := search.New(conf.Search, rt.log.WithField("component", "search"))
	if err != nil {
		rt.Close()
		return nil, withCode(exitUsage, fmt.Errorf("search: %w", err))
	}

	rt.app = application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(rt.log),
		Logger:   rt.log,
	})
	if err := application.Load(rt.app,
		payroll.NewModule(),
		dataimport.NewModule(dataimport.ModuleOptions{
			Queues:        queues,
			Indexer:       indexer,
			TasksTable:    conf.Tasks.Table,
			RevokeChannel: conf.Tasks.RevokeChannel,
			ResolveUpload: conf.ResolveUpload,
		}),
	); err != nil {
		rt.Close()
		return nil, withCode(exitUsage, err)
	}
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
	rt.conf.Unload()
}

// Context carries the pool and a logger for services and stage handlers.
func (rt *runtime) Context(ctx context.Context, command string) context.Context {
	ctx = composables.WithPool(ctx, rt.pool)
	return composables.WithLogger(ctx, rt.log.WithField("command", command))
}

func (rt *runtime) tasksTable() (pgx.Identifier, error) {
	table, err := pkgoutbox.ParseIdentifier(firstNonEmpty(rt.conf.Tasks.Table, dataimport.DefaultTasksTable))
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return table, nil
}

// newRelay builds a relay over the task table. Revocation listening is only
// useful for long-running workers.
func (rt *runtime) newRelay(workers int, listen bool) (*pkgoutbox.Relay, error) {
	table, err := rt.tasksTable()
	if err != nil {
		return nil, err
	}
	cfg := rt.conf.Tasks
	opts := pkgoutbox.RelayOptions{
		Workers:         workers,
		PollInterval:    cfg.RelayPollInterval,
		BatchSize:       cfg.RelayBatchSize,
		LockTTL:         cfg.RelayLockTTL,
		MaxAttempts:     cfg.RelayMaxAttempts,
		LastErrorMaxLen: cfg.LastErrorMaxBytes,
		DispatchTimeout: cfg.RelayDispatchTimeout,
		Logger:          rt.log.WithField("component", "relay").WithField("table", pkgoutbox.TableLabel(table)),
	}
	if listen {
		opts.RevokeChannel = cfg.RevokeChannel
	}
	dispatcher := application.GetService[outbox.Dispatcher](rt.app)
	relay, err := pkgoutbox.NewRelay(rt.pool, table, dispatcher, opts)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return relay, nil
}

// withRuntime opens a runtime for one command invocation.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.Context(cmd.Context(), cmd.CommandPath()), rt)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
