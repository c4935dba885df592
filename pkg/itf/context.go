package itf

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/pkg/application"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/eventbus"
	"github.com/iota-uz/payroll-reconciler/pkg/logging"
)

// TestContext provides a fluent API for building test environments
type TestContext struct {
	modules []application.Module
	dbName  string
	level   logrus.Level
}

func NewTestContext() *TestContext {
	return &TestContext{level: logrus.WarnLevel}
}

// WithModules adds modules to the test environment
func (tc *TestContext) WithModules(modules ...application.Module) *TestContext {
	tc.modules = append(tc.modules, modules...)
	return tc
}

// WithDBName sets a custom database name
func (tc *TestContext) WithDBName(name string) *TestContext {
	tc.dbName = name
	return tc
}

func (tc *TestContext) WithLogLevel(level logrus.Level) *TestContext {
	tc.level = level
	return tc
}

// Build creates a fresh database, applies migrations and registers modules.
// Pipeline stages commit their own transactions, so the environment carries
// only the pool; callers open transactions with composables.InTx.
func (tc *TestContext) Build(tb testing.TB) *TestEnvironment {
	tb.Helper()
	RequirePostgres(tb)

	name := tc.dbName
	if name == "" {
		name = tb.Name()
	}
	if err := CreateDB(name); err != nil {
		tb.Fatal(err)
	}
	pool := NewPool(DbOpts(name))

	log := logging.ConsoleLogger(tc.level)
	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(log),
		Logger:   log,
	})
	if err := app.Migrations().Run(); err != nil {
		pool.Close()
		tb.Fatal(err)
	}
	if err := application.Load(app, tc.modules...); err != nil {
		pool.Close()
		tb.Fatal(err)
	}

	ctx := composables.WithPool(context.Background(), pool)
	ctx = composables.WithLogger(ctx, logrus.NewEntry(log))

	tb.Cleanup(func() {
		pool.Close()
		if err := DropDB(name); err != nil {
			tb.Logf("Warning: failed to drop test database: %v", err)
		}
	})

	return &TestEnvironment{Ctx: ctx, Pool: pool, App: app}
}

// TestEnvironment contains all test dependencies
type TestEnvironment struct {
	Ctx  context.Context
	Pool *pgxpool.Pool
	App  application.Application
}

// Service retrieves a registered service
func (te *TestEnvironment) Service(service interface{}) interface{} {
	return te.App.Service(service)
}

// GetService is a generic helper that retrieves and casts a service
func GetService[T any](te *TestEnvironment) *T {
	return application.GetService[T](te.App)
}

// Exec runs sql against the pool, failing tb on error.
func (te *TestEnvironment) Exec(tb testing.TB, sql string, args ...any) {
	tb.Helper()
	if _, err := te.Pool.Exec(te.Ctx, sql, args...); err != nil {
		tb.Fatal(err)
	}
}

// Count returns the result of SELECT count(*) FROM table [WHERE where].
func (te *TestEnvironment) Count(tb testing.TB, table string, where string, args ...any) int64 {
	tb.Helper()
	q := "SELECT count(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int64
	if err := te.Pool.QueryRow(te.Ctx, q, args...).Scan(&n); err != nil {
		tb.Fatal(err)
	}
	return n
}
