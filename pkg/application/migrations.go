package application

import (
	"context"
	"database/sql"
	"io/fs"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/migrations"
)

type MigrationManager interface {
	Run() error
	Rollback() error
	Status() error
	Version() (int64, error)
}

type migrationManager struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
	fsys fs.FS
}

func NewMigrationManager(pool *pgxpool.Pool, log *logrus.Logger) MigrationManager {
	return &migrationManager{pool: pool, log: log, fsys: migrations.FS}
}

type gooseLogger struct {
	log *logrus.Logger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Fatalf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Infof(format, v...) }

func (m *migrationManager) open() (*sql.DB, error) {
	if m.pool == nil {
		return nil, errors.New("migrations: database pool is not configured")
	}
	goose.SetBaseFS(m.fsys)
	goose.SetLogger(gooseLogger{log: m.log})
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, errors.Wrap(err, "goose dialect")
	}
	db, err := sql.Open("postgres", m.pool.Config().ConnString())
	if err != nil {
		return nil, errors.Wrap(err, "open migration connection")
	}
	return db, nil
}

func (m *migrationManager) Run() error {
	db, err := m.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return errors.Wrap(goose.UpContext(context.Background(), db, "."), "apply migrations")
}

func (m *migrationManager) Rollback() error {
	db, err := m.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return errors.Wrap(goose.DownContext(context.Background(), db, "."), "rollback migration")
}

func (m *migrationManager) Status() error {
	db, err := m.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return errors.Wrap(goose.StatusContext(context.Background(), db, "."), "migration status")
}

func (m *migrationManager) Version() (int64, error) {
	db, err := m.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()
	v, err := goose.GetDBVersionContext(context.Background(), db)
	if err != nil {
		return 0, errors.Wrap(err, "migration version")
	}
	return v, nil
}
