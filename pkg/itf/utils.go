// Package itf holds integration test helpers: throw-away databases with the
// schema applied and a wired application.
package itf

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/iota-uz/payroll-reconciler/pkg/configuration"
)

const (
	// PostgreSQL database name maximum length is 63 characters
	maxDBNameLength = 63
	// hash suffix plus underscore
	hashSuffixLength = 9
)

// CanDialPostgres reports whether the configured database host accepts TCP connections.
func CanDialPostgres() bool {
	c := configuration.Use()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(c.Database.Host, c.Database.Port), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// RequirePostgres skips tb when PostgreSQL is unreachable. In CI it fails instead.
func RequirePostgres(tb testing.TB) {
	tb.Helper()
	if CanDialPostgres() {
		return
	}
	if os.Getenv("CI") != "" {
		tb.Fatal("postgres is not reachable")
	}
	tb.Skip("postgres is not reachable")
}

func NewPool(dbOpts string) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	config, err := pgxpool.ParseConfig(dbOpts)
	if err != nil {
		panic(err)
	}
	config.MaxConns = 6
	config.MinConns = 1
	config.MaxConnLifetime = time.Minute * 5
	config.MaxConnIdleTime = time.Second * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		panic(fmt.Errorf("failed to create database pool: %w", err))
	}
	return pool
}

// sanitizeDBName lowercases name, replaces punctuation with underscores and
// keeps the result within PostgreSQL's identifier limit.
func sanitizeDBName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	sanitized := b.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "test_db"
	}
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "t_" + sanitized
	}
	if len(sanitized) <= maxDBNameLength {
		return sanitized
	}

	sum := sha256.Sum256([]byte(name))
	prefix := strings.TrimRight(sanitized[:maxDBNameLength-hashSuffixLength], "_")
	return fmt.Sprintf("%s_%x", prefix, sum[:4])
}

func adminConnString() string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=postgres password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
	)
}

// CreateDB drops and recreates the database for name.
func CreateDB(name string) error {
	sanitizedName := sanitizeDBName(name)

	db, err := sql.Open("postgres", adminConnString())
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", sanitizedName)); err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", sanitizedName))
	return err
}

// DropDB removes the database created for name.
func DropDB(name string) error {
	db, err := sql.Open("postgres", adminConnString())
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", sanitizeDBName(name)))
	return err
}

func DbOpts(name string) string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, sanitizeDBName(name), c.Database.Password,
	)
}
