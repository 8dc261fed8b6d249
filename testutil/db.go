// Package testutil provides shared helpers for integration tests.
// Helpers skip automatically when TEST_DATABASE_URL is not set, so unit tests
// run without a database.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql

	"github.com/certforge/backend/pkg/database"
)

// NewHandle connects to TEST_DATABASE_URL, applies migrations and empties the tables.
// The handle is closed when the test finishes.
func NewHandle(t *testing.T) *database.Handle {
	t.Helper()
	dsn := requireDSN(t)
	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, dsn, 1, nil)
	if err != nil {
		t.Fatalf("testutil.NewHandle: connect: %v", err)
	}
	h := database.NewHandleFromPool(pool)
	t.Cleanup(h.Close)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("testutil.NewHandle: acquire: %v", err)
	}
	lock(t, conn.Exec)
	t.Cleanup(func() {
		unlock(conn.Exec)
		conn.Release()
	})

	if err := database.Migrate(ctx, pool); err != nil {
		t.Fatalf("testutil.NewHandle: migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE certificates, events`); err != nil {
		t.Fatalf("testutil.NewHandle: truncate: %v", err)
	}
	return h
}

// NewSQLDB opens a *sql.DB on TEST_DATABASE_URL using the pgx database/sql driver,
// for driving goose directly.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := requireDSN(t)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("testutil.NewSQLDB: open: %v", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		t.Fatalf("testutil.NewSQLDB: ping: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	conn, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("testutil.NewSQLDB: conn: %v", err)
	}
	lock(t, conn.ExecContext)
	t.Cleanup(func() {
		unlock(conn.ExecContext)
		conn.Close()
	})
	return db
}

// integrationLock serializes integration tests across packages sharing one database.
const integrationLock = 7_204_117

func lock[R any](t *testing.T, exec func(context.Context, string, ...any) (R, error)) {
	t.Helper()
	if _, err := exec(context.Background(), `SELECT pg_advisory_lock($1)`, integrationLock); err != nil {
		t.Fatalf("testutil: advisory lock: %v", err)
	}
}

func unlock[R any](exec func(context.Context, string, ...any) (R, error)) {
	_, _ = exec(context.Background(), `SELECT pg_advisory_unlock($1)`, integrationLock)
}

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}
	return dsn
}
