package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mtlprog/rwaoracle/internal/database"
)

// SetupPool connects to TEST_DATABASE_URL for integration tests and skips the
// test when it is unset. The schema is migrated and every listed table is
// truncated before and after use.
func SetupPool(t *testing.T, tables ...string) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := database.RunMigrations(context.Background(), pool, database.Migrations()); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}

	truncate := func() {
		for _, table := range tables {
			if _, err := pool.Exec(context.Background(), "TRUNCATE "+table+" CASCADE"); err != nil {
				t.Fatalf("truncate %s: %v", table, err)
			}
		}
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		pool.Close()
	})
	return pool
}
