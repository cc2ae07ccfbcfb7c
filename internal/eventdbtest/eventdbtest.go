// Package eventdbtest spins up a disposable Postgres instance for
// integration tests that need a real database: the migrations framework,
// the event store, the status changer, the finder, and the zombie
// cleaner all depend on Postgres-specific behavior (FOR UPDATE SKIP
// LOCKED, ON CONFLICT, array parameters) that a mock can't faithfully
// reproduce.
//
// Grounded on the teacher's test/database/client.go: a CI_DATABASE_URL
// escape hatch for a pre-provisioned database, falling back to
// testcontainers-go locally, with the container torn down via t.Cleanup.
package eventdbtest

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/renku-io/event-log/internal/migrations"
)

// Open returns a *sql.DB against a freshly migrated, empty schema. The
// database (and container, if one was started) is torn down when the test
// completes.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("eventlog_test"),
			postgres.WithUsername("eventlog"),
			postgres.WithPassword("eventlog"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate postgres container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, migrations.Apply(ctx, db, slog.New(slog.DiscardHandler)))

	return db
}
