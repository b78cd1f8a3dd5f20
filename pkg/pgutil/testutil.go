package pgutil

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"github.com/chainsafe/fusion-swap/pkg/config"
)

const (
	testImage    = "postgres:15-alpine"
	testDatabase = "swaps_test"
	testUser     = "swaps"
	testPassword = "swaps"
)

// RequireDocker skips the test when no docker daemon socket is reachable.
func RequireDocker(t *testing.T) {
	t.Helper()

	for _, sock := range []string{
		"/var/run/docker.sock",
		filepath.Join(os.Getenv("HOME"), ".docker/run/docker.sock"),
	} {
		if _, err := os.Stat(sock); err != nil {
			continue
		}
		conn, err := (&net.Dialer{}).DialContext(context.Background(), "unix", sock)
		if err == nil {
			_ = conn.Close()
			return
		}
	}
	t.Skip("docker daemon socket is not accessible; skipping postgres-backed tests")
}

// SetupTestDB starts a throwaway postgres container and connects to it. The
// returned func closes the handle and terminates the container.
func SetupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, testImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	terminate := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	host, err := container.Host(ctx)
	if err != nil {
		terminate()
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		terminate()
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		Host:         host,
		Port:         port.Int(),
		User:         testUser,
		Password:     testPassword,
		Database:     testDatabase,
		SSLMode:      "disable",
		MaxOpenConns: 4,
	}

	// The log line can precede the port being reachable from the host.
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
	), 10)
	db, err := backoff.RetryWithData(func() (*bun.DB, error) {
		return ConnectDB(cfg)
	}, policy)
	if err != nil {
		terminate()
		t.Fatalf("failed to connect to test database: %v", err)
	}

	return db, func() {
		_ = db.Close()
		terminate()
	}
}

func queryBool(t *testing.T, db *bun.DB, expr string, args ...any) bool {
	t.Helper()
	var ok bool
	if err := db.NewSelect().ColumnExpr(expr, args...).Scan(context.Background(), &ok); err != nil {
		t.Fatalf("query %q: %v", expr, err)
	}
	return ok
}

func tableExists(t *testing.T, db *bun.DB, table string) bool {
	t.Helper()
	return queryBool(t, db,
		"EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?)", table)
}

// AssertTableExists fails t when table is missing from the public schema.
func AssertTableExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	if !tableExists(t, db, table) {
		t.Errorf("table %s does not exist", table)
	}
}

// AssertTableNotExists fails t when table is present in the public schema.
func AssertTableNotExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	if tableExists(t, db, table) {
		t.Errorf("table %s should not exist but it does", table)
	}
}

// AssertIndexExists fails t when the named index is missing.
func AssertIndexExists(t *testing.T, db *bun.DB, index string) {
	t.Helper()
	if !queryBool(t, db,
		"EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = 'public' AND indexname = ?)", index) {
		t.Errorf("index %s does not exist", index)
	}
}

// AssertRowCount fails t unless table holds exactly want rows.
func AssertRowCount(t *testing.T, db *bun.DB, table string, want int) {
	t.Helper()
	var got int
	err := db.NewSelect().
		TableExpr("?", bun.Ident(table)).
		ColumnExpr("COUNT(*)").
		Scan(context.Background(), &got)
	if err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}
	if got != want {
		t.Errorf("table %s: expected %d rows, got %d", table, want, got)
	}
}
