package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/fusion-swap/pkg/migrations/relaydb"
	"github.com/chainsafe/fusion-swap/pkg/migrations/resolverdb"
	mghelper "github.com/chainsafe/fusion-swap/pkg/pgutil"
)

func setupMigrator(t *testing.T, ms *migrate.Migrations) (*bun.DB, *migrate.Migrator) {
	t.Helper()
	mghelper.RequireDocker(t)

	db, cleanup := mghelper.SetupTestDB(t)
	t.Cleanup(cleanup)

	migrator := migrate.NewMigrator(db, ms)
	if err := migrator.Init(context.Background()); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	return db, migrator
}

func TestRelayDBMigrations_Apply(t *testing.T) {
	db, migrator := setupMigrator(t, relaydb.Migrations)

	group, err := migrator.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	mghelper.AssertTableExists(t, db, "intents")
	mghelper.AssertTableExists(t, db, "bun_migrations")

	mghelper.AssertIndexExists(t, db, "idx_intents_status")
	mghelper.AssertIndexExists(t, db, "idx_intents_maker")
	mghelper.AssertIndexExists(t, db, "idx_intents_created_at")
}

func TestResolverDBMigrations_Apply(t *testing.T) {
	db, migrator := setupMigrator(t, resolverdb.Migrations)

	group, err := migrator.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	mghelper.AssertTableExists(t, db, "swaps")
	mghelper.AssertIndexExists(t, db, "idx_swaps_state")
	mghelper.AssertIndexExists(t, db, "idx_swaps_created_at")
	mghelper.AssertRowCount(t, db, "swaps", 0)
}

func TestMigrations_Idempotency(t *testing.T) {
	db, migrator := setupMigrator(t, relaydb.Migrations)
	ctx := context.Background()

	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("First Migrate() failed: %v", err)
	}

	// Second run should find nothing to apply
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second Migrate() failed: %v", err)
	}
	if !group.IsZero() {
		t.Error("Expected no new migrations on second run")
	}

	mghelper.AssertTableExists(t, db, "intents")
}

func TestMigrations_Rollback(t *testing.T) {
	db, migrator := setupMigrator(t, resolverdb.Migrations)
	ctx := context.Background()

	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	mghelper.AssertTableExists(t, db, "swaps")

	// Migrate() runs everything in one group, so one rollback drops it all
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected rollback to process a migration")
	}

	mghelper.AssertTableNotExists(t, db, "swaps")
}
