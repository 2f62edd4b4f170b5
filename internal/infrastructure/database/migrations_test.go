package database

import (
	"context"
	"embed"
	"testing"
)

//go:embed testdata/*.sql
var fixtureFS embed.FS

// useFixtureMigrations points the package at the testdata fixtures for
// the duration of one test.
func useFixtureMigrations(t *testing.T) {
	t.Helper()

	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})

	MigrationsFS = fixtureFS
	MigrationsDir = "testdata"
}

func TestMigrate(t *testing.T) {
	useFixtureMigrations(t)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Both fixture migrations ran: table exists with the column the
	// second migration adds.
	var prefix string
	_, err := db.ExecContext(ctx,
		"INSERT INTO handshake_log (serial, port, state, at) VALUES (?, ?, ?, ?)",
		"m0000226", 14656, "connected", "2026-03-01T00:00:00Z",
	)
	if err != nil {
		t.Fatalf("inserting into migrated table: %v", err)
	}
	err = db.QueryRowContext(ctx,
		"SELECT prefix FROM handshake_log WHERE serial = ?", "m0000226",
	).Scan(&prefix)
	if err != nil {
		t.Fatalf("reading added column: %v", err)
	}
	if prefix != "/monome" {
		t.Errorf("prefix default = %q, want /monome", prefix)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %d, want 2", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	// Idempotent.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateAppliesInOrder(t *testing.T) {
	useFixtureMigrations(t)

	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("loaded %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != "20260301_000000_create_handshake_log" {
		t.Errorf("first version = %q", migrations[0].Version)
	}
	if migrations[1].Version != "20260301_000001_add_prefix_column" {
		t.Errorf("second version = %q", migrations[1].Version)
	}
	for _, m := range migrations {
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Errorf("migration %s missing up or down SQL", m.Version)
		}
	}
}

func TestMigrateDown(t *testing.T) {
	useFixtureMigrations(t)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// First rollback removes the prefix column.
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Fatalf("after one rollback: applied = %d, pending = %d, want 1/1", len(applied), len(pending))
	}

	// Second rollback drops the table.
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("second MigrateDown() error = %v", err)
	}
	var count int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='handshake_log'",
	).Scan(&count)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	if count != 0 {
		t.Error("handshake_log should have been dropped")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() on empty history error = %v", err)
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})
	MigrationsFS = embed.FS{}
	MigrationsDir = "."

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestMigrationStatusBeforeMigrate(t *testing.T) {
	useFixtureMigrations(t)

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	applied, pending, err := db.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d, want 0", len(applied))
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}
}

func TestSplitMigrationName(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantDown    bool
		wantOk      bool
	}{
		{"20260301_000000_create_devices.up.sql", "20260301_000000_create_devices", false, true},
		{"20260301_000000_create_devices.down.sql", "20260301_000000_create_devices", true, true},
		{"README.md", "", false, false},
		{"20260301_000000_create_devices.sql", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, down, ok := splitMigrationName(tt.filename)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if version != tt.wantVersion {
				t.Errorf("version = %q, want %q", version, tt.wantVersion)
			}
			if down != tt.wantDown {
				t.Errorf("down = %v, want %v", down, tt.wantDown)
			}
		})
	}
}
