package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// msPerSecond converts the configured busy timeout to the
	// milliseconds the sqlite3 driver expects.
	msPerSecond = 1000

	// openPingTimeout bounds the connectivity check in Open.
	openPingTimeout = 5 * time.Second
)

// Config maps to the database section of config.yaml.
type Config struct {
	// Path is the SQLite database file. Its directory is created on
	// first open.
	Path string

	// WALMode enables write-ahead logging so the API's history queries
	// can read while the recorder writes.
	WALMode bool

	// BusyTimeout is how long a locked statement waits, in seconds.
	BusyTimeout int
}

// DB is the monomed SQLite handle. It embeds *sql.DB, so callers use
// the standard query methods directly; the wrapper adds migrations
// (migrations.go) and a health check.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the SQLite database and verifies it
// responds. The pool is pinned to a single connection: the recorder is
// the only writer and serialises its upserts, so one connection avoids
// SQLITE_BUSY churn without a locking layer.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*msPerSecond)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// Owner-only permissions. The file may not exist yet on a fresh
	// path; the chmod then applies after the first write instead.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck

	return &DB{DB: sqlDB}, nil
}

// Close closes the database. Safe to call on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to confirm the database answers.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
