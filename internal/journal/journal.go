package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/gpustated/gpustated/internal/infrastructure/config"
)

// Journal configuration constants.
const (
	// dirPermissions is the permission mode for the journal directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the journal file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout is the timeout for verifying database connectivity.
	connectionTimeout = 5 * time.Second
)

// schema creates the transitions table. The journal is append-only: the
// daemon writes transitions and never reads them back to make decisions,
// so a corrupt or missing journal can never change control behaviour.
const schema = `
CREATE TABLE IF NOT EXISTS transitions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    device      INTEGER NOT NULL,
    level       TEXT    NOT NULL,
    path        TEXT    NOT NULL,
    mem_clock   INTEGER NOT NULL,
    core_clock  INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transitions_device ON transitions(device, recorded_at);
`

// Journal records power-level transitions to a local SQLite database.
//
// It exists for post-hoc inspection ("why did GPU 1 spend the night in the
// high band"), not for state recovery. SQLite works best with a single
// writer, which matches the daemon's single control goroutine.
type Journal struct {
	db   *sql.DB
	path string
}

// Transition is one journalled power-level change.
type Transition struct {
	ID         int64
	Device     int
	Level      string
	Path       string
	MemClock   uint32
	CoreClock  uint32
	RecordedAt time.Time
}

// Open creates or opens the journal database.
//
// It performs the following setup:
//  1. Creates the journal directory if it doesn't exist
//  2. Opens the database file with WAL and busy-timeout pragmas
//  3. Applies the schema
//  4. Sets file permissions (0600)
func Open(cfg config.JournalConfig) (*Journal, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path,
		cfg.BusyTimeout*msPerSecond,
	)
	if cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying journal connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("applying journal schema: %w", err)
	}

	// Ignore error - file might not exist yet on first run
	_ = os.Chmod(cfg.Path, filePermissions)

	return &Journal{db: db, path: cfg.Path}, nil
}

// RecordTransition appends one power-level change to the journal.
func (j *Journal) RecordTransition(ctx context.Context, device int, level, path string, memClock, coreClock uint32) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transitions (device, level, path, mem_clock, core_clock) VALUES (?, ?, ?, ?, ?)`,
		device, level, path, int64(memClock), int64(coreClock),
	)
	if err != nil {
		return fmt.Errorf("recording transition: %w", err)
	}
	return nil
}

// RecentTransitions returns the most recent transitions for a device,
// newest first.
func (j *Journal) RecentTransitions(ctx context.Context, device int, limit int) ([]Transition, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, device, level, path, mem_clock, core_clock, recorded_at
		 FROM transitions
		 WHERE device = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		device, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var out []Transition
	for rows.Next() {
		var tr Transition
		var memClock, coreClock int64
		if err := rows.Scan(&tr.ID, &tr.Device, &tr.Level, &tr.Path, &memClock, &coreClock, &tr.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		tr.MemClock = uint32(memClock)
		tr.CoreClock = uint32(coreClock)
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return out, nil
}

// Path returns the filesystem path to the journal file.
func (j *Journal) Path() string {
	return j.path
}

// HealthCheck verifies the journal is accessible.
func (j *Journal) HealthCheck(ctx context.Context) error {
	var result int
	if err := j.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("journal health check failed: %w", err)
	}
	return nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}
	return nil
}
