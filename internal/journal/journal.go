// Package journal records service activity in SQLite: every RPC call and
// every emitted status line, grouped by session. A recorded session can be
// replayed to reproduce the exact output stream.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 0 - tables only
// 1 - per-session indexes on calls and emissions
const currentSchemaVersion = 1

// ErrNoSession is returned when a session is needed but none exists.
var ErrNoSession = errors.New("no journal session")

// Journal is a SQLite-backed activity log. Safe for concurrent use.
type Journal struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	session string
}

// Open creates or opens a journal database at path.
//
// The database runs in WAL mode with a single connection, so writes from
// the service loop never contend with each other.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_calls_session ON calls(session_id, seq);
		CREATE INDEX IF NOT EXISTS idx_emissions_session ON emissions(session_id, seq);
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// StartSession creates a session and makes it current for subsequent
// records.
func (j *Journal) StartSession(ctx context.Context, id, configPath string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, config_path) VALUES (?, ?, ?)`,
		id, j.now().UnixNano(), configPath)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	j.mu.Lock()
	j.session = id
	j.mu.Unlock()
	return nil
}

// Session returns the current session id, or "" before StartSession.
func (j *Journal) Session() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.session
}

func (j *Journal) currentSession() (string, error) {
	id := j.Session()
	if id == "" {
		return "", ErrNoSession
	}
	return id, nil
}
