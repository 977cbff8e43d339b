// Package state provides SQLite-based session persistence for hive.
// The database is the sole source of truth across process restarts:
// a session row plus an append-only snapshot stream of ProjectState,
// and the audit trail entries.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/swarmlabs/hive/internal/trace"
	"github.com/swarmlabs/hive/pkg/models"
)

// ErrSessionNotFound indicates the session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	// SessionActive indicates the session is running.
	SessionActive SessionStatus = "active"
	// SessionPaused indicates the session is awaiting human input.
	SessionPaused SessionStatus = "paused"
	// SessionCompleted indicates the session finished.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed indicates the session failed.
	SessionFailed SessionStatus = "failed"
)

// Session is a persisted run of the engine.
type Session struct {
	// ID is the opaque session identifier.
	ID string
	// RootTask is the original user input.
	RootTask string
	// Status is the current lifecycle state.
	Status SessionStatus
	// CreatedAt is when the session was created.
	CreatedAt time.Time
	// UpdatedAt is when the session was last touched.
	UpdatedAt time.Time
}

// DB wraps an SQLite database connection with hive-specific operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens an SQLite database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// migrate applies pending schema migrations.
func (db *DB) migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Sessions},
		{2, migrationV2Snapshots},
		{3, migrationV3Audit},
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1Sessions = `
	CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		root_task TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
`

const migrationV2Snapshots = `
	CREATE TABLE snapshots (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		seq INTEGER NOT NULL,
		state TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
`

const migrationV3Audit = `
	CREATE TABLE audit_trail (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		depth INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		prev_hash TEXT NOT NULL,
		hash TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, depth)
	);
`

// CreateSession inserts a new active session row.
func (db *DB) CreateSession(id, rootTask string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	now := time.Now()
	_, err := db.conn.Exec(
		"INSERT INTO sessions (id, root_task, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		id, rootTask, string(SessionActive), now, now,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSessionStatus changes a session's lifecycle state.
func (db *DB) UpdateSessionStatus(id string, status SessionStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(
		"UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession returns a session row.
func (db *DB) GetSession(id string) (*Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.conn.QueryRow(
		"SELECT id, root_task, status, created_at, updated_at FROM sessions WHERE id = ?", id,
	)
	var s Session
	var status string
	if err := row.Scan(&s.ID, &s.RootTask, &status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.Status = SessionStatus(status)
	return &s, nil
}

// ListSessions returns all sessions, most recent first.
func (db *DB) ListSessions() ([]*Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		"SELECT id, root_task, status, created_at, updated_at FROM sessions ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var s Session
		var status string
		if err := rows.Scan(&s.ID, &s.RootTask, &status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Status = SessionStatus(status)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// Put appends a new ProjectState snapshot for a session. Snapshots are
// append-only so the last consistent state always survives a crash
// mid-write.
func (db *DB) Put(id string, state *models.ProjectState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	var seq int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM snapshots WHERE session_id = ?", id)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("get snapshot seq: %w", err)
	}
	_, err = db.conn.Exec(
		"INSERT INTO snapshots (session_id, seq, state, created_at) VALUES (?, ?, ?, ?)",
		id, seq+1, string(raw), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// Get loads the most recent ProjectState snapshot for a session.
func (db *DB) Get(id string) (*models.ProjectState, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.conn.QueryRow(
		"SELECT state FROM snapshots WHERE session_id = ? ORDER BY seq DESC LIMIT 1", id,
	)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var state models.ProjectState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// AppendTrace persists one audit-trail entry for a session.
func (db *DB) AppendTrace(sessionID string, e trace.Entry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		"INSERT INTO audit_trail (session_id, depth, node_id, actor, fingerprint, prev_hash, hash, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		sessionID, e.Depth, e.NodeID, e.Actor, e.Fingerprint, e.PrevHash, e.Hash, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append trace: %w", err)
	}
	return nil
}

// ListTrace returns a session's audit trail in depth order.
func (db *DB) ListTrace(sessionID string) ([]trace.Entry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		"SELECT depth, node_id, actor, fingerprint, prev_hash, hash, created_at FROM audit_trail WHERE session_id = ? ORDER BY depth ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trace: %w", err)
	}
	defer rows.Close()

	var out []trace.Entry
	for rows.Next() {
		var e trace.Entry
		if err := rows.Scan(&e.Depth, &e.NodeID, &e.Actor, &e.Fingerprint, &e.PrevHash, &e.Hash, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan trace entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
