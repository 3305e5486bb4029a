// Package checkpoint persists sessions, transcript turns, and plans to
// SQLite so interrupted runs can be resumed.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codewright/codewright/internal/plan"
	"github.com/codewright/codewright/internal/transcript"
)

// Schema creates the checkpoint tables. Applied on every Open; all
// statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	project_root TEXT NOT NULL,
	task         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	final_report TEXT,
	created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (session_id, seq),
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS plans (
	session_id TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
`

// SessionRecord is a persisted session row.
type SessionRecord struct {
	ID          string
	ProjectRoot string
	Task        string
	Status      string
	FinalReport string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store wraps the SQLite database holding checkpoints.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the checkpoint database at dbPath and
// applies the schema.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply checkpoint schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session row in the running state.
func (s *Store) CreateSession(id, projectRoot, task string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, project_root, task, status) VALUES (?, ?, ?, 'running')`,
		id, projectRoot, task,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSessionStatus records a session's terminal (or intermediate)
// status together with its final report, if any.
func (s *Store) UpdateSessionStatus(id, status, finalReport string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ?, final_report = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, finalReport, id,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// GetSession loads a single session row by ID.
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, project_root, task, status, COALESCE(final_report, ''), created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	)
	var rec SessionRecord
	err := row.Scan(&rec.ID, &rec.ProjectRoot, &rec.Task, &rec.Status, &rec.FinalReport, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &rec, nil
}

// ListSessions returns up to limit sessions, most recently updated first.
// A limit of 0 or less returns all sessions.
func (s *Store) ListSessions(limit int) ([]SessionRecord, error) {
	query := `SELECT id, project_root, task, status, COALESCE(final_report, ''), created_at, updated_at
	          FROM sessions ORDER BY updated_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.ProjectRoot, &rec.Task, &rec.Status, &rec.FinalReport, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveTurn persists one transcript turn. Saving the same (session, seq)
// twice overwrites the earlier payload, which makes replay after a crash
// safe.
func (s *Store) SaveTurn(sessionID string, turn transcript.Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO turns (session_id, seq, payload) VALUES (?, ?, ?)
		 ON CONFLICT(session_id, seq) DO UPDATE SET payload = excluded.payload`,
		sessionID, turn.Seq, string(payload),
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// LoadTurns returns all persisted turns for a session in sequence order.
func (s *Store) LoadTurns(sessionID string) ([]transcript.Turn, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM turns WHERE session_id = ? ORDER BY seq ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	var out []transcript.Turn
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		var turn transcript.Turn
		if err := json.Unmarshal([]byte(payload), &turn); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		out = append(out, turn)
	}
	return out, rows.Err()
}

// SavePlan stores the current plan snapshot for a session, replacing any
// earlier snapshot.
func (s *Store) SavePlan(sessionID string, items []plan.Item) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO plans (session_id, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
		sessionID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// LoadPlan returns the persisted plan snapshot for a session, or nil when
// no plan was ever saved.
func (s *Store) LoadPlan(sessionID string) ([]plan.Item, error) {
	row := s.db.QueryRow(`SELECT payload FROM plans WHERE session_id = ?`, sessionID)
	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	var items []plan.Item
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return items, nil
}
