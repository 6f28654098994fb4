package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionColumns = `id, project_id, type, status, progress, started_at, completed_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var projectID, progress, completedAt sql.NullString
	var status, startedAt string

	err := row.Scan(&s.ID, &projectID, &s.Type, &status, &progress, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	s.ProjectID = projectID.String
	s.Status = SessionStatus(status)
	s.Progress = progress.String
	s.StartedAt = parseTime(startedAt)
	s.CompletedAt = parseTimePtr(completedAt)
	return &s, nil
}

// InsertSession records a new running session.
func (db *DB) InsertSession(id, projectID, sessionType string) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, project_id, type, status, started_at)
		VALUES (?, ?, ?, 'running', ?)`,
		id, projectID, sessionType, now())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SetSessionStatus transitions a session to a terminal status.
func (db *DB) SetSessionStatus(id string, status SessionStatus, progress string) error {
	res, err := db.Exec(`
		UPDATE sessions SET status = ?, progress = ?, completed_at = ? WHERE id = ?`,
		string(status), progress, now(), id)
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession returns a session by id.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions for a project, most recent first.
func (db *DB) ListSessions(projectID string) ([]Session, error) {
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions
		WHERE project_id = ? ORDER BY started_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// FailStaleSessions marks running sessions older than maxAge as failed.
// A session left in running state with no terminal update means the
// process crashed mid-cycle; reconciling here lets the next discovery
// pass re-attempt the PR.
func (db *DB) FailStaleSessions(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeFormat)
	res, err := db.Exec(`
		UPDATE sessions
		SET status = 'error', progress = 'stale: no update before cutoff', completed_at = ?
		WHERE status = 'running' AND started_at < ?`,
		now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
