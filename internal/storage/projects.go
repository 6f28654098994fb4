package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

const projectColumns = `id, display_name, git_remote, main_branch, auto_review_enabled,
	review_trigger_label, review_model, polling_enabled, last_polled_at, store_path,
	created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	var autoReview, polling int
	var lastPolled sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.DisplayName, &p.GitRemote, &p.MainBranch, &autoReview,
		&p.TriggerLabel, &p.ReviewModel, &polling, &lastPolled, &p.StorePath,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.AutoReviewEnabled = autoReview != 0
	p.PollingEnabled = polling != 0
	p.LastPolledAt = parseTimePtr(lastPolled)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// UpsertProject inserts a project or refreshes its discoverable fields.
// The id is a pure function of the git remote, so repeated upserts for
// the same remote always hit the same row.
func (db *DB) UpsertProject(id, displayName, gitRemote, storePath string) error {
	_, err := db.Exec(`
		INSERT INTO projects (id, display_name, git_remote, store_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			git_remote = excluded.git_remote,
			store_path = excluded.store_path,
			updated_at = excluded.updated_at`,
		id, displayName, gitRemote, storePath, now(), now())
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// GetProject returns a project by id.
func (db *DB) GetProject(id string) (*Project, error) {
	row := db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// GetProjectByRemote returns a project by its git remote URL.
func (db *DB) GetProjectByRemote(remote string) (*Project, error) {
	row := db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE git_remote = ?`, remote)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project by remote: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects with review aggregates, ordered by
// display name.
func (db *DB) ListProjects() ([]ProjectSummary, error) {
	rows, err := db.Query(`
		SELECT ` + projectColumns + `,
			(SELECT COUNT(*) FROM reviews r WHERE r.project_id = projects.id) AS review_count,
			(SELECT MAX(r.reviewed_at) FROM reviews r WHERE r.project_id = projects.id) AS last_reviewed_at
		FROM projects
		ORDER BY display_name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []ProjectSummary
	for rows.Next() {
		var s ProjectSummary
		var autoReview, polling int
		var lastPolled, lastReviewed sql.NullString
		var createdAt, updatedAt string

		err := rows.Scan(&s.ID, &s.DisplayName, &s.GitRemote, &s.MainBranch, &autoReview,
			&s.TriggerLabel, &s.ReviewModel, &polling, &lastPolled, &s.StorePath,
			&createdAt, &updatedAt, &s.ReviewCount, &lastReviewed)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}

		s.AutoReviewEnabled = autoReview != 0
		s.PollingEnabled = polling != 0
		s.LastPolledAt = parseTimePtr(lastPolled)
		s.CreatedAt = parseTime(createdAt)
		s.UpdatedAt = parseTime(updatedAt)
		s.LastReviewedAt = parseTimePtr(lastReviewed)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PollingProjects returns projects with both auto-review and polling enabled.
func (db *DB) PollingProjects() ([]Project, error) {
	rows, err := db.Query(`SELECT ` + projectColumns + ` FROM projects
		WHERE auto_review_enabled = 1 AND polling_enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("polling projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// StampPolled records that a project was just polled.
func (db *DB) StampPolled(id string) error {
	_, err := db.Exec(`UPDATE projects SET last_polled_at = ? WHERE id = ?`, now(), id)
	if err != nil {
		return fmt.Errorf("stamp polled: %w", err)
	}
	return nil
}

// ProjectPatch is a partial settings update. Nil fields are left
// untouched. Each field maps to a fixed column, so the generated SQL
// never embeds caller-supplied column names.
type ProjectPatch struct {
	DisplayName       *string `json:"display_name,omitempty"`
	MainBranch        *string `json:"main_branch,omitempty"`
	AutoReviewEnabled *bool   `json:"auto_review_enabled,omitempty"`
	TriggerLabel      *string `json:"review_trigger_label,omitempty"`
	ReviewModel       *string `json:"review_model,omitempty"`
	PollingEnabled    *bool   `json:"polling_enabled,omitempty"`
}

// UpdateProjectSettings applies a partial update to a project row.
// Returns ErrNotFound if the project does not exist and an error when
// the patch is empty.
func (db *DB) UpdateProjectSettings(id string, patch ProjectPatch) error {
	var sets []string
	var args []any

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.DisplayName != nil {
		add("display_name", *patch.DisplayName)
	}
	if patch.MainBranch != nil {
		add("main_branch", *patch.MainBranch)
	}
	if patch.AutoReviewEnabled != nil {
		add("auto_review_enabled", boolToInt(*patch.AutoReviewEnabled))
	}
	if patch.TriggerLabel != nil {
		add("review_trigger_label", *patch.TriggerLabel)
	}
	if patch.ReviewModel != nil {
		add("review_model", *patch.ReviewModel)
	}
	if patch.PollingEnabled != nil {
		add("polling_enabled", boolToInt(*patch.PollingEnabled))
	}

	if len(sets) == 0 {
		return errors.New("no fields to update")
	}

	add("updated_at", now())
	args = append(args, id)

	res, err := db.Exec(`UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update project settings: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
