package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// InsertDocumentVersion appends an audit-trail entry for a guideline
// document edit and returns the new version number. moduleName is nil
// for the project's root document.
func (db *DB) InsertDocumentVersion(projectID string, moduleName *string, content, modifiedBy string) (int, error) {
	last, err := db.latestDocumentVersionNumber(projectID, moduleName)
	if err != nil {
		return 0, err
	}
	version := last + 1

	_, err = db.Exec(`
		INSERT INTO document_versions (project_id, module_name, content, modified_at, modified_by, version)
		VALUES (?, ?, ?, ?, ?, ?)`,
		projectID, moduleName, content, now(), modifiedBy, version)
	if err != nil {
		return 0, fmt.Errorf("insert document version: %w", err)
	}
	return version, nil
}

func (db *DB) latestDocumentVersionNumber(projectID string, moduleName *string) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT version FROM document_versions
		WHERE project_id = ? AND module_name IS ?
		ORDER BY version DESC LIMIT 1`,
		projectID, moduleName).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest document version: %w", err)
	}
	return version, nil
}

// LatestDocumentVersion returns the newest audit entry for a document,
// or ErrNotFound if it has never been edited.
func (db *DB) LatestDocumentVersion(projectID string, moduleName *string) (*DocumentVersion, error) {
	row := db.QueryRow(`
		SELECT id, project_id, module_name, content, modified_at, modified_by, version
		FROM document_versions
		WHERE project_id = ? AND module_name IS ?
		ORDER BY version DESC LIMIT 1`,
		projectID, moduleName)

	v, err := scanDocumentVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest document version: %w", err)
	}
	return v, nil
}

// ListDocumentVersions returns all audit entries for a document, newest first.
func (db *DB) ListDocumentVersions(projectID string, moduleName *string) ([]DocumentVersion, error) {
	rows, err := db.Query(`
		SELECT id, project_id, module_name, content, modified_at, modified_by, version
		FROM document_versions
		WHERE project_id = ? AND module_name IS ?
		ORDER BY version DESC`,
		projectID, moduleName)
	if err != nil {
		return nil, fmt.Errorf("list document versions: %w", err)
	}
	defer rows.Close()

	var out []DocumentVersion
	for rows.Next() {
		v, err := scanDocumentVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func scanDocumentVersion(row interface{ Scan(...any) error }) (*DocumentVersion, error) {
	var v DocumentVersion
	var moduleName sql.NullString
	var modifiedAt string

	err := row.Scan(&v.ID, &v.ProjectID, &moduleName, &v.Content, &modifiedAt, &v.ModifiedBy, &v.Version)
	if err != nil {
		return nil, err
	}

	if moduleName.Valid {
		v.ModuleName = &moduleName.String
	}
	v.ModifiedAt = parseTime(modifiedAt)
	return &v, nil
}
