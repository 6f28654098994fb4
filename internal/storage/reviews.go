package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const reviewColumns = `id, project_id, pr_number, pr_title, pr_url, repository,
	reviewed_at, verdict, comment_count, review_dir, review_output, github_review_id, created_at`

func scanReview(row interface{ Scan(...any) error }) (*Review, error) {
	var r Review
	var verdict, reviewedAt, createdAt string
	var output sql.NullString
	var ghID sql.NullInt64

	err := row.Scan(&r.ID, &r.ProjectID, &r.PRNumber, &r.PRTitle, &r.PRURL, &r.Repository,
		&reviewedAt, &verdict, &r.CommentCount, &r.ReviewDir, &output, &ghID, &createdAt)
	if err != nil {
		return nil, err
	}

	r.ReviewedAt = parseTime(reviewedAt)
	r.Verdict = Verdict(verdict)
	r.ReviewOutput = output.String
	r.CreatedAt = parseTime(createdAt)
	if ghID.Valid {
		r.GitHubReviewID = &ghID.Int64
	}
	return &r, nil
}

// ReviewID composes a unique review identifier from the project, PR
// number, and creation instant, so repeated attempts on the same PR
// never collide.
func ReviewID(projectID string, prNumber int) string {
	return fmt.Sprintf("%s-pr-%d-%d", projectID, prNumber, time.Now().UnixMilli())
}

// InsertPendingReview inserts a placeholder review row claiming a PR
// before the risky work (clone, agent run) starts. A concurrent
// discovery cycle sees the claim and does not double-trigger.
func (db *DB) InsertPendingReview(r *Review) error {
	if r.Verdict == "" {
		r.Verdict = VerdictComment
	}
	ts := now()
	_, err := db.Exec(`
		INSERT INTO reviews (id, project_id, pr_number, pr_title, pr_url, repository,
			reviewed_at, verdict, comment_count, review_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.PRNumber, r.PRTitle, r.PRURL, r.Repository,
		ts, string(r.Verdict), r.CommentCount, r.ReviewDir, ts)
	if err != nil {
		return fmt.Errorf("insert pending review: %w", err)
	}
	r.ReviewedAt = parseTime(ts)
	return nil
}

// FinalizeReview records the outcome of a completed agent run on an
// existing review row.
func (db *DB) FinalizeReview(id string, verdict Verdict, commentCount int, reviewDir, output string) error {
	res, err := db.Exec(`
		UPDATE reviews
		SET verdict = ?, comment_count = ?, review_dir = ?, review_output = ?, reviewed_at = ?
		WHERE id = ?`,
		string(verdict), commentCount, reviewDir, output, now(), id)
	if err != nil {
		return fmt.Errorf("finalize review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetGitHubReviewID records the forge-assigned id after a successful publish.
func (db *DB) SetGitHubReviewID(id string, githubReviewID int64) error {
	res, err := db.Exec(`UPDATE reviews SET github_review_id = ? WHERE id = ?`, githubReviewID, id)
	if err != nil {
		return fmt.Errorf("set github review id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetReview returns a review by id.
func (db *DB) GetReview(id string) (*Review, error) {
	row := db.QueryRow(`SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return r, nil
}

// LatestReview returns the most recent review row for a PR, or
// ErrNotFound when the PR has never been reviewed.
func (db *DB) LatestReview(projectID string, prNumber int) (*Review, error) {
	row := db.QueryRow(`SELECT `+reviewColumns+` FROM reviews
		WHERE project_id = ? AND pr_number = ?
		ORDER BY reviewed_at DESC LIMIT 1`, projectID, prNumber)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest review: %w", err)
	}
	return r, nil
}

// LatestFinalizedReview returns the most recent non-placeholder review
// for a PR, skipping claim rows from in-flight or failed attempts.
func (db *DB) LatestFinalizedReview(projectID string, prNumber int) (*Review, error) {
	row := db.QueryRow(`SELECT `+reviewColumns+` FROM reviews
		WHERE project_id = ? AND pr_number = ? AND review_dir NOT LIKE 'pending-%'
		ORDER BY reviewed_at DESC LIMIT 1`, projectID, prNumber)
	r, err := scanReview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest finalized review: %w", err)
	}
	return r, nil
}

// ListReviews returns all reviews for a project, most recent first.
func (db *DB) ListReviews(projectID string) ([]Review, error) {
	return db.queryReviews(`SELECT `+reviewColumns+` FROM reviews
		WHERE project_id = ? ORDER BY reviewed_at DESC`, projectID)
}

// RecentReviews returns the most recent reviews across all projects.
func (db *DB) RecentReviews(limit int) ([]Review, error) {
	if limit <= 0 {
		limit = 20
	}
	return db.queryReviews(`SELECT `+reviewColumns+` FROM reviews
		ORDER BY reviewed_at DESC LIMIT ?`, limit)
}

func (db *DB) queryReviews(query string, args ...any) ([]Review, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
