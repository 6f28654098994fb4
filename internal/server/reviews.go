package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/revue-dev/revue/internal/docstore"
	"github.com/revue-dev/revue/internal/provider"
	"github.com/revue-dev/revue/internal/storage"
)

func (s *Server) handleProjectReviews(w http.ResponseWriter, r *http.Request) {
	project := s.project(w, r)
	if project == nil {
		return
	}

	reviews, err := s.db.ListReviews(project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reviews == nil {
		reviews = []storage.Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleRecentReviews(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	reviews, err := s.db.RecentReviews(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reviews == nil {
		reviews = []storage.Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, err := s.db.GetSession(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGetGlobalSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, err := s.db.GetGlobalSetting(key)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "setting not found: "+key)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Server) handlePutGlobalSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.db.SetGlobalSetting(key, body.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": body.Value})
}

// handlePublishReview posts a stored review back to the forge as a
// real pull request review.
func (s *Server) handlePublishReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rev, err := s.db.GetReview(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "review not found: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	output, err := s.loadReviewOutput(rev)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	owner, repo, ok := strings.Cut(rev.Repository, "/")
	if !ok {
		writeError(w, http.StatusConflict, "review has no usable repository: "+rev.Repository)
		return
	}

	posted, err := s.forge.CreateReview(r.Context(), owner, repo, rev.PRNumber, publishRequest(output))
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("publishing review: %v", err))
		return
	}

	if err := s.db.SetGitHubReviewID(rev.ID, posted.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"github_review_id": posted.ID,
		"url":              posted.URL,
	})
}

// loadReviewOutput recovers the structured artifact for a review,
// preferring the copy stored inline in the database.
func (s *Server) loadReviewOutput(rev *storage.Review) (*docstore.ReviewOutput, error) {
	if rev.ReviewOutput != "" {
		var out docstore.ReviewOutput
		if err := json.Unmarshal([]byte(rev.ReviewOutput), &out); err == nil {
			return &out, nil
		}
	}

	if rev.ReviewDir == "" || strings.HasPrefix(rev.ReviewDir, "pending-") {
		return nil, fmt.Errorf("review %s has no output artifact to publish", rev.ID)
	}

	out, err := docstore.ReadReviewOutput(rev.ReviewDir)
	if err != nil {
		return nil, fmt.Errorf("review %s output artifact unreadable: %w", rev.ID, err)
	}
	return out, nil
}

// publishRequest maps an artifact into the forge review request.
func publishRequest(out *docstore.ReviewOutput) *provider.ReviewRequest {
	event := "COMMENT"
	switch storage.ParseVerdict(out.Verdict) {
	case storage.VerdictApprove:
		event = "APPROVE"
	case storage.VerdictRequestChanges:
		event = "REQUEST_CHANGES"
	}

	req := &provider.ReviewRequest{
		Body:  out.OverallSummary,
		Event: event,
	}
	for _, c := range out.Comments {
		req.Comments = append(req.Comments, provider.ReviewComment{
			Path:      c.Path,
			StartLine: c.StartLine,
			Line:      c.EndLine,
			Body:      c.Body,
		})
	}
	return req
}
