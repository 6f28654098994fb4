package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/revue-dev/revue/internal/discovery"
	"github.com/revue-dev/revue/internal/gitremote"
	"github.com/revue-dev/revue/internal/review"
	"github.com/revue-dev/revue/internal/storage"
	"github.com/revue-dev/revue/internal/webhook"
)

// handleCheckPRs streams a discovery pass over the project's open PRs
// as server-sent events, optionally triggering reviews for the pending
// ones in the same stream.
func (s *Server) handleCheckPRs(w http.ResponseWriter, r *http.Request) {
	project := s.project(w, r)
	if project == nil {
		return
	}

	var body struct {
		AutoTrigger bool `json:"auto_trigger"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sink := sse.sink()

	sink(review.Event{Type: review.EventStatus, Fields: map[string]any{
		"status":  "discovering",
		"project": project.ID,
	}})

	result, err := s.engine.Discover(r.Context(), project)
	if err != nil {
		sink(review.Event{Type: review.EventError, Fields: map[string]any{"error": err.Error()}})
		return
	}

	sink(review.Event{Type: review.EventPRsFound, Fields: map[string]any{
		"count": len(result.Candidates),
		"prs":   result.Candidates,
	}})

	pending := make(map[int]bool, len(result.Pending))
	for _, pr := range result.Pending {
		pending[pr.Number] = true
	}
	for _, pr := range result.Candidates {
		status := "reviewed"
		if pending[pr.Number] {
			status = "pending"
		}
		sink(review.Event{Type: review.EventPRStatus, Fields: map[string]any{
			"pr":     pr.Number,
			"title":  pr.Title,
			"status": status,
		}})
	}

	done := map[string]any{
		"candidates": len(result.Candidates),
		"pending":    len(result.Pending),
	}
	if body.AutoTrigger && len(result.Pending) > 0 {
		summary := s.orch.ReviewBatch(r.Context(), project, result.Pending, sink)
		done["summary"] = summary
	}
	sink(review.Event{Type: review.EventDone, Fields: done})
}

// handleReviewPR triggers a review of one PR in the background and
// returns the session id immediately.
func (s *Server) handleReviewPR(w http.ResponseWriter, r *http.Request) {
	project := s.project(w, r)
	if project == nil {
		return
	}

	var body struct {
		PRNumber int `json:"pr_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.PRNumber <= 0 {
		writeError(w, http.StatusBadRequest, "pr_number is required")
		return
	}

	pr, err := s.fetchCandidate(r.Context(), project, body.PRNumber)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	sessionID, err := s.orch.StartReview(project, *pr, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

// handleReviewPRsStream reviews a named set of PRs (or everything
// pending when the set is empty), streaming progress as SSE.
func (s *Server) handleReviewPRsStream(w http.ResponseWriter, r *http.Request) {
	project := s.project(w, r)
	if project == nil {
		return
	}

	var body struct {
		PRNumbers []int `json:"pr_numbers"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sink := sse.sink()

	var prs []discovery.Candidate
	if len(body.PRNumbers) == 0 {
		result, err := s.engine.Discover(r.Context(), project)
		if err != nil {
			sink(review.Event{Type: review.EventError, Fields: map[string]any{"error": err.Error()}})
			return
		}
		prs = result.Pending
	} else {
		for _, n := range body.PRNumbers {
			pr, err := s.fetchCandidate(r.Context(), project, n)
			if err != nil {
				sink(review.Event{Type: review.EventError, Fields: map[string]any{
					"pr":    n,
					"error": err.Error(),
				}})
				continue
			}
			prs = append(prs, *pr)
		}
	}

	summary := s.orch.ReviewBatch(r.Context(), project, prs, sink)
	sink(review.Event{Type: review.EventDone, Fields: map[string]any{"summary": summary}})
}

// fetchCandidate loads one PR from the forge as a review candidate.
func (s *Server) fetchCandidate(ctx context.Context, project *storage.Project, number int) (*discovery.Candidate, error) {
	owner, repo := gitremote.Parse(project.GitRemote)
	if owner == "" || repo == "" {
		return nil, errors.New("project has no parseable git remote: " + project.GitRemote)
	}

	pr, err := s.forge.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	return &discovery.Candidate{
		Number:    pr.Number,
		Title:     pr.Title,
		URL:       pr.URL,
		Author:    pr.Author,
		UpdatedAt: pr.UpdatedAt,
	}, nil
}

func (s *Server) handlePollingStart(w http.ResponseWriter, r *http.Request) {
	s.poll.Start()
	writeJSON(w, http.StatusOK, s.poll.Status())
}

func (s *Server) handlePollingStop(w http.ResponseWriter, r *http.Request) {
	s.poll.Stop()
	writeJSON(w, http.StatusOK, s.poll.Status())
}

func (s *Server) handlePollingTrigger(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.poll.PollOnce(context.Background()); err != nil {
			log.Printf("manual poll cycle: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handlePollingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.poll.Status())
}

// processPullRequestEvent handles an acknowledged webhook event:
// resolve the project, check its settings, and start a review.
func (s *Server) processPullRequestEvent(e *webhook.PullRequestEvent) {
	project, err := s.db.GetProject(gitremote.ProjectID(e.CloneURL))
	if errors.Is(err, storage.ErrNotFound) {
		project, err = s.db.GetProjectByRemote(e.CloneURL)
	}
	if err != nil {
		log.Printf("webhook: no project for %s: %v", e.RepoFullName, err)
		return
	}

	if !project.AutoReviewEnabled {
		log.Printf("webhook: auto review disabled for %s, ignoring PR #%d", project.ID, e.Number)
		return
	}
	if !e.HasLabel(project.TriggerLabel) {
		return
	}

	pr := discovery.Candidate{
		Number:    e.Number,
		Title:     e.Title,
		URL:       e.URL,
		UpdatedAt: e.UpdatedAt,
	}
	if _, err := s.orch.ReviewPR(context.Background(), project, pr, nil); err != nil {
		log.Printf("webhook: review of %s#%d failed: %v", project.ID, e.Number, err)
	}
}
