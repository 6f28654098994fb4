// Package server exposes the portal's HTTP surface: project CRUD,
// review history, discovery/trigger endpoints, poller control, and the
// GitHub webhook receiver.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/revue-dev/revue/internal/config"
	"github.com/revue-dev/revue/internal/discovery"
	"github.com/revue-dev/revue/internal/docstore"
	"github.com/revue-dev/revue/internal/metrics"
	"github.com/revue-dev/revue/internal/poller"
	"github.com/revue-dev/revue/internal/provider"
	"github.com/revue-dev/revue/internal/review"
	"github.com/revue-dev/revue/internal/storage"
	"github.com/revue-dev/revue/internal/webhook"
)

// Server is the HTTP server for revue.
type Server struct {
	cfg    *config.Config
	mux    *http.ServeMux
	db     *storage.DB
	docs   *docstore.Store
	forge  provider.Provider
	engine *discovery.Engine
	orch   *review.Orchestrator
	poll   *poller.Poller

	httpServer   *httpServer
	httpServerMu sync.RWMutex  // protects httpServer pointer
	ready        chan struct{} // closed when server is ready to accept connections
}

// New creates a new Server wired to its collaborators.
func New(cfg *config.Config, db *storage.DB, docs *docstore.Store, forge provider.Provider,
	engine *discovery.Engine, orch *review.Orchestrator, poll *poller.Poller) *Server {
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		db:     db,
		docs:   docs,
		forge:  forge,
		engine: engine,
		orch:   orch,
		poll:   poll,
		ready:  make(chan struct{}),
	}
	s.routes()
	return s
}

// Ready returns a channel that is closed when the server is ready to accept connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// routes sets up the HTTP routes.
func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.mux.HandleFunc("GET /api/projects", s.handleListProjects)
	s.mux.HandleFunc("POST /api/projects/refresh", s.handleRefreshProjects)
	s.mux.HandleFunc("GET /api/projects/{id}/settings", s.handleGetProjectSettings)
	s.mux.HandleFunc("PATCH /api/projects/{id}/settings", s.handlePatchProjectSettings)
	s.mux.HandleFunc("GET /api/projects/{id}/document", s.handleGetDocument)
	s.mux.HandleFunc("PUT /api/projects/{id}/document", s.handlePutDocument)
	s.mux.HandleFunc("GET /api/projects/{id}/document/versions", s.handleDocumentVersions)
	s.mux.HandleFunc("GET /api/projects/{id}/reviews", s.handleProjectReviews)

	s.mux.HandleFunc("GET /api/reviews/recent", s.handleRecentReviews)
	s.mux.HandleFunc("POST /api/reviews/{id}/publish", s.handlePublishReview)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("GET /api/settings/{key}", s.handleGetGlobalSetting)
	s.mux.HandleFunc("PUT /api/settings/{key}", s.handlePutGlobalSetting)

	s.mux.HandleFunc("POST /api/projects/{id}/check-prs", s.handleCheckPRs)
	s.mux.HandleFunc("POST /api/projects/{id}/review-pr", s.handleReviewPR)
	s.mux.HandleFunc("POST /api/projects/{id}/review-prs-stream", s.handleReviewPRsStream)

	s.mux.HandleFunc("POST /api/polling/start", s.handlePollingStart)
	s.mux.HandleFunc("POST /api/polling/stop", s.handlePollingStop)
	s.mux.HandleFunc("POST /api/polling/trigger", s.handlePollingTrigger)
	s.mux.HandleFunc("GET /api/polling/status", s.handlePollingStatus)

	githubHandler := webhook.NewGitHubHandler(s.cfg.GitHub.WebhookSecret, s.processPullRequestEvent)
	s.mux.Handle("POST /webhooks/github", githubHandler)
}

// handleHealth responds with server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db.Ping() == nil

	status := "ok"
	if !dbOK {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"checks": map[string]any{
			"database":       dbOK,
			"poller_running": s.poll.Status().Running,
		},
	})
}

// handleMetrics responds with current operational metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.Get())
}

// project loads the project addressed by the {id} path segment,
// answering 404 itself when it does not exist.
func (s *Server) project(w http.ResponseWriter, r *http.Request) *storage.Project {
	id := r.PathValue("id")
	p, err := s.db.GetProject(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found: "+id)
		return nil
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
