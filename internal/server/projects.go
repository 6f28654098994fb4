package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/revue-dev/revue/internal/docstore"
	"github.com/revue-dev/revue/internal/storage"
)

// handleListProjects returns all projects with review aggregates.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.db.ListProjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []storage.ProjectSummary{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// handleRefreshProjects syncs the project table with what exists in the
// filesystem document store.
func (s *Server) handleRefreshProjects(w http.ResponseWriter, r *http.Request) {
	discovered, err := s.docs.DiscoverProjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	synced := 0
	for _, p := range discovered {
		if err := s.db.UpsertProject(p.ID, p.DisplayName, p.GitRemote, p.StorePath); err != nil {
			log.Printf("refresh: upserting %s: %v", p.ID, err)
			continue
		}
		synced++
	}

	projects, err := s.db.ListProjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"synced":   synced,
		"projects": projects,
	})
}

func (s *Server) handleGetProjectSettings(w http.ResponseWriter, r *http.Request) {
	project := s.project(w, r)
	if project == nil {
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handlePatchProjectSettings(w http.ResponseWriter, r *http.Request) {
	project := s.project(w, r)
	if project == nil {
		return
	}

	var patch storage.ProjectPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.db.UpdateProjectSettings(project.ID, patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.db.GetProject(project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// moduleParam returns the optional ?module= query parameter.
func moduleParam(r *http.Request) *string {
	if m := r.URL.Query().Get("module"); m != "" {
		return &m
	}
	return nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	project := s.project(w, r)
	if project == nil {
		return
	}

	module := moduleParam(r)
	content, err := s.docs.ReadDocument(project.ID, module)
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": project.ID,
		"module":     module,
		"content":    content,
	})
}

func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	project := s.project(w, r)
	if project == nil {
		return
	}

	var body struct {
		Content    string  `json:"content"`
		Module     *string `json:"module,omitempty"`
		ModifiedBy string  `json:"modified_by,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.ModifiedBy == "" {
		body.ModifiedBy = "operator"
	}

	if _, err := s.docs.WriteDocument(project.ID, body.Module, body.Content); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	version, err := s.db.InsertDocumentVersion(project.ID, body.Module, body.Content, body.ModifiedBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": version})
}

func (s *Server) handleDocumentVersions(w http.ResponseWriter, r *http.Request) {
	project := s.project(w, r)
	if project == nil {
		return
	}

	versions, err := s.db.ListDocumentVersions(project.ID, moduleParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if versions == nil {
		versions = []storage.DocumentVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}
