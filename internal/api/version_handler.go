// File path: internal/api/version_handler.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/jmcasey/codeloom/internal/common"
	"github.com/jmcasey/codeloom/internal/version"
)

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.versions.ListProjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"projects": projects})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(chi.URLParam(r, "projectID"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project id required"))
		return
	}
	versions, err := s.versions.VersionsForProject(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project":  projectID,
		"versions": summarizeAll(versions),
	})
}

func (s *Server) handleLatestVersion(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(chi.URLParam(r, "projectID"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project id required"))
		return
	}
	latest, err := s.versions.GetLatestVersion(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if latest == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("project %s has no completed versions", projectID))
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	versionID := strings.TrimSpace(chi.URLParam(r, "versionID"))
	record, err := s.versions.GetVersion(r.Context(), versionID)
	if err != nil {
		writeVersionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	versionID := strings.TrimSpace(chi.URLParam(r, "versionID"))
	history, err := s.versions.VersionHistory(r.Context(), versionID)
	if err != nil {
		writeVersionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version": versionID,
		"history": summarizeAll(history),
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	baseID := strings.TrimSpace(chi.URLParam(r, "baseID"))
	nextID := strings.TrimSpace(chi.URLParam(r, "nextID"))
	base, err := s.versions.GetVersion(ctx, baseID)
	if err != nil {
		writeVersionError(w, err)
		return
	}
	next, err := s.versions.GetVersion(ctx, nextID)
	if err != nil {
		writeVersionError(w, err)
		return
	}
	diff := version.CompareVersions(base, next)
	common.Logger().Debug("api: versions compared", "base", baseID, "next", nextID, "changes", len(diff))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"base":    baseID,
		"next":    nextID,
		"changes": diff,
	})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(chi.URLParam(r, "projectID"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project id required"))
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	messages, err := s.memory.RecentMessages(r.Context(), projectID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project":  projectID,
		"messages": messages,
	})
}

func writeVersionError(w http.ResponseWriter, err error) {
	if errors.Is(err, version.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}
