// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/jmcasey/codeloom/internal/common"
	"github.com/jmcasey/codeloom/internal/data/orchestrator"
	"github.com/jmcasey/codeloom/internal/memory"
	"github.com/jmcasey/codeloom/internal/pipeline"
	"github.com/jmcasey/codeloom/internal/version"
)

// Server exposes the iteration pipeline and the version catalog over HTTP.
type Server struct {
	router   chi.Router
	pipeline *pipeline.Pipeline
	versions *version.Store
	memory   *memory.Store
}

func NewServer(orch *orchestrator.Orchestrator, pipe *pipeline.Pipeline) (*Server, error) {
	logger := common.Logger()
	if orch == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if pipe == nil {
		return nil, fmt.Errorf("pipeline required")
	}
	versions := orch.Versions()
	if versions == nil {
		return nil, fmt.Errorf("version store unavailable")
	}
	logger.Info("api: building server",
		"memory_root", orch.Memory().Root(),
		"vector_available", orch.Vector() != nil && orch.Vector().Available(),
		"sandbox_available", orch.Sandbox() != nil)
	s := &Server{
		router:   chi.NewRouter(),
		pipeline: pipe,
		versions: versions,
		memory:   orch.Memory(),
	}
	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := common.Logger()
	logger.Info("api: configuring routes")
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.router.Post("/v1/projects/{projectID}/iterations", s.handleIteration)
	s.router.Get("/v1/projects", s.handleProjects)
	s.router.Get("/v1/projects/{projectID}/versions", s.handleVersions)
	s.router.Get("/v1/projects/{projectID}/versions/latest", s.handleLatestVersion)
	s.router.Get("/v1/projects/{projectID}/conversation", s.handleConversation)
	s.router.Get("/v1/versions/{versionID}", s.handleVersion)
	s.router.Get("/v1/versions/{versionID}/history", s.handleHistory)
	s.router.Get("/v1/versions/{baseID}/compare/{nextID}", s.handleCompare)
	s.router.Get("/v1/logs", s.handleLogs)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": common.LogEntries()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
