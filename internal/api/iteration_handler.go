// File path: internal/api/iteration_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/jmcasey/codeloom/internal/common"
	"github.com/jmcasey/codeloom/internal/pipeline"
)

func (s *Server) handleIteration(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	ctx := r.Context()
	projectID := strings.TrimSpace(chi.URLParam(r, "projectID"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("project id required"))
		return
	}
	var req iterationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("api: iteration decode failed", "project", projectID, "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("prompt required"))
		return
	}
	logger.Info("api: iteration request received",
		"project", projectID,
		"prompt_length", len(req.Prompt),
		"apply", req.Apply,
		"stream", req.Stream)

	opts := pipeline.Options{
		MessageLimit:   req.MessageLimit,
		MaxFiles:       req.MaxFiles,
		IncludeTests:   req.IncludeTests,
		ForeignProject: req.ForeignProject,
		Apply:          req.Apply,
	}

	if req.Stream {
		s.streamIteration(w, r, projectID, req.Prompt, opts)
		return
	}

	result, err := s.pipeline.RunIteration(ctx, projectID, req.Prompt, opts)
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIterationResponse(result))
}

// streamIteration runs the pipeline while relaying generation deltas as
// server-sent events, then emits the final result as a terminal event.
func (s *Server) streamIteration(w http.ResponseWriter, r *http.Request, projectID, prompt string, opts pipeline.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	opts.OnDelta = func(delta string) {
		payload, err := json.Marshal(map[string]string{"delta": delta})
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: delta\ndata: %s\n\n", payload)
		flusher.Flush()
	}

	result, err := s.pipeline.RunIteration(r.Context(), projectID, prompt, opts)
	if err != nil {
		payload, _ := json.Marshal(map[string]string{"error": err.Error(), "stage": stageOf(err)})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}
	payload, err := json.Marshal(toIterationResponse(result))
	if err != nil {
		common.Logger().Error("api: stream result encode failed", "project", projectID, "error", err)
		return
	}
	fmt.Fprintf(w, "event: result\ndata: %s\n\n", payload)
	flusher.Flush()
}

func toIterationResponse(result *pipeline.Result) iterationResponse {
	return iterationResponse{
		VersionID:     result.VersionID,
		VersionNumber: result.VersionNumber,
		Intent:        string(result.Intent),
		ModifiedFiles: result.ModifiedFiles,
		NewFiles:      result.NewFiles,
		DeletedFiles:  result.DeletedFiles,
		Description:   result.Description,
		Answer:        result.Answer,
		Warnings:      result.Warnings,
	}
}

func stageOf(err error) string {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return string(stageErr.Stage)
	}
	return ""
}

func writeStageError(w http.ResponseWriter, err error) {
	logger := common.Logger()
	stage := stageOf(err)
	logger.Error("api: iteration failed", "stage", stage, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": err.Error(),
		"stage": stage,
	})
}
