package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boshu2/cuti-queue/internal/queue"
)

// queueStatusResponse is GET /queue/status's body, per spec §6.
type queueStatusResponse struct {
	TotalPrompts     int                   `json:"total_prompts"`
	TotalProcessed   int                   `json:"total_processed"`
	FailedCount      int                   `json:"failed_count"`
	RateLimitedCount int                   `json:"rate_limited_count"`
	StatusCounts     map[queue.Status]int  `json:"status_counts"`
	LastProcessed    interface{}           `json:"last_processed,omitempty"`
	WorkingDir       string                `json:"working_directory"`
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.proc.GetStats()
	writeJSON(w, http.StatusOK, queueStatusResponse{
		TotalPrompts:     stats.TotalPrompts,
		TotalProcessed:   stats.TotalProcessed,
		FailedCount:      stats.FailedCount,
		RateLimitedCount: stats.RateLimitedCount,
		StatusCounts:     stats.StatusCounts,
		LastProcessed:    stats.LastProcessed,
		WorkingDir:       stats.WorkingDir,
	})
	s.metrics.queueDepth.Set(float64(stats.TotalPrompts))
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	status := queue.Status(r.URL.Query().Get("status"))
	writeJSON(w, http.StatusOK, s.proc.ListPrompts(status))
}

// enqueueRequest is POST /queue/prompts's body, per spec §4.6.
type enqueueRequest struct {
	Content      string   `json:"content"`
	Priority     int      `json:"priority"`
	WorkingDir   string   `json:"working_dir"`
	ContextFiles []string `json:"context_files,omitempty"`
	MaxRetries   int      `json:"max_retries"`
	EstTokens    int      `json:"est_tokens,omitempty"`
}

type enqueueResponse struct {
	Success  bool   `json:"success"`
	PromptID string `json:"prompt_id"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaultMaxRetries
	}

	prompt, err := s.proc.Enqueue(req.Content, req.Priority, req.WorkingDir, req.ContextFiles, maxRetries, req.EstTokens)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.enqueued.Inc()
	writeJSON(w, http.StatusOK, enqueueResponse{Success: true, PromptID: prompt.ID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.proc.Cancel(id); err != nil {
		if err == queue.ErrNotFound {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
