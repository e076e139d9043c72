package httpapi

import (
	"context"
	"net/http"
	"time"
)

// healthResponse is GET /health's body: a component-by-component status
// document per spec §6. It reports two components, "queue" (always "ok")
// and "executor" (the result of the executor probe); disk persistence is
// not checked.
type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{
		"queue": "ok",
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if ok, msg := s.proc.TestExecutor(ctx); ok {
		components["executor"] = "ok"
	} else {
		components["executor"] = "unavailable: " + msg
	}

	overall := "ok"
	for _, v := range components {
		if v != "ok" {
			overall = "degraded"
			break
		}
	}

	status := http.StatusOK
	if overall != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Status: overall, Components: components})
}
