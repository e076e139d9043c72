package httpapi

import (
	"net/http"

	"github.com/boshu2/cuti-queue/internal/broadcast"
)

// handleEvents implements C7: a long-lived SSE subscription per spec §6's
// GET /events. Each connection gets its own bounded subscriber channel from
// the broadcast hub; a full buffer drops the slow client rather than
// blocking the processor that publishes to it.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			frame, err := broadcast.EncodeSSE(msg)
			if err != nil {
				s.log.Error("events: encode message", "err", err)
				continue
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
