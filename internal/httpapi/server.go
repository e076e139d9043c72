// Package httpapi implements C6: synchronous JSON request/response
// endpoints over the queue and accounts, plus the SSE push endpoint
// backing C7. Grounded on SnellerInc-sneller's elasticproxy router
// construction (mux.NewRouter, logging-response-writer wrapping) but
// serving the endpoints of spec §6 instead of a search API.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boshu2/cuti-queue/internal/accounts"
	"github.com/boshu2/cuti-queue/internal/broadcast"
	"github.com/boshu2/cuti-queue/internal/queue"
)

// Server is the control plane's HTTP surface.
type Server struct {
	proc              *queue.Processor
	accts             *accounts.Store
	hub               *broadcast.Hub
	log               *slog.Logger
	metrics           *Metrics
	router            *mux.Router
	defaultMaxRetries int
}

// NewServer builds the router for all endpoints in spec §6.
// defaultMaxRetries fills in enqueue requests that omit max_retries. m
// supplies the /metrics registry; a nil m is replaced by a fresh Metrics
// of the server's own.
func NewServer(proc *queue.Processor, accts *accounts.Store, hub *broadcast.Hub, log *slog.Logger, defaultMaxRetries int, m *Metrics) *Server {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = NewMetrics()
	}

	s := &Server{proc: proc, accts: accts, hub: hub, log: log, metrics: m, defaultMaxRetries: defaultMaxRetries}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/queue/status", s.handleQueueStatus).Methods(http.MethodGet)
	r.HandleFunc("/queue/prompts", s.handleListPrompts).Methods(http.MethodGet)
	r.HandleFunc("/queue/prompts", s.handleEnqueue).Methods(http.MethodPost)
	r.HandleFunc("/queue/prompts/{id}", s.handleCancel).Methods(http.MethodDelete)

	r.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	r.HandleFunc("/accounts/use/{name}", s.handleUseAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/save", s.handleSaveAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/new", s.handleNewAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{name}", s.handleDeleteAccount).Methods(http.MethodDelete)
	r.HandleFunc("/accounts/{name}", s.handleGetAccount).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

// loggingResponseWriter wraps http.ResponseWriter to capture the status
// code for access logging, mirroring the teacher pack's proxy middleware.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lw, r)
		s.log.Debug("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", lw.status, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
