// Package server exposes the dashboard REST API and the real-time
// WebSocket channel.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/linkeLi0421/Epstein-Rag/internal/bus"
	"github.com/linkeLi0421/Epstein-Rag/internal/config"
	"github.com/linkeLi0421/Epstein-Rag/internal/db"
	"github.com/linkeLi0421/Epstein-Rag/internal/metrics"
	"github.com/linkeLi0421/Epstein-Rag/internal/service"
)

// Server wires the dashboard services to HTTP routes.
type Server struct {
	cfg      config.Config
	jobs     *service.JobManager
	queries  *service.QueryLogService
	health   *service.HealthService
	bus      *bus.Bus
	metrics  *metrics.Collector
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a server over the given services.
func New(
	cfg config.Config,
	jobs *service.JobManager,
	queries *service.QueryLogService,
	health *service.HealthService,
	eventBus *bus.Bus,
	mc *metrics.Collector,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		jobs:    jobs,
		queries: queries,
		health:  health,
		bus:     eventBus,
		metrics: mc,
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Routes builds the HTTP handler with all routes and middleware attached.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Producer surface: indexing workers report lifecycle transitions here.
	mux.HandleFunc("POST /api/indexing/jobs", s.handleCreateJob)
	mux.HandleFunc("POST /api/indexing/jobs/{id}/progress", s.handleReportProgress)
	mux.HandleFunc("POST /api/indexing/jobs/{id}/complete", s.handleCompleteJob)
	mux.HandleFunc("POST /api/indexing/jobs/{id}/fail", s.handleFailJob)

	// Dashboard surface: the web UI reads state and cancels jobs here.
	mux.HandleFunc("GET /api/dashboard/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/dashboard/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/dashboard/jobs/{id}/progress", s.handleJobProgress)
	mux.HandleFunc("POST /api/dashboard/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /api/dashboard/queries", s.handleListQueries)
	mux.HandleFunc("POST /api/dashboard/queries", s.handleLogQuery)
	mux.HandleFunc("GET /api/dashboard/queries/stats", s.handleQueryStats)
	mux.HandleFunc("GET /api/dashboard/queries/{id}", s.handleGetQuery)
	mux.HandleFunc("GET /api/dashboard/health", s.handleHealth)

	mux.HandleFunc("GET /ws/dashboard", s.handleWebSocket)

	return Logging(s.logger)(CORS(s.cfg.CORSOrigins)(mux))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses. Lifecycle rejections
// are a conflict, not a server fault.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case service.IsRejection(err):
		rej := service.AsRejection(err)
		writeJSON(w, http.StatusConflict, errorBody{Error: rej.Message, Reason: string(rej.Reason)})
	case errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, service.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, db.ErrTransactionConflict), errors.Is(err, db.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "store unavailable, retry"})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
