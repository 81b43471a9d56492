// Package httpapi exposes the system over HTTP: task/scheduled-task CRUD,
// scheduler control, streaming sessions (SSE and websocket transports),
// and the ambient health/readiness/metrics endpoints.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nextlevelbuilder/scheduler/internal/metrics"
	"github.com/nextlevelbuilder/scheduler/internal/scheduler"
	"github.com/nextlevelbuilder/scheduler/internal/session"
	"github.com/nextlevelbuilder/scheduler/internal/storage"
)

// Server wires the HTTP mux to the scheduler/storage/session layers.
type Server struct {
	store     *storage.Store
	sched     *scheduler.Scheduler
	sessions  *session.Manager
	token     string
	allowAny  bool
	workspace string
}

type Config struct {
	Store             *storage.Store
	Scheduler         *scheduler.Scheduler
	Sessions          *session.Manager
	Token             string
	AllowAnyWorkspace bool
	DefaultWorkspace  string
}

func NewServer(cfg Config) *Server {
	return &Server{
		store:     cfg.Store,
		sched:     cfg.Scheduler,
		sessions:  cfg.Sessions,
		token:     cfg.Token,
		allowAny:  cfg.AllowAnyWorkspace,
		workspace: cfg.DefaultWorkspace,
	}
}

// Routes builds the full mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/tasks", s.auth(http.HandlerFunc(s.handleCreateTask)))
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.Handle("DELETE /api/tasks/{id}", s.auth(http.HandlerFunc(s.handleDeleteTask)))
	mux.Handle("POST /api/tasks/{id}/run-now", s.auth(http.HandlerFunc(s.handleRunTaskNow)))
	mux.Handle("DELETE /api/tasks/clear", s.auth(http.HandlerFunc(s.handleClearTasks)))

	mux.Handle("POST /api/scheduled-tasks", s.auth(http.HandlerFunc(s.handleCreateScheduled)))
	mux.HandleFunc("GET /api/scheduled-tasks", s.handleListScheduled)
	mux.Handle("PATCH /api/scheduled-tasks/{id}", s.auth(http.HandlerFunc(s.handlePatchScheduled)))
	mux.Handle("DELETE /api/scheduled-tasks/{id}", s.auth(http.HandlerFunc(s.handleDeleteScheduled)))
	mux.Handle("POST /api/scheduled-tasks/{id}/toggle", s.auth(http.HandlerFunc(s.handleToggleScheduled)))
	mux.Handle("POST /api/scheduled-tasks/{id}/run-now", s.auth(http.HandlerFunc(s.handleRunScheduledNow)))
	mux.HandleFunc("GET /api/scheduled-tasks/{id}/run-log", s.handleRunLog)
	mux.HandleFunc("GET /api/scheduler/cron-examples", s.handleCronExamples)

	mux.HandleFunc("GET /api/scheduler/status", s.handleSchedulerStatus)
	mux.Handle("POST /api/scheduler/start", s.auth(http.HandlerFunc(s.handleSchedulerStart)))
	mux.Handle("POST /api/scheduler/stop", s.auth(http.HandlerFunc(s.handleSchedulerStop)))
	mux.Handle("POST /api/scheduler/validate-cron", s.auth(http.HandlerFunc(s.handleValidateCron)))

	mux.Handle("POST /api/task/stream", rateLimited(s.auth(http.HandlerFunc(s.handleStream))))
	mux.Handle("POST /api/task/answer", s.auth(http.HandlerFunc(s.handleAnswer)))
	mux.HandleFunc("GET /api/task/session/{id}/status", s.handleSessionStatus)
	mux.HandleFunc("GET /api/task/sessions", s.handleListSessions)

	return mux
}

// envelope is the uniform success response shape.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// errEnvelope is the uniform error response shape.
type errEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("httpapi: failed to encode response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errEnvelope{Success: false, Error: msg, Code: code})
}

// auth enforces a bearer token on mutating routes using a timing-safe
// comparison, the way the teacher's internal/http/auth.go does.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(got) <= len(prefix) || got[:len(prefix)] != prefix {
			writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		presented := got[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	// Reports ok unconditionally: Queue.Count treats an unreadable collection
	// as empty, so storage faults are not detected here, and the scheduler
	// status is reported but does not affect the response code.
	_ = s.store.Queue.Count()
	status := s.sched.GetStatusInfo()
	writeOK(w, map[string]any{"storage": "ok", "scheduler": status.Status})
}
