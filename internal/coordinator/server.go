// Package coordinator is a small in-memory reference implementation of the
// coordinator HTTP API the workers poll. It keeps one task queue per worker.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valter-silva-au/heady-conductor/internal/core"
	"github.com/valter-silva-au/heady-conductor/pkg/models"
)

// maxResults bounds the completed-result history kept for /status.
const maxResults = 1000

// EnqueueRequest is the body of POST /tasks.
type EnqueueRequest struct {
	WorkerID string         `json:"worker_id"`
	TaskType string         `json:"task_type"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Status is the body of GET /status.
type Status struct {
	Workers   []models.Registration `json:"workers"`
	Pending   map[string]int        `json:"pending"`
	Completed int                   `json:"completed"`
	Failed    int                   `json:"failed"`
	Recent    []models.TaskResult   `json:"recent"`
	StartedAt time.Time             `json:"started_at"`
}

// Server holds the queues and serves the coordinator API.
type Server struct {
	mu        sync.Mutex
	queues    map[string][]models.Task
	workers   map[string]models.Registration
	order     []string
	results   []models.TaskResult
	completed int
	failed    int
	startedAt time.Time

	events core.EventLogger
	logger *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithEventLogger records coordinator events to the given event log.
func WithEventLogger(e core.EventLogger) Option {
	return func(s *Server) { s.events = e }
}

// NewServer creates an empty coordinator.
func NewServer(opts ...Option) *Server {
	s := &Server{
		queues:    make(map[string][]models.Task),
		workers:   make(map[string]models.Registration),
		startedAt: time.Now().UTC(),
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.Named("coordinator")
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", s.handleFetch)
	mux.HandleFunc("POST /tasks", s.handleEnqueue)
	mux.HandleFunc("POST /task/complete", s.handleComplete)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

// Enqueue adds a task to a worker's queue and returns it with its new id.
func (s *Server) Enqueue(workerID, taskType string, payload map[string]any) (models.Task, error) {
	if workerID == "" || taskType == "" {
		return models.Task{}, fmt.Errorf("worker_id and task_type are required")
	}
	t := models.Task{ID: uuid.NewString(), TaskType: taskType, Payload: payload}
	s.mu.Lock()
	s.queues[workerID] = append(s.queues[workerID], t)
	s.mu.Unlock()
	s.logger.Debug("task enqueued", zap.String("worker_id", workerID), zap.String("task_id", t.ID), zap.String("task_type", taskType))
	return t, nil
}

// Drain removes and returns every queued task for workerID.
func (s *Server) Drain(workerID string) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := s.queues[workerID]
	delete(s.queues, workerID)
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks
}

// Complete records a task result.
func (s *Server) Complete(res models.TaskResult) {
	s.mu.Lock()
	if res.Status == models.TaskCompleted {
		s.completed++
	} else {
		s.failed++
	}
	s.results = append(s.results, res)
	if len(s.results) > maxResults {
		s.results = s.results[len(s.results)-maxResults:]
	}
	s.mu.Unlock()

	s.logger.Info("task result received",
		zap.String("task_id", res.TaskID),
		zap.String("worker_id", res.WorkerID),
		zap.String("status", res.Status),
	)
	if s.events != nil {
		if err := s.events.LogEvent(models.EventTaskReported, map[string]any{
			"task_id":   res.TaskID,
			"worker_id": res.WorkerID,
			"task_type": res.TaskType,
			"status":    res.Status,
		}); err != nil {
			s.logger.Debug("event log write failed", zap.Error(err))
		}
	}
}

// Register adds or replaces a worker and returns all registered worker ids.
func (s *Server) Register(reg models.Registration) ([]string, error) {
	if reg.WorkerID == "" {
		return nil, fmt.Errorf("workerId is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workers[reg.WorkerID]; !ok {
		s.order = append(s.order, reg.WorkerID)
	}
	s.workers[reg.WorkerID] = reg
	s.logger.Info("worker registered", zap.String("worker_id", reg.WorkerID), zap.String("role", reg.Role))
	return append([]string(nil), s.order...), nil
}

// Status reports registered workers, queue depths and recent results.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Workers:   make([]models.Registration, 0, len(s.order)),
		Pending:   make(map[string]int, len(s.queues)),
		Completed: s.completed,
		Failed:    s.failed,
		StartedAt: s.startedAt,
	}
	for _, id := range s.order {
		st.Workers = append(st.Workers, s.workers[id])
	}
	for id, q := range s.queues {
		st.Pending[id] = len(q)
	}
	start := max(0, len(s.results)-20)
	st.Recent = append([]models.TaskResult{}, s.results[start:]...)
	return st
}

// PendingWorkers lists worker ids with queued tasks, sorted.
func (s *Server) PendingWorkers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.queues))
	for id := range s.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("worker_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}
	writeJSON(w, http.StatusOK, models.TaskList{Tasks: s.Drain(id)})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	t, err := s.Enqueue(req.WorkerID, req.TaskType, req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var res models.TaskResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if res.TaskID == "" {
		writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	s.Complete(res)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg models.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	ids, err := s.Register(reg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.RegisterResponse{RegisteredWorkers: ids})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

// ListenAndServe serves the API on addr under the /api prefix until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/api/", http.StripPrefix("/api", s.Handler()))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("coordinator listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("coordinator server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down coordinator: %w", err)
		}
		<-errCh
		return nil
	}
}
