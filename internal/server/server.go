// Package server exposes the minimal HTTP surface needed to drive the
// verification pipeline: submit a claim, poll a task, read a verdict.
// Heavier API concerns (auth, rate limiting, input normalization) belong
// to the gateway in front of this service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/truthgraph/truthgraph/internal/model"
	"github.com/truthgraph/truthgraph/internal/task"
)

// Coordinator is the slice of the task coordinator the server needs
type Coordinator interface {
	Submit(claimText string) (*model.Task, error)
	Status(taskID string) (*model.Task, error)
	Result(taskID string) (*model.Verdict, model.TaskState, error)
	Cancel(taskID string) bool
	Verdict(claimID string) (*model.Verdict, error)
	QueueDepth() int
}

// Server is the HTTP ingress
type Server struct {
	coordinator Coordinator
	corpusSize  func() int
	logger      zerolog.Logger
	httpServer  *http.Server
}

// New creates the HTTP server bound to addr
func New(addr string, coordinator Coordinator, corpusSize func() int, logger zerolog.Logger) *Server {
	s := &Server{
		coordinator: coordinator,
		corpusSize:  corpusSize,
		logger:      logger.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/claims", s.handleSubmit)
		r.Get("/claims/{claimID}/verdict", s.handleVerdict)
		r.Get("/tasks/{taskID}", s.handleStatus)
		r.Get("/tasks/{taskID}/result", s.handleResult)
		r.Delete("/tasks/{taskID}", s.handleCancel)
	})
	r.Get("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// ListenAndServe blocks serving requests until Shutdown
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type submitRequest struct {
	Text string `json:"text"`
}

type submitResponse struct {
	TaskID  string `json:"task_id"`
	ClaimID string `json:"claim_id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "claim text is required")
		return
	}

	t, err := s.coordinator.Submit(req.Text)
	switch {
	case errors.Is(err, task.ErrDuplicateClaim):
		writeError(w, http.StatusConflict, "claim already has an in-flight task")
	case errors.Is(err, task.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "task queue at capacity, retry later")
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, submitResponse{TaskID: t.ID, ClaimID: t.ClaimID})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	t, err := s.coordinator.Status(chi.URLParam(r, "taskID"))
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown or expired task")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type resultResponse struct {
	State   model.TaskState `json:"state"`
	Verdict *model.Verdict  `json:"verdict,omitempty"`
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	v, state, err := s.coordinator.Result(chi.URLParam(r, "taskID"))
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown or expired task")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{State: state, Verdict: v})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	accepted := s.coordinator.Cancel(chi.URLParam(r, "taskID"))
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": accepted})
}

func (s *Server) handleVerdict(w http.ResponseWriter, r *http.Request) {
	v, err := s.coordinator.Verdict(chi.URLParam(r, "claimID"))
	if errors.Is(err, task.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no verdict for claim")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.coordinator.QueueDepth(),
		"corpus_size": s.corpusSize(),
	})
}

// requestLogger logs one line per request with latency and status
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
