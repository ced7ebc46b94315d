package postwatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service exposes the engine over HTTP. Every response carries a success
// flag; failures add a message.
type Service struct {
	engine *Engine
	logger *slog.Logger
}

// NewService wraps an engine for HTTP exposure.
func NewService(engine *Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, logger: logger}
}

// Router builds the control API router.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api/scraper", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/download", s.handleDownload)
		r.Get("/count", s.handleCount)
		r.Post("/clean", s.handleClean)
	})
	return r
}

func (s *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("service: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

type startRequest struct {
	Selector        string `json:"selector"`
	ContentSelector string `json:"content_selector"`
}

type response struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Filename string `json:"filename,omitempty"`
	Count    *int   `json:"count,omitempty"`
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if err := s.engine.Start(r.Context(), req.Selector, req.ContentSelector); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Success: true, Message: "collection started"})
}

func (s *Service) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Success: true, Message: "collection stopped"})
}

func (s *Service) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename, err := s.engine.ExportCSV(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	count := s.engine.Count()
	s.writeJSON(w, http.StatusOK, response{Success: true, Filename: filename, Count: &count})
}

func (s *Service) handleCount(w http.ResponseWriter, r *http.Request) {
	count := s.engine.Count()
	s.writeJSON(w, http.StatusOK, response{Success: true, Count: &count})
}

func (s *Service) handleClean(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	count := s.engine.Count()
	s.writeJSON(w, http.StatusOK, response{Success: true, Count: &count})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidSelector):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, ErrNothingToExport):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, response{Success: false, Message: err.Error()})
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("service: encode response", "error", err)
	}
}

// Serve runs the control API until ctx is cancelled.
func (s *Service) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info("service: listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
