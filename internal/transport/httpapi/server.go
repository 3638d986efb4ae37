// Package httpapi exposes the orchestrator over HTTP: chat turns,
// persona listing and a health probe.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/sandevgo/chorus/internal/config"
	"github.com/sandevgo/chorus/internal/service/turn"
	"github.com/sandevgo/chorus/pkg/log"
)

type Server struct {
	runner *turn.Runner
	srv    *http.Server
	logger zerolog.Logger
}

func NewServer(cfg *config.ServerConfig, runner *turn.Runner) *Server {
	s := &Server{runner: runner}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealth)
	r.Get("/v1/personas", s.handlePersonas)
	r.Post("/v1/chat", s.handleChat)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener closes. Implements the srv.Service
// interface.
func (s *Server) Start(ctx context.Context) error {
	s.logger = log.FromCtx(ctx).With().Str("component", "http").Logger()
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	s.logger.Info().Str("addr", s.srv.Addr).Msg("starting http server")
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	Persona   string `json:"persona"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Reply      string `json:"reply"`
	SessionID  string `json:"session_id"`
	Persona    string `json:"persona"`
	QueueDepth int    `json:"queue_depth"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	resp, err := s.runner.Run(r.Context(), turn.Request{
		UserID:    req.UserID,
		Persona:   req.Persona,
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:      resp.Reply,
		SessionID:  resp.SessionID,
		Persona:    resp.Persona,
		QueueDepth: resp.QueueDepth,
	})
}

func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, turn.ErrEmptyUserID),
		errors.Is(err, turn.ErrEmptyMessage),
		errors.Is(err, turn.ErrUnknownPersona):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, turn.ErrSessionBusy):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, turn.ErrModelFailure):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		s.logger.Error().Err(err).Msg("unhandled turn error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

type personaInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handlePersonas(w http.ResponseWriter, r *http.Request) {
	personas := s.runner.Personas()
	out := make([]personaInfo, 0, len(personas))
	for _, p := range personas {
		out = append(out, personaInfo{Name: p.Name, DisplayName: p.DisplayName})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
