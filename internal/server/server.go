// Package server wires the HTTP trigger points for room actions. Route
// handlers are thin: validation and pipeline work live in the room
// package, and each handler reports failure for its own operation only.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jtarrant/relaychat/internal/presence"
	"github.com/jtarrant/relaychat/internal/room"
	"github.com/jtarrant/relaychat/internal/ws"
	"github.com/rs/zerolog"
)

// Server is the relay's HTTP front.
type Server struct {
	addr     string
	mux      *http.ServeMux
	room     *room.Room
	sessions *ws.Manager
	log      zerolog.Logger
	httpSrv  *http.Server
}

// New creates a Server listening on addr. wsHandler serves the
// WebSocket endpoint; sessions provides connection stats.
func New(addr string, rm *room.Room, wsHandler http.Handler, sessions *ws.Manager, log zerolog.Logger) *Server {
	s := &Server{
		addr:     addr,
		mux:      http.NewServeMux(),
		room:     rm,
		sessions: sessions,
		log:      log.With().Str("component", "http").Logger(),
	}
	s.routes(wsHandler)
	return s
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the HTTP server, waiting for in-flight requests up to
// the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes(wsHandler http.Handler) {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /messages", s.handleMessages)
	s.mux.HandleFunc("GET /users", s.handleUsers)
	s.mux.HandleFunc("POST /user", s.handleJoin)
	s.mux.HandleFunc("DELETE /user", s.handleLeave)
	s.mux.HandleFunc("POST /message", s.handleSend)
	if wsHandler != nil {
		s.mux.Handle("GET /ws", wsHandler)
	}
}

// userRequest is the body of POST /user and DELETE /user.
type userRequest struct {
	User string `json:"user"`
}

// sendRequest is the body of POST /message.
type sendRequest struct {
	User string `json:"user"`
	Text string `json:"msg"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Stats())
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.room.Messages(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("history read failed")
		writeError(w, http.StatusBadGateway, "message history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.room.Users(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("roster read failed")
		writeError(w, http.StatusBadGateway, "user roster unavailable")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.room.Join(r.Context(), req.User)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, map[string]string{"user": req.User})
	case errors.Is(err, room.ErrMissingUser):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, presence.ErrAlreadyPresent):
		writeError(w, http.StatusConflict, "username already taken")
	default:
		s.log.Error().Err(err).Str("user", req.User).Msg("join failed")
		writeError(w, http.StatusBadGateway, "store unavailable")
	}
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := s.room.Leave(r.Context(), req.User)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"user": req.User})
	case errors.Is(err, room.ErrMissingUser):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, presence.ErrNotPresent):
		writeError(w, http.StatusNotFound, "username not in room")
	default:
		s.log.Error().Err(err).Str("user", req.User).Msg("leave failed")
		writeError(w, http.StatusBadGateway, "store unavailable")
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := s.room.Send(r.Context(), req.User, req.Text)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, msg)
	case errors.Is(err, room.ErrMissingUser),
		errors.Is(err, room.ErrMissingText),
		errors.Is(err, room.ErrTextTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, room.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.log.Error().Err(err).Str("user", req.User).Msg("send failed")
		writeError(w, http.StatusBadGateway, "store unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
