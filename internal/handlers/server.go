// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/jason-s-yu/drillroom/internal/middleware"
	"github.com/jason-s-yu/drillroom/internal/room"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 64 << 10

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4,12}$`)

// Server exposes the room operations over HTTP, SSE and WebSocket.
type Server struct {
	rooms  *room.Manager
	logger *logrus.Logger
}

// NewServer returns a Server backed by rooms.
func NewServer(rooms *room.Manager, logger *logrus.Logger) *Server {
	return &Server{rooms: rooms, logger: logger}
}

// Routes builds the request multiplexer wrapped in request logging.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rooms": s.rooms.Loaded()})
	})
	mux.HandleFunc("GET /modes", s.ListModesHandler)

	mux.HandleFunc("POST /rooms", s.CreateRoomHandler)
	mux.HandleFunc("POST /rooms/{code}", s.InitRoomHandler)
	mux.HandleFunc("GET /rooms/{code}", s.GetRoomHandler)
	mux.HandleFunc("POST /rooms/{code}/join", s.JoinRoomHandler)
	mux.HandleFunc("POST /rooms/{code}/start", s.StartRoomHandler)
	mux.HandleFunc("POST /rooms/{code}/actions", s.SubmitActionHandler)
	mux.HandleFunc("POST /rooms/{code}/roles", s.AssignRoleHandler)

	mux.HandleFunc("GET /rooms/{code}/events", s.EventsHandler)
	mux.HandleFunc("GET /rooms/{code}/ws", s.RoomWSHandler)

	return middleware.LogMiddleware(s.logger)(mux)
}

// roomCode validates and normalizes the {code} path value, writing an error response on failure.
func roomCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(r.PathValue("code")))
	if !codePattern.MatchString(code) {
		writeError(w, http.StatusBadRequest, "invalid_code", "room code must be 4-12 letters or digits")
		return "", false
	}
	return code, true
}

// roomFor resolves the {code} path value to its actor, writing an error response on failure.
func (s *Server) roomFor(w http.ResponseWriter, r *http.Request) (*room.Room, bool) {
	code, ok := roomCode(w, r)
	if !ok {
		return nil, false
	}
	rm, err := s.rooms.Room(r.Context(), code)
	if err != nil {
		if !errors.Is(err, room.ErrNotInitialized) {
			s.logger.WithError(err).WithField("room", code).Error("failed to load room")
			err = fmt.Errorf("%w: %w", room.ErrRoomUnavailable, err)
		}
		s.writeRoomError(w, err)
		return nil, false
	}
	return rm, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeRoomError maps a room rejection to its HTTP status.
func (s *Server) writeRoomError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("room operation failed")
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, room.ErrNotInitialized):
		return http.StatusNotFound, "not_initialized"
	case errors.Is(err, room.ErrAlreadyInitialized):
		return http.StatusConflict, "already_initialized"
	case errors.Is(err, room.ErrGameAlreadyStarted):
		return http.StatusConflict, "game_already_started"
	case errors.Is(err, room.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, room.ErrNotRunning):
		return http.StatusConflict, "not_running"
	case errors.Is(err, room.ErrRoomFinished):
		return http.StatusConflict, "room_finished"
	case errors.Is(err, room.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, room.ErrInvalidPlayer):
		return http.StatusBadRequest, "invalid_player"
	case errors.Is(err, room.ErrInvalidAction):
		return http.StatusBadRequest, "invalid_action"
	case errors.Is(err, room.ErrInvalidMode):
		return http.StatusBadRequest, "invalid_mode"
	case errors.Is(err, room.ErrRoomUnavailable):
		return http.StatusServiceUnavailable, "room_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}
