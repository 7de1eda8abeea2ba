// internal/handlers/rooms.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/drillroom/internal/engine"
	"github.com/jason-s-yu/drillroom/internal/models"
)

type createRoomRequest struct {
	GMName string      `json:"gmName"`
	Mode   models.Mode `json:"mode"`
	Seed   string      `json:"seed,omitempty"`
}

type joinRequest struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type startRequest struct {
	GMSecret string `json:"gmSecret"`
}

type actionRequest struct {
	PlayerID string         `json:"playerId"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
}

type assignRoleRequest struct {
	GMSecret string `json:"gmSecret"`
	PlayerID string `json:"playerId"`
	Role     string `json:"role"`
}

type modeInfo struct {
	Mode        models.Mode `json:"mode"`
	Roles       []string    `json:"roles"`
	GMRole      string      `json:"gmRole"`
	DefaultRole string      `json:"defaultRole"`
}

// ListModesHandler lists every playable mode with its roles.
func (s *Server) ListModesHandler(w http.ResponseWriter, r *http.Request) {
	out := make([]modeInfo, 0, len(models.Modes))
	for _, m := range models.Modes {
		e, err := engine.For(m)
		if err != nil {
			continue
		}
		out = append(out, modeInfo{Mode: m, Roles: e.Roles(), GMRole: engine.GameMasterRole(e), DefaultRole: engine.DefaultRole(e)})
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateRoomHandler mints a room code and initializes a room there.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.rooms.Create(r.Context(), req.GMName, req.Mode, req.Seed)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// InitRoomHandler initializes the room at an explicit code.
func (s *Server) InitRoomHandler(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCode(w, r)
	if !ok {
		return
	}
	var req createRoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.rooms.Init(r.Context(), code, req.GMName, req.Mode, req.Seed)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetRoomHandler returns the snapshot, projected for ?playerId= when given.
func (s *Server) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	snap, err := rm.QueryState(r.URL.Query().Get("playerId"))
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := rm.Join(r.Context(), req.Name, req.Role)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) StartRoomHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := rm.Start(r.Context(), req.GMSecret)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) SubmitActionHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := rm.SubmitAction(r.Context(), req.PlayerID, req.Type, req.Payload)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) AssignRoleHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := rm.AssignRole(r.Context(), req.GMSecret, req.PlayerID, req.Role)
	if err != nil {
		s.writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
