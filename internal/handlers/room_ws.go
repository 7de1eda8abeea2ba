// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/drillroom/internal/middleware"
	"github.com/jason-s-yu/drillroom/internal/room"
	"github.com/sirupsen/logrus"
)

// clientMessage is a frame sent by a socket client.
type clientMessage struct {
	Type       string         `json:"type"`
	ActionType string         `json:"actionType,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type serverError struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// wsSink writes room events as JSON text frames.
type wsSink struct {
	c    *websocket.Conn
	once sync.Once
	done chan struct{}
}

func (s *wsSink) Send(ctx context.Context, ev room.Event) error {
	select {
	case <-s.done:
		return errSinkClosed
	default:
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.c.Write(ctx, websocket.MessageText, data)
}

// Close only signals; the handler owns the close handshake.
func (s *wsSink) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *wsSink) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.c.Write(ctx, websocket.MessageText, data)
}

// RoomWSHandler subscribes a player over WebSocket and accepts actions on the same socket.
// GET /rooms/{code}/ws?playerId=
func (s *Server) RoomWSHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	playerID := r.URL.Query().Get("playerId")

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the drillroom subprotocol")
		return
	}

	clientID := uuid.NewString()
	sink := &wsSink{c: c, done: make(chan struct{})}
	if err := rm.Subscribe(clientID, playerID, sink); err != nil {
		switch {
		case errors.Is(err, room.ErrNotInitialized):
			c.Close(InvalidRoomError, "room is not initialized")
		case errors.Is(err, room.ErrInvalidPlayer):
			c.Close(InvalidPlayerError, "unknown player")
		default:
			c.Close(websocket.StatusInternalError, "subscribe failed")
		}
		return
	}
	middleware.LogSubscriberConnect(s.logger, "ws", r.RemoteAddr, rm.Code())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-sink.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	readErr := s.readLoop(ctx, c, rm, sink, playerID)

	rm.Unsubscribe(clientID)
	dropped := false
	select {
	case <-sink.done:
		dropped = true
	default:
	}
	sink.Close()
	middleware.LogSubscriberDisconnect(s.logger, "ws", r.RemoteAddr, rm.Code(), readErr)
	if dropped && r.Context().Err() == nil {
		c.Close(RoomClosedError, "subscription ended")
		return
	}
	c.Close(websocket.StatusNormalClosure, "")
}

// readLoop dispatches client frames until the socket or ctx ends.
func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, rm *room.Room, sink *wsSink, playerID string) error {
	log := s.logger.WithFields(logrus.Fields{"room": rm.Code(), "player": playerID})
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			log.Warnf("ignoring non-text frame type %d", typ)
			continue
		}

		var m clientMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			_ = sink.writeJSON(ctx, serverError{Type: "error", Code: "invalid_json", Error: "invalid JSON format"})
			continue
		}

		switch m.Type {
		case "ping":
			_ = sink.writeJSON(ctx, map[string]string{"type": "pong"})
		case "action":
			// The resulting snapshot reaches this client through the broadcast.
			if _, err := rm.SubmitAction(ctx, playerID, m.ActionType, m.Payload); err != nil {
				_, code := classify(err)
				log.WithError(err).Debug("action rejected")
				_ = sink.writeJSON(ctx, serverError{Type: "error", Code: code, Error: err.Error()})
			}
		default:
			_ = sink.writeJSON(ctx, serverError{Type: "error", Code: "unknown_type", Error: "unknown message type " + m.Type})
		}
	}
}
