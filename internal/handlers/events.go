// internal/handlers/events.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/drillroom/internal/middleware"
	"github.com/jason-s-yu/drillroom/internal/room"
)

var errSinkClosed = errors.New("subscriber closed")

// sseSink frames room events onto a text/event-stream response. Each write is bounded
// by the push deadline so a client that stops reading cannot hold the room lock.
type sseSink struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	closed bool
	done   chan struct{}
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w), done: make(chan struct{})}
}

func (s *sseSink) Send(ctx context.Context, ev room.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	if dl, ok := ctx.Deadline(); ok {
		if err := s.setDeadline(dl); err != nil {
			return err
		}
		defer s.setDeadline(time.Time{})
	}

	var err error
	if ev.Type == room.EventKeepalive {
		_, err = fmt.Fprint(s.w, ": keepalive\n\n")
	} else {
		var data []byte
		data, err = json.Marshal(ev.Snapshot)
		if err == nil {
			_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data)
		}
	}
	if err != nil {
		return err
	}
	return s.rc.Flush()
}

// setDeadline tolerates writers without deadline support, such as test recorders.
func (s *sseSink) setDeadline(t time.Time) error {
	if err := s.rc.SetWriteDeadline(t); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Close stops further writes and releases the handler goroutine.
func (s *sseSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// EventsHandler streams the caller's projected snapshot after every transition.
// GET /rooms/{code}/events?playerId=
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomFor(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientID := uuid.NewString()
	sink := newSSESink(w)
	if err := rm.Subscribe(clientID, r.URL.Query().Get("playerId"), sink); err != nil {
		sink.Close()
		s.writeRoomError(w, err)
		return
	}
	middleware.LogSubscriberConnect(s.logger, "sse", r.RemoteAddr, rm.Code())

	var cause error
	select {
	case <-r.Context().Done():
		cause = r.Context().Err()
	case <-sink.done:
	}
	rm.Unsubscribe(clientID)
	sink.Close()
	middleware.LogSubscriberDisconnect(s.logger, "sse", r.RemoteAddr, rm.Code(), cause)
}
