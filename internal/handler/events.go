package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/middleware"
	"github.com/wabridge/bridge-server-go/internal/realtime"
)

const sseRetryMillis = 3000

// EventsHandler streams the user's room as Server-Sent Events. It is
// read-only; commands still go through the socket.
type EventsHandler struct {
	rooms     Rooms
	heartbeat time.Duration
}

func NewEventsHandler(rooms Rooms) *EventsHandler {
	return &EventsHandler{
		rooms:     rooms,
		heartbeat: realtime.HeartbeatInterval,
	}
}

// GET /api/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	stream, ok := newSSEStream(w)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	client := h.rooms.Subscribe(user.ID)
	defer h.rooms.Unsubscribe(client)

	logger := zerolog.Ctx(r.Context()).With().
		Str("userId", user.ID).
		Str("connId", client.ID).
		Logger()
	logger.Info().Msg("sse stream opened")

	if err := stream.open(sseRetryMillis); err != nil {
		return
	}
	if err := stream.sendJSON("connected", map[string]any{"userId": user.ID, "connId": client.ID}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info().Msg("sse stream closed by client")
			return
		case <-client.Done:
			logger.Info().Msg("sse stream closed by broker")
			return
		case ev := <-client.Events:
			if err := stream.send(ev); err != nil {
				logger.Warn().Err(err).Str("event", ev.Name).Msg("sse write failed")
				return
			}
		case <-heartbeat.C:
			if err := stream.comment("ping"); err != nil {
				logger.Debug().Err(err).Msg("sse heartbeat failed")
				return
			}
		}
	}
}

// sseStream writes numbered events to a flushing response.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	nextID  uint64
}

func newSSEStream(w http.ResponseWriter) (*sseStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseStream{w: w, flusher: flusher, nextID: 1}, true
}

func (s *sseStream) open(retryMillis int) error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(s.w, "retry: %d\n\n", retryMillis); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseStream) sendJSON(name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.send(realtime.Event{Name: name, Data: raw})
}

func (s *sseStream) send(ev realtime.Event) error {
	data := ev.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.nextID, ev.Name, data); err != nil {
		return err
	}
	s.nextID++
	s.flusher.Flush()
	return nil
}

func (s *sseStream) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
