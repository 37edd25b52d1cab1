package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wabridge/bridge-server-go/internal/audit"
	"github.com/wabridge/bridge-server-go/internal/config"
	"github.com/wabridge/bridge-server-go/internal/metrics"
	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/realtime"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

const storeWriteTimeout = 10 * time.Second

// Sink receives events addressed to a single connection.
// Send returns false when the connection can no longer take them.
type Sink interface {
	Send(event realtime.Event) bool
}

// Publisher fans events out to every connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID string, event realtime.Event) error
}

// Session bridges one user's WhatsApp client to the store and the user's
// real-time connections. Client events are handled one at a time.
type Session struct {
	userID string
	client whatsapp.Client
	store  Store
	rooms  Publisher
	log    zerolog.Logger

	// sent remembers ids this process sent so their echo is not re-emitted.
	sent *expirable.LRU[string, struct{}]

	// onEnd runs once when the session reaches a terminal state.
	onEnd func(*Session)

	mu     sync.Mutex
	state  State
	sink   Sink
	info   *whatsapp.Info
	lastQR string
	ended  bool
	// pushQueued coalesces chat list pushes requested before one starts.
	pushQueued bool
}

func newSession(userID string, client whatsapp.Client, store Store, rooms Publisher, sink Sink, onEnd func(*Session)) *Session {
	return &Session{
		userID: userID,
		client: client,
		store:  store,
		rooms:  rooms,
		log:    log.With().Str("userId", userID).Logger(),
		sent:   expirable.NewLRU[string, struct{}](config.SentDedupCacheSize, nil, config.SentDedupWindow),
		onEnd:  onEnd,
		state:  StateConnecting,
		sink:   sink,
	}
}

func (s *Session) UserID() string {
	return s.userID
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// Info is the linked account, nil until ready.
func (s *Session) Info() *whatsapp.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Rebind points direct events at sink and replays what it missed:
// the ready state for a ready session, otherwise the last pairing code.
func (s *Session) Rebind(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sink = sink
	switch {
	case s.state == StateReady:
		s.direct(realtime.EventReady, ReadyPayload{Info: s.info})
	case s.lastQR != "":
		s.direct(realtime.EventQR, s.lastQR)
	}
}

// HandleEvent is the whatsapp.EventHandler for this session's client.
func (s *Session) HandleEvent(ev whatsapp.Event) {
	metrics.BridgeEventsTotal.WithLabelValues(whatsapp.EventName(ev)).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		s.log.Debug().Str("event", whatsapp.EventName(ev)).Msg("event after session end ignored")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	switch e := ev.(type) {
	case whatsapp.QREvent:
		s.onQR(ctx, e)
	case whatsapp.ReadyEvent:
		s.onReady(ctx, e)
	case whatsapp.MessageEvent:
		s.onMessage(ctx, e)
	case whatsapp.AckEvent:
		s.onAck(ctx, e)
	case whatsapp.ChatUpdateEvent:
		s.write("chat flags", s.store.SetChatFlags(ctx, s.userID, e.ChatID, e.Archived, e.Muted))
	case whatsapp.HistorySyncedEvent:
		if s.state == StateReady {
			s.schedulePush()
		}
	case whatsapp.DisconnectedEvent:
		if s.transition(StateDisconnected) {
			s.write("mark disconnected", s.store.MarkDisconnected(ctx, s.userID))
			s.direct(realtime.EventDisconnected, DisconnectedPayload{Reason: e.Reason})
			s.end()
		}
	case whatsapp.AuthFailureEvent:
		if s.transition(StateFailed) {
			s.write("mark failed", s.store.MarkFailed(ctx, s.userID))
			audit.Log(ctx, audit.Event{Type: audit.EventWhatsAppAuthError, UserID: s.userID, Reason: e.Message})
			s.direct(realtime.EventAuthFailure, AuthFailurePayload{Message: e.Message})
			s.end()
		}
	}
}

func (s *Session) onQR(ctx context.Context, e whatsapp.QREvent) {
	if !s.transition(StateAwaitingPairing) {
		return
	}
	dataURL, err := whatsapp.QRDataURL(e.Code)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to render pairing code")
		return
	}
	s.lastQR = dataURL
	s.write("set qr", s.store.SetQRCode(ctx, s.userID, dataURL))
	s.direct(realtime.EventQR, dataURL)
}

func (s *Session) onReady(ctx context.Context, e whatsapp.ReadyEvent) {
	info := e.Info
	if s.state == StateReady {
		// reconnect after a transient drop
		s.info = &info
		s.write("mark connected", s.store.MarkConnected(ctx, s.userID, info.Phone))
		return
	}
	if !s.transition(StateReady) {
		return
	}
	s.info = &info
	s.lastQR = ""
	s.write("mark connected", s.store.MarkConnected(ctx, s.userID, info.Phone))
	s.direct(realtime.EventReady, ReadyPayload{Info: &info})

	s.log.Info().Str("phone", info.Phone).Msg("whatsapp session ready")
	audit.Log(ctx, audit.Event{Type: audit.EventWhatsAppLinked, UserID: s.userID, Details: map[string]any{"phone": info.Phone}})

	s.schedulePush()
}

// schedulePush starts a chat list push unless one is already queued. Callers hold s.mu.
func (s *Session) schedulePush() {
	if s.pushQueued {
		return
	}
	s.pushQueued = true
	go s.pushChats()
}

// pushChats sends the chat list after ready and after each history sync.
func (s *Session) pushChats() {
	s.mu.Lock()
	s.pushQueued = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	chats, err := s.client.Chats(ctx, config.ChatListLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load chats")
		s.mu.Lock()
		s.direct(realtime.EventError, realtime.ErrorPayload{Message: "Failed to load chats"})
		s.mu.Unlock()
		return
	}
	for _, c := range chats {
		s.write("save chat", s.store.SaveChat(ctx, s.userID, c))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.direct(realtime.EventChats, chats)
}

func (s *Session) onMessage(ctx context.Context, e whatsapp.MessageEvent) {
	m := e.Message
	s.write("save message", s.store.SaveMessage(ctx, s.userID, m, true))

	if m.FromMe {
		if _, dup := s.sent.Get(m.ID); dup {
			return
		}
	}
	s.room(ctx, realtime.EventMessage, MessagePayload{ChatID: m.ChatID, Message: m})
}

func (s *Session) onAck(ctx context.Context, e whatsapp.AckEvent) {
	status := model.StatusFromAck(e.Ack)
	s.write("update message status", s.store.UpdateMessageStatus(ctx, s.userID, e.MessageIDs, status))
	for _, id := range e.MessageIDs {
		s.room(ctx, realtime.EventMessageAck, AckPayload{MessageID: id, Status: string(status)})
	}
}

// markSent records an id sent through this session.
func (s *Session) markSent(id string) {
	s.sent.Add(id, struct{}{})
}

func (s *Session) transition(next State) bool {
	if !s.state.CanTransition(next) {
		s.log.Warn().Str("from", string(s.state)).Str("to", string(next)).Msg("invalid session transition ignored")
		return false
	}
	s.state = next
	return true
}

func (s *Session) end() {
	if s.ended {
		return
	}
	s.ended = true
	if s.onEnd != nil {
		go s.onEnd(s)
	}
}

// close ends the session without emitting anything.
func (s *Session) close() {
	s.mu.Lock()
	s.ended = true
	if !s.state.Terminal() {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	if err := s.client.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close whatsapp client")
	}
}

func (s *Session) write(op string, err error) {
	if err == nil {
		return
	}
	metrics.StoreWriteFailures.WithLabelValues(op).Inc()
	s.log.Error().Err(err).Str("op", op).Msg("store write failed")
}

// direct sends to the initiating connection, or the whole room once it is gone.
func (s *Session) direct(name string, data any) {
	ev, err := realtime.NewEvent(name, data)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode event")
		return
	}
	if s.sink != nil && s.sink.Send(ev) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	s.publish(ctx, ev)
}

func (s *Session) room(ctx context.Context, name string, data any) {
	ev, err := realtime.NewEvent(name, data)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode event")
		return
	}
	s.publish(ctx, ev)
}

func (s *Session) publish(ctx context.Context, ev realtime.Event) {
	if err := s.rooms.Publish(ctx, s.userID, ev); err != nil {
		s.log.Error().Err(err).Str("event", ev.Name).Msg("failed to publish event")
	}
}
