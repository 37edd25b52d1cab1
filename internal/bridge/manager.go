package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/wabridge/bridge-server-go/internal/audit"
	"github.com/wabridge/bridge-server-go/internal/config"
	apperrors "github.com/wabridge/bridge-server-go/internal/errors"
	"github.com/wabridge/bridge-server-go/internal/realtime"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

// ErrNotConnected is returned by commands that need a ready session.
var ErrNotConnected = apperrors.NotConnected()

// Manager owns the session registry and runs the real-time commands.
type Manager struct {
	registry    *Registry
	factory     whatsapp.Factory
	store       Store
	rooms       Publisher
	maxSessions int

	// initLocks serializes initialize per user. Entries live only while held
	// or awaited.
	locksMu   sync.Mutex
	initLocks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func NewManager(registry *Registry, factory whatsapp.Factory, store Store, rooms Publisher, maxSessions int) *Manager {
	return &Manager{
		registry:    registry,
		factory:     factory,
		store:       store,
		rooms:       rooms,
		maxSessions: maxSessions,
		initLocks:   make(map[string]*userLock),
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// lockUser blocks until the caller owns userID's initialize lock and returns
// its release.
func (m *Manager) lockUser(userID string) func() {
	m.locksMu.Lock()
	l, ok := m.initLocks[userID]
	if !ok {
		l = &userLock{}
		m.initLocks[userID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.initLocks, userID)
		}
		m.locksMu.Unlock()
	}
}

// Initialize starts the user's WhatsApp client, or reattaches sink to the one
// already running. Direct events of the session go to sink.
func (m *Manager) Initialize(ctx context.Context, userID string, sink Sink) error {
	unlock := m.lockUser(userID)
	defer unlock()

	if s := m.registry.Get(userID); s != nil {
		log.Debug().Str("userId", userID).Str("state", string(s.State())).Msg("reusing existing session")
		s.Rebind(sink)
		return nil
	}

	if m.maxSessions > 0 && m.registry.Len() >= m.maxSessions {
		log.Warn().Str("userId", userID).Int("limit", m.maxSessions).Msg("session capacity reached")
		return apperrors.SessionCapacity(m.maxSessions)
	}

	if err := m.store.MarkConnecting(ctx, userID); err != nil {
		m.markFailed(ctx, userID)
		return fmt.Errorf("mark connecting: %w", err)
	}

	client, err := m.factory.New(ctx, userID)
	if err != nil {
		m.markFailed(ctx, userID)
		return fmt.Errorf("create client: %w", err)
	}

	s := newSession(userID, client, m.store, m.rooms, sink, m.evict)
	m.registry.Set(userID, s)

	if err := client.Start(ctx, s.HandleEvent); err != nil {
		m.registry.Remove(userID, s)
		s.close()
		m.markFailed(ctx, userID)
		return fmt.Errorf("start client: %w", err)
	}

	log.Info().Str("userId", userID).Msg("whatsapp session initializing")
	return nil
}

// evict runs when a session ends on its own.
func (m *Manager) evict(s *Session) {
	if m.registry.Remove(s.userID, s) {
		audit.Log(context.Background(), audit.Event{Type: audit.EventWhatsAppUnlinked, UserID: s.userID, Reason: string(s.State())})
	}
	s.close()
}

func (m *Manager) markFailed(ctx context.Context, userID string) {
	if err := m.store.MarkFailed(ctx, userID); err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("failed to mark session failed")
	}
}

func (m *Manager) ready(userID string) (*Session, error) {
	s := m.registry.Get(userID)
	if s == nil || !s.Ready() {
		return nil, ErrNotConnected
	}
	return s, nil
}

// SendMessage sends text to a chat. A quoted id missing from the chat's
// recent messages degrades to a plain send. The sent message is echoed to
// every connection of the user as message_sent.
func (m *Manager) SendMessage(ctx context.Context, userID string, params SendParams) (*whatsapp.Message, error) {
	s, err := m.ready(userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.ChatID) == "" {
		return nil, apperrors.MissingRequired("chatId")
	}

	var quoted *whatsapp.Message
	if params.QuotedMessageID != "" {
		recent, err := s.client.Messages(ctx, params.ChatID, config.QuotedLookupLimit)
		if err != nil {
			log.Warn().Err(err).Str("userId", userID).Str("chatId", params.ChatID).Msg("quoted lookup failed, sending plain")
		}
		for i := range recent {
			if recent[i].ID == params.QuotedMessageID {
				quoted = &recent[i]
				break
			}
		}
	}

	sent, err := s.client.SendText(ctx, params.ChatID, params.Message, quoted)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Str("chatId", params.ChatID).Msg("failed to send message")
		return nil, apperrors.External("WhatsApp", err)
	}
	s.markSent(sent.ID)

	s.write("save message", s.store.SaveMessage(ctx, userID, *sent, false))
	s.room(ctx, realtime.EventMessageSent, MessagePayload{ChatID: params.ChatID, Message: *sent})

	log.Info().
		Str("userId", userID).
		Str("chatId", params.ChatID).
		Str("messageId", sent.ID).
		Bool("reply", quoted != nil).
		Msg("message sent")

	return sent, nil
}

// GetChats lists up to 50 chats and stores each one.
func (m *Manager) GetChats(ctx context.Context, userID string) ([]whatsapp.Chat, error) {
	s, err := m.ready(userID)
	if err != nil {
		return nil, err
	}

	chats, err := s.client.Chats(ctx, config.ChatListLimit)
	if err != nil {
		return nil, apperrors.External("WhatsApp", err)
	}
	for _, c := range chats {
		s.write("save chat", s.store.SaveChat(ctx, userID, c))
	}
	return chats, nil
}

// GetMessages lists up to 50 messages of a chat and stores each one.
func (m *Manager) GetMessages(ctx context.Context, userID, chatID string) (*MessagesPayload, error) {
	s, err := m.ready(userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(chatID) == "" {
		return nil, apperrors.MissingRequired("chatId")
	}

	msgs, err := s.client.Messages(ctx, chatID, config.MessageFetchLimit)
	if err != nil {
		return nil, apperrors.External("WhatsApp", err)
	}
	for _, msg := range msgs {
		s.write("save message", s.store.SaveMessage(ctx, userID, msg, false))
	}
	return &MessagesPayload{ChatID: chatID, Messages: msgs}, nil
}

// Disconnect closes the user's client and marks the session disconnected.
// The linked device stays paired so a later initialize reconnects silently.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	s := m.registry.Get(userID)
	if s == nil {
		return ErrNotConnected
	}

	m.registry.Remove(userID, s)
	s.close()

	audit.Log(ctx, audit.Event{Type: audit.EventWhatsAppUnlinked, UserID: userID, Reason: "disconnect requested"})

	if err := m.store.MarkDisconnected(ctx, userID); err != nil {
		return fmt.Errorf("mark disconnected: %w", err)
	}
	return nil
}

// Live reports whether the user has a session in this process.
func (m *Manager) Live(userID string) bool {
	return m.registry.Get(userID) != nil
}

// Shutdown closes every client. Stored statuses are left for the cleanup job to reconcile.
func (m *Manager) Shutdown(ctx context.Context) {
	sessions := m.registry.Snapshot()
	var wg sync.WaitGroup
	for userID, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.registry.Remove(userID, s)
			s.close()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Int("sessions", len(sessions)).Msg("whatsapp sessions closed")
	case <-ctx.Done():
		log.Warn().Msg("shutdown deadline reached before all sessions closed")
	}
}
