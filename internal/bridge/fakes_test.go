package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/realtime"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

type sendCall struct {
	chatID string
	text   string
	quoted *whatsapp.Message
}

type fakeClient struct {
	mu       sync.Mutex
	handler  whatsapp.EventHandler
	info     *whatsapp.Info
	chats    []whatsapp.Chat
	messages map[string][]whatsapp.Message
	sends    []sendCall
	startErr error
	closed   bool
	nextID   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{messages: make(map[string][]whatsapp.Message)}
}

func (c *fakeClient) Start(ctx context.Context, handler whatsapp.EventHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.handler = handler
	return nil
}

func (c *fakeClient) emit(ev whatsapp.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(ev)
}

func (c *fakeClient) Info() *whatsapp.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *fakeClient) Chats(ctx context.Context, limit int) ([]whatsapp.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.chats) > limit {
		return c.chats[:limit], nil
	}
	return c.chats, nil
}

func (c *fakeClient) Messages(ctx context.Context, chatID string, limit int) ([]whatsapp.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.messages[chatID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (c *fakeClient) SendText(ctx context.Context, chatID, text string, quoted *whatsapp.Message) (*whatsapp.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, sendCall{chatID: chatID, text: text, quoted: quoted})
	c.nextID++
	return &whatsapp.Message{
		ID:     fmt.Sprintf("SENT%d", c.nextID),
		ChatID: chatID,
		Body:   text,
		FromMe: true,
		Ack:    whatsapp.AckSent,
		Type:   "chat",
	}, nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) sendCalls() []sendCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sendCall(nil), c.sends...)
}

type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	next    func() *fakeClient
	err     error
}

func (f *fakeFactory) New(ctx context.Context, userID string) (whatsapp.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeClient()
	if f.next != nil {
		c = f.next()
	}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[len(f.clients)-1]
}

type storeCall struct {
	op     string
	userID string
	arg    any
}

type fakeStore struct {
	mu    sync.Mutex
	calls []storeCall
	fail  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{fail: make(map[string]error)}
}

func (s *fakeStore) record(op, userID string, arg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{op: op, userID: userID, arg: arg})
	return s.fail[op]
}

func (s *fakeStore) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.op
	}
	return out
}

func (s *fakeStore) find(op string) []storeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storeCall
	for _, c := range s.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *fakeStore) MarkConnecting(ctx context.Context, userID string) error {
	return s.record("connecting", userID, nil)
}

func (s *fakeStore) SetQRCode(ctx context.Context, userID, qrCode string) error {
	return s.record("qr", userID, qrCode)
}

func (s *fakeStore) MarkConnected(ctx context.Context, userID, phoneNumber string) error {
	return s.record("connected", userID, phoneNumber)
}

func (s *fakeStore) MarkDisconnected(ctx context.Context, userID string) error {
	return s.record("disconnected", userID, nil)
}

func (s *fakeStore) MarkFailed(ctx context.Context, userID string) error {
	return s.record("failed", userID, nil)
}

func (s *fakeStore) SaveMessage(ctx context.Context, userID string, msg whatsapp.Message, countUnread bool) error {
	return s.record("message", userID, msg)
}

func (s *fakeStore) SaveChat(ctx context.Context, userID string, chat whatsapp.Chat) error {
	return s.record("chat", userID, chat)
}

func (s *fakeStore) UpdateMessageStatus(ctx context.Context, userID string, messageIDs []string, status model.MessageStatus) error {
	return s.record("status", userID, status)
}

func (s *fakeStore) SetChatFlags(ctx context.Context, userID, chatID string, archived, muted *bool) error {
	return s.record("flags", userID, chatID)
}

type published struct {
	userID string
	event  realtime.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *fakePublisher) Publish(ctx context.Context, userID string, event realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{userID: userID, event: event})
	return nil
}

func (p *fakePublisher) named(name string) []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.Event
	for _, e := range p.events {
		if e.event.Name == name {
			out = append(out, e.event)
		}
	}
	return out
}

type fakeSink struct {
	mu     sync.Mutex
	gone   bool
	events []realtime.Event
}

func (s *fakeSink) Send(ev realtime.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *fakeSink) named(name string) []realtime.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []realtime.Event
	for _, e := range s.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func decodeData[T any](ev realtime.Event) T {
	var v T
	if err := json.Unmarshal(ev.Data, &v); err != nil {
		panic(err)
	}
	return v
}

var errBoom = errors.New("boom")
