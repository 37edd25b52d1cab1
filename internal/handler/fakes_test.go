package handler

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wabridge/bridge-server-go/internal/bridge"
	"github.com/wabridge/bridge-server-go/internal/middleware"
	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/realtime"
	redisclient "github.com/wabridge/bridge-server-go/internal/redis"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

var testUser = &model.User{ID: "8c1f0a52-3f7e-4a43-9a55-0e4bc2f5b7a1", Email: "ana@example.com"}

func setupBroker(t *testing.T) *realtime.Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redisclient.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	broker := realtime.NewBroker(rc)
	t.Cleanup(func() {
		broker.Close()
		rc.Close()
	})
	return broker
}

// asUser stands in for the auth middleware.
func asUser(user *model.User, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), user, "test-token")))
	})
}

type fakeCommands struct {
	mu sync.Mutex

	initErr   error
	onInit    func(sink bridge.Sink)
	sendErr   error
	sent      []bridge.SendParams
	chats     []whatsapp.Chat
	chatsErr  error
	messages  []whatsapp.Message
	msgsErr   error
	chatIDs   []string
	disconErr error
	disconn   int
}

func (f *fakeCommands) Initialize(ctx context.Context, userID string, sink bridge.Sink) error {
	if f.onInit != nil {
		f.onInit(sink)
	}
	return f.initErr
}

func (f *fakeCommands) SendMessage(ctx context.Context, userID string, params bridge.SendParams) (*whatsapp.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, params)
	f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &whatsapp.Message{ID: "sent-1", Body: params.Message, FromMe: true, Timestamp: time.Now().Unix()}, nil
}

func (f *fakeCommands) GetChats(ctx context.Context, userID string) ([]whatsapp.Chat, error) {
	return f.chats, f.chatsErr
}

func (f *fakeCommands) GetMessages(ctx context.Context, userID, chatID string) (*bridge.MessagesPayload, error) {
	f.mu.Lock()
	f.chatIDs = append(f.chatIDs, chatID)
	f.mu.Unlock()
	if f.msgsErr != nil {
		return nil, f.msgsErr
	}
	return &bridge.MessagesPayload{ChatID: chatID, Messages: f.messages}, nil
}

func (f *fakeCommands) Disconnect(ctx context.Context, userID string) error {
	f.mu.Lock()
	f.disconn++
	f.mu.Unlock()
	return f.disconErr
}

func (f *fakeCommands) sentParams() []bridge.SendParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bridge.SendParams(nil), f.sent...)
}

func (f *fakeCommands) requestedChats() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.chatIDs...)
}
