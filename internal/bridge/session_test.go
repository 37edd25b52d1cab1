package bridge

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/realtime"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

func TestSessionQR(t *testing.T) {
	h := newHarness(0)
	sink := &fakeSink{}
	require.NoError(t, h.manager.Initialize(context.Background(), "u1", sink))
	client := h.factory.last()

	client.emit(whatsapp.QREvent{Code: "2@first"})
	client.emit(whatsapp.QREvent{Code: "2@second"})

	qrs := sink.named(realtime.EventQR)
	require.Len(t, qrs, 2)
	url := decodeData[string](qrs[0])
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	stored := h.store.find("qr")
	require.Len(t, stored, 2)
	assert.Equal(t, url, stored[0].arg)
	assert.Equal(t, StateAwaitingPairing, h.manager.Registry().Get("u1").State())
	assert.Empty(t, h.rooms.named(realtime.EventQR))
}

func TestSessionReady(t *testing.T) {
	h := newHarness(0)
	sink := &fakeSink{}
	client := h.readySession(t, "u1", sink)

	connected := h.store.find("connected")
	require.Len(t, connected, 1)
	assert.Equal(t, "999", connected[0].arg)
	require.Len(t, sink.named(realtime.EventReady), 1)
	require.Eventually(t, func() bool { return len(sink.named(realtime.EventChats)) == 1 }, time.Second, 10*time.Millisecond)

	t.Run("reconnect persists without re-emitting", func(t *testing.T) {
		client.emit(whatsapp.ReadyEvent{Info: whatsapp.Info{Phone: "999"}})
		assert.Len(t, h.store.find("connected"), 2)
		assert.Len(t, sink.named(realtime.EventReady), 1)
	})
}

func TestSessionHistorySyncPushesChats(t *testing.T) {
	h := newHarness(0)
	sink := &fakeSink{}
	client := h.readySession(t, "u1", sink)
	require.Eventually(t, func() bool { return len(sink.named(realtime.EventChats)) == 1 }, time.Second, 10*time.Millisecond)

	client.mu.Lock()
	client.chats = []whatsapp.Chat{{ID: "111@s.whatsapp.net", Name: "Alice"}}
	client.mu.Unlock()
	client.emit(whatsapp.HistorySyncedEvent{Chats: 1})

	require.Eventually(t, func() bool { return len(sink.named(realtime.EventChats)) == 2 }, time.Second, 10*time.Millisecond)
	chats := decodeData[[]whatsapp.Chat](sink.named(realtime.EventChats)[1])
	require.Len(t, chats, 1)
	assert.Equal(t, "Alice", chats[0].Name)
	require.Eventually(t, func() bool { return len(h.store.find("chat")) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSessionHistorySyncBeforeReady(t *testing.T) {
	h := newHarness(0)
	sink := &fakeSink{}
	require.NoError(t, h.manager.Initialize(context.Background(), "u1", sink))

	h.factory.last().emit(whatsapp.HistorySyncedEvent{Chats: 3})

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sink.named(realtime.EventChats))
}

func TestSessionMessage(t *testing.T) {
	h := newHarness(0)
	client := h.readySession(t, "u1", &fakeSink{})

	msg := whatsapp.Message{ID: "IN1", ChatID: "111@s.whatsapp.net", Body: "hey", Ack: whatsapp.AckDelivered}
	client.emit(whatsapp.MessageEvent{Message: msg})

	require.Len(t, h.store.find("message"), 1)
	events := h.rooms.named(realtime.EventMessage)
	require.Len(t, events, 1)
	payload := decodeData[MessagePayload](events[0])
	assert.Equal(t, "111@s.whatsapp.net", payload.ChatID)
	assert.Equal(t, "hey", payload.Message.Body)

	t.Run("store failure is swallowed", func(t *testing.T) {
		h.store.fail["message"] = errBoom
		client.emit(whatsapp.MessageEvent{Message: whatsapp.Message{ID: "IN2", ChatID: "111@s.whatsapp.net"}})
		assert.Len(t, h.rooms.named(realtime.EventMessage), 2)
	})
}

func TestSessionAck(t *testing.T) {
	tests := []struct {
		ack    int
		status model.MessageStatus
	}{
		{0, model.MessageStatusPending},
		{1, model.MessageStatusSent},
		{2, model.MessageStatusDelivered},
		{3, model.MessageStatusRead},
		{-1, model.MessageStatusFailed},
		{4, model.MessageStatusFailed},
	}

	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			h := newHarness(0)
			client := h.readySession(t, "u1", &fakeSink{})

			client.emit(whatsapp.AckEvent{ChatID: "111@s.whatsapp.net", MessageIDs: []string{"A", "B"}, Ack: tc.ack})

			stored := h.store.find("status")
			require.Len(t, stored, 1)
			assert.Equal(t, tc.status, stored[0].arg)

			acks := h.rooms.named(realtime.EventMessageAck)
			require.Len(t, acks, 2)
			first := decodeData[AckPayload](acks[0])
			assert.Equal(t, "A", first.MessageID)
			assert.Equal(t, string(tc.status), first.Status)
		})
	}
}

func TestSessionTermination(t *testing.T) {
	t.Run("disconnected evicts the session", func(t *testing.T) {
		h := newHarness(0)
		sink := &fakeSink{}
		client := h.readySession(t, "u1", sink)

		client.emit(whatsapp.DisconnectedEvent{Reason: "logged out"})

		assert.Len(t, h.store.find("disconnected"), 1)
		events := sink.named(realtime.EventDisconnected)
		require.Len(t, events, 1)
		assert.Equal(t, "logged out", decodeData[DisconnectedPayload](events[0]).Reason)

		require.Eventually(t, func() bool { return h.manager.Registry().Get("u1") == nil }, time.Second, 10*time.Millisecond)
		require.Eventually(t, client.isClosed, time.Second, 10*time.Millisecond)
	})

	t.Run("auth failure marks failed", func(t *testing.T) {
		h := newHarness(0)
		sink := &fakeSink{}
		require.NoError(t, h.manager.Initialize(context.Background(), "u1", sink))
		client := h.factory.last()

		client.emit(whatsapp.AuthFailureEvent{Message: "banned"})
		client.emit(whatsapp.DisconnectedEvent{Reason: "after failure"})

		assert.Len(t, h.store.find("failed"), 1)
		assert.Empty(t, h.store.find("disconnected"))
		require.Len(t, sink.named(realtime.EventAuthFailure), 1)
		require.Eventually(t, func() bool { return h.manager.Registry().Len() == 0 }, time.Second, 10*time.Millisecond)
	})

	t.Run("direct events fall back to the room once the connection is gone", func(t *testing.T) {
		h := newHarness(0)
		sink := &fakeSink{}
		client := h.readySession(t, "u1", sink)

		sink.mu.Lock()
		sink.gone = true
		sink.mu.Unlock()

		client.emit(whatsapp.DisconnectedEvent{Reason: "stream replaced"})
		assert.Len(t, h.rooms.named(realtime.EventDisconnected), 1)
	})

	t.Run("stale eviction does not remove a newer session", func(t *testing.T) {
		h := newHarness(0)
		old := h.readySession(t, "u1", &fakeSink{})
		oldSession := h.manager.Registry().Get("u1")
		require.NoError(t, h.manager.Disconnect(context.Background(), "u1"))
		h.readySession(t, "u1", &fakeSink{})

		h.manager.evict(oldSession)
		assert.NotNil(t, h.manager.Registry().Get("u1"))
		assert.True(t, old.isClosed())
	})
}

func TestSessionChatUpdate(t *testing.T) {
	h := newHarness(0)
	client := h.readySession(t, "u1", &fakeSink{})
	archived := true

	client.emit(whatsapp.ChatUpdateEvent{ChatID: "111@s.whatsapp.net", Archived: &archived})

	flags := h.store.find("flags")
	require.Len(t, flags, 1)
	assert.Equal(t, "111@s.whatsapp.net", flags[0].arg)
}
