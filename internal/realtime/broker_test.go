package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/wabridge/bridge-server-go/internal/redis"
)

func setupBroker(t *testing.T) *Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redisclient.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	broker := NewBroker(rc)
	t.Cleanup(func() {
		broker.Close()
		rc.Close()
	})
	return broker
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBroker_PublishReachesEveryConnectionOfUser(t *testing.T) {
	broker := setupBroker(t)

	tab1 := broker.Subscribe("user-1")
	tab2 := broker.Subscribe("user-1")
	other := broker.Subscribe("user-2")

	ev, err := NewEvent(EventMessageAck, map[string]string{"messageId": "m1", "status": "read"})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), "user-1", ev))

	for _, c := range []*Client{tab1, tab2} {
		got := receive(t, c)
		assert.Equal(t, EventMessageAck, got.Name)
		assert.JSONEq(t, `{"messageId":"m1","status":"read"}`, string(got.Data))
	}

	select {
	case ev := <-other.Events:
		t.Fatalf("unexpected event for other user: %s", ev.Name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroker_UnsubscribeClosesClient(t *testing.T) {
	broker := setupBroker(t)

	c := broker.Subscribe("user-1")
	assert.Equal(t, 1, broker.ClientCount("user-1"))

	broker.Unsubscribe(c)

	assert.Equal(t, 0, broker.ClientCount("user-1"))
	assert.Equal(t, 0, broker.TotalClients())
	assert.False(t, c.Send(ErrorEvent("late")))

	// a second unsubscribe is a no-op
	broker.Unsubscribe(c)
}

func TestBroker_ResubscribeAfterEmptyRoom(t *testing.T) {
	broker := setupBroker(t)

	first := broker.Subscribe("user-1")
	broker.Unsubscribe(first)

	second := broker.Subscribe("user-1")
	require.NoError(t, broker.Publish(context.Background(), "user-1", ErrorEvent("x")))

	got := receive(t, second)
	assert.Equal(t, EventError, got.Name)

	select {
	case ev := <-second.Events:
		t.Fatalf("event delivered twice: %s", ev.Name)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_SendDirect(t *testing.T) {
	c := newClient("user-1")

	ev, err := NewEvent(EventQR, "data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.True(t, c.Send(ev))

	got := <-c.Events
	var payload string
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, "data:image/png;base64,AAAA", payload)
}

func TestClient_SendDropsWhenFull(t *testing.T) {
	c := newClient("user-1")
	for i := 0; i < clientBufferSize; i++ {
		require.True(t, c.Send(ErrorEvent("fill")))
	}
	assert.False(t, c.Send(ErrorEvent("overflow")))
}

func TestErrorEvent(t *testing.T) {
	ev := ErrorEvent("WhatsApp not connected")
	assert.Equal(t, EventError, ev.Name)
	assert.JSONEq(t, `{"message":"WhatsApp not connected"}`, string(ev.Data))
}
