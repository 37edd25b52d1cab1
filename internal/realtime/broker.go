package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wabridge/bridge-server-go/internal/metrics"
	redisclient "github.com/wabridge/bridge-server-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
	subscribeTimeout  = 5 * time.Second
)

// Client is one real-time connection joined to its user's room.
type Client struct {
	ID     string
	UserID string
	Events chan Event
	Done   chan struct{}
	once   sync.Once
}

func newClient(userID string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}
}

// Send queues an event for this connection only.
// It returns false when the connection is gone or its buffer is full.
func (c *Client) Send(event Event) bool {
	select {
	case <-c.Done:
		return false
	default:
	}

	select {
	case c.Events <- event:
		return true
	default:
		log.Warn().
			Str("userId", c.UserID).
			Str("connId", c.ID).
			Str("event", event.Name).
			Msg("client event buffer full, dropping event")
		return false
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.Done) })
}

type room struct {
	clients map[*Client]struct{}
	cancel  context.CancelFunc
	ready   chan struct{}
}

// Broker fans room events out to every connection of a user across instances
// through Redis pub/sub.
type Broker struct {
	redis  *redisclient.Client
	rooms  map[string]*room
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:  redisClient,
		rooms:  make(map[string]*room),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Subscribe joins a new connection to the user's room. The first connection of a
// room opens the Redis subscription and waits for it to be confirmed.
func (b *Broker) Subscribe(userID string) *Client {
	client := newClient(userID)

	b.mu.Lock()
	r, ok := b.rooms[userID]
	if !ok {
		ctx, cancel := context.WithCancel(b.ctx)
		r = &room{
			clients: make(map[*Client]struct{}),
			cancel:  cancel,
			ready:   make(chan struct{}),
		}
		b.rooms[userID] = r
		go b.subscribeToRedis(ctx, userID, r)
	}
	r.clients[client] = struct{}{}
	clientCount := len(r.clients)
	b.mu.Unlock()

	metrics.RealtimeConnections.Inc()

	select {
	case <-r.ready:
	case <-time.After(subscribeTimeout):
		log.Warn().Str("userId", userID).Msg("redis subscription not confirmed in time")
	}

	log.Info().
		Str("userId", userID).
		Str("connId", client.ID).
		Int("clientCount", clientCount).
		Msg("realtime client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rooms[client.UserID]
	if !ok {
		return
	}
	if _, member := r.clients[client]; !member {
		return
	}

	delete(r.clients, client)
	client.close()
	metrics.RealtimeConnections.Dec()

	if len(r.clients) == 0 {
		r.cancel()
		delete(b.rooms, client.UserID)
	}

	log.Info().
		Str("userId", client.UserID).
		Str("connId", client.ID).
		Int("clientCount", len(r.clients)).
		Msg("realtime client unsubscribed")
}

// Publish emits an event to every connection in the user's room, on any instance.
func (b *Broker) Publish(ctx context.Context, userID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.UserChannel(userID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, userID string, r *room) {
	channel := redisclient.UserChannel(userID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		close(r.ready)
		if ctx.Err() == nil {
			log.Error().Err(err).Str("userId", userID).Msg("redis subscribe failed")
		}
		return
	}
	close(r.ready)

	log.Debug().
		Str("userId", userID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(r, event)
		}
	}
}

// broadcast delivers to the room that owns the subscription, so a retired
// subscription never reaches connections of a newer room for the same user.
func (b *Broker) broadcast(r *room, event Event) {
	b.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		client.Send(event)
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.rooms {
		for client := range r.clients {
			client.close()
			metrics.RealtimeConnections.Dec()
		}
	}
	b.rooms = make(map[string]*room)
}

func (b *Broker) ClientCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if r, ok := b.rooms[userID]; ok {
		return len(r.clients)
	}
	return 0
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, r := range b.rooms {
		total += len(r.clients)
	}
	return total
}
