// Package stream pushes per-user notifications to connected websocket clients.
package stream

import (
	"context"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "ollana:notify:"

// Notification is the envelope written to websocket clients.
type Notification struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans notifications out to the websockets of one user. With redis the
// notification travels through a pattern subscription so every instance
// delivers to its own clients; without redis delivery is local.
type Hub struct {
	redis   *redis.Client
	log     zerolog.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	ready     chan struct{}
	readyOnce sync.Once
}

type Client struct {
	UserID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client, log zerolog.Logger) *Hub {
	return &Hub{
		redis:   redisClient,
		log:     log,
		clients: map[string]map[*Client]struct{}{},
		ready:   make(chan struct{}),
	}
}

func (h *Hub) Register(userID string) *Client {
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userClients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := userClients[client]; !ok {
		return
	}
	delete(userClients, client)
	if len(userClients) == 0 {
		delete(h.clients, client.UserID)
	}
	close(client.Send)
}

// Clients returns the number of connections open for userID on this instance.
func (h *Hub) Clients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) Notify(ctx context.Context, userID string, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if h.redis == nil {
		h.deliver(userID, payload)
		return nil
	}
	return h.redis.Publish(ctx, redisChannel(userID), payload).Err()
}

// deliver drops the payload for clients whose buffer is full.
func (h *Hub) deliver(userID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.Send <- payload:
		default:
			h.log.Warn().Str("user_id", userID).Msg("notification dropped, client buffer full")
		}
	}
}

// Ready is closed once the hub can deliver notifications.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Serve relays redis notifications to local clients until ctx is done.
func (h *Hub) Serve(ctx context.Context) error {
	if h.redis == nil {
		h.readyOnce.Do(func() { close(h.ready) })
		<-ctx.Done()
		return ctx.Err()
	}

	pubsub := h.redis.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	h.readyOnce.Do(func() { close(h.ready) })

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			userID := userIDFromChannel(msg.Channel)
			if userID == "" {
				continue
			}
			h.deliver(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) String() string {
	return "stream-hub"
}

func redisChannel(userID string) string {
	return channelPrefix + userID
}

func userIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) {
		return ""
	}
	return ch[len(channelPrefix):]
}
