package stream

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const (
	outboxSize = 256

	channelPrefix  = "route:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// Hub fans navigation events out to websocket clients per route. With redis
// every event goes through pub/sub so that clients connected to other API
// instances receive it too.
type Hub struct {
	redis      *redis.Client
	subscribed atomic.Bool
	ready      chan struct{}
	outbox     chan outbound
	cancel     context.CancelFunc

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

type outbound struct {
	routeID string
	payload []byte
}

type Client struct {
	RouteID string
	Send    chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		ready:   make(chan struct{}),
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient == nil {
		close(h.ready)
		return h
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.outbox = make(chan outbound, outboxSize)
	go h.subscribeRedis(ctx)
	go h.publish(ctx)
	return h
}

// Ready is closed once the hub knows whether redis delivery is available.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

func (h *Hub) Register(routeID string) *Client {
	client := &Client{
		RouteID: routeID,
		Send:    make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[routeID] == nil {
		h.clients[routeID] = map[*Client]struct{}{}
	}
	h.clients[routeID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	routeClients, ok := h.clients[client.RouteID]
	if !ok {
		return
	}
	if _, ok := routeClients[client]; !ok {
		return
	}
	delete(routeClients, client)
	if len(routeClients) == 0 {
		delete(h.clients, client.RouteID)
	}
	close(client.Send)
}

func (h *Hub) Subscribers(routeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[routeID])
}

// Broadcast never blocks: redis publishing happens on the hub's own
// goroutine and slow clients have their messages dropped.
func (h *Hub) Broadcast(routeID string, payload []byte) {
	if h.redis != nil && h.subscribed.Load() {
		select {
		case h.outbox <- outbound{routeID: routeID, payload: payload}:
			return
		default:
			log.Printf("stream: publish queue full, delivering %s locally", routeID)
		}
	}
	h.deliver(routeID, payload)
}

// publish drains the outbox in order. A failed publish falls back to local
// delivery so clients on this instance still get the event.
func (h *Hub) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.outbox:
			if err := h.redis.Publish(ctx, redisChannel(msg.routeID), msg.payload).Err(); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("stream: redis publish error: %v", err)
				h.deliver(msg.routeID, msg.payload)
			}
		}
	}
}

func (h *Hub) deliver(routeID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[routeID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.redis.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("stream: redis subscribe error, delivering locally: %v", err)
		close(h.ready)
		return
	}
	h.subscribed.Store(true)
	close(h.ready)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				h.subscribed.Store(false)
				return
			}
			if routeID := routeIDFromChannel(msg.Channel); routeID != "" {
				h.deliver(routeID, []byte(msg.Payload))
			}
		}
	}
}

func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
}

func redisChannel(routeID string) string {
	return channelPrefix + routeID + channelSuffix
}

func routeIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
