package realtime

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

const outboundBuffer = 8

// Message is delivered to every client joined to Group.
type Message struct {
	Group string `json:"group"`
	Data  any    `json:"data,omitempty"`
}

// CountGroup names the per-user group carrying unread notification counts.
func CountGroup(userID uint) string {
	return "notifications.count." + strconv.FormatUint(uint64(userID), 10)
}

// Gauge tracks live connections; prometheus.Gauge satisfies it.
type Gauge interface {
	Inc()
	Dec()
}

type Hub struct {
	mu     sync.RWMutex
	logger *logger.Logger
	groups map[string]map[*Client]bool
	gauge  Gauge

	WriteTimeout time.Duration
	PingInterval time.Duration
}

func NewHub(log *logger.Logger, gauge Gauge) *Hub {
	return &Hub{
		logger:       log.With("component", "WSHub"),
		groups:       make(map[string]map[*Client]bool),
		gauge:        gauge,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

func (hub *Hub) NewClient(userID uint) *Client {
	id := uuid.New()
	c := &Client{
		ID:       id,
		UserID:   userID,
		Groups:   make(map[string]bool),
		Outbound: make(chan Message, outboundBuffer),
		done:     make(chan struct{}),
		Logger:   hub.logger.With("clientID", id),
	}
	if hub.gauge != nil {
		hub.gauge.Inc()
	}
	return c
}

// Join is idempotent.
func (hub *Hub) Join(client *Client, group string) {
	group = strings.TrimSpace(group)
	if group == "" {
		return
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	select {
	case <-client.done:
		return
	default:
	}
	client.Groups[group] = true
	members, ok := hub.groups[group]
	if !ok {
		members = make(map[*Client]bool)
		hub.groups[group] = members
	}
	members[client] = true
	hub.logger.Debug("ws client joined", "clientID", client.ID, "group", group)
}

func (hub *Hub) Leave(client *Client, group string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.leave(client, strings.TrimSpace(group))
}

func (hub *Hub) leave(client *Client, group string) {
	delete(client.Groups, group)
	if members, ok := hub.groups[group]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(hub.groups, group)
		}
	}
}

// Members returns the number of clients joined to group.
func (hub *Hub) Members(group string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.groups[group])
}

func (hub *Hub) Broadcast(msg Message) {
	if msg.Group == "" {
		return
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for c := range hub.groups[msg.Group] {
		if c.offer(msg) {
			hub.logger.Debug("dropped oldest ws message; outbound buffer full", "clientID", c.ID)
		}
	}
}

// Publish delivers msg to local clients. It lets the hub act as the bus when
// a single instance serves every connection.
func (hub *Hub) Publish(_ context.Context, msg Message) error {
	hub.Broadcast(msg)
	return nil
}

// Close leaves every group and closes Outbound. Calling it twice is safe.
func (hub *Hub) Close(client *Client) {
	client.once.Do(func() {
		hub.mu.Lock()
		for g := range client.Groups {
			hub.leave(client, g)
		}
		close(client.done)
		close(client.Outbound)
		hub.mu.Unlock()
		if hub.gauge != nil {
			hub.gauge.Dec()
		}
		hub.logger.Debug("ws client closed", "clientID", client.ID)
	})
}

// Serve pumps client messages to conn until either side goes away. Inbound
// frames are read and discarded so control frames keep flowing.
func (hub *Hub) Serve(ctx context.Context, conn *websocket.Conn, client *Client) {
	defer hub.Close(client)
	defer conn.Close()

	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(hub.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-readErr:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hub.WriteTimeout)); err != nil {
				return
			}
		case msg, ok := <-client.Outbound:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(hub.WriteTimeout))
			if err := conn.WriteJSON(msg.Data); err != nil {
				client.Logger.Debug("ws write failed", "error", err)
				return
			}
		}
	}
}
