package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"lendscan/internal/eventbus"
)

// BroadcastMessage is the wire shape pushed to websocket clients. Type is
// the topic family, Topic the full keyed topic the event was published on.
type BroadcastMessage struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic"`
	Height    uint64      `json:"height,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// clientCommand is the only message clients send: topic management.
// Topics are exact keyed topics ("market_updated:7"), bare families
// ("new_transaction"), or "*" for everything.
type clientCommand struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	topics map[string]bool
}

func (c *Client) matches(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics["*"] || c.topics[topic] {
		return true
	}
	if family, _, ok := strings.Cut(topic, ":"); ok && c.topics[family] {
		return true
	}
	return false
}

// applyCommand mutates the subscription set and returns the active topics
// for the ack message.
func (c *Client) applyCommand(cmd clientCommand) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, topic := range cmd.Topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		if cmd.Action == "subscribe" {
			c.topics[topic] = true
		} else {
			delete(c.topics, topic)
		}
	}
	active := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		active = append(active, topic)
	}
	return active
}

// Hub fans bus events out to websocket clients according to their
// subscriptions. All client-set mutation happens on the run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan eventbus.Event
	stop       chan struct{}
	stopOnce   sync.Once
	clients    map[*Client]bool
	bus        *eventbus.Bus
}

func newHub(bus *eventbus.Bus) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan eventbus.Event, 256),
		stop:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		bus:        bus,
	}
}

func (h *Hub) run() {
	if h.bus != nil {
		h.bus.Subscribe(eventbus.FamilyMarketUpdated, h.events)
		h.bus.Subscribe(eventbus.FamilyPositionUpdate, h.events)
		h.bus.Subscribe(eventbus.FamilyNewTransaction, h.events)
	}
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case evt := <-h.events:
			h.broadcast(evt)
		case <-h.stop:
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*Client]bool)
			return
		}
	}
}

func (h *Hub) close() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) broadcast(evt eventbus.Event) {
	family, _, _ := strings.Cut(evt.Topic, ":")
	data, err := json.Marshal(BroadcastMessage{
		Type:      family,
		Topic:     evt.Topic,
		Height:    evt.Height,
		Timestamp: formatTime(evt.Timestamp),
		Payload:   evt.Data,
	})
	if err != nil {
		return
	}
	for client := range h.clients {
		if !client.matches(evt.Topic) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow consumer: drop it rather than stall the hub.
			delete(h.clients, client)
			close(client.send)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, 64),
		topics: make(map[string]bool),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.stop:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.sendControl(map[string]interface{}{"type": "error", "message": "invalid message"})
			continue
		}
		switch cmd.Action {
		case "subscribe", "unsubscribe":
			active := c.applyCommand(cmd)
			c.sendControl(map[string]interface{}{"type": cmd.Action + "d", "topics": active})
		default:
			c.sendControl(map[string]interface{}{"type": "error", "message": "unknown action"})
		}
	}
}

func (c *Client) sendControl(payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
