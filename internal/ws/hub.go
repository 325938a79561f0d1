package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// MessageType represents the type of a hub payload.
type MessageType string

const (
	MessageTicketCreated       MessageType = "TicketCreated"
	MessageTicketUpdated       MessageType = "TicketUpdated"
	MessageTicketStatusChanged MessageType = "TicketStatusChanged"
	MessageTicketAssigned      MessageType = "TicketAssigned"
	MessageCommentAdded        MessageType = "CommentAdded"
)

// Event is the envelope written to subscribed clients.
type Event struct {
	Type      MessageType `json:"type"`
	ProjectID string      `json:"project_id"`
	Data      interface{} `json:"data"`
}

// BroadcastMessage packages a payload for a project-scoped broadcast.
type BroadcastMessage struct {
	ProjectID string
	Payload   []byte
}

// Hub manages active clients and project-scoped broadcasts.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage
}

// NewHub builds a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage),
	}
}

// Run starts the hub loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				if client.ProjectID() != message.ProjectID {
					continue
				}
				select {
				case client.Send <- message.Payload:
				default:
					delete(h.clients, client)
					close(client.Send)
				}
			}
		}
	}
}

// Broadcast sends a payload to all clients subscribed to a project.
func (h *Hub) Broadcast(projectID string, payload []byte) {
	h.broadcast <- BroadcastMessage{ProjectID: projectID, Payload: payload}
}

// Publish marshals an event and broadcasts it to the event's project.
// Marshal failures are logged and dropped; live events are best effort.
func (h *Hub) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("warning: failed to marshal %s event: %v", event.Type, err)
		return
	}
	h.Broadcast(event.ProjectID, payload)
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Client represents a websocket connection belonging to one user. It
// receives events for at most one project at a time.
type Client struct {
	Conn      *websocket.Conn
	Hub       *Hub
	Send      chan []byte
	UserID    string
	mu        sync.RWMutex
	projectID string
}

// NewClient returns a client ready for registration.
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}
}

// ProjectID returns the project the client is subscribed to, or "".
func (c *Client) ProjectID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projectID
}

// SetProjectID updates the client's project subscription.
func (c *Client) SetProjectID(projectID string) {
	c.mu.Lock()
	c.projectID = projectID
	c.mu.Unlock()
}
