// Package ws pushes live dashboard updates to connected clients. Each client
// authenticates with its session token and then receives a state snapshot
// whenever that session's ledger changes.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"pingpong-elo-server/auth"
	"pingpong-elo-server/session"
	"pingpong-elo-server/wsutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub maintains the set of connected clients and fans session state changes
// out to the clients watching that session.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client

	publish chan string // session ids whose state changed

	Signer   *auth.Signer
	Sessions *session.Manager
}

// NewHub creates a new Hub.
func NewHub(signer *auth.Signer, sessions *session.Manager) *Hub {
	return &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		publish:    make(chan string, 64),
		Signer:     signer,
		Sessions:   sessions,
	}
}

// Publish schedules a state push to every client watching the session. It
// never blocks; under backpressure the next publish carries the same
// snapshot anyway.
func (h *Hub) Publish(sessionID string) {
	select {
	case h.publish <- sessionID:
	default:
	}
}

// Run is the hub's main loop. Should be run as a goroutine. When ctx is
// cancelled, Run returns and no longer accepts registrations or publishes.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Print("Hub: shutdown signal received, stopping")
			return

		case client := <-h.Register:
			h.Clients[client] = true
			log.Printf("Client connected. Total clients: %d", len(h.Clients))

		case client := <-h.Unregister:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
				log.Printf("Client disconnected. Total clients: %d", len(h.Clients))
			}

		case sessionID := <-h.publish:
			h.pushState(sessionID)
		}
	}
}

// pushState sends a fresh snapshot to every authenticated client of the
// session. A session evicted between publish and push is simply skipped.
func (h *Hub) pushState(sessionID string) {
	s, err := h.Sessions.Get(sessionID)
	if err != nil {
		return
	}
	data, err := json.Marshal(NewStateMsg(s))
	if err != nil {
		log.Printf("Marshal state for session %s: %v", sessionID, err)
		return
	}
	for client := range h.Clients {
		if client.SessionID() == sessionID {
			wsutil.SafeSend(client.Send, data)
		}
	}
}

// ServeWS handles WebSocket upgrade requests and creates a new Client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, 256),
	}

	h.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
