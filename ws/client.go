package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pingpong-elo-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	// mu guards the session binding: it is written by the read pump and
	// read by the hub loop when fanning out state pushes.
	mu        sync.Mutex
	sessionID string
}

// SessionID returns the session the client is bound to, or "" before auth.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) bindSession(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

// ReadPump pumps messages from the websocket connection to the hub.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage routes one inbound message. The first message must be auth;
// everything else is rejected until the client has a session.
func (c *Client) handleMessage(message []byte) {
	var env InboundEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.sendError("malformed message")
		return
	}

	switch env.Type {
	case "auth":
		var msg AuthMsg
		if err := json.Unmarshal(env.Raw, &msg); err != nil {
			c.sendError("malformed auth message")
			return
		}
		c.handleAuth(msg.Token)

	case "refresh":
		if c.SessionID() == "" {
			c.sendError("not authenticated")
			return
		}
		c.sendSnapshot()

	default:
		c.sendError("unknown message type")
	}
}

// handleAuth validates the session token, binds the client to its session,
// and sends the initial dashboard snapshot.
func (c *Client) handleAuth(token string) {
	username, sessionID, err := c.Hub.Signer.Verify(token)
	if err != nil {
		c.sendError("invalid session token")
		return
	}
	if _, err := c.Hub.Sessions.Get(sessionID); err != nil {
		c.sendError("session expired")
		return
	}

	c.bindSession(sessionID)
	log.Printf("Client authenticated: %s (session %s)", username, sessionID)

	c.sendSnapshot()
}

func (c *Client) sendSnapshot() {
	s, err := c.Hub.Sessions.Get(c.SessionID())
	if err != nil {
		c.sendError("session expired")
		return
	}
	data, err := json.Marshal(NewStateMsg(s))
	if err != nil {
		log.Printf("Marshal snapshot: %v", err)
		return
	}
	wsutil.SafeSend(c.Send, data)
}

func (c *Client) sendError(message string) {
	data, _ := json.Marshal(ErrorMsg{Type: "error", Message: message})
	wsutil.SafeSend(c.Send, data)
}

// WritePump pumps messages from the send channel to the websocket connection.
// It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
