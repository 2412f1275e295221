package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	maxFrameSize = 64 * 1024
)

// envelope is the wire format for events in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type errorPayload struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// A Client is one live websocket connection. Outbound pushes go through
// a buffered channel drained by the write pump; a backlogged connection
// drops pushes instead of blocking the sender's handler.
type Client struct {
	userID    int
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(userID int, conn *websocket.Conn) *Client {
	return &Client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// push queues an event for delivery to this connection.
func (c *Client) push(event string, data any) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return
		}
		raw = b
	}
	b, err := json.Marshal(envelope{Event: event, Data: raw})
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	case <-c.done:
	default:
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeHTTP authenticates and upgrades a connection, then serves its
// events until the peer goes away. A bad or expired credential closes
// the connection immediately, with no session established.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(s.init)

	userID, err := s.Tokens.Authenticate(r)
	if err != nil {
		s.Logger.Info("Connection rejected", "error", err.Error())
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Error("Upgrade failed", "user_id", userID, "error", err.Error())
		return
	}

	c := newClient(userID, conn)
	go c.writePump()
	s.connected(r.Context(), c)
	s.readLoop(c)
}

func (s *Server) readLoop(c *Client) {
	defer s.disconnected(context.Background(), c)
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.handleEvent(context.Background(), c, env)
	}
}

// connected binds the identity to its new connection and announces the
// user online.
func (s *Server) connected(ctx context.Context, c *Client) {
	if old := s.hub.Add(c); old != nil {
		old.close()
	}
	if err := s.DB.TouchLastSeen(ctx, c.userID); err != nil {
		s.Logger.Error("Could not update last seen", "user_id", c.userID, "error", err.Error())
	}
	status := userStatusPayload{UserID: c.userID, Status: "online"}
	s.hub.Each(func(o *Client) {
		o.push("user_status", status)
	})
	s.publish(ctx, EventUserStatus, status)
}

// disconnected clears presence for the connection. Historical
// conversation data is untouched; only the live mapping and the
// current-chat pointer are reset.
func (s *Server) disconnected(ctx context.Context, c *Client) {
	c.close()
	if !s.hub.Remove(c) {
		// Displaced by a newer login; that login owns the presence now.
		return
	}
	if err := s.DB.SetCurrentChat(ctx, c.userID, 0); err != nil {
		s.Logger.Error("Could not reset current chat", "user_id", c.userID, "error", err.Error())
	}
}
