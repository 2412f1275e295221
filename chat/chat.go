// Package chat implements the realtime direct-message core: the
// authenticated per-connection event channel, the rate-limited message
// pipeline, unread-count bookkeeping, the per-user sidebar view and the
// cross-instance fan-out that lets multiple stateless processes share
// one logical chat service.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"

	"github.com/forkful/chat-service/chat/validator"
)

// A DB provides the storage layer that persists users, messages,
// reactions and unread-notification rows.
type DB interface {
	GetUser(ctx context.Context, id int) (User, error)
	SetCurrentChat(ctx context.Context, userID, partnerID int) error
	TouchLastSeen(ctx context.Context, userID int) error
	SetTheme(ctx context.Context, userID int, theme string) error

	ListConversation(ctx context.Context, userID, partnerID, page, perPage int) (MessagePage, error)
	ListUserMessages(ctx context.Context, userID int) ([]Message, error)
	// SaveMessage stores the message together with its unread-notification
	// row in a single transaction.
	SaveMessage(ctx context.Context, msg Message) (Message, error)
	GetMessage(ctx context.Context, id int) (Message, error)
	MarkMessage(ctx context.Context, id int, status string, at time.Time) error
	InsertReaction(ctx context.Context, reaction Reaction) (Reaction, error)

	CountNotifications(ctx context.Context, recipientID int) (int, error)
	CountUnread(ctx context.Context, senderID, recipientID int) (int, error)
	ClearNotifications(ctx context.Context, senderID, recipientID int) error
}

// A Limiter admits or rejects an action against a fixed counting window
// shared by all processes.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// A Broker carries chat events between application processes. Delivery
// is at-most-once, best effort.
type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// A Limit is a fixed-window action budget.
type Limit struct {
	Burst  int
	Window time.Duration
}

// Limits holds the per-user action budgets. The oauth_link budget is
// enforced by the account surface, which shares the same counter store.
var Limits = map[string]Limit{
	"message_send":     {Burst: 10, Window: time.Minute},
	"message_reaction": {Burst: 20, Window: time.Minute},
	"typing_indicator": {Burst: 30, Window: time.Minute},
	"message_status":   {Burst: 50, Window: time.Minute},
	"oauth_link":       {Burst: 5, Window: time.Hour},
}

const (
	defaultPerPage = 50
	maxBodyRunes   = 140
)

// Server terminates websocket connections and dispatches their events.
// It implements http.Handler for the connection upgrade endpoint.
type Server struct {
	Logger  *slog.Logger
	DB      DB
	Limiter Limiter
	Broker  Broker
	Tokens  *TokenValidator
	Val     *validator.Validator

	once       sync.Once
	hub        *Hub
	policy     *bluemonday.Policy
	instanceID string
	persistCh  chan Message
	upgrader   websocket.Upgrader
}

func (s *Server) init() {
	s.hub = NewHub()
	s.policy = bluemonday.StrictPolicy()
	s.instanceID = uuid.NewString()
	s.persistCh = make(chan Message, 256)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// Run starts the asynchronous persistence worker and the fan-out
// subscriber, then blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(s.init)

	events, err := s.Broker.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	go s.persistLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Origin == s.instanceID {
				continue
			}
			s.applyClusterEvent(ctx, ev)
		}
	}
}

// handleEvent dispatches one inbound client event. Events for a single
// connection arrive here serially from its read loop.
func (s *Server) handleEvent(ctx context.Context, c *Client, env envelope) {
	switch env.Event {
	case "chat_user_connected":
		s.chatUserConnected(ctx, c, env.Data)
	case "handle_chat_user_connected":
		s.handleChatUserConnected(ctx, c, env.Data)
	case "message_input":
		if s.allow(ctx, c, "message_send") {
			s.messageInput(ctx, c, env.Data)
		}
	case "handle_message_input":
		s.handleMessageInput(ctx, c, env.Data)
	case "handle_typing":
		if s.allow(ctx, c, "typing_indicator") {
			s.handleTyping(ctx, c, env.Data)
		}
	case "message_status":
		if s.allow(ctx, c, "message_status") {
			s.messageStatus(ctx, c, env.Data)
		}
	case "message_reaction":
		if s.allow(ctx, c, "message_reaction") {
			s.messageReaction(ctx, c, env.Data)
		}
	case "messages_loaded":
		s.messagesLoaded(ctx, c, env.Data)
	case "update_message_counter":
		s.updateMessageCounter(ctx, c)
	case "refresh_sidebar":
		s.pushSidebar(ctx, c.userID, 0)
	case "theme_update":
		s.themeUpdate(ctx, c, env.Data)
	case "load_more_messages":
		s.loadMoreMessages(ctx, c, env.Data)
	default:
		s.Logger.Debug("Unknown event", "event", env.Event, "user_id", c.userID)
	}
}

// allow checks the action's fixed-window budget for this user. Denial
// notifies the connection and never disconnects it. A failing counter
// store admits the action so chat stays usable.
func (s *Server) allow(ctx context.Context, c *Client, action string) bool {
	l, ok := Limits[action]
	if !ok {
		return true
	}
	key := fmt.Sprintf("%s:%d", action, c.userID)
	allowed, err := s.Limiter.Allow(ctx, key, l.Burst, l.Window)
	if err != nil {
		s.Logger.Error("Rate limit check failed", "action", action, "error", err.Error())
		return true
	}
	if !allowed {
		c.push("error", errorPayload{
			Message:    "Rate limit exceeded",
			RetryAfter: int(l.Window.Seconds()),
		})
	}
	return allowed
}

// publish broadcasts a fan-out event tagged with this process instance.
// Publish failures never fail the local delivery that already happened.
func (s *Server) publish(ctx context.Context, typ string, data any) {
	b, err := json.Marshal(data)
	if err != nil {
		s.Logger.Error("Could not encode fan-out event", "type", typ, "error", err.Error())
		return
	}
	if err := s.Broker.Publish(ctx, Event{Type: typ, Origin: s.instanceID, Data: b}); err != nil {
		s.Logger.Error("Fan-out publish failed", "type", typ, "error", err.Error())
	}
}
