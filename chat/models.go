package chat

import (
	"encoding/json"
	"time"
)

// A Message represents a persisted direct message between two users.
type Message struct {
	ID          int        `json:"id"`
	Body        string     `json:"body"`
	SenderID    int        `json:"sender_id"`
	RecipientID int        `json:"recipient_id"`
	CreatedAt   time.Time  `json:"timestamp"`
	DeliveredAt *time.Time `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at"`
	Reactions   []Reaction `json:"reactions"`
}

// A Reaction represents a single reaction left on a message. Repeated
// identical reactions from the same user accumulate as separate rows.
type Reaction struct {
	ID        int       `json:"id"`
	MessageID int       `json:"message_id"`
	UserID    int       `json:"user_id"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"created_at"`
}

// A User holds the chat-visible slice of a user record. The live
// connection handle is process-local state owned by the Hub and is
// deliberately not part of this struct; CurrentChatID is the durable,
// cross-process-readable portion of presence.
type User struct {
	ID            int       `json:"id"`
	Username      string    `json:"username"`
	Avatar        string    `json:"avatar"`
	Theme         string    `json:"theme"`
	CurrentChatID int       `json:"current_chat_id"`
	LastSeen      time.Time `json:"last_seen"`
}

// A MessagePage is one page of a conversation, newest first.
type MessagePage struct {
	Messages []Message
	HasNext  bool
	NextPage int
}

// A SidebarEntry is one conversation row in a user's sidebar.
type SidebarEntry struct {
	LatestTimestamp string `json:"latest_timestamp"`
	MessagePreview  string `json:"message_preview"`
	Avatar          string `json:"avatar"`
	UserID          int    `json:"user_id"`
	NotifCount      int    `json:"notif_count"`
}

// A SidebarView is the full per-user conversation list, keyed by the
// partner's username.
type SidebarView struct {
	Data               map[string]SidebarEntry `json:"data"`
	CurrentChatID      int                     `json:"current_chat_id"`
	RecipientUserFound bool                    `json:"recipient_user_found"`
}

// An Event is the envelope broadcast on the cluster fan-out channel.
// Origin identifies the publishing process so subscribers can skip
// events they produced themselves.
type Event struct {
	Type   string          `json:"type"`
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// Fan-out event types.
const (
	EventNewMessage      = "new_message"
	EventTyping          = "typing"
	EventMessageStatus   = "message_status"
	EventMessageReaction = "message_reaction"
	EventUserStatus      = "user_status"
)
