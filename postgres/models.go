package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/forkful/chat-service/chat"
)

// A user carries the chat-visible columns of the users table. The rest
// of the account record belongs to the web application and is not read
// here.
type user struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            int64     `bun:",pk,autoincrement"`
	Username      string    `bun:",notnull,unique"`
	Avatar        string    `bun:",notnull,default:'profile_default_avatar.png'"`
	Theme         string    `bun:",notnull,default:'dark'"`
	CurrentChatID int64     `bun:"current_chat_id,notnull,default:0"`
	LastSeen      time.Time `bun:",nullzero"`
}

type message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID          int64      `bun:",pk,autoincrement"`
	Body        string     `bun:"body,notnull"`
	SenderID    int64      `bun:",notnull"`
	RecipientID int64      `bun:",notnull"`
	CreatedAt   time.Time  `bun:",nullzero,default:now()"`
	DeliveredAt time.Time  `bun:",nullzero"`
	ReadAt      time.Time  `bun:",nullzero"`
	Reactions   []reaction `bun:"rel:has-many,join:id=message_id"`
}

type reaction struct {
	bun.BaseModel `bun:"table:message_reactions,alias:r"`

	ID        int64     `bun:",pk,autoincrement"`
	MessageID int64     `bun:",notnull"`
	UserID    int64     `bun:",notnull"`
	Reaction  string    `bun:"reaction,notnull"`
	CreatedAt time.Time `bun:",nullzero,default:now()"`
}

// A notification is one unread unit from sender to recipient. The rows
// act as a counter, not an audit log; opening the conversation deletes
// them in bulk.
type notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID          int64     `bun:",pk,autoincrement"`
	Name        string    `bun:",notnull"`
	SenderID    int64     `bun:",notnull"`
	RecipientID int64     `bun:",notnull"`
	CreatedAt   time.Time `bun:",nullzero,default:now()"`
}

func (u user) ChatUser() chat.User {
	return chat.User{
		ID:            int(u.ID),
		Username:      u.Username,
		Avatar:        u.Avatar,
		Theme:         u.Theme,
		CurrentChatID: int(u.CurrentChatID),
		LastSeen:      u.LastSeen,
	}
}

func (m message) ChatMessage() chat.Message {
	reactions := make([]chat.Reaction, len(m.Reactions))
	for i, r := range m.Reactions {
		reactions[i] = r.ChatReaction()
	}
	out := chat.Message{
		ID:          int(m.ID),
		Body:        m.Body,
		SenderID:    int(m.SenderID),
		RecipientID: int(m.RecipientID),
		CreatedAt:   m.CreatedAt,
		Reactions:   reactions,
	}
	if !m.DeliveredAt.IsZero() {
		t := m.DeliveredAt
		out.DeliveredAt = &t
	}
	if !m.ReadAt.IsZero() {
		t := m.ReadAt
		out.ReadAt = &t
	}
	return out
}

func (r reaction) ChatReaction() chat.Reaction {
	return chat.Reaction{
		ID:        int(r.ID),
		MessageID: int(r.MessageID),
		UserID:    int(r.UserID),
		Reaction:  r.Reaction,
		CreatedAt: r.CreatedAt,
	}
}
