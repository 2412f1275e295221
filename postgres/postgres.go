// Package postgres persists the chat rows: users (the chat-visible
// slice), messages, reactions and unread notifications.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/forkful/chat-service/chat"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and pings it to ensure the
// connection is working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// GetUser returns the chat-visible slice of a user record.
func (pg *Postgres) GetUser(ctx context.Context, id int) (chat.User, error) {
	var u user
	err := pg.bun.NewSelect().
		Model(&u).
		Where("u.id = ?", id).
		Scan(ctx)
	if err != nil {
		return chat.User{}, fmt.Errorf("scan: %w", err)
	}
	return u.ChatUser(), nil
}

// SetCurrentChat stores the partner the user has open; 0 means none.
func (pg *Postgres) SetCurrentChat(ctx context.Context, userID, partnerID int) error {
	_, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("current_chat_id = ?", partnerID).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// TouchLastSeen stamps the user's last-seen time.
func (pg *Postgres) TouchLastSeen(ctx context.Context, userID int) error {
	_, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("last_seen = now()").
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// SetTheme stores the user's UI theme.
func (pg *Postgres) SetTheme(ctx context.Context, userID int, theme string) error {
	_, err := pg.bun.NewUpdate().
		Model((*user)(nil)).
		Set("theme = ?", theme).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// ListConversation returns one page of the two users' conversation,
// newest first, including reactions.
func (pg *Postgres) ListConversation(ctx context.Context, userID, partnerID, page, perPage int) (chat.MessagePage, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Relation("Reactions").
		Where("(m.sender_id = ? AND m.recipient_id = ?) OR (m.sender_id = ? AND m.recipient_id = ?)",
			userID, partnerID, partnerID, userID).
		Order("created_at DESC").
		Limit(perPage + 1).
		Offset(perPage * (page - 1)).
		Scan(ctx)
	if err != nil {
		return chat.MessagePage{}, fmt.Errorf("scan: %w", err)
	}

	out := chat.MessagePage{}
	if len(msgs) > perPage {
		msgs = msgs[:perPage]
		out.HasNext = true
		out.NextPage = page + 1
	}
	out.Messages = make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out.Messages[i] = m.ChatMessage()
	}
	return out, nil
}

// ListUserMessages returns every message the user sent or received,
// oldest first. Reactions are not loaded; the sidebar walk does not
// need them.
func (pg *Postgres) ListUserMessages(ctx context.Context, userID int) ([]chat.Message, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Where("m.sender_id = ? OR m.recipient_id = ?", userID, userID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.ChatMessage()
	}
	return out, nil
}

// SaveMessage inserts the message and its unread-notification row in a
// single transaction, so a crash cannot leave a message without its
// unread marker.
func (pg *Postgres) SaveMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	m := &message{
		Body:        msg.Body,
		SenderID:    int64(msg.SenderID),
		RecipientID: int64(msg.RecipientID),
		CreatedAt:   msg.CreatedAt,
	}
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		n := &notification{
			Name:        "unread_message",
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			CreatedAt:   m.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(n).Exec(ctx); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return chat.Message{}, err
	}
	return m.ChatMessage(), nil
}

// GetMessage returns a single message with its reactions.
func (pg *Postgres) GetMessage(ctx context.Context, id int) (chat.Message, error) {
	var m message
	err := pg.bun.NewSelect().
		Model(&m).
		Relation("Reactions").
		Where("m.id = ?", id).
		Scan(ctx)
	if err != nil {
		return chat.Message{}, fmt.Errorf("scan: %w", err)
	}
	return m.ChatMessage(), nil
}

// MarkMessage sets the read or delivered timestamp. The two columns are
// independent; neither implies the other.
func (pg *Postgres) MarkMessage(ctx context.Context, id int, status string, at time.Time) error {
	q := pg.bun.NewUpdate().Model((*message)(nil)).Where("id = ?", id)
	switch status {
	case "read":
		q = q.Set("read_at = ?", at)
	case "delivered":
		q = q.Set("delivered_at = ?", at)
	default:
		return fmt.Errorf("unknown message status %q", status)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

// InsertReaction appends a reaction row. Duplicate reactions from the
// same user are allowed.
func (pg *Postgres) InsertReaction(ctx context.Context, r chat.Reaction) (chat.Reaction, error) {
	rm := &reaction{
		MessageID: int64(r.MessageID),
		UserID:    int64(r.UserID),
		Reaction:  r.Reaction,
		CreatedAt: r.CreatedAt,
	}
	if _, err := pg.bun.NewInsert().Model(rm).Exec(ctx); err != nil {
		return chat.Reaction{}, fmt.Errorf("insert: %w", err)
	}
	return rm.ChatReaction(), nil
}

// CountNotifications returns the recipient's unread total across all
// senders.
func (pg *Postgres) CountNotifications(ctx context.Context, recipientID int) (int, error) {
	n, err := pg.bun.NewSelect().
		Model((*notification)(nil)).
		Where("n.recipient_id = ?", recipientID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// CountUnread returns the unread count for one sender-recipient pair.
func (pg *Postgres) CountUnread(ctx context.Context, senderID, recipientID int) (int, error) {
	n, err := pg.bun.NewSelect().
		Model((*notification)(nil)).
		Where("n.sender_id = ? AND n.recipient_id = ?", senderID, recipientID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// ClearNotifications deletes all unread markers from sender to
// recipient, however many there are.
func (pg *Postgres) ClearNotifications(ctx context.Context, senderID, recipientID int) error {
	_, err := pg.bun.NewDelete().
		Model((*notification)(nil)).
		Where("sender_id = ? AND recipient_id = ?", senderID, recipientID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}
