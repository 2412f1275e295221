package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

type loadMessagesPayload struct {
	Messages              []Message      `json:"messages"`
	HasNext               bool           `json:"has_next"`
	NextPage              int            `json:"next_page,omitempty"`
	TriggerMessagesLoaded bool           `json:"trigger_messages_loaded,omitempty"`
	ChatRecipient         *ChatRecipient `json:"chat_recipient,omitempty"`
}

// ChatRecipient identifies the partner a pushed message list belongs
// to, so the client can open that conversation.
type ChatRecipient struct {
	Username string `json:"username"`
	ID       int    `json:"id"`
}

type userStatusPayload struct {
	UserID int    `json:"user_id"`
	Status string `json:"status"`
}

type typingPayload struct {
	UserID      int  `json:"user_id"`
	RecipientID int  `json:"recipient_id,omitempty"`
	IsTyping    bool `json:"is_typing"`
}

type statusUpdatePayload struct {
	MessageID int    `json:"message_id"`
	Status    string `json:"status"`
	SenderID  int    `json:"sender_id,omitempty"`
}

type reactionPayload struct {
	MessageID int    `json:"message_id"`
	Reaction  string `json:"reaction"`
	UserID    int    `json:"user_id"`
}

type notificationPayload struct {
	NotificationCount int `json:"notification_count"`
}

// chatUserConnected opens the requested conversation (when a recipient
// is supplied) and refreshes the caller's sidebar.
func (s *Server) chatUserConnected(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		Recipient int `json:"recipient"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	focus := 0
	if p.Recipient != 0 && p.Recipient != c.userID {
		partner, err := s.DB.GetUser(ctx, p.Recipient)
		if err != nil {
			s.Logger.Error("Unknown chat partner", "user_id", c.userID, "recipient", p.Recipient, "error", err.Error())
			return
		}
		s.openConversation(ctx, c, partner)
		focus = partner.ID
	}
	s.pushSidebar(ctx, c.userID, focus)
}

// handleChatUserConnected switches the open conversation and pushes its
// first page without the sidebar refresh.
func (s *Server) handleChatUserConnected(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		Recipient int `json:"recipient"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if p.Recipient == 0 || p.Recipient == c.userID {
		return
	}
	partner, err := s.DB.GetUser(ctx, p.Recipient)
	if err != nil {
		s.Logger.Error("Unknown chat partner", "user_id", c.userID, "recipient", p.Recipient, "error", err.Error())
		return
	}
	s.openConversation(ctx, c, partner)
}

// openConversation points the user's presence at partner, reconciles
// read receipts for that pair and pushes the first message page.
func (s *Server) openConversation(ctx context.Context, c *Client, partner User) {
	s.hub.SetCurrentChat(c.userID, partner.ID)
	if err := s.DB.SetCurrentChat(ctx, c.userID, partner.ID); err != nil {
		s.Logger.Error("Could not store current chat", "user_id", c.userID, "error", err.Error())
	}
	if err := s.DB.ClearNotifications(ctx, partner.ID, c.userID); err != nil {
		s.Logger.Error("Could not clear notifications", "user_id", c.userID, "error", err.Error())
	}

	page, err := s.DB.ListConversation(ctx, c.userID, partner.ID, 1, defaultPerPage)
	if err != nil {
		s.Logger.Error("Could not list conversation", "user_id", c.userID, "error", err.Error())
		return
	}
	c.push("load_messages", loadMessagesPayload{
		Messages:              page.Messages,
		HasNext:               page.HasNext,
		NextPage:              page.NextPage,
		TriggerMessagesLoaded: true,
		ChatRecipient:         &ChatRecipient{Username: partner.Username, ID: partner.ID},
	})
	s.pushNotificationCount(ctx, c)
}

// messageInput sends a message into the conversation the sender has
// open. Sending with no conversation open is a silent no-op; the client
// is expected to prevent that state.
func (s *Server) messageInput(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		Message string `json:"message" validate:"required"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if errs := s.Val.ValidateStruct(&p); len(errs) > 0 {
		return
	}

	recipientID := s.hub.CurrentChat(c.userID)
	if recipientID == 0 || recipientID == c.userID {
		return
	}
	body := s.cleanBody(p.Message)
	if body == "" {
		return
	}

	msg := Message{
		SenderID:    c.userID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
		Reactions:   []Reaction{},
	}
	s.enqueue(msg)

	sender, err := s.DB.GetUser(ctx, c.userID)
	if err != nil {
		s.Logger.Error("Could not load sender", "user_id", c.userID, "error", err.Error())
		return
	}
	page, err := s.DB.ListConversation(ctx, c.userID, recipientID, 1, defaultPerPage)
	if err != nil {
		s.Logger.Error("Could not list conversation", "user_id", c.userID, "error", err.Error())
		return
	}
	msgs := withPending(page.Messages, msg)

	// Local echo to the sender comes before any fan-out for this message.
	c.push("load_messages", loadMessagesPayload{
		Messages: msgs,
		HasNext:  page.HasNext,
		NextPage: page.NextPage,
	})

	if rc := s.hub.Get(recipientID); rc != nil && s.hub.CurrentChat(recipientID) == c.userID {
		rc.push("load_messages", loadMessagesPayload{
			Messages:              msgs,
			HasNext:               page.HasNext,
			NextPage:              page.NextPage,
			TriggerMessagesLoaded: true,
			ChatRecipient:         &ChatRecipient{Username: sender.Username, ID: sender.ID},
		})
	}

	s.pushSidebar(ctx, c.userID, 0)
	s.pushSidebar(ctx, recipientID, 0)

	s.publish(ctx, EventNewMessage, msg)
}

// handleMessageInput is the explicit-recipient send variant: it
// persists and fans out without touching the caller's open
// conversation.
func (s *Server) handleMessageInput(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		RecipientID int    `json:"recipient_id" validate:"required,gt=0"`
		Message     string `json:"message" validate:"required"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if errs := s.Val.ValidateStruct(&p); len(errs) > 0 {
		return
	}
	if p.RecipientID == c.userID {
		return
	}
	body := s.cleanBody(p.Message)
	if body == "" {
		return
	}
	msg := Message{
		SenderID:    c.userID,
		RecipientID: p.RecipientID,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
		Reactions:   []Reaction{},
	}
	s.enqueue(msg)
	s.publish(ctx, EventNewMessage, msg)
}

func (s *Server) handleTyping(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		RecipientID int  `json:"recipient_id" validate:"required,gt=0"`
		IsTyping    bool `json:"is_typing"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if errs := s.Val.ValidateStruct(&p); len(errs) > 0 {
		return
	}
	out := typingPayload{UserID: c.userID, IsTyping: p.IsTyping}
	if rc := s.hub.Get(p.RecipientID); rc != nil {
		rc.push("user_typing", out)
	}
	out.RecipientID = p.RecipientID
	s.publish(ctx, EventTyping, out)
}

// messageStatus records a read or delivered timestamp. The two are
// independent: a client may mark read without ever marking delivered.
// Only the conversation's two parties may mark a message.
func (s *Server) messageStatus(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		MessageID int    `json:"message_id" validate:"required,gt=0"`
		Type      string `json:"type" validate:"required,oneof=read delivered"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if errs := s.Val.ValidateStruct(&p); len(errs) > 0 {
		return
	}
	msg, err := s.DB.GetMessage(ctx, p.MessageID)
	if err != nil {
		return
	}
	if msg.SenderID != c.userID && msg.RecipientID != c.userID {
		return
	}
	if err := s.DB.MarkMessage(ctx, msg.ID, p.Type, time.Now().UTC()); err != nil {
		s.Logger.Error("Could not mark message", "message_id", msg.ID, "error", err.Error())
		return
	}
	out := statusUpdatePayload{MessageID: msg.ID, Status: p.Type}
	if sc := s.hub.Get(msg.SenderID); sc != nil {
		sc.push("message_status_update", out)
	}
	out.SenderID = msg.SenderID
	s.publish(ctx, EventMessageStatus, out)
}

// messageReaction appends a reaction row. Repeats of the same reaction
// by the same user accumulate; there is no uniqueness constraint. Only
// the conversation's two parties may react.
func (s *Server) messageReaction(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		MessageID int    `json:"message_id" validate:"required,gt=0"`
		Reaction  string `json:"reaction" validate:"required,max=32"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if errs := s.Val.ValidateStruct(&p); len(errs) > 0 {
		return
	}
	msg, err := s.DB.GetMessage(ctx, p.MessageID)
	if err != nil {
		return
	}
	if msg.SenderID != c.userID && msg.RecipientID != c.userID {
		return
	}
	if _, err := s.DB.InsertReaction(ctx, Reaction{
		MessageID: msg.ID,
		UserID:    c.userID,
		Reaction:  p.Reaction,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		s.Logger.Error("Could not insert reaction", "message_id", msg.ID, "error", err.Error())
		return
	}
	out := reactionPayload{MessageID: msg.ID, Reaction: p.Reaction, UserID: c.userID}
	s.hub.Each(func(o *Client) {
		o.push("message_reaction", out)
	})
	s.publish(ctx, EventMessageReaction, out)
}

// messagesLoaded is the client's signal that it rendered the open
// conversation; unread markers for that pair are dropped.
func (s *Server) messagesLoaded(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		Recipient int `json:"recipient"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if partnerID := s.hub.CurrentChat(c.userID); partnerID != 0 {
		if err := s.DB.ClearNotifications(ctx, partnerID, c.userID); err != nil {
			s.Logger.Error("Could not clear notifications", "user_id", c.userID, "error", err.Error())
		}
	}
	s.pushSidebar(ctx, c.userID, p.Recipient)
	s.pushNotificationCount(ctx, c)
}

func (s *Server) updateMessageCounter(ctx context.Context, c *Client) {
	s.pushNotificationCount(ctx, c)
}

func (s *Server) themeUpdate(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		NewTheme string `json:"new_theme" validate:"required,oneof=auto dark light"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if errs := s.Val.ValidateStruct(&p); len(errs) > 0 {
		return
	}
	if err := s.DB.SetTheme(ctx, c.userID, p.NewTheme); err != nil {
		s.Logger.Error("Could not update theme", "user_id", c.userID, "error", err.Error())
	}
}

func (s *Server) loadMoreMessages(ctx context.Context, c *Client, data json.RawMessage) {
	var p struct {
		Recipient int `json:"recipient" validate:"required,gt=0"`
		Page      int `json:"page"`
		PerPage   int `json:"per_page"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if errs := s.Val.ValidateStruct(&p); len(errs) > 0 {
		return
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 || p.PerPage > defaultPerPage {
		p.PerPage = defaultPerPage
	}
	page, err := s.DB.ListConversation(ctx, c.userID, p.Recipient, p.Page, p.PerPage)
	if err != nil {
		s.Logger.Error("Could not list conversation", "user_id", c.userID, "error", err.Error())
		return
	}
	c.push("load_messages", loadMessagesPayload{
		Messages: page.Messages,
		HasNext:  page.HasNext,
		NextPage: page.NextPage,
	})
}

// pushNotificationCount pushes the recipient's unread total across all
// senders.
func (s *Server) pushNotificationCount(ctx context.Context, c *Client) {
	n, err := s.DB.CountNotifications(ctx, c.userID)
	if err != nil {
		s.Logger.Error("Could not count notifications", "user_id", c.userID, "error", err.Error())
		return
	}
	c.push("push_notification", notificationPayload{NotificationCount: n})
}

// pushSidebar rebuilds and pushes the sidebar for a user, when that
// user has a connection on this process.
func (s *Server) pushSidebar(ctx context.Context, userID, focusPartner int) {
	c := s.hub.Get(userID)
	if c == nil {
		return
	}
	user, err := s.DB.GetUser(ctx, userID)
	if err != nil {
		s.Logger.Error("Could not load user", "user_id", userID, "error", err.Error())
		return
	}
	view, err := s.buildSidebar(ctx, user, focusPartner)
	if err != nil {
		s.Logger.Error("Could not build sidebar", "user_id", userID, "error", err.Error())
		return
	}
	view.CurrentChatID = s.hub.CurrentChat(userID)
	c.push("update_sidebar", view)
}

// cleanBody strips markup from a message body and bounds its length.
func (s *Server) cleanBody(body string) string {
	clean := strings.TrimSpace(s.policy.Sanitize(body))
	r := []rune(clean)
	if len(r) > maxBodyRunes {
		clean = string(r[:maxBodyRunes])
	}
	return clean
}

// withPending prepends msg unless the page already contains it. The
// freshly sent message is persisted asynchronously, so the page read
// back may or may not include it yet.
func withPending(msgs []Message, msg Message) []Message {
	for _, m := range msgs {
		if m.SenderID == msg.SenderID && m.Body == msg.Body && m.CreatedAt.Equal(msg.CreatedAt) {
			return msgs
		}
	}
	out := make([]Message, 0, len(msgs)+1)
	out = append(out, msg)
	return append(out, msgs...)
}
