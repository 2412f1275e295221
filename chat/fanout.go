package chat

import (
	"context"
	"encoding/json"
)

// applyClusterEvent replays another process's event for connections
// this process owns. Identities without a local connection are skipped;
// there is no acknowledgment back to the publisher.
func (s *Server) applyClusterEvent(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventNewMessage:
		var msg Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			return
		}
		s.deliverLocal(ctx, msg)
	case EventTyping:
		var p typingPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if rc := s.hub.Get(p.RecipientID); rc != nil {
			rc.push("user_typing", typingPayload{UserID: p.UserID, IsTyping: p.IsTyping})
		}
	case EventMessageStatus:
		var p statusUpdatePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if sc := s.hub.Get(p.SenderID); sc != nil {
			sc.push("message_status_update", statusUpdatePayload{MessageID: p.MessageID, Status: p.Status})
		}
	case EventMessageReaction:
		var p reactionPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		s.hub.Each(func(c *Client) {
			c.push("message_reaction", p)
		})
	case EventUserStatus:
		var p userStatusPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		s.hub.Each(func(c *Client) {
			c.push("user_status", p)
		})
	default:
		s.Logger.Debug("Unknown fan-out event", "type", ev.Type)
	}
}

// deliverLocal replays recipient- and sender-side delivery of a message
// that was sent on another process.
func (s *Server) deliverLocal(ctx context.Context, msg Message) {
	if rc := s.hub.Get(msg.RecipientID); rc != nil && s.hub.CurrentChat(msg.RecipientID) == msg.SenderID {
		sender, err := s.DB.GetUser(ctx, msg.SenderID)
		if err != nil {
			s.Logger.Error("Could not load sender", "user_id", msg.SenderID, "error", err.Error())
			return
		}
		page, err := s.DB.ListConversation(ctx, msg.RecipientID, msg.SenderID, 1, defaultPerPage)
		if err != nil {
			s.Logger.Error("Could not list conversation", "user_id", msg.RecipientID, "error", err.Error())
			return
		}
		rc.push("load_messages", loadMessagesPayload{
			Messages:              withPending(page.Messages, msg),
			HasNext:               page.HasNext,
			NextPage:              page.NextPage,
			TriggerMessagesLoaded: true,
			ChatRecipient:         &ChatRecipient{Username: sender.Username, ID: sender.ID},
		})
	}
	s.pushSidebar(ctx, msg.SenderID, 0)
	s.pushSidebar(ctx, msg.RecipientID, 0)
}
