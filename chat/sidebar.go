package chat

import (
	"context"
	"fmt"
	"time"
)

const previewLimit = 20

// buildSidebar derives the user's conversation list: one chronological
// walk over every message the user sent or received, keeping the latest
// preview and timestamp per partner, then a per-partner unread count
// from the notification ledger. When focusPartner has no prior messages
// an empty placeholder entry is synthesized so the conversation shows
// up before its first message.
func (s *Server) buildSidebar(ctx context.Context, user User, focusPartner int) (SidebarView, error) {
	view := SidebarView{Data: make(map[string]SidebarEntry)}

	msgs, err := s.DB.ListUserMessages(ctx, user.ID)
	if err != nil {
		return SidebarView{}, fmt.Errorf("list user messages: %w", err)
	}

	now := time.Now()
	partners := make(map[int]User)
	for _, m := range msgs {
		partnerID := m.SenderID
		if m.SenderID == user.ID {
			partnerID = m.RecipientID
		}
		partner, ok := partners[partnerID]
		if !ok {
			partner, err = s.DB.GetUser(ctx, partnerID)
			if err != nil {
				return SidebarView{}, fmt.Errorf("get user %d: %w", partnerID, err)
			}
			partners[partnerID] = partner
		}
		if focusPartner != 0 && focusPartner == partner.ID {
			view.RecipientUserFound = true
		}
		view.Data[partner.Username] = SidebarEntry{
			LatestTimestamp: relativeTime(now, m.CreatedAt),
			MessagePreview:  preview(m.Body),
			Avatar:          partner.Avatar,
			UserID:          partner.ID,
		}
	}

	for username, entry := range view.Data {
		n, err := s.DB.CountUnread(ctx, entry.UserID, user.ID)
		if err != nil {
			return SidebarView{}, fmt.Errorf("count unread: %w", err)
		}
		entry.NotifCount = n
		view.Data[username] = entry
	}

	if focusPartner != 0 && !view.RecipientUserFound {
		partner, err := s.DB.GetUser(ctx, focusPartner)
		if err != nil {
			return SidebarView{}, fmt.Errorf("get user %d: %w", focusPartner, err)
		}
		view.Data[partner.Username] = SidebarEntry{
			Avatar: partner.Avatar,
			UserID: partner.ID,
		}
	}

	return view, nil
}

func preview(body string) string {
	r := []rune(body)
	if len(r) <= previewLimit {
		return body
	}
	return string(r[:previewLimit]) + "..."
}
