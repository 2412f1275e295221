package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestServer_buildSidebar(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	users := map[int]User{
		1: {ID: 1, Username: "alice", Avatar: "a.png"},
		2: {ID: 2, Username: "bob", Avatar: "b.png"},
		3: {ID: 3, Username: "carol", Avatar: "c.png"},
	}
	db := &testdb{
		getUser: func(t *testing.T, id int) (User, error) {
			return users[id], nil
		},
		listUserMessages: func(t *testing.T, userID int) ([]Message, error) {
			return []Message{
				{ID: 1, SenderID: 1, RecipientID: 2, Body: "first to bob", CreatedAt: now.Add(-2 * time.Hour)},
				{ID: 2, SenderID: 2, RecipientID: 1, Body: "reply from bob", CreatedAt: now.Add(-5 * time.Minute)},
				{ID: 3, SenderID: 3, RecipientID: 1, Body: strings.Repeat("x", 30), CreatedAt: now},
			}, nil
		},
		countUnread: func(t *testing.T, senderID, recipientID int) (int, error) {
			if senderID == 2 && recipientID == 1 {
				return 3, nil
			}
			return 0, nil
		},
	}
	s, _ := newTestServer(t, db)

	view, err := s.buildSidebar(ctx, users[1], 0)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]SidebarEntry{
		"bob": {
			LatestTimestamp: "5 minutes ago",
			MessagePreview:  "reply from bob",
			Avatar:          "b.png",
			UserID:          2,
			NotifCount:      3,
		},
		"carol": {
			LatestTimestamp: "Just now",
			MessagePreview:  strings.Repeat("x", 20) + "...",
			Avatar:          "c.png",
			UserID:          3,
		},
	}
	if diff := cmp.Diff(want, view.Data); diff != "" {
		t.Errorf("buildSidebar() mismatch (-want +got):\n%s", diff)
	}
	if view.RecipientUserFound {
		t.Error("RecipientUserFound should be false without a focus partner")
	}
}

func TestServer_buildSidebar_focusPartner(t *testing.T) {
	ctx := context.Background()
	users := map[int]User{
		1: {ID: 1, Username: "alice", Avatar: "a.png"},
		2: {ID: 2, Username: "bob", Avatar: "b.png"},
		3: {ID: 3, Username: "carol", Avatar: "c.png"},
	}
	db := &testdb{
		getUser: func(t *testing.T, id int) (User, error) {
			return users[id], nil
		},
		listUserMessages: func(t *testing.T, userID int) ([]Message, error) {
			return []Message{
				{ID: 1, SenderID: 2, RecipientID: 1, Body: "hey", CreatedAt: time.Now().UTC()},
			}, nil
		},
	}
	s, _ := newTestServer(t, db)

	// Focusing a partner with history just flags them.
	view, err := s.buildSidebar(ctx, users[1], 2)
	if err != nil {
		t.Fatal(err)
	}
	if !view.RecipientUserFound {
		t.Error("RecipientUserFound should be true for a partner with history")
	}
	if len(view.Data) != 1 {
		t.Errorf("Got %d entries, want 1", len(view.Data))
	}

	// Focusing a partner without history synthesizes an empty entry so
	// the conversation appears before its first message.
	view, err = s.buildSidebar(ctx, users[1], 3)
	if err != nil {
		t.Fatal(err)
	}
	entry, ok := view.Data["carol"]
	if !ok {
		t.Fatal("Expected a placeholder entry for the focused partner")
	}
	want := SidebarEntry{Avatar: "c.png", UserID: 3}
	if diff := cmp.Diff(want, entry); diff != "" {
		t.Errorf("Placeholder mismatch (-want +got):\n%s", diff)
	}
}

func TestServer_buildSidebar_idempotent(t *testing.T) {
	ctx := context.Background()
	db := newMemDB()
	db.addUser(User{ID: 1, Username: "alice", Avatar: "a.png"})
	db.addUser(User{ID: 2, Username: "bob", Avatar: "b.png"})
	for i := 0; i < 3; i++ {
		if _, err := db.SaveMessage(ctx, Message{
			SenderID: 2, RecipientID: 1, Body: "hi", CreatedAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	s, _ := newTestServer(t, db)
	alice, _ := db.GetUser(ctx, 1)

	first, err := s.buildSidebar(ctx, alice, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.buildSidebar(ctx, alice, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Rebuilding without new messages changed the view (-first +second):\n%s", diff)
	}
	if got := first.Data["bob"].NotifCount; got != 3 {
		t.Errorf("Got %d unread from bob, want 3", got)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "Short",
			body: "hello",
			want: "hello",
		},
		{
			name: "ExactLimit",
			body: strings.Repeat("a", 20),
			want: strings.Repeat("a", 20),
		},
		{
			name: "Truncated",
			body: strings.Repeat("a", 21),
			want: strings.Repeat("a", 20) + "...",
		},
		{
			name: "MultibyteRunes",
			body: strings.Repeat("é", 25),
			want: strings.Repeat("é", 20) + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preview(tt.body); got != tt.want {
				t.Errorf("preview() = %q, want %q", got, tt.want)
			}
		})
	}
}
