package chat

import "testing"

func TestHub_lastWriterWins(t *testing.T) {
	h := NewHub()
	first := newClient(1, nil)
	second := newClient(1, nil)

	if old := h.Add(first); old != nil {
		t.Fatalf("Add() displaced %v, want none", old)
	}
	h.SetCurrentChat(1, 2)

	old := h.Add(second)
	if old != first {
		t.Fatal("Add() should displace the earlier connection")
	}
	if h.Get(1) != second {
		t.Error("Get() should return the newest connection")
	}
	if got := h.CurrentChat(1); got != 0 {
		t.Errorf("CurrentChat() = %d after relogin, want 0", got)
	}

	// The displaced connection's teardown must not remove the new one.
	if h.Remove(first) {
		t.Error("Remove() cleared the mapping for a stale connection")
	}
	if h.Get(1) != second {
		t.Error("Get() lost the live connection after stale removal")
	}
}

func TestHub_removeClearsCurrentChat(t *testing.T) {
	h := NewHub()
	c := newClient(1, nil)
	h.Add(c)
	h.SetCurrentChat(1, 7)

	if !h.Remove(c) {
		t.Fatal("Remove() = false, want true")
	}
	if h.Get(1) != nil {
		t.Error("Get() should return nil after removal")
	}
	if got := h.CurrentChat(1); got != 0 {
		t.Errorf("CurrentChat() = %d after removal, want 0", got)
	}
}

func TestHub_setCurrentChatOffline(t *testing.T) {
	h := NewHub()
	h.SetCurrentChat(1, 7)
	if got := h.CurrentChat(1); got != 0 {
		t.Errorf("CurrentChat() = %d for offline user, want 0", got)
	}
}

func TestHub_each(t *testing.T) {
	h := NewHub()
	h.Add(newClient(1, nil))
	h.Add(newClient(2, nil))
	h.Add(newClient(3, nil))

	seen := make(map[int]bool)
	h.Each(func(c *Client) {
		seen[c.userID] = true
	})
	if len(seen) != 3 || !seen[1] || !seen[2] || !seen[3] {
		t.Errorf("Each() visited %v, want all three connections", seen)
	}
}
