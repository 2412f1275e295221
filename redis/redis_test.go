package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/forkful/chat-service/chat"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	srv := miniredis.RunT(t)
	r, err := Connect(context.Background(), srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		r.cli.Close()
	})
	return r
}

func TestRedis_Allow(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	r, err := Connect(ctx, srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer r.cli.Close()

	const (
		key    = "message_send:1"
		limit  = 3
		window = time.Minute
	)

	// Exactly limit attempts pass within one window.
	for i := 1; i <= limit; i++ {
		ok, err := r.Allow(ctx, key, limit, window)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("Allow() attempt %d = false, want true", i)
		}
	}

	// Attempt limit+1 and everything after it is denied.
	for i := 0; i < 2; i++ {
		ok, err := r.Allow(ctx, key, limit, window)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("Allow() over limit = true, want false")
		}
	}

	// The counter resets once the window expires; it does not slide.
	srv.FastForward(window + time.Second)
	ok, err := r.Allow(ctx, key, limit, window)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Allow() after window expiry = false, want true")
	}
}

func TestRedis_Allow_fixedWindowDoesNotSlide(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	r, err := Connect(ctx, srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer r.cli.Close()

	const (
		key    = "typing_indicator:7"
		limit  = 2
		window = time.Minute
	)

	if _, err := r.Allow(ctx, key, limit, window); err != nil {
		t.Fatal(err)
	}
	srv.FastForward(window / 2)

	// A mid-window attempt must not push the expiry out.
	if _, err := r.Allow(ctx, key, limit, window); err != nil {
		t.Fatal(err)
	}
	if ok, _ := r.Allow(ctx, key, limit, window); ok {
		t.Fatal("Allow() over limit = true, want false")
	}

	// The window still ends relative to its first attempt.
	srv.FastForward(window/2 + time.Second)
	ok, err := r.Allow(ctx, key, limit, window)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Allow() in the next window = false, want true")
	}
}

func TestRedis_Allow_independentKeys(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)

	const (
		limit  = 1
		window = time.Minute
	)

	if ok, err := r.Allow(ctx, "message_send:1", limit, window); err != nil || !ok {
		t.Fatalf("Allow() = %v, %v; want true, nil", ok, err)
	}
	if ok, err := r.Allow(ctx, "message_send:1", limit, window); err != nil || ok {
		t.Fatalf("Allow() = %v, %v; want false, nil", ok, err)
	}

	// Another user's budget for the same action is untouched.
	if ok, err := r.Allow(ctx, "message_send:2", limit, window); err != nil || !ok {
		t.Fatalf("Allow() for other user = %v, %v; want true, nil", ok, err)
	}
}

func TestRedis_PublishSubscribe(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := Connect(ctx, srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer pub.cli.Close()
	sub, err := Connect(ctx, srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer sub.cli.Close()

	events, err := sub.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	want := chat.Event{
		Type:   chat.EventNewMessage,
		Origin: "instance-a",
		Data:   json.RawMessage(`{"body":"hi"}`),
	}
	if err := pub.Publish(ctx, want); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-events:
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Event mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the published event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Error("Expected the event channel to close on cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the event channel to close")
	}
}
