// Package redis holds the two cross-process shared resources: the
// fixed-window rate-limit counters and the fan-out pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forkful/chat-service/chat"
)

// channel carries every chat-affecting event between application
// processes.
const channel = "chat_events"

// Redis provides the shared counter store and broadcast channel.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings it to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

// allowScript increments the window counter and, on the first hit of a
// window, starts its expiry. Running as one script keeps a counter from
// ever existing without a TTL.
var allowScript = redis.NewScript(`
local count = redis.call("incr", KEYS[1])
if count == 1 then
	redis.call("pexpire", KEYS[1], ARGV[1])
end
return count`)

// Allow counts one attempt against the key's fixed window and reports
// whether it stays within limit. The counter resets when the window
// expires rather than sliding, which admits brief bursts at window
// boundaries.
func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := allowScript.Run(ctx, r.cli, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return count <= int64(limit), nil
}

// Publish broadcasts an event to every subscribed process. Delivery is
// at-most-once: subscribers that are not listening at publish time
// never see the event.
func (r *Redis) Publish(ctx context.Context, event chat.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := r.cli.Publish(ctx, channel, b).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe delivers fan-out events published by any process until ctx
// is cancelled. Events that fail to decode are skipped.
func (r *Redis) Subscribe(ctx context.Context) (<-chan chat.Event, error) {
	sub := r.cli.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan chat.Event)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev chat.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
