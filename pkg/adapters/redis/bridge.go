package redis

import (
	"context"
	"log/slog"

	backend "github.com/redis/go-redis/v9"
)

const broadcastChannel = "kw:events:broadcast"

// Bridge fans hub broadcasts out across server instances via Redis pub/sub,
// so a node update made against one instance reaches clients attached to
// another. The payload is the already-serialized wire frame.
type Bridge struct {
	client *backend.Client
	logger *slog.Logger
}

// NewBridge creates a pub/sub bridge on the given client.
func NewBridge(client *backend.Client, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{client: client, logger: logger}
}

// Publish pushes a frame to every subscribed instance, including this one.
func (b *Bridge) Publish(ctx context.Context, frame []byte) error {
	return b.client.Publish(ctx, broadcastChannel, frame).Err()
}

// Subscribe delivers remote frames to fn until ctx is cancelled.
func (b *Bridge) Subscribe(ctx context.Context, fn func(frame []byte)) {
	sub := b.client.Subscribe(ctx, broadcastChannel)
	go func() {
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
				fn([]byte(msg.Payload))
			}
		}
	}()
}
