package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// RedisFeed distributes changes across server instances over redis pub/sub.
// Each path is its own channel: <prefix>:<path>.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *logger.Logger
}

func NewRedisFeed(client *redis.Client, prefix string, log *logger.Logger) *RedisFeed {
	return &RedisFeed{
		client: client,
		prefix: prefix,
		logger: log.WithComponent("redis_feed"),
	}
}

func (f *RedisFeed) channel(path string) string {
	return fmt.Sprintf("%s:%s", f.prefix, path)
}

func (f *RedisFeed) Publish(ctx context.Context, path string) error {
	payload, err := json.Marshal(ports.Change{Path: path, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel(path), payload).Err(); err != nil {
		return fmt.Errorf("publish change for %s: %w", path, err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, path string) (<-chan ports.Change, func(), error) {
	if _, err := CleanPath(path); err != nil {
		return nil, nil, err
	}

	pubsub := f.client.Subscribe(ctx, f.channel(path))
	// Wait for the subscription to be confirmed so no publish after this call is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", path, err)
	}

	out := make(chan ports.Change, memoryFeedBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change ports.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.logger.Warnw("Dropping malformed change", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- change:
				default:
				}
			}
		}
	}()

	return out, cancel, nil
}

func (f *RedisFeed) Close() error {
	return f.client.Close()
}
