package repository

import (
	"context"

	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// ObservedStore publishes a change for the written path and each of its
// ancestors after every successful write, so a subscriber on tasks/{id}
// also hears about tasks/{id}/comments/{key}.
type ObservedStore struct {
	ports.DocumentStore
	feed   ports.ChangeFeed
	logger *logger.Logger
}

func NewObservedStore(store ports.DocumentStore, feed ports.ChangeFeed, log *logger.Logger) *ObservedStore {
	return &ObservedStore{
		DocumentStore: store,
		feed:          feed,
		logger:        log.WithComponent("observed_store"),
	}
}

func (s *ObservedStore) Set(ctx context.Context, path string, data interface{}) error {
	if err := s.DocumentStore.Set(ctx, path, data); err != nil {
		return err
	}
	s.publish(ctx, path)
	return nil
}

func (s *ObservedStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	if err := s.DocumentStore.Update(ctx, path, fields); err != nil {
		return err
	}
	s.publish(ctx, path)
	return nil
}

func (s *ObservedStore) Push(ctx context.Context, parent string, data interface{}) (string, error) {
	key, err := s.DocumentStore.Push(ctx, parent, data)
	if err != nil {
		return "", err
	}
	s.publish(ctx, JoinPath(parent, key))
	return key, nil
}

func (s *ObservedStore) Delete(ctx context.Context, path string) error {
	if err := s.DocumentStore.Delete(ctx, path); err != nil {
		return err
	}
	s.publish(ctx, path)
	return nil
}

// Ping forwards to the wrapped store when it supports health checks.
func (s *ObservedStore) Ping(ctx context.Context) error {
	if p, ok := s.DocumentStore.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// The write already succeeded; a lost notification is logged, not returned.
func (s *ObservedStore) publish(ctx context.Context, path string) {
	for _, p := range Ancestors(path) {
		if err := s.feed.Publish(ctx, p); err != nil {
			s.logger.Warnw("Failed to publish change", "path", p, "error", err)
		}
	}
}
