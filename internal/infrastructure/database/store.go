package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskmaster/deptflow/internal/adapters/repository"
	"github.com/taskmaster/deptflow/internal/infrastructure/config"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// Store is the document store stack selected by configuration: the backend,
// an optional circuit breaker and the change-publishing decorator on top.
type Store struct {
	Documents ports.DocumentStore
	Feed      ports.ChangeFeed
	Breaker   *repository.BreakerStore
	Driver    string

	db      *DB
	closers []func() error
}

// OpenStore connects the configured backend and change feed.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Store, error) {
	s := &Store{Driver: cfg.Store.Driver}

	var backend ports.DocumentStore
	switch cfg.Store.Driver {
	case "postgres":
		db, err := New(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.closers = append(s.closers, db.Close)
		backend = repository.NewPostgresStore(db.DB)
	case "mongo":
		client, err := ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { return client.Disconnect(context.Background()) })
		mongoStore := repository.NewMongoStore(client, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}
		backend = mongoStore
	case "memory":
		log.Warnw("Using the in-memory document store; data is lost on restart")
		backend = repository.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	switch cfg.Store.Feed {
	case "redis":
		client, err := ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Feed = repository.NewRedisFeed(client, cfg.Redis.Channel, log)
	default:
		s.Feed = repository.NewMemoryFeed()
	}
	s.closers = append(s.closers, s.Feed.Close)

	if cfg.Breaker.Enabled {
		s.Breaker = repository.NewBreakerStore(backend, cfg.Breaker, log)
		backend = s.Breaker
	}
	s.Documents = repository.NewObservedStore(backend, s.Feed, log)

	log.Infow("Document store ready", "driver", cfg.Store.Driver, "feed", cfg.Store.Feed, "breaker", cfg.Breaker.Enabled)
	return s, nil
}

// Ping checks the backend when it is a network service.
func (s *Store) Ping(ctx context.Context) error {
	if s.db != nil {
		return s.db.HealthCheck(ctx)
	}
	if p, ok := s.Documents.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Info describes the store for the detailed health check.
func (s *Store) Info() map[string]interface{} {
	info := map[string]interface{}{"driver": s.Driver}
	if s.Breaker != nil {
		info["breaker"] = s.Breaker.State().String()
	}
	if s.db != nil {
		info["pool"] = s.db.GetConnectionInfo()
	}
	return info
}

// Close releases every connection in reverse order of opening.
func (s *Store) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
