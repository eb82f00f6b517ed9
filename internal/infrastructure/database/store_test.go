package database

import (
	"context"
	"testing"

	"github.com/taskmaster/deptflow/internal/adapters/repository"
	"github.com/taskmaster/deptflow/internal/infrastructure/config"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Store:   config.StoreConfig{Driver: "memory", Feed: "memory"},
		Breaker: config.BreakerConfig{Enabled: true, MaxRequests: 1, ConsecutiveFailures: 5},
	}
}

func TestOpenStore_Memory(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStore(ctx, memoryConfig(), logger.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if s.Breaker == nil {
		t.Fatalf("expected breaker when enabled")
	}
	if _, ok := s.Documents.(*repository.ObservedStore); !ok {
		t.Fatalf("expected the observed store on top, got %T", s.Documents)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if got := s.Info()["breaker"]; got != "closed" {
		t.Fatalf("expected closed breaker, got %v", got)
	}

	changes, cancel, err := s.Feed.Subscribe(ctx, "tasks/t1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	if err := s.Documents.Set(ctx, "tasks/t1", map[string]string{"title": "x"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	select {
	case c := <-changes:
		if c.Path != "tasks/t1" {
			t.Fatalf("unexpected change %+v", c)
		}
	default:
		t.Fatalf("write through the stack did not publish")
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Driver = "sqlite"
	if _, err := OpenStore(context.Background(), cfg, logger.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
