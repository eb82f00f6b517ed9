package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/taskmaster/deptflow/internal/infrastructure/config"
	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

// BreakerStore fails fast while the wrapped store keeps failing. It never
// retries a call.
type BreakerStore struct {
	store  ports.DocumentStore
	cb     *gobreaker.CircuitBreaker
	logger *logger.Logger
}

func NewBreakerStore(store ports.DocumentStore, cfg config.BreakerConfig, log *logger.Logger) *BreakerStore {
	log = log.WithComponent("store_breaker")
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	settings := gobreaker.Settings{
		Name:        "document-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Absent documents and cancelled requests say nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ports.ErrDocumentNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{store: store, cb: gobreaker.NewCircuitBreaker(settings), logger: log}
}

// execute runs fn through the breaker and logs the call with its latency.
func (s *BreakerStore) execute(op, path string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()
	res, err := s.cb.Execute(fn)
	logged := err
	if errors.Is(err, ports.ErrDocumentNotFound) {
		logged = nil
	}
	s.logger.LogStoreCall(op, path, float64(time.Since(start).Microseconds())/1000, logged)
	return res, err
}

// State reports the breaker state, used by the readiness probe.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *BreakerStore) Get(ctx context.Context, path string) (*ports.Document, error) {
	res, err := s.execute("get", path, func() (interface{}, error) {
		return s.store.Get(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	return res.(*ports.Document), nil
}

func (s *BreakerStore) Set(ctx context.Context, path string, data interface{}) error {
	_, err := s.execute("set", path, func() (interface{}, error) {
		return nil, s.store.Set(ctx, path, data)
	})
	return err
}

func (s *BreakerStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	_, err := s.execute("update", path, func() (interface{}, error) {
		return nil, s.store.Update(ctx, path, fields)
	})
	return err
}

func (s *BreakerStore) Push(ctx context.Context, parent string, data interface{}) (string, error) {
	res, err := s.execute("push", parent, func() (interface{}, error) {
		return s.store.Push(ctx, parent, data)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (s *BreakerStore) List(ctx context.Context, parent string) ([]ports.Document, error) {
	res, err := s.execute("list", parent, func() (interface{}, error) {
		return s.store.List(ctx, parent)
	})
	if err != nil {
		return nil, err
	}
	return res.([]ports.Document), nil
}

func (s *BreakerStore) Delete(ctx context.Context, path string) error {
	_, err := s.execute("delete", path, func() (interface{}, error) {
		return nil, s.store.Delete(ctx, path)
	})
	return err
}

func (s *BreakerStore) Ping(ctx context.Context) error {
	if p, ok := s.store.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
