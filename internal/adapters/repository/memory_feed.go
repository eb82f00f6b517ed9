package repository

import (
	"context"
	"sync"
	"time"

	"github.com/taskmaster/deptflow/internal/ports"
)

const memoryFeedBuffer = 16

type memorySub struct {
	path string
	ch   chan ports.Change
	done chan struct{}
	once sync.Once
}

// MemoryFeed fans changes out to in-process subscribers. Slow subscribers
// miss changes instead of blocking writers.
type MemoryFeed struct {
	mu     sync.RWMutex
	subs   map[*memorySub]struct{}
	closed bool
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[*memorySub]struct{})}
}

func (f *MemoryFeed) Publish(ctx context.Context, path string) error {
	change := ports.Change{Path: path, At: time.Now().UTC()}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil
	}
	for sub := range f.subs {
		if sub.path != path {
			continue
		}
		select {
		case sub.ch <- change:
		default:
		}
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, path string) (<-chan ports.Change, func(), error) {
	if _, err := CleanPath(path); err != nil {
		return nil, nil, err
	}
	sub := &memorySub{
		path: path,
		ch:   make(chan ports.Change, memoryFeedBuffer),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}, nil
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	cancel := func() { f.remove(sub) }
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.ch, cancel, nil
}

func (f *MemoryFeed) remove(sub *memorySub) {
	sub.once.Do(func() {
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
		close(sub.done)
		close(sub.ch)
	})
}

// Subscribers returns the number of live subscriptions.
func (f *MemoryFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	subs := make([]*memorySub, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		f.remove(sub)
	}
	return nil
}
