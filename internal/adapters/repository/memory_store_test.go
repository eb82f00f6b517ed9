package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskmaster/deptflow/internal/infrastructure/logger"
	"github.com/taskmaster/deptflow/internal/ports"
)

func TestMemoryStore_GetSetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "tasks/t1"); !errors.Is(err, ports.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Set(ctx, "tasks/t1", map[string]interface{}{"title": "a", "status": "todo"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Update(ctx, "tasks/t1", map[string]interface{}{"status": "done", "deleted": true}); err != nil {
		t.Fatalf("update: %v", err)
	}

	doc, err := s.Get(ctx, "tasks/t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got struct {
		Title   string `json:"title"`
		Status  string `json:"status"`
		Deleted bool   `json:"deleted"`
	}
	if err := doc.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != "a" || got.Status != "done" || !got.Deleted {
		t.Fatalf("merge lost fields: %+v", got)
	}
	if doc.Key != "t1" || doc.Path != "tasks/t1" {
		t.Fatalf("unexpected key/path %q %q", doc.Key, doc.Path)
	}
}

func TestMemoryStore_UpdateCreatesMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Update(ctx, "users/u1", map[string]interface{}{"role": "manager"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.Get(ctx, "users/u1"); err != nil {
		t.Fatalf("expected document to exist: %v", err)
	}
}

func TestMemoryStore_PushListOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var keys []string
	for _, text := range []string{"first", "second", "third"} {
		k, err := s.Push(ctx, "tasks/t1/comments", map[string]string{"text": text})
		if err != nil {
			t.Fatalf("push: %v", err)
		}
		keys = append(keys, k)
	}
	// grandchildren and siblings must not leak into the listing
	_ = s.Set(ctx, "tasks/t1", map[string]string{"title": "x"})
	_ = s.Set(ctx, "tasks/t2/comments/zz", map[string]string{"text": "other"})

	docs, err := s.List(ctx, "tasks/t1/comments")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(docs))
	}
	for i, d := range docs {
		if d.Key != keys[i] {
			t.Fatalf("position %d: got %s, want %s", i, d.Key, keys[i])
		}
	}

	tasks, _ := s.List(ctx, "tasks")
	if len(tasks) != 1 || tasks[0].Key != "t1" {
		t.Fatalf("expected only tasks/t1 as direct child, got %+v", tasks)
	}
}

func TestMemoryStore_DeleteSubtree(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "articles/a1", map[string]string{"title": "x"})
	_, _ = s.Push(ctx, "articles/a1/comments", map[string]string{"text": "c"})
	_ = s.Set(ctx, "articles/a10", map[string]string{"title": "keep"})

	if err := s.Delete(ctx, "articles/a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if docs, _ := s.List(ctx, "articles/a1/comments"); len(docs) != 0 {
		t.Fatalf("comments survived delete: %+v", docs)
	}
	if _, err := s.Get(ctx, "articles/a10"); err != nil {
		t.Fatalf("sibling with shared prefix removed: %v", err)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMemoryStore().Set(ctx, "tasks/t1", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestMemoryFeed_SubscribeCancel(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	ch, cancel, err := feed.Subscribe(ctx, "tasks/t1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = feed.Publish(ctx, "tasks/t2")
	_ = feed.Publish(ctx, "tasks/t1")

	select {
	case c := <-ch:
		if c.Path != "tasks/t1" {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatalf("no change delivered")
	}

	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Fatalf("channel still open after cancel")
	}
	if feed.Subscribers() != 0 {
		t.Fatalf("subscription leaked")
	}
}

func TestMemoryFeed_ContextEndsSubscription(t *testing.T) {
	feed := NewMemoryFeed()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _, err := feed.Subscribe(ctx, "tasks/t1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed when context ended")
	}
}

func TestObservedStore_PublishesAncestors(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed()
	store := NewObservedStore(NewMemoryStore(), feed, logger.Nop())

	taskCh, cancelTask, _ := feed.Subscribe(ctx, "tasks/t1")
	defer cancelTask()
	listCh, cancelList, _ := feed.Subscribe(ctx, "tasks")
	defer cancelList()

	if _, err := store.Push(ctx, "tasks/t1/comments", map[string]string{"text": "hi"}); err != nil {
		t.Fatalf("push: %v", err)
	}

	for name, ch := range map[string]<-chan ports.Change{"task": taskCh, "list": listCh} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber not notified", name)
		}
	}
}

func TestObservedStore_NoPublishOnFailure(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed()
	store := NewObservedStore(NewMemoryStore(), feed, logger.Nop())

	ch, cancel, _ := feed.Subscribe(ctx, "tasks")
	defer cancel()

	if err := store.Set(ctx, "tasks//bad", 1); err == nil {
		t.Fatalf("expected invalid path error")
	}
	select {
	case c := <-ch:
		t.Fatalf("unexpected change %+v", c)
	default:
	}
}
