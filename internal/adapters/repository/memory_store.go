package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/taskmaster/deptflow/internal/ports"
)

// MemoryStore is a process-local DocumentStore used by the development
// profile and by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]json.RawMessage
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (*ports.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := CleanPath(path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.docs[path]
	if !ok {
		return nil, ports.ErrDocumentNotFound
	}
	_, key := SplitPath(path)
	return &ports.Document{Key: key, Path: path, Data: cloneRaw(data)}, nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := CleanPath(path); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	s.mu.Lock()
	s.docs[path] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := CleanPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]json.RawMessage)
	if existing, ok := s.docs[path]; ok {
		if err := json.Unmarshal(existing, &merged); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", path, k, err)
		}
		merged[k] = raw
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	s.docs[path] = raw
	return nil
}

func (s *MemoryStore) Push(ctx context.Context, parent string, data interface{}) (string, error) {
	key, err := NewKey()
	if err != nil {
		return "", err
	}
	if err := s.Set(ctx, JoinPath(parent, key), data); err != nil {
		return "", err
	}
	return key, nil
}

func (s *MemoryStore) List(ctx context.Context, parent string) ([]ports.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := CleanPath(parent); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []ports.Document
	for path, data := range s.docs {
		p, key := SplitPath(path)
		if p != parent {
			continue
		}
		docs = append(docs, ports.Document{Key: key, Path: path, Data: cloneRaw(data)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := CleanPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := path + "/"
	for p := range s.docs {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(s.docs, p)
		}
	}
	return nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
