package repository

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Store paths
const (
	UsersPath    = "users"
	TasksPath    = "tasks"
	ArticlesPath = "articles"
	AccountsPath = "accounts"
	EmailsPath   = "emails"
	commentsNode = "comments"
)

// JoinPath builds a store path from segments.
func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitPath returns the parent path and the last segment.
func SplitPath(path string) (parent, key string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// Ancestors lists path and every parent above it, deepest first.
func Ancestors(path string) []string {
	out := []string{path}
	for {
		parent, _ := SplitPath(path)
		if parent == "" {
			return out
		}
		out = append(out, parent)
		path = parent
	}
}

// CleanPath rejects empty segments so "tasks//x" and "/tasks" never reach a store.
func CleanPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	for _, seg := range strings.Split(path, "/") {
		if strings.TrimSpace(seg) == "" {
			return "", fmt.Errorf("invalid path %q", path)
		}
	}
	return path, nil
}

// NewKey generates a push key. Version 7 UUIDs sort by creation time, so
// children listed in key order come back in insertion order.
func NewKey() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return id.String(), nil
}

func commentsPath(collection, id string) string {
	return JoinPath(collection, id, commentsNode)
}
