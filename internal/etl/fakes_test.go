package etl_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"sheetsync/internal/etl"
)

// memCollection is an in-memory etl.Collection.
type memCollection struct {
	mu        sync.Mutex
	docs      []any
	deletes   int
	inserts   int
	deleteErr error
	insertErr error
	accept    int // docs stored before insertErr is returned
}

func (c *memCollection) DeleteMany(_ context.Context, _ any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	if c.deleteErr != nil {
		return 0, c.deleteErr
	}
	n := len(c.docs)
	c.docs = nil
	return int64(n), nil
}

func (c *memCollection) InsertMany(_ context.Context, docs []any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserts++
	if c.insertErr != nil {
		n := min(c.accept, len(docs))
		c.docs = append(c.docs, docs[:n]...)
		return n, c.insertErr
	}
	c.docs = append(c.docs, docs...)
	return len(docs), nil
}

func (c *memCollection) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.docs...)
}

func (c *memCollection) touched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deletes > 0 || c.inserts > 0
}

// memStore is an in-memory etl.DocumentStore.
type memStore struct {
	mu    sync.Mutex
	colls map[string]*memCollection
}

func newMemStore() *memStore {
	return &memStore{colls: map[string]*memCollection{}}
}

func (s *memStore) Collection(name string) etl.Collection {
	return s.get(name)
}

func (s *memStore) get(name string) *memCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[name]
	if !ok {
		c = &memCollection{}
		s.colls[name] = c
	}
	return c
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
