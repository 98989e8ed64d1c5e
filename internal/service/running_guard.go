package service

import (
	"context"
	"sync"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = collectionGuard

// ─────────────────────────────────────────────────────────────
// collectionGuard — keeps two runs from replacing the same collection
// ─────────────────────────────────────────────────────────────

// collectionGuard marks destination collections as busy. Runs over disjoint
// collections may overlap; a run touching a busy collection is refused.
type collectionGuard struct {
	mu   sync.Mutex
	busy map[string]struct{}
	wg   sync.WaitGroup
}

// TryLock claims every name or none. Returns false if any name is busy.
func (g *collectionGuard) TryLock(names ...string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy == nil {
		g.busy = make(map[string]struct{})
	}
	for _, n := range names {
		if _, ok := g.busy[n]; ok {
			return false
		}
	}
	for _, n := range names {
		g.busy[n] = struct{}{}
	}
	g.wg.Add(1)
	return true
}

// Unlock releases names claimed by a successful TryLock.
func (g *collectionGuard) Unlock(names ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range names {
		delete(g.busy, n)
	}
	g.wg.Done()
}

// WaitAll blocks until all in-flight runs complete or ctx is cancelled.
func (g *collectionGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
