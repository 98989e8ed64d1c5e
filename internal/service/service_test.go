package service_test

import (
	"context"
	"testing"
	"time"

	"sheetsync/internal/service"
)

// ─────────────────────────────────────────────────────────────
// collectionGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("command_center_ds", "command_center_report") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("command_center_report") {
		t.Fatal("expected TryLock on a busy collection to fail")
	}
	if g.TryLock("command_center_care", "command_center_ds") {
		t.Fatal("expected TryLock overlapping a busy collection to fail")
	}
	if !g.TryLock("command_center_care") {
		t.Fatal("expected TryLock on a free collection to succeed; a refused claim must not hold anything")
	}
	g.Unlock("command_center_ds", "command_center_report")
	g.Unlock("command_center_care")

	if !g.TryLock("command_center_ds") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("command_center_ds")
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("c") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("c")
	}()

	select {
	case <-done:
		// success
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// Emitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "test:event", map[string]string{"foo": "bar"})
	m.Emit(ctx, "test:event2", nil)

	if len(m.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(m.Events))
	}
	if got := m.Names(); got[0] != "test:event" || got[1] != "test:event2" {
		t.Errorf("unexpected event names %v", got)
	}
}

func TestLogEmitter_NilLoggerIsSafe(t *testing.T) {
	e := &service.LogEmitter{}
	e.Emit(context.Background(), service.EventSyncStarted, []string{"c"})
}
