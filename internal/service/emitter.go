package service

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter — decouples services from whoever observes them
// ─────────────────────────────────────────────────────────────

// Events emitted by SyncService.
const (
	EventSyncStarted   = "sync:started"
	EventSyncCompleted = "sync:completed"
	EventSyncFailed    = "sync:failed"
)

// EventEmitter receives lifecycle events from services.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes events to a logrus logger.
type LogEmitter struct {
	Log log.FieldLogger
}

func (e *LogEmitter) Emit(_ context.Context, event string, data any) {
	logger := e.Log
	if logger == nil {
		logger = log.StandardLogger()
	}
	logger.WithField("event", event).WithField("data", data).Debug("event")
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Event
	}
	return out
}
