// Package audit records significant editor actions. Events are queued and
// written by a background worker so logging never blocks or fails a request.
package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	queueSize    = 256
	writeTimeout = 5 * time.Second
)

// Actions recorded in the audit log.
const (
	ActionSchemaSave   = "schema.save"
	ActionSchemaDelete = "schema.delete"
	ActionNodeCreate   = "node.create"
	ActionNodeUpdate   = "node.update"
	ActionNodePublish  = "node.publish"
	ActionNodeDelete   = "node.delete"
	ActionBinaryUpload = "node.binary"
	ActionLoginSuccess = "editor.login.success"
	ActionLoginFailure = "editor.login.failure"
)

// Event is an audit event to be logged.
type Event struct {
	Action     string
	ActorID    string // editor ID; empty for failed logins
	Resource   string // "schema", "node" or "editor"
	ResourceID string
	Payload    map[string]any
}

// Store persists and lists audit events.
type Store interface {
	Insert(ctx context.Context, event Event) error
	List(ctx context.Context, filters Filters, page, perPage int) ([]*Entry, int, error)
}

// Service queues events for the background writer.
type Service struct {
	store   Store
	queue   chan Event
	done    chan struct{}
	dropped atomic.Uint64
}

// NewService creates a Service. Call Start to begin writing and Shutdown to drain.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
}

// Log queues an event without blocking. When the queue is full the event is
// dropped and counted.
func (s *Service) Log(_ context.Context, event Event) {
	select {
	case s.queue <- event:
	default:
		n := s.dropped.Add(1)
		slog.Warn("audit queue full, dropping event",
			"action", event.Action,
			"resource", event.Resource,
			"resource_id", event.ResourceID,
			"total_dropped", n,
		)
	}
}

// Start launches the background writer. It must be called once.
func (s *Service) Start() {
	go func() {
		defer close(s.done)
		for event := range s.queue {
			s.write(event)
		}
	}()
}

// Shutdown closes the queue and waits until every queued event is written.
// If ctx expires first a warning is logged, but Shutdown still waits.
func (s *Service) Shutdown(ctx context.Context) {
	close(s.queue)

	select {
	case <-s.done:
	case <-ctx.Done():
		slog.Warn("audit shutdown deadline passed, still draining")
		<-s.done
	}
	slog.Info("audit service stopped", "dropped", s.dropped.Load())
}

func (s *Service) write(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := s.store.Insert(ctx, event); err != nil {
		slog.Error("failed to write audit event",
			"action", event.Action,
			"resource_id", event.ResourceID,
			"error", err,
		)
	}
}

// Dropped returns how many events were dropped because the queue was full.
func (s *Service) Dropped() uint64 {
	return s.dropped.Load()
}

// List returns a page of audit entries.
func (s *Service) List(ctx context.Context, filters Filters, page, perPage int) ([]*Entry, int, error) {
	return s.store.List(ctx, filters, page, perPage)
}

// Logger is what other packages need to record events. A nil *Service is
// not a valid Logger; use Discard instead.
type Logger interface {
	Log(ctx context.Context, event Event)
}

type discard struct{}

func (discard) Log(context.Context, Event) {}

// Discard is a Logger that drops every event.
var Discard Logger = discard{}
