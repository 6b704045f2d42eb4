package pdp

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/pdp/logger"
)

// Audit event types emitted by the orchestrator.
const (
	EventDecision    = "authz.decision"
	EventConfig      = "authz.config"
	EventPolicyAudit = "policy.audit"
)

// AuditEvent records one authorization decision or configuration
// change.
type AuditEvent struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	PrincipalID string         `json:"principal_id"`
	Resource    string         `json:"resource"`
	Action      string         `json:"action"`
	Allowed     bool           `json:"allowed"`
	Reason      string         `json:"reason"`
	Cached      bool           `json:"cached"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AuditSink receives events from the orchestrator's audit worker.
// Record runs on the worker goroutine, off the request path, so sinks
// may do slow work without affecting decision latency.
type AuditSink interface {
	Record(event AuditEvent)
}

// AuditFilter selects events when querying a MemorySink.
type AuditFilter struct {
	Type        string
	PrincipalID string
	Resource    string
	Since       time.Time
	Limit       int
}

// MemorySink keeps events in memory, mainly for tests and small
// deployments.
type MemorySink struct {
	mu     sync.RWMutex
	events []AuditEvent
	max    int
}

// NewMemorySink bounds retention to max events, dropping the oldest.
// max <= 0 means unbounded.
func NewMemorySink(max int) *MemorySink {
	return &MemorySink{max: max}
}

func (s *MemorySink) Record(event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.max > 0 && len(s.events) > s.max {
		s.events = s.events[len(s.events)-s.max:]
	}
}

// Events returns the events matching the filter, oldest first.
func (s *MemorySink) Events(filter AuditFilter) []AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEvent, 0)
	for _, ev := range s.events {
		if filter.Type != "" && ev.Type != filter.Type {
			continue
		}
		if filter.PrincipalID != "" && ev.PrincipalID != filter.PrincipalID {
			continue
		}
		if filter.Resource != "" && ev.Resource != filter.Resource {
			continue
		}
		if !filter.Since.IsZero() && ev.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.NewNullLogger()
	}
	return &LogSink{log: l}
}

func (s *LogSink) Record(event AuditEvent) {
	s.log.Info("audit event",
		"event_id", event.ID,
		"type", event.Type,
		"principal", event.PrincipalID,
		"resource", event.Resource,
		"action", event.Action,
		"allowed", event.Allowed,
		"reason", event.Reason,
		"cached", event.Cached,
	)
}

// newAuditEvent stamps an id and timestamp on a decision event.
func newAuditEvent(eventType string, req *Context, d *Decision, cached bool) AuditEvent {
	ev := AuditEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Resource:  req.Resource,
		Action:    req.Action,
		Allowed:   d.Allowed,
		Reason:    d.Reason,
		Cached:    cached,
		Metadata:  d.Metadata,
	}
	if req.Principal != nil {
		ev.PrincipalID = req.Principal.ID
	}
	return ev
}
