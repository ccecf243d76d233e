package runtime

import (
	"context"
	"time"
)

// FlowStore loads and persists flow definitions. Implementations must give
// read-after-write consistency; the engine treats loaded definitions as
// read-only.
type FlowStore interface {
	Load(name string) (*FlowDefinition, error)
	Save(def *FlowDefinition) error
	List() ([]*FlowDefinition, error)
	Delete(name string) error
}

// HookModule exposes the named side-effect functions of a legacy hook
// module. Lookups for missing functions and load failures are non-fatal;
// the engine proceeds as if no hooks were configured.
type HookModule interface {
	Has(name string) bool
	Call(name string, payload map[string]any) (map[string]any, error)
}

// HookSource resolves the hook module for a flow, nil when none exists.
type HookSource func(flowName string) HookModule

// HistoryRecord is the final variable snapshot of a completed session.
type HistoryRecord struct {
	Flow        string         `json:"flow"`
	SenderID    string         `json:"sender_id"`
	Channel     string         `json:"channel"`
	Variables   map[string]any `json:"variables"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// HistorySink receives completed-session snapshots. Appends are
// fire-and-forget: the orchestrator logs a failure and moves on.
type HistorySink interface {
	Append(ctx context.Context, rec HistoryRecord) error
}

// Notification is a rendered message handed to a Notifier.
type Notification struct {
	To      string
	Channel string
	Subject string
	Body    string
}

// Notifier delivers templated notifications produced by the notify actions.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// CalendarEvent describes an event the schedule.calendar action books.
type CalendarEvent struct {
	Title    string
	Start    time.Time
	Duration time.Duration
	Attendee string
}

// CalendarAPI is the opaque calendar integration consumed by the schedule
// actions.
type CalendarAPI interface {
	CreateEvent(ctx context.Context, ev CalendarEvent) (string, error)
}
