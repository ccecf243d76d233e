// Package schedule provides the schedule.* built-ins: in-process one-shot
// and recurring timers, plus calendar event creation through the configured
// calendar integration.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convoflow/convoflow/runtime"
)

// OnceConfig is the schema of schedule.once.
type OnceConfig struct {
	In      string `json:"in"`
	At      string `json:"at"`
	Channel string `json:"channel" default:"log"`
	To      string `json:"to"`
	Message string `json:"message" validate:"required"`
}

// RecurringConfig is the schema of schedule.recurring.
type RecurringConfig struct {
	Every   string `json:"every" validate:"required"`
	Limit   int    `json:"limit" default:"0" validate:"gte=0"`
	Channel string `json:"channel" default:"log"`
	To      string `json:"to"`
	Message string `json:"message" validate:"required"`
}

// CalendarConfig is the schema of schedule.calendar.
type CalendarConfig struct {
	Title    string `json:"title" validate:"required"`
	Start    string `json:"start" validate:"required"`
	Duration string `json:"duration" default:"30m"`
	Attendee string `json:"attendee"`
}

// Scheduler owns the in-process timers created by schedule.once and
// schedule.recurring. Timers do not survive a restart; durable scheduling
// is out of scope for the engine.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	l       *slog.Logger
	closed  bool
}

type entry struct {
	id     string
	cancel context.CancelFunc
}

func NewScheduler(l *slog.Logger) *Scheduler {
	if l == nil {
		l = slog.Default()
	}
	return &Scheduler{entries: map[string]*entry{}, l: l}
}

// Once fires deliver exactly once after delay. It returns the timer id.
func (s *Scheduler) Once(delay time.Duration, deliver func()) (string, error) {
	return s.add(func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			deliver()
		}
	})
}

// Recurring fires deliver every interval until limit firings have happened,
// or forever when limit is zero.
func (s *Scheduler) Recurring(interval time.Duration, limit int, deliver func()) (string, error) {
	return s.add(func(ctx context.Context) {
		t := time.NewTicker(interval)
		defer t.Stop()
		fired := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				deliver()
				fired++
				if limit > 0 && fired >= limit {
					return
				}
			}
		}
	})
}

func (s *Scheduler) add(run func(ctx context.Context)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("scheduler closed")
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s.entries[id] = &entry{id: id, cancel: cancel}

	go func() {
		run(ctx)
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
	}()

	return id, nil
}

// Cancel stops the timer with the given id. Unknown ids are a no-op.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.cancel()
		delete(s.entries, id)
	}
}

// Close cancels every pending timer.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, e := range s.entries {
		e.cancel()
		delete(s.entries, id)
	}
}

// Len reports the number of pending timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Actions exposes the schedule.* built-ins backed by one Scheduler.
type Actions struct {
	scheduler *Scheduler
}

func New(s *Scheduler) *Actions {
	return &Actions{scheduler: s}
}

// Definitions returns the schedule.* registry entries.
func (a *Actions) Definitions() []runtime.ActionDefinition {
	return []runtime.ActionDefinition{
		{
			Name:      "schedule.once",
			NewConfig: func() any { return &OnceConfig{} },
			Run:       a.once,
		},
		{
			Name:      "schedule.recurring",
			NewConfig: func() any { return &RecurringConfig{} },
			Run:       a.recurring,
		},
		{
			Name:      "schedule.calendar",
			NewConfig: func() any { return &CalendarConfig{} },
			Run:       a.calendar,
		},
	}
}

func (a *Actions) once(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*OnceConfig)

	delay, err := onceDelay(input)
	if err != nil {
		return nil, err
	}

	id, err := a.scheduler.Once(delay, a.deliverer(ec, input.Channel, input.To, input.Message))
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": id, "fires_at": time.Now().Add(delay).Format(time.RFC3339)}, nil
}

func (a *Actions) recurring(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*RecurringConfig)

	interval, err := time.ParseDuration(input.Every)
	if err != nil {
		return nil, fmt.Errorf("schedule.recurring: bad interval %q: %w", input.Every, err)
	}
	if interval < time.Second {
		return nil, fmt.Errorf("schedule.recurring: interval %s below 1s floor", interval)
	}

	id, err := a.scheduler.Recurring(interval, input.Limit, a.deliverer(ec, input.Channel, input.To, input.Message))
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": id}, nil
}

func (a *Actions) calendar(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*CalendarConfig)

	if ec.Services == nil || ec.Services.Calendar == nil {
		return nil, fmt.Errorf("schedule.calendar: no calendar configured")
	}

	start, err := time.Parse(time.RFC3339, input.Start)
	if err != nil {
		return nil, fmt.Errorf("schedule.calendar: bad start %q: %w", input.Start, err)
	}
	dur, err := time.ParseDuration(input.Duration)
	if err != nil {
		return nil, fmt.Errorf("schedule.calendar: bad duration %q: %w", input.Duration, err)
	}

	eventID, err := ec.Services.Calendar.CreateEvent(ctx, runtime.CalendarEvent{
		Title:    input.Title,
		Start:    start,
		Duration: dur,
		Attendee: input.Attendee,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": eventID}, nil
}

// deliverer binds the notification payload now so delivery does not touch
// the execution context after the action returned.
func (a *Actions) deliverer(ec *runtime.ExecContext, channel, to, message string) func() {
	var notifier runtime.Notifier
	if ec.Services != nil {
		notifier = ec.Services.Notifier
	}
	l := a.scheduler.l
	n := runtime.Notification{Channel: channel, To: to, Body: message}

	return func() {
		if notifier == nil {
			l.Info("scheduled message", "channel", n.Channel, "to", n.To)
			return
		}
		if err := notifier.Send(context.Background(), n); err != nil {
			l.Error("scheduled delivery failed", "channel", n.Channel, "to", n.To, "error", err)
		}
	}
}

func onceDelay(input *OnceConfig) (time.Duration, error) {
	switch {
	case input.In != "":
		d, err := time.ParseDuration(input.In)
		if err != nil {
			return 0, fmt.Errorf("schedule.once: bad delay %q: %w", input.In, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("schedule.once: delay must be positive")
		}
		return d, nil
	case input.At != "":
		at, err := time.Parse(time.RFC3339, input.At)
		if err != nil {
			return 0, fmt.Errorf("schedule.once: bad time %q: %w", input.At, err)
		}
		d := time.Until(at)
		if d <= 0 {
			return 0, fmt.Errorf("schedule.once: time %s is in the past", input.At)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("schedule.once: one of in or at is required")
	}
}
