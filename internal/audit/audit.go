// Package audit records who did what. Recording is best effort: a failing
// sink is logged and never fails the operation being audited.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Action names an audited operation.
type Action string

const (
	ActionRideBooked          Action = "RIDE_BOOKED"
	ActionRideScheduled       Action = "RIDE_SCHEDULED"
	ActionRideCompleted       Action = "RIDE_COMPLETED"
	ActionRideCancelled       Action = "RIDE_CANCELLED"
	ActionDriverRated         Action = "DRIVER_RATED"
	ActionLocationUpdated     Action = "LOCATION_UPDATED"
	ActionAvailabilityChanged Action = "AVAILABILITY_CHANGED"
	ActionUserBlocked         Action = "USER_BLOCKED"
	ActionUserRegistered      Action = "USER_REGISTERED"
)

// Event is one audit record.
type Event struct {
	Actor   string    `json:"actor"`
	Action  Action    `json:"action"`
	Details string    `json:"details"`
	At      time.Time `json:"at"`
}

// Sink stores or forwards events.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Lister reads back recent events, newest first.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Recorder fans events out to its sinks.
type Recorder struct {
	sinks []Sink
	log   *zap.Logger
	now   func() time.Time
}

// NewRecorder creates a Recorder writing to sinks.
func NewRecorder(log *zap.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{sinks: sinks, log: log, now: time.Now}
}

// Emit records an event on every sink. Failures are logged and swallowed.
// A nil Recorder discards events.
func (r *Recorder) Emit(ctx context.Context, actor string, action Action, details string) {
	if r == nil {
		return
	}
	e := Event{Actor: actor, Action: action, Details: details, At: r.now().UTC()}
	for _, s := range r.sinks {
		if err := s.Record(ctx, e); err != nil {
			r.log.Warn("audit: record failed",
				zap.String("action", string(action)),
				zap.String("actor", actor),
				zap.Error(err),
			)
		}
	}
}

// LogSink writes events to a zap logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

// Record logs the event at info level.
func (s *LogSink) Record(_ context.Context, e Event) error {
	s.log.Info("audit",
		zap.String("actor", e.Actor),
		zap.String("action", string(e.Action)),
		zap.String("details", e.Details),
		zap.Time("at", e.At),
	)
	return nil
}

// MemorySink keeps the most recent events in a ring.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewMemorySink creates a MemorySink holding up to capacity events.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemorySink{events: make([]Event, capacity)}
}

// Record stores e, evicting the oldest event when full.
func (s *MemorySink) Record(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[s.next] = e
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *MemorySink) Recent(_ context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.full {
		n = len(s.events)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.events)) % len(s.events)
		out = append(out, s.events[idx])
	}
	return out, nil
}
