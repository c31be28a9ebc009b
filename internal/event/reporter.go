package event

import (
	"sync"

	"github.com/Iron-Ham/roomkit/internal/errors"
	"github.com/Iron-Ham/roomkit/internal/logging"
)

// Reporter receives the diagnostics a Bus never returns to callers.
// Implementations must be safe for concurrent use and must not block.
type Reporter interface {
	// ListenerFailed is called after a handler returned an error or panicked.
	ListenerFailed(err *errors.ListenerError)
	// MaxListenersExceeded is called when a registration pushes an event's
	// listener count past the soft cap.
	MaxListenersExceeded(eventName string, count, max int)
}

// DispatchObserver is an optional Reporter extension notified after every
// Publish with the number of handlers that were invoked.
type DispatchObserver interface {
	Dispatched(eventName string, invoked int)
}

// LogReporter writes diagnostics to a logging.Logger.
type LogReporter struct {
	logger *logging.Logger
}

// NewLogReporter creates a LogReporter. A nil logger discards everything.
func NewLogReporter(logger *logging.Logger) *LogReporter {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &LogReporter{logger: logger}
}

// ListenerFailed logs err at a level chosen by its severity: critical
// (panics) at ERROR, info and below at INFO, everything else at WARN.
func (r *LogReporter) ListenerFailed(err *errors.ListenerError) {
	log := r.logger.WithEvent(err.EventName).WithListener(err.ListenerID)
	severity := errors.GetSeverity(err)

	msg := "listener failed"
	args := []any{"error", err.Error(), "severity", severity.String()}
	if err.Panicked {
		msg = "listener panicked"
		args = append(args, "stack", string(err.Stack))
	}

	switch severity {
	case errors.SeverityCritical:
		log.Error(msg, args...)
	case errors.SeverityDebug, errors.SeverityInfo:
		log.Info(msg, args...)
	default:
		log.Warn(msg, args...)
	}
}

func (r *LogReporter) MaxListenersExceeded(eventName string, count, max int) {
	r.logger.WithEvent(eventName).Warn("possible listener leak: max listeners exceeded",
		"count", count,
		"max", max,
	)
}

// MultiReporter fans diagnostics out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) ListenerFailed(err *errors.ListenerError) {
	for _, r := range m {
		r.ListenerFailed(err)
	}
}

func (m MultiReporter) MaxListenersExceeded(eventName string, count, max int) {
	for _, r := range m {
		r.MaxListenersExceeded(eventName, count, max)
	}
}

func (m MultiReporter) Dispatched(eventName string, invoked int) {
	for _, r := range m {
		if o, ok := r.(DispatchObserver); ok {
			o.Dispatched(eventName, invoked)
		}
	}
}

// StatsSnapshot is a point-in-time copy of Stats counters.
type StatsSnapshot struct {
	Published       int            // Publish calls, including ones with no listeners
	Unheard         int            // Publish calls that invoked no handler
	Delivered       int            // handler invocations
	Failed          int            // handler errors and panics
	Panicked        int            // subset of Failed
	CapWarnings     int            // MaxListenersExceeded diagnostics
	PublishedByName map[string]int // Publish calls per event name
}

// Stats is a Reporter and DispatchObserver that only counts.
type Stats struct {
	mu sync.Mutex
	s  StatsSnapshot
}

// NewStats creates a zeroed Stats.
func NewStats() *Stats {
	return &Stats{s: StatsSnapshot{PublishedByName: make(map[string]int)}}
}

func (s *Stats) ListenerFailed(err *errors.ListenerError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Failed++
	if err.Panicked {
		s.s.Panicked++
	}
}

func (s *Stats) MaxListenersExceeded(string, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.CapWarnings++
}

func (s *Stats) Dispatched(eventName string, invoked int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.s.Published++
	s.s.PublishedByName[eventName]++
	s.s.Delivered += invoked
	if invoked == 0 {
		s.s.Unheard++
	}
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.s
	out.PublishedByName = make(map[string]int, len(s.s.PublishedByName))
	for k, v := range s.s.PublishedByName {
		out.PublishedByName[k] = v
	}
	return out
}
