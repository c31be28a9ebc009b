// Package trace logs bus traffic for debugging. A Tracer subscribes to the
// event names that match its glob patterns and writes every payload it sees
// to the logger at DEBUG.
package trace

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/roomkit/internal/errors"
	"github.com/Iron-Ham/roomkit/internal/event"
	"github.com/Iron-Ham/roomkit/internal/logging"
)

// Tracer mirrors matching bus events into a log.
type Tracer struct {
	bus      *event.Bus
	logger   *logging.Logger
	patterns []string
	matchers []glob.Glob

	mu     sync.Mutex
	offs   []func()
	names  []string
	counts map[string]int
}

// New compiles patterns, e.g. "*", "room:*" or "{auth,sync}:*".
func New(bus *event.Bus, logger *logging.Logger, patterns []string) (*Tracer, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	matchers := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errors.NewValidationError("invalid trace pattern").
				WithField("trace.patterns").
				WithValue(strconv.Quote(pattern)).
				WithCause(err)
		}
		matchers = append(matchers, g)
	}

	return &Tracer{
		bus:      bus,
		logger:   logger.WithComponent("trace"),
		patterns: slices.Clone(patterns),
		matchers: matchers,
		counts:   make(map[string]int),
	}, nil
}

// Matches reports whether name matches any of the tracer's patterns.
func (t *Tracer) Matches(name string) bool {
	for _, g := range t.matchers {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Attach subscribes to every name that matches and is not already traced,
// defaulting to the event catalog. It returns the names newly attached.
func (t *Tracer) Attach(names ...string) ([]string, error) {
	if len(names) == 0 {
		names = event.Catalog()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var attached []string
	for _, name := range names {
		if !t.Matches(name) || slices.Contains(t.names, name) {
			continue
		}
		off, err := t.bus.SubscribeFunc(name, t.observer(name))
		if err != nil {
			return attached, err
		}
		t.offs = append(t.offs, off)
		t.names = append(t.names, name)
		attached = append(attached, name)
	}

	if len(attached) > 0 {
		t.logger.Debug("tracer attached", "events", attached, "patterns", t.patterns)
	}
	return attached, nil
}

func (t *Tracer) observer(name string) func(any) error {
	log := t.logger.WithEvent(name)
	return func(payload any) error {
		t.mu.Lock()
		t.counts[name]++
		n := t.counts[name]
		t.mu.Unlock()

		if log.Enabled(logging.LevelDebug) {
			log.Debug("event published",
				"seq", n,
				"payload_type", fmt.Sprintf("%T", payload),
				"payload", fmt.Sprintf("%+v", payload),
			)
		}
		return nil
	}
}

// Events returns the names currently traced, in attach order.
func (t *Tracer) Events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.names)
}

// Count returns how many times name has been observed.
func (t *Tracer) Count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[name]
}

// Close detaches the tracer from the bus. Counts are kept.
func (t *Tracer) Close() {
	t.mu.Lock()
	offs := t.offs
	t.offs = nil
	t.names = nil
	t.mu.Unlock()

	for _, off := range offs {
		off()
	}
}
