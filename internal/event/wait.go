package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Iron-Ham/roomkit/internal/errors"
)

// ErrPending is returned by Pending.Result while the wait is unsettled.
var ErrPending = errors.New("wait has not settled")

// State is the settlement state of a Pending wait.
type State int

const (
	StatePending State = iota
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Pending is the result of WaitFor: a one-shot future that settles exactly
// once, either resolved with the next payload published for its event or
// rejected by timeout or cancellation. Whichever happens first wins; later
// attempts are ignored.
type Pending struct {
	eventName string

	mu          sync.Mutex
	state       State
	value       any
	err         error
	done        chan struct{}
	timer       *clock.Timer
	unsubscribe func()
}

// WaitFor registers a one-shot listener for eventName and returns a Pending
// that resolves with the next payload published for it.
//
// With timeout > 0 the Pending is rejected with a *errors.TimeoutError if
// nothing is published in time, and the listener is removed at that moment.
// A zero timeout waits until publish or Cancel.
func (b *Bus) WaitFor(eventName string, timeout time.Duration) (*Pending, error) {
	if err := validateEventName(eventName); err != nil {
		return nil, err
	}
	if timeout < 0 {
		return nil, errors.NewValidationError("timeout must be non-negative").
			WithField("timeout").
			WithValue(timeout)
	}

	p := &Pending{
		eventName: eventName,
		done:      make(chan struct{}),
	}

	unsubscribe, err := b.Subscribe(eventName, HandlerFunc(func(payload any) error {
		p.settle(StateResolved, payload, nil)
		return nil
	}), WithOnce())
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.unsubscribe = unsubscribe
	if p.state == StatePending && timeout > 0 {
		p.timer = b.clock.AfterFunc(timeout, func() {
			p.settle(StateRejected, nil, errors.NewTimeoutError(
				fmt.Sprintf("waiting for %s", eventName), timeout,
			))
		})
	}
	return p, nil
}

// settle moves p out of StatePending, stops the deadline and removes the
// listener. It reports whether this call performed the transition.
func (p *Pending) settle(state State, value any, err error) bool {
	p.mu.Lock()
	if p.state != StatePending {
		p.mu.Unlock()
		return false
	}
	p.state = state
	p.value = value
	p.err = err
	timer, unsubscribe := p.timer, p.unsubscribe
	p.timer = nil
	p.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	// Only the winning settle reaches here, so done is closed once.
	close(p.done)
	return true
}

// EventName returns the event being waited for.
func (p *Pending) EventName() string {
	return p.eventName
}

// Done is closed once p settles.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// State returns the current settlement state.
func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Result returns the settled payload or rejection error without blocking.
// While unsettled it returns ErrPending.
func (p *Pending) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePending {
		return nil, ErrPending
	}
	return p.value, p.err
}

// Await blocks until p settles or ctx is done. Context cancellation rejects
// p with errors.ErrCanceled unless it settled first.
func (p *Pending) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		p.settle(StateRejected, nil, fmt.Errorf("%w: %w", errors.ErrCanceled, ctx.Err()))
	}
	return p.Result()
}

// Cancel rejects p with errors.ErrCanceled and removes its listener.
// It reports whether p was still pending.
func (p *Pending) Cancel() bool {
	return p.settle(StateRejected, nil, fmt.Errorf("%w: wait for %s", errors.ErrCanceled, p.eventName))
}
