package event

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/roomkit/internal/errors"
	"github.com/Iron-Ham/roomkit/internal/logging"
)

// DefaultMaxListeners is the soft cap applied to every event name unless
// overridden with WithMaxListeners or SetMaxListeners.
const DefaultMaxListeners = 10

// Handler handles an event payload. A returned error is reported, never
// propagated to the publisher.
type Handler interface {
	HandleEvent(payload any) error
}

// HandlerFunc adapts a plain function to Handler.
//
// Function values are not comparable in Go, so a HandlerFunc can only be
// removed with the handle returned by Subscribe, never with Unsubscribe.
type HandlerFunc func(payload any) error

// HandleEvent calls f(payload).
func (f HandlerFunc) HandleEvent(payload any) error {
	return f(payload)
}

// listener is a single registration. The same Handler may be registered
// several times; each registration gets its own record and id.
type listener struct {
	id      string
	handler Handler
	once    bool
	fired   atomic.Bool // set by the first dispatch of a once listener
}

// Bus is a synchronous, in-process publish/subscribe registry.
//
// Handlers run on the publishing goroutine in registration order. The
// registry lock is released before any handler runs, so handlers may
// subscribe, unsubscribe or publish re-entrantly. Publish works on a snapshot
// of the bucket: registry changes made during a dispatch apply to the next
// Publish, not the current one.
type Bus struct {
	mu           sync.Mutex
	listeners    map[string][]*listener
	maxListeners int

	reporter Reporter
	logger   *logging.Logger
	clock    clock.Clock
}

// Option configures a Bus.
type Option func(*Bus)

// WithReporter sets where listener failures and cap diagnostics are sent.
// Defaults to a LogReporter over the bus logger.
func WithReporter(r Reporter) Option {
	return func(b *Bus) { b.reporter = r }
}

// WithLogger sets the bus logger. Defaults to a NopLogger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithClock sets the clock used for WaitFor deadlines.
func WithClock(c clock.Clock) Option {
	return func(b *Bus) { b.clock = c }
}

// WithMaxListeners sets the initial soft cap. Negative values are ignored.
func WithMaxListeners(n int) Option {
	return func(b *Bus) {
		if n >= 0 {
			b.maxListeners = n
		}
	}
}

// NewBus creates an empty event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		listeners:    make(map[string][]*listener),
		maxListeners: DefaultMaxListeners,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.NopLogger()
	}
	b.logger = b.logger.WithComponent("bus")
	if b.reporter == nil {
		b.reporter = NewLogReporter(b.logger)
	}
	if b.clock == nil {
		b.clock = clock.New()
	}
	return b
}

type subscribeOptions struct {
	once bool
}

// SubscribeOption modifies a single Subscribe call.
type SubscribeOption func(*subscribeOptions)

// WithOnce removes the listener after its first invocation.
func WithOnce() SubscribeOption {
	return func(o *subscribeOptions) { o.once = true }
}

// Subscribe registers h for eventName and returns a handle that removes
// exactly this registration. The handle is idempotent and safe to call after
// the registration was already removed by any other means.
//
// If the number of listeners for eventName now exceeds the soft cap the
// Reporter is told; registration still succeeds.
func (b *Bus) Subscribe(eventName string, h Handler, opts ...SubscribeOption) (func(), error) {
	if err := validateEventName(eventName); err != nil {
		return nil, err
	}
	if isNilHandler(h) {
		return nil, errors.NewValidationError("handler must not be nil").WithField("handler")
	}

	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}

	l := &listener{
		id:      uuid.NewString(),
		handler: h,
		once:    o.once,
	}

	b.mu.Lock()
	b.listeners[eventName] = append(b.listeners[eventName], l)
	count := len(b.listeners[eventName])
	limit := b.maxListeners
	b.mu.Unlock()

	b.logger.Debug("listener subscribed",
		"event", eventName,
		"listener_id", l.id,
		"once", l.once,
		"count", count,
	)

	if limit > 0 && count > limit {
		b.reporter.MaxListenersExceeded(eventName, count, limit)
	}

	return func() { b.removeIDs(eventName, l.id) }, nil
}

// SubscribeFunc is Subscribe for a plain function.
func (b *Bus) SubscribeFunc(eventName string, fn func(payload any) error, opts ...SubscribeOption) (func(), error) {
	if fn == nil {
		return nil, errors.NewValidationError("handler must not be nil").WithField("handler")
	}
	return b.Subscribe(eventName, HandlerFunc(fn), opts...)
}

// SubscribeOnce registers h to run on the next publish of eventName only.
func (b *Bus) SubscribeOnce(eventName string, h Handler) (func(), error) {
	return b.Subscribe(eventName, h, WithOnce())
}

// Unsubscribe removes the earliest registration of h for eventName and
// reports whether one was found.
//
// Matching is by interface equality, so h's dynamic type must be comparable
// (typically a pointer). For function handlers use the Subscribe handle.
func (b *Bus) Unsubscribe(eventName string, h Handler) (bool, error) {
	if err := validateEventName(eventName); err != nil {
		return false, err
	}
	if isNilHandler(h) {
		return false, errors.NewValidationError("handler must not be nil").WithField("handler")
	}
	if !reflect.TypeOf(h).Comparable() {
		return false, errors.NewValidationError(
			fmt.Sprintf("handler of type %T cannot be matched by identity; use the handle returned by Subscribe", h),
		).WithField("handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bucket := b.listeners[eventName]
	idx := slices.IndexFunc(bucket, func(l *listener) bool {
		return sameHandler(l.handler, h)
	})
	if idx < 0 {
		return false, nil
	}
	b.setBucketLocked(eventName, slices.Delete(slices.Clone(bucket), idx, idx+1))
	return true, nil
}

// RemoveAll drops every listener for the given event names, or for all
// events when called without arguments.
func (b *Bus) RemoveAll(eventNames ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(eventNames) == 0 {
		b.listeners = make(map[string][]*listener)
		return
	}
	for _, name := range eventNames {
		delete(b.listeners, name)
	}
}

// Publish invokes every listener registered for eventName, in registration
// order, with payload. It returns false when eventName has no listeners.
//
// Listener errors and panics are sent to the Reporter and do not stop the
// dispatch. Once listeners are removed after the dispatch completes,
// including ones whose invocation failed.
//
// A once listener runs at most one time even across re-entrant calls. When
// a listener publishes the same event and the nested dispatch runs a once
// listener first, the outer dispatch skips it although it was in the outer
// snapshot. With listeners A (publishes again), B (once) and C the calls are
// A, A, B, C, C and B only sees the nested payload.
func (b *Bus) Publish(eventName string, payload any) bool {
	b.mu.Lock()
	snapshot := slices.Clone(b.listeners[eventName])
	b.mu.Unlock()

	if len(snapshot) == 0 {
		b.observeDispatch(eventName, 0)
		return false
	}

	var fired []string
	invoked := 0
	for _, l := range snapshot {
		if l.once {
			// A nested Publish may already have run this listener.
			if !l.fired.CompareAndSwap(false, true) {
				continue
			}
			fired = append(fired, l.id)
		}
		b.invoke(eventName, l, payload)
		invoked++
	}

	if len(fired) > 0 {
		b.removeIDs(eventName, fired...)
	}
	b.observeDispatch(eventName, invoked)
	return true
}

// invoke runs one handler, converting a returned error or a panic into a
// ListenerError for the Reporter.
func (b *Bus) invoke(eventName string, l *listener, payload any) {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = l.handler.HandleEvent(payload) })

	if r := pc.Recovered(); r != nil {
		b.reporter.ListenerFailed(errors.NewListenerPanicError(eventName, r.Value, r.Stack).WithListenerID(l.id))
		return
	}
	if err != nil {
		// The report keeps the severity the handler's error declares.
		b.reporter.ListenerFailed(errors.NewListenerError(eventName, err).
			WithListenerID(l.id).
			WithSeverity(errors.GetSeverity(err)))
	}
}

func (b *Bus) observeDispatch(eventName string, invoked int) {
	if o, ok := b.reporter.(DispatchObserver); ok {
		o.Dispatched(eventName, invoked)
	}
}

// ListenerCount returns the number of live registrations for eventName.
func (b *Bus) ListenerCount(eventName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[eventName])
}

// EventNames returns the event names that currently have listeners, sorted.
func (b *Bus) EventNames() []string {
	b.mu.Lock()
	names := make([]string, 0, len(b.listeners))
	for name := range b.listeners {
		names = append(names, name)
	}
	b.mu.Unlock()

	sort.Strings(names)
	return names
}

// SetMaxListeners sets the soft cap. 0 disables the diagnostic.
func (b *Bus) SetMaxListeners(n int) error {
	if n < 0 {
		return errors.NewValidationError("max listeners must be non-negative").
			WithField("maxListeners").
			WithValue(n)
	}
	b.mu.Lock()
	b.maxListeners = n
	b.mu.Unlock()
	return nil
}

// MaxListeners returns the current soft cap.
func (b *Bus) MaxListeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxListeners
}

// removeIDs deletes the listed registrations from eventName's bucket.
// Unknown ids are ignored.
func (b *Bus) removeIDs(eventName string, ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.listeners[eventName]
	if !ok {
		return
	}
	remaining := slices.DeleteFunc(slices.Clone(bucket), func(l *listener) bool {
		return slices.Contains(ids, l.id)
	})
	b.setBucketLocked(eventName, remaining)
}

// setBucketLocked stores bucket, deleting the key when it is empty.
// Must be called with b.mu held.
func (b *Bus) setBucketLocked(eventName string, bucket []*listener) {
	if len(bucket) == 0 {
		delete(b.listeners, eventName)
		return
	}
	b.listeners[eventName] = bucket
}

func validateEventName(eventName string) error {
	if eventName == "" {
		return errors.NewValidationError("event name must not be empty").WithField("eventName")
	}
	return nil
}

func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Chan, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// sameHandler compares two handlers without panicking when a stored
// handler's dynamic type turns out not to be comparable at runtime.
func sameHandler(a, b Handler) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
