package event

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/Iron-Ham/roomkit/internal/errors"
)

// Topic binds an event name to its payload type so publishers and
// subscribers agree on T at compile time. The Bus itself stays untyped.
type Topic[T any] struct {
	name string
}

// NewTopic creates a Topic for eventName.
func NewTopic[T any](eventName string) Topic[T] {
	return Topic[T]{name: eventName}
}

// Name returns the topic's event name.
func (t Topic[T]) Name() string {
	return t.name
}

// Subscribe registers fn on b. A payload that is not a T is reported to the
// bus Reporter as a listener failure and fn is not called.
func (t Topic[T]) Subscribe(b *Bus, fn func(T) error, opts ...SubscribeOption) (func(), error) {
	if fn == nil {
		return nil, errors.NewValidationError("handler must not be nil").WithField("handler")
	}
	return b.Subscribe(t.name, HandlerFunc(func(payload any) error {
		v, err := t.cast(payload)
		if err != nil {
			return err
		}
		return fn(v)
	}), opts...)
}

// Publish publishes v on b.
func (t Topic[T]) Publish(b *Bus, v T) bool {
	return b.Publish(t.name, v)
}

// Await waits for the next publish of the topic, bounded by timeout
// (0 for none) and ctx.
func (t Topic[T]) Await(ctx context.Context, b *Bus, timeout time.Duration) (T, error) {
	var zero T

	p, err := b.WaitFor(t.name, timeout)
	if err != nil {
		return zero, err
	}
	payload, err := p.Await(ctx)
	if err != nil {
		return zero, err
	}
	return t.cast(payload)
}

func (t Topic[T]) cast(payload any) (T, error) {
	v, ok := payload.(T)
	if !ok {
		var zero T
		return zero, errors.NewValidationError(
			fmt.Sprintf("payload for %s is %T, want %s", t.name, payload, reflect.TypeOf((*T)(nil)).Elem()),
		).WithField("payload")
	}
	return v, nil
}
