package event

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/roomkit/internal/errors"
)

// recordingReporter captures diagnostics for assertions.
type recordingReporter struct {
	mu       sync.Mutex
	failures []*errors.ListenerError
	capHits  []string
}

func (r *recordingReporter) ListenerFailed(err *errors.ListenerError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *recordingReporter) MaxListenersExceeded(eventName string, count, max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capHits = append(r.capHits, fmt.Sprintf("%s:%d/%d", eventName, count, max))
}

func (r *recordingReporter) Failures() []*errors.ListenerError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*errors.ListenerError(nil), r.failures...)
}

// countingHandler is a comparable Handler, usable with Unsubscribe.
type countingHandler struct {
	mu       sync.Mutex
	payloads []any
}

func (h *countingHandler) HandleEvent(payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, payload)
	return nil
}

func (h *countingHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func newTestBus(t *testing.T) (*Bus, *recordingReporter) {
	t.Helper()
	rep := &recordingReporter{}
	return NewBus(WithReporter(rep)), rep
}

func TestBus_PublishDeliversPayloadOnce(t *testing.T) {
	bus, _ := newTestBus(t)
	h := &countingHandler{}

	if _, err := bus.Subscribe("x", h); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if !bus.Publish("x", 42) {
		t.Error("Publish should return true when listeners exist")
	}
	if h.Calls() != 1 {
		t.Fatalf("expected 1 call, got %d", h.Calls())
	}
	if h.payloads[0] != 42 {
		t.Errorf("expected payload 42, got %v", h.payloads[0])
	}
}

func TestBus_PublishWithoutListeners(t *testing.T) {
	bus, rep := newTestBus(t)

	if bus.Publish("nobody:listens", "payload") {
		t.Error("Publish should return false for an unknown event")
	}
	if len(bus.EventNames()) != 0 {
		t.Error("Publish must not create a bucket")
	}
	if len(rep.Failures()) != 0 {
		t.Error("unknown events are not errors")
	}
}

func TestBus_SubscribeOnce(t *testing.T) {
	bus, _ := newTestBus(t)
	h := &countingHandler{}

	if _, err := bus.SubscribeOnce("x", h); err != nil {
		t.Fatalf("SubscribeOnce failed: %v", err)
	}

	if !bus.Publish("x", 1) {
		t.Error("first Publish should return true")
	}
	if bus.Publish("x", 2) {
		t.Error("second Publish should return false after the once listener is removed")
	}
	if h.Calls() != 1 {
		t.Errorf("expected once listener to run once, got %d", h.Calls())
	}
	if h.payloads[0] != 1 {
		t.Errorf("expected payload 1, got %v", h.payloads[0])
	}
	if bus.ListenerCount("x") != 0 {
		t.Errorf("expected 0 listeners, got %d", bus.ListenerCount("x"))
	}
}

func TestBus_OnceListenerRemovedEvenWhenItFails(t *testing.T) {
	bus, rep := newTestBus(t)

	_, err := bus.SubscribeFunc("x", func(any) error {
		return fmt.Errorf("boom")
	}, WithOnce())
	if err != nil {
		t.Fatalf("SubscribeFunc failed: %v", err)
	}

	bus.Publish("x", nil)

	if bus.ListenerCount("x") != 0 {
		t.Error("failed once listener should still be removed")
	}
	if len(rep.Failures()) != 1 {
		t.Errorf("expected 1 reported failure, got %d", len(rep.Failures()))
	}
}

func TestBus_UnsubscribeBeforePublish(t *testing.T) {
	t.Run("via handle", func(t *testing.T) {
		bus, _ := newTestBus(t)
		h := &countingHandler{}

		off, err := bus.Subscribe("x", h)
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		off()

		if bus.Publish("x", 1) {
			t.Error("Publish should return false after the only listener is removed")
		}
		if h.Calls() != 0 {
			t.Errorf("expected 0 calls, got %d", h.Calls())
		}
	})

	t.Run("via Unsubscribe", func(t *testing.T) {
		bus, _ := newTestBus(t)
		h := &countingHandler{}

		if _, err := bus.Subscribe("x", h); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}

		removed, err := bus.Unsubscribe("x", h)
		if err != nil {
			t.Fatalf("Unsubscribe failed: %v", err)
		}
		if !removed {
			t.Error("Unsubscribe should report removal")
		}

		bus.Publish("x", 1)
		if h.Calls() != 0 {
			t.Errorf("expected 0 calls, got %d", h.Calls())
		}
		if names := bus.EventNames(); len(names) != 0 {
			t.Errorf("empty bucket should be deleted, got %v", names)
		}
	})
}

func TestBus_UnsubscribeRemovesFirstMatchOnly(t *testing.T) {
	bus, _ := newTestBus(t)
	h := &countingHandler{}

	_, _ = bus.Subscribe("x", h)
	_, _ = bus.Subscribe("x", h)

	removed, err := bus.Unsubscribe("x", h)
	if err != nil || !removed {
		t.Fatalf("Unsubscribe = %v, %v; want true, nil", removed, err)
	}
	if bus.ListenerCount("x") != 1 {
		t.Errorf("expected 1 remaining registration, got %d", bus.ListenerCount("x"))
	}

	bus.Publish("x", nil)
	if h.Calls() != 1 {
		t.Errorf("expected 1 call, got %d", h.Calls())
	}
}

func TestBus_UnsubscribeUnknown(t *testing.T) {
	bus, _ := newTestBus(t)
	h := &countingHandler{}

	removed, err := bus.Unsubscribe("never:subscribed", h)
	if err != nil {
		t.Fatalf("Unsubscribe of unknown event should not fail: %v", err)
	}
	if removed {
		t.Error("Unsubscribe should return false for an unknown event")
	}

	_, _ = bus.Subscribe("x", &countingHandler{})
	if removed, _ := bus.Unsubscribe("x", h); removed {
		t.Error("Unsubscribe should return false for an unknown handler")
	}
}

func TestBus_UnsubscribeValidation(t *testing.T) {
	bus, _ := newTestBus(t)
	fn := HandlerFunc(func(any) error { return nil })

	tests := []struct {
		name      string
		eventName string
		handler   Handler
	}{
		{"empty event name", "", &countingHandler{}},
		{"nil handler", "x", nil},
		{"nil pointer handler", "x", (*countingHandler)(nil)},
		{"non-comparable handler", "x", fn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed, err := bus.Unsubscribe(tt.eventName, tt.handler)
			if removed {
				t.Error("removed = true, want false")
			}
			var verr *errors.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestBus_SubscribeValidation(t *testing.T) {
	bus, _ := newTestBus(t)

	tests := []struct {
		name      string
		eventName string
		handler   Handler
	}{
		{"empty event name", "", &countingHandler{}},
		{"nil handler", "x", nil},
		{"nil HandlerFunc", "x", HandlerFunc(nil)},
		{"typed nil pointer", "x", (*countingHandler)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			off, err := bus.Subscribe(tt.eventName, tt.handler)
			if off != nil {
				t.Error("handle should be nil on failure")
			}
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if len(bus.EventNames()) != 0 {
				t.Error("registry must be unchanged after a validation failure")
			}
		})
	}

	if _, err := bus.SubscribeFunc("x", nil); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("SubscribeFunc(nil) = %v, want ErrInvalidInput", err)
	}
}

func TestBus_RemoveAll(t *testing.T) {
	t.Run("named events", func(t *testing.T) {
		bus, _ := newTestBus(t)
		a, b, c := &countingHandler{}, &countingHandler{}, &countingHandler{}
		_, _ = bus.Subscribe("a", a)
		_, _ = bus.Subscribe("b", b)
		_, _ = bus.Subscribe("c", c)

		bus.RemoveAll("a", "b", "unknown")

		bus.Publish("a", nil)
		bus.Publish("b", nil)
		bus.Publish("c", nil)

		if a.Calls() != 0 || b.Calls() != 0 {
			t.Error("removed listeners should not run")
		}
		if c.Calls() != 1 {
			t.Errorf("listener on c should still run, got %d calls", c.Calls())
		}
	})

	t.Run("everything", func(t *testing.T) {
		bus, _ := newTestBus(t)
		h := &countingHandler{}
		_, _ = bus.Subscribe("a", h)
		_, _ = bus.Subscribe("b", h)

		bus.RemoveAll()

		if bus.Publish("a", nil) || bus.Publish("b", nil) {
			t.Error("Publish should return false after RemoveAll()")
		}
		if h.Calls() != 0 {
			t.Errorf("expected 0 calls, got %d", h.Calls())
		}
		if len(bus.EventNames()) != 0 {
			t.Errorf("expected no event names, got %v", bus.EventNames())
		}
	})
}

func TestBus_FailureIsolation(t *testing.T) {
	t.Run("returned error", func(t *testing.T) {
		bus, rep := newTestBus(t)
		var bCalled bool

		_, _ = bus.SubscribeFunc("x", func(any) error { return fmt.Errorf("A failed") })
		_, _ = bus.SubscribeFunc("x", func(any) error { bCalled = true; return nil })

		if !bus.Publish("x", nil) {
			t.Error("Publish should return true even when a listener fails")
		}
		if !bCalled {
			t.Error("B should run after A failed")
		}

		failures := rep.Failures()
		if len(failures) != 1 {
			t.Fatalf("expected 1 failure, got %d", len(failures))
		}
		if failures[0].EventName != "x" || failures[0].Panicked {
			t.Errorf("unexpected failure: %+v", failures[0])
		}
		if failures[0].ListenerID == "" {
			t.Error("failure should carry the listener id")
		}
		if !strings.Contains(failures[0].Error(), "A failed") {
			t.Errorf("failure should wrap the cause, got %q", failures[0].Error())
		}
	})

	t.Run("panic", func(t *testing.T) {
		bus, rep := newTestBus(t)
		var bCalled bool

		_, _ = bus.SubscribeFunc("x", func(any) error { panic("A exploded") })
		_, _ = bus.SubscribeFunc("x", func(any) error { bCalled = true; return nil })

		if !bus.Publish("x", nil) {
			t.Error("Publish should return true even when a listener panics")
		}
		if !bCalled {
			t.Error("B should run after A panicked")
		}

		failures := rep.Failures()
		if len(failures) != 1 {
			t.Fatalf("expected 1 failure, got %d", len(failures))
		}
		if !failures[0].Panicked {
			t.Error("failure should be marked as a panic")
		}
		if len(failures[0].Stack) == 0 {
			t.Error("panic failure should carry a stack")
		}
		if !errors.Is(failures[0], errors.ErrListenerPanicked) {
			t.Error("panic failure should match ErrListenerPanicked")
		}
	})
}

func TestBus_OrderAndSharedPayload(t *testing.T) {
	bus, _ := newTestBus(t)

	var order []string
	var seen []any
	for _, name := range []string{"A", "B", "C"} {
		name := name
		_, err := bus.SubscribeFunc(RoomSelected, func(payload any) error {
			order = append(order, name)
			seen = append(seen, payload)
			return nil
		})
		if err != nil {
			t.Fatalf("SubscribeFunc failed: %v", err)
		}
	}

	payload := &RoomSelection{RoomID: "!abc:matrix.org"}
	bus.Publish(RoomSelected, payload)

	if strings.Join(order, ",") != "A,B,C" {
		t.Errorf("expected order A,B,C, got %v", order)
	}
	for i, p := range seen {
		if p != payload {
			t.Errorf("listener %d got a different payload value", i)
		}
	}
}

func TestBus_HandleIsIdempotent(t *testing.T) {
	bus, _ := newTestBus(t)
	h1, h2 := &countingHandler{}, &countingHandler{}

	off, _ := bus.Subscribe("x", h1)
	_, _ = bus.Subscribe("x", h2)

	off()
	off()

	if bus.ListenerCount("x") != 1 {
		t.Errorf("second handle call must not remove other listeners, count=%d", bus.ListenerCount("x"))
	}

	bus.Publish("x", nil)
	if h1.Calls() != 0 || h2.Calls() != 1 {
		t.Errorf("calls = %d, %d; want 0, 1", h1.Calls(), h2.Calls())
	}

	onceOff, _ := bus.SubscribeOnce("y", h1)
	bus.Publish("y", nil)
	onceOff()
	bus.RemoveAll()
	off()
	onceOff()
}

func TestBus_SameHandlerRegisteredTwice(t *testing.T) {
	bus, _ := newTestBus(t)
	h := &countingHandler{}

	off1, _ := bus.Subscribe("x", h)
	_, _ = bus.Subscribe("x", h)

	bus.Publish("x", nil)
	if h.Calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", h.Calls())
	}

	off1()
	bus.Publish("x", nil)
	if h.Calls() != 3 {
		t.Errorf("handle should remove only its own registration, calls=%d", h.Calls())
	}
}

func TestBus_FailureKeepsHandlerSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.Severity
	}{
		{"plain error", fmt.Errorf("boom"), errors.SeverityError},
		{"validation error", errors.NewValidationError("bad room id"), errors.SeverityWarning},
		{"timeout", errors.NewTimeoutError("fetch", 0), errors.SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, rep := newTestBus(t)
			_, _ = bus.SubscribeFunc("x", func(any) error { return tt.err })

			bus.Publish("x", nil)

			failures := rep.Failures()
			if len(failures) != 1 {
				t.Fatalf("expected 1 failure, got %d", len(failures))
			}
			if got := errors.GetSeverity(failures[0]); got != tt.want {
				t.Errorf("severity = %v, want %v", got, tt.want)
			}
			if !errors.Is(failures[0], tt.err) {
				t.Error("failure should wrap the handler's error")
			}
		})
	}
}

func TestBus_Reentrancy(t *testing.T) {
	t.Run("nested publish terminates and outer snapshot is unaffected", func(t *testing.T) {
		bus, _ := newTestBus(t)

		var order []string
		depth := 0
		late := &countingHandler{}

		_, _ = bus.SubscribeFunc("x", func(payload any) error {
			order = append(order, fmt.Sprintf("A%d", payload))
			if depth == 0 {
				depth++
				_, _ = bus.Subscribe("x", late)
				bus.Publish("x", 2)
			}
			return nil
		})
		_, _ = bus.SubscribeFunc("x", func(payload any) error {
			order = append(order, fmt.Sprintf("B%d", payload))
			return nil
		})

		bus.Publish("x", 1)

		want := "A1,A2,B2,B1"
		if got := strings.Join(order, ","); got != want {
			t.Errorf("order = %s, want %s", got, want)
		}
		// late joined before the nested snapshot was taken, but after the
		// outer one.
		if late.Calls() != 1 {
			t.Errorf("late listener calls = %d, want 1", late.Calls())
		}
	})

	t.Run("once listener runs once across nested publishes", func(t *testing.T) {
		bus, _ := newTestBus(t)
		once := &countingHandler{}
		nested := false

		_, _ = bus.SubscribeFunc("x", func(any) error {
			if !nested {
				nested = true
				bus.Publish("x", "inner")
			}
			return nil
		})
		_, _ = bus.SubscribeOnce("x", once)

		bus.Publish("x", "outer")

		if once.Calls() != 1 {
			t.Fatalf("once listener calls = %d, want 1", once.Calls())
		}
		if once.payloads[0] != "inner" {
			t.Errorf("once listener should have seen the nested payload, got %v", once.payloads[0])
		}
		if bus.ListenerCount("x") != 1 {
			t.Errorf("listener count = %d, want 1", bus.ListenerCount("x"))
		}
	})

	t.Run("once listener consumed by nested publish is skipped by the outer one", func(t *testing.T) {
		bus, _ := newTestBus(t)
		var calls []string
		nested := false

		_, _ = bus.SubscribeFunc("x", func(payload any) error {
			calls = append(calls, fmt.Sprintf("A-%v", payload))
			if !nested {
				nested = true
				bus.Publish("x", "inner")
			}
			return nil
		})
		_, _ = bus.SubscribeFunc("x", func(payload any) error {
			calls = append(calls, fmt.Sprintf("B-%v", payload))
			return nil
		}, WithOnce())
		_, _ = bus.SubscribeFunc("x", func(payload any) error {
			calls = append(calls, fmt.Sprintf("C-%v", payload))
			return nil
		})

		bus.Publish("x", "outer")

		want := "A-outer,A-inner,B-inner,C-inner,C-outer"
		if got := strings.Join(calls, ","); got != want {
			t.Errorf("calls = %s, want %s", got, want)
		}
		if bus.ListenerCount("x") != 2 {
			t.Errorf("listener count = %d, want 2", bus.ListenerCount("x"))
		}
	})

	t.Run("listener removed during dispatch still runs in that dispatch", func(t *testing.T) {
		bus, _ := newTestBus(t)
		b := &countingHandler{}

		_, _ = bus.SubscribeFunc("x", func(any) error {
			_, _ = bus.Unsubscribe("x", b)
			return nil
		})
		_, _ = bus.Subscribe("x", b)

		bus.Publish("x", nil)
		bus.Publish("x", nil)

		if b.Calls() != 1 {
			t.Errorf("b calls = %d, want 1", b.Calls())
		}
	})
}

func TestBus_MaxListeners(t *testing.T) {
	t.Run("default cap", func(t *testing.T) {
		bus, rep := newTestBus(t)
		if bus.MaxListeners() != DefaultMaxListeners {
			t.Errorf("MaxListeners() = %d, want %d", bus.MaxListeners(), DefaultMaxListeners)
		}

		for i := 0; i < DefaultMaxListeners; i++ {
			_, _ = bus.Subscribe("x", &countingHandler{})
		}
		if len(rep.capHits) != 0 {
			t.Fatalf("no warning expected at the cap, got %v", rep.capHits)
		}

		_, err := bus.Subscribe("x", &countingHandler{})
		if err != nil {
			t.Fatalf("registration past the cap must succeed: %v", err)
		}
		if len(rep.capHits) != 1 || rep.capHits[0] != "x:11/10" {
			t.Errorf("capHits = %v, want [x:11/10]", rep.capHits)
		}
		if bus.ListenerCount("x") != 11 {
			t.Errorf("ListenerCount = %d, want 11", bus.ListenerCount("x"))
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		bus, rep := newTestBus(t)
		if err := bus.SetMaxListeners(0); err != nil {
			t.Fatalf("SetMaxListeners(0) failed: %v", err)
		}
		for i := 0; i < 50; i++ {
			_, _ = bus.Subscribe("x", &countingHandler{})
		}
		if len(rep.capHits) != 0 {
			t.Errorf("expected no warnings, got %d", len(rep.capHits))
		}
	})

	t.Run("negative rejected", func(t *testing.T) {
		bus, _ := newTestBus(t)
		err := bus.SetMaxListeners(-1)

		var verr *errors.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if bus.MaxListeners() != DefaultMaxListeners {
			t.Error("cap must be unchanged after a rejected update")
		}
	})

	t.Run("option", func(t *testing.T) {
		bus := NewBus(WithMaxListeners(3), WithMaxListeners(-5))
		if bus.MaxListeners() != 3 {
			t.Errorf("MaxListeners() = %d, want 3", bus.MaxListeners())
		}
	})
}

func TestBus_EventNamesAndCounts(t *testing.T) {
	bus, _ := newTestBus(t)

	_, _ = bus.Subscribe(SyncError, &countingHandler{})
	_, _ = bus.Subscribe(AuthLogout, &countingHandler{})
	_, _ = bus.Subscribe(RoomSelected, &countingHandler{})
	_, _ = bus.Subscribe(RoomSelected, &countingHandler{})

	names := bus.EventNames()
	want := []string{AuthLogout, RoomSelected, SyncError}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("EventNames() = %v, want %v", names, want)
	}

	names[0] = "mutated"
	if bus.EventNames()[0] != AuthLogout {
		t.Error("EventNames must return a copy")
	}

	if bus.ListenerCount(RoomSelected) != 2 {
		t.Errorf("ListenerCount(room:selected) = %d, want 2", bus.ListenerCount(RoomSelected))
	}
	if bus.ListenerCount("unknown") != 0 {
		t.Error("ListenerCount of unknown event should be 0")
	}
}

func TestBus_ConcurrentAccess(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("event:%d", i%3)
			for j := 0; j < 100; j++ {
				off, err := bus.SubscribeFunc(name, func(any) error { return nil })
				if err != nil {
					t.Errorf("SubscribeFunc failed: %v", err)
					return
				}
				bus.Publish(name, j)
				_ = bus.ListenerCount(name)
				_ = bus.EventNames()
				off()
			}
		}(i)
	}
	wg.Wait()

	if names := bus.EventNames(); len(names) != 0 {
		t.Errorf("expected empty registry, got %v", names)
	}
}
