// Package event provides the in-process publish/subscribe bus that lets
// roomkit's UI components talk to each other without direct references.
//
// A room list publishes [RoomSelected]; a timeline and a profile panel
// subscribe to it. Neither knows the other exists.
//
// # Main Types
//
//   - [Bus]: the listener registry and synchronous dispatcher
//   - [Handler], [HandlerFunc]: what a listener is
//   - [Pending]: the one-shot future returned by [Bus.WaitFor]
//   - [Topic]: a typed view over one event name
//   - [Reporter]: where listener failures and soft-cap warnings go
//
// # Delivery
//
// Publish runs every listener for the event on the caller's goroutine, in
// the order they subscribed, with the same payload value. Listeners are
// isolated from each other: an error or panic in one is sent to the
// [Reporter] as an *errors.ListenerError and the next listener still runs.
// Nothing is queued. Publishing an event nobody listens to is a no-op that
// returns false.
//
// Each Publish works on a snapshot of the listener list, so a listener may
// subscribe, unsubscribe or publish again without affecting the dispatch
// in progress. A once listener runs at most once even when a nested Publish
// of the same event reaches it first.
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. The registry lock is never held while a
// handler runs.
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	off, err := event.SelectTopic.Subscribe(bus, func(sel event.RoomSelection) error {
//	    return timeline.Load(sel.RoomID)
//	})
//	if err != nil {
//	    return err
//	}
//	defer off()
//
//	event.SelectTopic.Publish(bus, event.RoomSelection{RoomID: "!abc:matrix.org"})
//
// # Waiting
//
//	p, _ := bus.WaitFor(event.SyncComplete, 5*time.Second)
//	payload, err := p.Await(ctx) // *errors.TimeoutError after 5s
package event
