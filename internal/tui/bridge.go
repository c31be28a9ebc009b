package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/roomkit/internal/event"
)

// BusMsg carries a bus event into the bubbletea update loop.
type BusMsg struct {
	Name    string
	Payload any
}

// Sender is the part of *tea.Program the Bridge needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge forwards bus events to a running program as BusMsg values.
//
// tea.Program.Send blocks until the update loop receives the message, so
// publishing from inside Update would deadlock; Model publishes from a
// tea.Cmd instead.
type Bridge struct {
	bus    *event.Bus
	sender Sender

	mu   sync.Mutex
	offs []func()
}

// NewBridge creates a Bridge. Nothing is forwarded until Forward is called.
func NewBridge(bus *event.Bus, sender Sender) *Bridge {
	return &Bridge{bus: bus, sender: sender}
}

// Forward subscribes to each name and relays its payloads.
func (b *Bridge) Forward(names ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, name := range names {
		name := name
		off, err := b.bus.SubscribeFunc(name, func(payload any) error {
			b.sender.Send(BusMsg{Name: name, Payload: payload})
			return nil
		})
		if err != nil {
			return err
		}
		b.offs = append(b.offs, off)
	}
	return nil
}

// Close stops forwarding.
func (b *Bridge) Close() {
	b.mu.Lock()
	offs := b.offs
	b.offs = nil
	b.mu.Unlock()

	for _, off := range offs {
		off()
	}
}
