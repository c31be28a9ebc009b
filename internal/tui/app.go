package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/roomkit/internal/config"
	"github.com/Iron-Ham/roomkit/internal/event"
	"github.com/Iron-Ham/roomkit/internal/logging"
)

// App wraps the Bubbletea program
type App struct {
	bus    *event.Bus
	model  Model
	logger *logging.Logger
	opts   []tea.ProgramOption
}

// New creates a new TUI application. Extra program options are appended to
// the defaults (alt screen).
func New(bus *event.Bus, cfg *config.Config, logger *logging.Logger, opts ...tea.ProgramOption) *App {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &App{
		bus:    bus,
		model:  NewModel(bus, cfg),
		logger: logger.WithComponent("tui"),
		opts:   append([]tea.ProgramOption{tea.WithAltScreen()}, opts...),
	}
}

// Run starts the program and blocks until the user quits or ctx is done.
// Cancellation is a normal exit, not an error.
func (a *App) Run(ctx context.Context) error {
	program := tea.NewProgram(a.model, append(a.opts, tea.WithContext(ctx))...)

	bridge := NewBridge(a.bus, program)
	if err := bridge.Forward(Watched()...); err != nil {
		return err
	}
	defer bridge.Close()

	a.logger.Info("tui started")
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	a.logger.Info("tui stopped")
	return err
}
