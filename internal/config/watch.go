package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/roomkit/internal/event"
	"github.com/Iron-Ham/roomkit/internal/logging"
)

// Watcher reloads the config file when it changes on disk, applies the
// bus settings that can change at runtime, and publishes settings:changed
// with the new Config.
type Watcher struct {
	v      *viper.Viper
	bus    *event.Bus
	logger *logging.Logger

	mu      sync.Mutex
	current *Config
	started bool
}

// NewWatcher creates a Watcher over v. initial is the config already in use.
func NewWatcher(v *viper.Viper, bus *event.Bus, initial *Config, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Watcher{
		v:       v,
		bus:     bus,
		logger:  logger.WithComponent("config"),
		current: initial,
	}
}

// Start begins watching the config file. It is a no-op when no config file
// is in use or when already started. viper offers no way to stop watching,
// so the watch lasts for the life of the process.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.v.ConfigFileUsed() == "" {
		return
	}
	w.started = true
	w.v.OnConfigChange(w.handle)
	w.v.WatchConfig()
	w.logger.Info("watching config file", "path", w.v.ConfigFileUsed())
}

func (w *Watcher) handle(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	_ = w.Reload(e.Name)
}

// Reload re-reads the config from viper. On success it updates the bus soft
// cap and publishes settings:changed; an invalid config is logged and the
// previous one stays in effect.
func (w *Watcher) Reload(source string) error {
	cfg, err := LoadFrom(w.v)
	if err != nil {
		w.logger.Warn("ignoring invalid config reload", "source", source, "error", err.Error())
		return err
	}

	if err := w.bus.SetMaxListeners(cfg.Bus.MaxListeners); err != nil {
		w.logger.Warn("ignoring invalid config reload", "source", source, "error", err.Error())
		return err
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.logger.Info("config reloaded",
		"source", source,
		"max_listeners", cfg.Bus.MaxListeners,
		"theme", cfg.TUI.Theme,
	)
	event.SettingsTopic.Publish(w.bus, event.Settings{Source: source, Values: cfg})
	return nil
}

// Current returns the most recently applied config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
