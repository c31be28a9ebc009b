// Package app assembles the bus and its collaborators with fx.
//
// The graph is:
//
//	Params ─┬─ *logging.Logger ─┬─ *event.Bus ─┬─ *trace.Tracer
//	        │                   │              └─ *config.Watcher
//	        └─ *event.Stats ────┘
//
// Lifecycle: OnStart attaches the tracer (when trace.enabled) and starts the
// config watcher; OnStop detaches everything from the bus and closes the log.
package app

import (
	"context"

	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/Iron-Ham/roomkit/internal/config"
	"github.com/Iron-Ham/roomkit/internal/event"
	"github.com/Iron-Ham/roomkit/internal/logging"
	"github.com/Iron-Ham/roomkit/internal/trace"
)

// Params are the values the graph is built from.
type Params struct {
	Config *config.Config
	// Viper is the instance Config was loaded from. nil disables hot reload.
	Viper *viper.Viper
	// LogDir is where roomkit.log is written. Empty logs to stderr.
	LogDir string
}

// Runtime is the set of components callers pull out of the graph.
type Runtime struct {
	fx.In

	Config  *config.Config
	Logger  *logging.Logger
	Bus     *event.Bus
	Stats   *event.Stats
	Tracer  *trace.Tracer
	Watcher *config.Watcher
}

// Module provides every component in the graph.
var Module = fx.Module("roomkit",
	fx.Provide(
		ProvideLogger,
		event.NewStats,
		ProvideBus,
		ProvideTracer,
		ProvideWatcher,
	),
	fx.Invoke(registerLifecycle),
)

// Populate copies the built components into rt once the graph is built.
func Populate(rt *Runtime) fx.Option {
	return fx.Invoke(func(r Runtime) { *rt = r })
}

// New builds the application graph. extra is appended, typically
// Populate.
func New(p Params, extra ...fx.Option) *fx.App {
	if p.Config == nil {
		p.Config = config.Default()
	}
	opts := []fx.Option{
		fx.Supply(p, p.Config),
		Module,
		fx.NopLogger,
	}
	return fx.New(append(opts, extra...)...)
}

// ProvideLogger opens the rotating log file, or a no-op logger when logging
// is disabled.
func ProvideLogger(p Params, cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(p.LogDir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
}

// ProvideBus creates the bus. Diagnostics go to both the log and stats.
func ProvideBus(cfg *config.Config, logger *logging.Logger, stats *event.Stats) *event.Bus {
	return event.NewBus(
		event.WithLogger(logger),
		event.WithMaxListeners(cfg.Bus.MaxListeners),
		event.WithReporter(event.MultiReporter{event.NewLogReporter(logger), stats}),
	)
}

// ProvideTracer compiles the configured patterns. The tracer is attached
// on start only when tracing is enabled.
func ProvideTracer(cfg *config.Config, bus *event.Bus, logger *logging.Logger) (*trace.Tracer, error) {
	return trace.New(bus, logger, cfg.Trace.Patterns)
}

// ProvideWatcher creates the config watcher. Without a viper instance it
// watches a private, file-less one and so never fires.
func ProvideWatcher(p Params, cfg *config.Config, bus *event.Bus, logger *logging.Logger) *config.Watcher {
	v := p.Viper
	if v == nil {
		v = viper.New()
	}
	return config.NewWatcher(v, bus, cfg, logger)
}

type lifecycleParams struct {
	fx.In

	LC      fx.Lifecycle
	Config  *config.Config
	Logger  *logging.Logger
	Bus     *event.Bus
	Tracer  *trace.Tracer
	Watcher *config.Watcher
}

func registerLifecycle(p lifecycleParams) {
	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if p.Config.Trace.Enabled {
				attached, err := p.Tracer.Attach()
				if err != nil {
					return err
				}
				p.Logger.Info("tracing bus events", "events", attached)
			}
			p.Watcher.Start()
			p.Logger.Info("roomkit started", "max_listeners", p.Bus.MaxListeners())
			return nil
		},
		OnStop: func(context.Context) error {
			p.Tracer.Close()
			p.Bus.RemoveAll()
			p.Logger.Info("roomkit stopped")
			return p.Logger.Close()
		},
	})
}
