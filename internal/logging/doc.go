// Package logging provides structured logging for roomkit.
//
// It wraps Go's log/slog to write JSON lines, one object per entry, tagged
// with the component, event name and listener id that produced them. The
// event bus reports listener failures and max-listener diagnostics through
// this package, so a log file doubles as a trace of dispatch problems.
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// created via the With* methods share their parent's writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(dir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	busLog := logger.WithComponent("bus").WithEvent("room:selected")
//	busLog.Warn("listener failed", "error", err.Error())
//
// # Rotation
//
// [NewLoggerWithRotation] writes through a [RotatingWriter], which renames
// roomkit.log to roomkit.log.1 once it would grow past the configured size
// and keeps at most MaxBackups older files, optionally gzipped.
package logging
