package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/roomkit/internal/util"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "bus.max_listeners")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidThemes returns the list of valid TUI themes
func ValidThemes() []string {
	return []string{"default", "dracula", "nord"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBus()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTrace()...)
	errors = append(errors, c.validateTUI()...)
	errors = append(errors, c.validateRooms()...)

	return errors
}

// validateBus validates the BusConfig
func (c *Config) validateBus() []ValidationError {
	var errors []ValidationError

	const maxListenersLimit = 1000
	if c.Bus.MaxListeners < 0 {
		errors = append(errors, ValidationError{
			Field:   "bus.max_listeners",
			Value:   c.Bus.MaxListeners,
			Message: "must be non-negative (0 disables the warning)",
		})
	}
	if c.Bus.MaxListeners > maxListenersLimit {
		errors = append(errors, ValidationError{
			Field:   "bus.max_listeners",
			Value:   c.Bus.MaxListeners,
			Message: fmt.Sprintf("exceeds maximum of %d", maxListenersLimit),
		})
	}

	const maxWaitTimeoutMs = 10 * 60 * 1000 // 10 minutes
	if c.Bus.WaitTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "bus.wait_timeout_ms",
			Value:   c.Bus.WaitTimeoutMs,
			Message: "must be non-negative (0 waits forever)",
		})
	}
	if c.Bus.WaitTimeoutMs > maxWaitTimeoutMs {
		errors = append(errors, ValidationError{
			Field:   "bus.wait_timeout_ms",
			Value:   c.Bus.WaitTimeoutMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxWaitTimeoutMs),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateTrace validates the TraceConfig
func (c *Config) validateTrace() []ValidationError {
	var errors []ValidationError

	if c.Trace.Enabled && len(c.Trace.Patterns) == 0 {
		errors = append(errors, ValidationError{
			Field:   "trace.patterns",
			Value:   c.Trace.Patterns,
			Message: "must list at least one pattern when tracing is enabled",
		})
	}

	for i, pattern := range c.Trace.Patterns {
		if strings.TrimSpace(pattern) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("trace.patterns[%d]", i),
				Value:   pattern,
				Message: "must not be empty",
			})
			continue
		}
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("trace.patterns[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

// validateTUI validates the TUIConfig
func (c *Config) validateTUI() []ValidationError {
	var errors []ValidationError

	if c.TUI.Theme != "" && !slices.Contains(ValidThemes(), c.TUI.Theme) {
		errors = append(errors, ValidationError{
			Field:   "tui.theme",
			Value:   c.TUI.Theme,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidThemes(), ", ")),
		})
	}

	// Sidebar width validation (0 means use default, which is valid).
	// These values must match tui.SidebarMinWidth and tui.SidebarMaxWidth.
	const minSidebarWidth = 20
	const maxSidebarWidth = 60
	if c.TUI.SidebarWidth != 0 {
		if c.TUI.SidebarWidth < minSidebarWidth {
			errors = append(errors, ValidationError{
				Field:   "tui.sidebar_width",
				Value:   c.TUI.SidebarWidth,
				Message: fmt.Sprintf("must be at least %d columns", minSidebarWidth),
			})
		}
		if c.TUI.SidebarWidth > maxSidebarWidth {
			errors = append(errors, ValidationError{
				Field:   "tui.sidebar_width",
				Value:   c.TUI.SidebarWidth,
				Message: fmt.Sprintf("exceeds maximum of %d columns", maxSidebarWidth),
			})
		}
	}

	return errors
}

// validateRooms validates the seeded room list
func (c *Config) validateRooms() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool, len(c.Rooms))
	for i, room := range c.Rooms {
		field := fmt.Sprintf("rooms[%d].id", i)
		if !IsValidRoomID(room.ID) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   room.ID,
				Message: "must look like !localpart:server",
			})
			continue
		}
		if seen[room.ID] {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   room.ID,
				Message: "duplicate room id",
			})
		}
		seen[room.ID] = true
	}

	return errors
}

// IsValidRoomID reports whether id has the "!localpart:server" shape.
func IsValidRoomID(id string) bool {
	return util.IsRoomID(id)
}
