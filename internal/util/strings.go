// Package util provides small display helpers shared by the client views.
package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Ellipsis is appended to text cut by Truncate.
const Ellipsis = "…"

// Truncate shortens s to maxWidth terminal columns, ending with Ellipsis
// when anything was cut. Escape sequences and wide characters are handled,
// so styled text can be passed in.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	if maxWidth == 1 {
		return Ellipsis
	}
	// ansi.Truncate counts the tail in the final width
	return ansi.Truncate(s, maxWidth, Ellipsis)
}

// Localpart returns the user part of a Matrix id: "@alice:matrix.org"
// becomes "alice". Strings that are not user ids are returned unchanged.
func Localpart(id string) string {
	if !strings.HasPrefix(id, "@") {
		return id
	}
	local, _, _ := strings.Cut(id[1:], ":")
	if local == "" {
		return id
	}
	return local
}

// IsRoomID reports whether id looks like "!opaque:server".
func IsRoomID(id string) bool {
	if !strings.HasPrefix(id, "!") {
		return false
	}
	local, server, ok := strings.Cut(id[1:], ":")
	return ok && local != "" && server != ""
}
