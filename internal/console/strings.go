package console

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Truncate shortens s to at most maxRunes runes, appending "..." when it
// cuts. It does not account for escape codes or wide characters; use
// TruncateANSI for styled terminal output.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 3 {
		return "..."
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes-3]) + "..."
}

// TruncateANSI shortens s to at most maxWidth visual columns, appending
// "..." when it cuts. Escape sequences are preserved and wide characters
// are measured by display width, so styled previews stay styled when
// clipped.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	return ansi.Truncate(s, maxWidth, "...")
}
