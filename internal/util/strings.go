// Package util provides small formatting helpers shared by the renderer
// and the CLI.
package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Ellipsis is appended to truncated lines.
const Ellipsis = "…"

// TruncateANSI truncates s to maxWidth visual columns, appending an
// ellipsis when it cut something. Escape sequences and wide characters are
// handled. maxWidth <= 0 disables truncation.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 0 || lipgloss.Width(s) <= maxWidth {
		return s
	}
	if maxWidth <= ansi.StringWidth(Ellipsis) {
		return ansi.Truncate(s, maxWidth, "")
	}
	return ansi.Truncate(s, maxWidth, Ellipsis)
}

// FitLines truncates every line of s to maxWidth.
func FitLines(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = TruncateANSI(l, maxWidth)
	}
	return strings.Join(lines, "\n")
}

// FormatDuration renders d the way step timings are shown: milliseconds
// under a second, one decimal under a minute, then minutes and seconds.
func FormatDuration(d time.Duration) string {
	switch {
	case d < 0:
		return "0ms"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		d = d.Round(time.Second)
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// Plural returns "1 step" or "3 steps".
func Plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
