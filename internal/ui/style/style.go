// Package style holds the brand colors and icons shared by log output and summaries.
package style

import "github.com/charmbracelet/lipgloss"

// Brand Colors.
var (
	Iris   = lipgloss.Color("#8B5CF6")
	Slate  = lipgloss.Color("#667085")
	Green  = lipgloss.Color("#22A06B")
	Red    = lipgloss.Color("#D93025")
	Yellow = lipgloss.Color("#F59E0B")
)

// Icons.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Dot     = "●"
)

// Heading renders a bold section title in the brand color.
func Heading(s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(Iris).Render(s)
}
