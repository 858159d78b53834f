package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/i18n"
	"github.com/mattn/go-runewidth"
)

// Color palette - consistent across all TUI components
var (
	Green  = lipgloss.Color("10") // success, connected
	Red    = lipgloss.Color("9")  // error, disconnected
	Yellow = lipgloss.Color("11") // connecting
	Grey   = lipgloss.Color("8")  // muted text
	Blue   = lipgloss.Color("4")  // headers, borders
	Cyan   = lipgloss.Color("6")  // user messages
	White  = lipgloss.Color("15") // header text
)

// Status indicators
const (
	EnabledIcon  = "●"
	DisabledIcon = "○"
	SuccessIcon  = "✓"
	FailIcon     = "✗"
)

// Styles returns styled text helpers bound to a renderer
type Styles struct {
	renderer *lipgloss.Renderer

	// Text styles
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style

	// Conversation styles
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Banner         lipgloss.Style
}

// NewStyles creates a new Styles instance for the given output
func NewStyles(output *os.File) *Styles {
	r := lipgloss.NewRenderer(output)

	return &Styles{
		renderer: r,

		Title: r.NewStyle().
			Bold(true).
			Foreground(White),

		Success: r.NewStyle().
			Foreground(Green),

		Error: r.NewStyle().
			Foreground(Red),

		Warning: r.NewStyle().
			Foreground(Yellow),

		Muted: r.NewStyle().
			Foreground(Grey),

		UserLabel: r.NewStyle().
			Bold(true).
			Foreground(Cyan),

		AssistantLabel: r.NewStyle().
			Bold(true).
			Foreground(Green),

		Banner: r.NewStyle().
			Foreground(White).
			Background(Red).
			Padding(0, 1),
	}
}

// DefaultStyles returns styles for stderr (default TUI output)
func DefaultStyles() *Styles {
	return NewStyles(os.Stderr)
}

// FormatEnabled returns a styled enabled/disabled indicator
func (s *Styles) FormatEnabled(enabled bool) string {
	if enabled {
		return s.Success.Render(EnabledIcon + " enabled")
	}
	return s.Muted.Render(DisabledIcon + " disabled")
}

// FormatResult returns a styled success/fail result
func (s *Styles) FormatResult(success bool, msg string) string {
	if success {
		return s.Success.Render(SuccessIcon+" ") + msg
	}
	return s.Error.Render(FailIcon+" ") + msg
}

// FormatConnection renders the stream connection state with its localized
// label.
func (s *Styles) FormatConnection(state chat.ConnState) string {
	switch state {
	case chat.StateConnected:
		return s.Success.Render(EnabledIcon + " " + i18n.T("connected"))
	case chat.StateConnecting:
		return s.Warning.Render(EnabledIcon + " " + i18n.T("connecting"))
	case chat.StateError:
		return s.Error.Render(FailIcon + " " + i18n.T("wsConnectionError"))
	default:
		return s.Muted.Render(DisabledIcon + " " + i18n.T("disconnected"))
	}
}

// Truncate shortens s to at most maxWidth terminal cells with an ellipsis.
// Widths are measured in cells so wide and combining runes are safe.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}
