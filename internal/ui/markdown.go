package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/docuchat/docuchat/internal/i18n"
	"github.com/mattn/go-runewidth"
)

// Package-level renderer cache to avoid expensive recreation during streaming
var (
	mdRendererCache struct {
		sync.Mutex
		renderer *glamour.TermRenderer
		width    int
	}
)

// GlamourStyle is the dark glamour style with document margins removed so
// rendered replies line up with the rest of the transcript.
func GlamourStyle() ansi.StyleConfig {
	style := styles.DarkStyleConfig
	margin := uint(0)
	style.Document.Margin = &margin
	style.Document.BlockPrefix = ""
	style.Document.BlockSuffix = ""
	style.CodeBlock.Margin = &margin
	return style
}

// RenderMarkdown renders markdown content using glamour with standard styling.
// On error, returns the original content unchanged.
func RenderMarkdown(content string, width int) string {
	if content == "" {
		return ""
	}

	rendered, err := RenderMarkdownWithError(content, width)
	if err != nil {
		return content
	}
	return rendered
}

// RenderMarkdownWithError renders markdown content and returns any errors.
func RenderMarkdownWithError(content string, width int) (string, error) {
	mdRendererCache.Lock()
	defer mdRendererCache.Unlock()

	if mdRendererCache.renderer == nil || mdRendererCache.width != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStyles(GlamourStyle()),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "", err
		}
		mdRendererCache.renderer = renderer
		mdRendererCache.width = width
	}

	rendered, err := mdRendererCache.renderer.Render(content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(rendered), nil
}

// RenderBody renders a message body for a terminal of the given width.
// Right-to-left text is wrapped and right-aligned as plain text since
// glamour only lays out left-to-right. Everything else goes through
// glamour when markdown is set.
func RenderBody(content string, width int, markdown bool) string {
	if content == "" {
		return ""
	}
	if i18n.IsRTL(content) {
		return AlignRight(content, width)
	}
	if markdown {
		return RenderMarkdown(content, width)
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

// AlignRight wraps content to width and pads each line on the left so the
// text ends at the right edge.
func AlignRight(content string, width int) string {
	if width <= 0 {
		return content
	}
	wrapped := lipgloss.NewStyle().Width(width).Render(content)
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, " ")
		if pad := width - runewidth.StringWidth(line); pad > 0 {
			line = strings.Repeat(" ", pad) + line
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
