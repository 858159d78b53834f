package ui

import (
	"fmt"
	"strings"
	"time"
)

// StreamingIndicator renders a consistent status line while a reply is
// pending.
type StreamingIndicator struct {
	Spinner    string // spinner.View() output
	Phase      string // "در حال تایپ...", "در حال ارسال..."
	Elapsed    time.Duration
	Tokens     int    // 0 = don't show
	Status     string // optional status (e.g., the transport in use)
	ShowCancel bool   // show "(ctrl+c to quit)"
}

// Render returns the formatted streaming indicator string
func (s StreamingIndicator) Render(styles *Styles) string {
	var b strings.Builder

	b.WriteString(s.Spinner)
	b.WriteString(" ")
	b.WriteString(s.Phase)

	if s.Tokens > 0 {
		fmt.Fprintf(&b, " %d tokens |", s.Tokens)
	}

	fmt.Fprintf(&b, " %.1fs", s.Elapsed.Seconds())

	if s.Status != "" {
		b.WriteString(" | ")
		b.WriteString(s.Status)
	}

	if s.ShowCancel {
		b.WriteString(" ")
		b.WriteString(styles.Muted.Render("(ctrl+c to quit)"))
	}

	return b.String()
}
