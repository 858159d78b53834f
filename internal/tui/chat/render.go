package chat

import (
	"strings"

	chatctl "github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/i18n"
	"github.com/docuchat/docuchat/internal/ui"
)

const streamingCursor = "▍"

func renderMessages(styles *ui.Styles, msgs []chatctl.Message, width int) string {
	if len(msgs) == 0 {
		return styles.Muted.Render(i18n.T("emptyConversation")) + "\n" +
			styles.Muted.Render(i18n.T("description"))
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(renderMessage(styles, msg, width))
	}
	return b.String()
}

func renderMessage(styles *ui.Styles, msg chatctl.Message, width int) string {
	var label string
	switch msg.Role {
	case chatctl.RoleUser:
		label = styles.UserLabel.Render(i18n.T("user"))
	case chatctl.RoleAssistant:
		label = styles.AssistantLabel.Render(i18n.T("assistant"))
	default:
		label = styles.Muted.Render(i18n.T("system"))
	}
	if t := msg.Time(); !t.IsZero() {
		label += " " + styles.Muted.Render(t.Local().Format("15:04"))
	}

	content := msg.Content
	if msg.Streaming {
		if content == "" {
			return label + "\n" + styles.Muted.Render(i18n.T("typing"))
		}
		// Partial markdown renders badly, so stream as plain text.
		return label + "\n" + ui.RenderBody(content, width, false) + streamingCursor
	}
	return label + "\n" + ui.RenderBody(content, width, msg.Role == chatctl.RoleAssistant)
}
