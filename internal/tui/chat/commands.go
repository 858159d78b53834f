package chat

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	chatctl "github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/i18n"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/sahilm/fuzzy"
)

// Command represents a slash command
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
}

// AllCommands returns all available slash commands
func AllCommands() []Command {
	return []Command{
		{
			Name:        "help",
			Aliases:     []string{"h", "?"},
			Description: "Show help and available commands",
			Usage:       "/help",
		},
		{
			Name:        "clear",
			Aliases:     []string{"c"},
			Description: "Clear the active conversation",
			Usage:       "/clear",
		},
		{
			Name:        "quit",
			Aliases:     []string{"q", "exit"},
			Description: "Exit chat",
			Usage:       "/quit",
		},
		{
			Name:        "model",
			Aliases:     []string{"m"},
			Description: "Show or switch the model",
			Usage:       "/model [name]",
		},
		{
			Name:        "retry",
			Aliases:     []string{"r"},
			Description: "Send the last message again",
			Usage:       "/retry",
		},
		{
			Name:        "status",
			Description: "Show transport and connection state",
			Usage:       "/status",
		},
	}
}

// CommandSource implements fuzzy.Source for command searching
type CommandSource []Command

func (c CommandSource) String(i int) string {
	return c[i].Name
}

func (c CommandSource) Len() int {
	return len(c)
}

// FilterCommands returns commands matching the query using fuzzy search
func FilterCommands(query string) []Command {
	commands := AllCommands()
	query = strings.ToLower(strings.TrimPrefix(query, "/"))
	if query == "" {
		return commands
	}

	for _, cmd := range commands {
		if cmd.Name == query {
			return []Command{cmd}
		}
		for _, alias := range cmd.Aliases {
			if alias == query {
				return []Command{cmd}
			}
		}
	}

	var result []Command
	for _, match := range fuzzy.FindFrom(query, CommandSource(commands)) {
		result = append(result, commands[match.Index])
	}
	return result
}

// ExecuteCommand handles slash command execution
func (m *Model) ExecuteCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}

	cmdName := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	args := parts[1:]

	matches := FilterCommands(cmdName)
	switch {
	case len(matches) == 0:
		return m.showNotice(fmt.Sprintf("Unknown command: /%s. Type /help for available commands.", cmdName))
	case len(matches) > 1 && !strings.HasPrefix(matches[0].Name, cmdName):
		var names []string
		for _, c := range matches {
			names = append(names, "/"+c.Name)
		}
		return m.showNotice(fmt.Sprintf("Ambiguous command: /%s. Did you mean: %s?", cmdName, strings.Join(names, ", ")))
	}

	switch matches[0].Name {
	case "help":
		return m.cmdHelp()
	case "clear":
		return m.cmdClear()
	case "quit":
		m.quitting = true
		return m, tea.Quit
	case "model":
		return m.cmdModel(args)
	case "retry":
		return m.cmdRetry()
	case "status":
		return m.cmdStatus()
	default:
		return m.showNotice(fmt.Sprintf("Command /%s is not yet implemented.", matches[0].Name))
	}
}

func (m *Model) showNotice(content string) (tea.Model, tea.Cmd) {
	m.notice = content
	return m, nil
}

func (m *Model) cmdHelp() (tea.Model, tea.Cmd) {
	var names []string
	for _, cmd := range AllCommands() {
		names = append(names, cmd.Usage)
	}
	return m.showNotice(i18n.T("help") + "\n" + strings.Join(names, "  "))
}

func (m *Model) cmdClear() (tea.Model, tea.Cmd) {
	m.backend.ClearMessages()
	m.notice = ""
	m.refresh()
	return m, nil
}

func (m *Model) cmdModel(args []string) (tea.Model, tea.Cmd) {
	offered := m.models.Offered()
	if len(args) == 0 {
		items := make([]string, len(offered))
		for i, id := range offered {
			if id == m.models.Current() {
				id = "[" + id + "]"
			}
			items[i] = id
		}
		return m.showNotice(i18n.T("model") + ": " + strings.Join(items, "  "))
	}

	id, ok := models.Match(strings.Join(args, " "), offered)
	if !ok || !m.models.Set(id) {
		return m.showNotice(fmt.Sprintf("Unknown model %q. Offered: %s", strings.Join(args, " "), strings.Join(offered, ", ")))
	}
	return m.showNotice(i18n.T("model") + ": " + id)
}

// cmdRetry resends the last user message of the active conversation.
func (m *Model) cmdRetry() (tea.Model, tea.Cmd) {
	last, ok := m.snap.LastUser()
	if !ok {
		return m.showNotice(i18n.T("emptyConversation"))
	}
	return m.send(last.Content)
}

func (m *Model) cmdStatus() (tea.Model, tea.Cmd) {
	status := transportLabel(m.backend.Transport())
	if m.cfg.Features.Streaming {
		status += "  " + m.styles.FormatConnection(m.snap.Connection)
	} else {
		status += "  " + i18n.T("wsDisabled")
	}
	if m.snap.Connection == chatctl.StateError && m.snap.Err != "" {
		status += "  " + m.snap.Err
	}
	return m.showNotice(status)
}
