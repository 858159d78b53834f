// Package chat is the interactive terminal front end. It renders the active
// conversation of a session selector and forwards input to it.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	chatctl "github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/i18n"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/ui"
)

// Backend is what the model needs from a session. *chatctl.Selector
// satisfies it.
type Backend interface {
	SendMessage(ctx context.Context, text, model string) error
	ClearMessages()
	Snapshot() chatctl.Snapshot
	Changes() <-chan struct{}
	Transport() chatctl.Transport
}

type (
	changeMsg   struct{}
	sendDoneMsg struct{ err error }
)

const (
	headerHeight = 2
	footerHeight = 4
)

// Model is the bubbletea model for the chat screen.
type Model struct {
	ctx      context.Context
	backend  Backend
	cfg      *config.Config
	models   *models.Selection
	styles   *ui.Styles
	keys     keyMap
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width, height int
	ready         bool
	snap          chatctl.Snapshot
	notice        string
	sentAt        time.Time
	pending       bool // a send command is in flight
	quitting      bool
	now           func() time.Time
}

// New builds the chat screen over backend. Sends use ctx, so cancelling it
// aborts in-flight requests.
func New(ctx context.Context, backend Backend, cfg *config.Config, styles *ui.Styles) *Model {
	input := textinput.New()
	input.Placeholder = i18n.T("placeholder")
	input.Prompt = "› "
	input.CharLimit = 4000
	input.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(ui.Green)

	return &Model{
		ctx:      ctx,
		backend:  backend,
		cfg:      cfg,
		models:   models.NewSelection(cfg.Models, cfg.DefaultModel),
		styles:   styles,
		keys:     defaultKeyMap(),
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  sp,
		width:    80,
		height:   24,
		snap:     backend.Snapshot(),
		now:      time.Now,
	}
}

// Model returns the currently selected model id.
func (m *Model) Model() string {
	return m.models.Current()
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChange(m.backend.Changes()), m.spinner.Tick)
}

// waitForChange blocks until the backend reports a state change.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changeMsg{}
	}
}

func (m *Model) sendCmd(text string) tea.Cmd {
	model := m.models.Current()
	ctx := m.ctx
	backend := m.backend
	return func() tea.Msg {
		return sendDoneMsg{err: backend.SendMessage(ctx, text, model)}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case changeMsg:
		m.refresh()
		return m, waitForChange(m.backend.Changes())

	case sendDoneMsg:
		m.pending = false
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Clear):
		return m.cmdClear()

	case key.Matches(msg, m.keys.NextModel):
		m.notice = i18n.T("model") + ": " + m.models.Next()
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		return m.cmdRetry()

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if strings.HasPrefix(text, "/") {
			m.input.SetValue("")
			return m.ExecuteCommand(text)
		}
		return m.send(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// busy reports whether a reply is outstanding. pending covers the gap
// between dispatching a send and the backend's first change signal.
func (m *Model) busy() bool {
	return m.pending || m.snap.Loading
}

// send submits text unless a reply is still pending.
func (m *Model) send(text string) (tea.Model, tea.Cmd) {
	if m.busy() {
		m.notice = i18n.T("loading")
		return m, nil
	}
	m.input.SetValue("")
	m.notice = ""
	m.sentAt = m.now()
	m.pending = true
	return m, m.sendCmd(text)
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = max(height-headerHeight-footerHeight, 1)
	m.input.Width = max(width-4, 10)
	m.ready = true
	m.renderTranscript()
}

func (m *Model) refresh() {
	m.snap = m.backend.Snapshot()
	m.renderTranscript()
}

func (m *Model) renderTranscript() {
	m.viewport.SetContent(renderMessages(m.styles, m.snap.Messages, m.width))
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	if m.snap.Err != "" {
		b.WriteString(m.styles.Banner.Render(i18n.T("error") + ": " + m.snap.Err))
		b.WriteString("\n")
	}
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderHeader() string {
	parts := []string{
		m.styles.Title.Render(i18n.T("welcome")),
		m.styles.Muted.Render(i18n.T("model") + ": " + m.models.Current()),
		m.styles.Muted.Render(transportLabel(m.backend.Transport())),
	}
	if m.cfg.Features.Streaming {
		parts = append(parts, m.styles.FormatConnection(m.snap.Connection))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderFooter() string {
	var b strings.Builder
	switch {
	case m.busy():
		phase := i18n.T("loading")
		if m.backend.Transport() == chatctl.TransportStream {
			phase = i18n.T("typing")
		}
		b.WriteString(ui.StreamingIndicator{
			Spinner: m.spinner.View(),
			Phase:   phase,
			Elapsed: m.now().Sub(m.sentAt),
		}.Render(m.styles))
	case m.notice != "":
		b.WriteString(m.styles.Muted.Render(m.notice))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render(ui.Truncate(i18n.T("help"), m.width)))
	return b.String()
}

func transportLabel(t chatctl.Transport) string {
	if t == chatctl.TransportStream {
		return i18n.T("transportWS")
	}
	return i18n.T("transportHTTP")
}
