package cmd

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/exitcode"
	"github.com/docuchat/docuchat/internal/models"
	tuichat "github.com/docuchat/docuchat/internal/tui/chat"
	"github.com/docuchat/docuchat/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	chatModel    string
	chatHTTPOnly bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the DocuChat backend.

Messages go over the websocket stream while it is connected and over
HTTP otherwise. Each transport keeps its own conversation.

Keyboard shortcuts:
  Enter   send            Tab     next model
  Ctrl+K  clear           Ctrl+R  retry last message
  Ctrl+C  quit

Slash commands:
  /help        - Show help
  /clear       - Clear conversation
  /model [id]  - Show or switch the model
  /retry       - Send the last message again
  /status      - Show transport and connection
  /quit        - Exit chat`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	registerModelFlag(chatCmd, &chatModel)
	chatCmd.Flags().BoolVar(&chatHTTPOnly, "http", false, "Never use the websocket stream")
	rootCmd.AddCommand(chatCmd)
}

func newSelector(cfg *config.Config, logger zerolog.Logger) *chat.Selector {
	return chat.NewSelector(cfg, chat.NewHTTPController(cfg, logger), chat.NewStreamController(cfg, logger), logger)
}

// applyModelFlag resolves a --model value against the offered models and
// makes it the default for this run.
func applyModelFlag(cfg *config.Config, query string) error {
	if query == "" {
		return nil
	}
	id, ok := models.Match(query, cfg.Models)
	if !ok {
		return exitcode.BadUsage(fmt.Sprintf("unknown model %q (offered: %v)", query, cfg.Models))
	}
	cfg.DefaultModel = id
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyModelFlag(cfg, chatModel); err != nil {
		return err
	}
	if chatHTTPOnly {
		cfg.Features.Streaming = false
	}

	logger := newLogger(true)
	sel := newSelector(cfg, logger)
	sel.Start(ctx)
	defer sel.Close()

	model := tuichat.New(ctx, sel, cfg, ui.NewStyles(os.Stdout))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) {
			return exitcode.Cancel()
		}
		return fmt.Errorf("failed to run chat: %w", err)
	}
	return nil
}
