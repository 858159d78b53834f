package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/exitcode"
	"github.com/docuchat/docuchat/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	askModel    string
	askHTTPOnly bool
	askJSON     bool
	askText     bool
	askWait     time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message and print the reply",
	Long: `Send one message and print the assistant's reply.

With enable_ws set, ask waits up to --wait for the stream to connect and
falls back to HTTP if it does not. The message can also be piped on stdin.

Examples:
  docuchat ask "سلام"
  docuchat ask -m mini "summarize the release notes"
  echo "hello" | docuchat ask --json`,
	RunE: runAsk,
}

func init() {
	registerModelFlag(askCmd, &askModel)
	askCmd.Flags().BoolVar(&askHTTPOnly, "http", false, "Never use the websocket stream")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the result as JSON")
	askCmd.Flags().BoolVarP(&askText, "text", "t", false, "Print plain text, no markdown rendering")
	askCmd.Flags().DurationVar(&askWait, "wait", 3*time.Second, "How long to wait for the stream to connect")
	rootCmd.AddCommand(askCmd)
}

type askOptions struct {
	Model    string
	HTTPOnly bool
	Wait     time.Duration
}

type askResult struct {
	Response  string         `json:"response"`
	Model     string         `json:"model"`
	Transport chat.Transport `json:"transport"`
	Error     string         `json:"error,omitempty"`
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return exitcode.BadUsage("ask needs a message")
	}

	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	res, askErr := ask(ctx, cfg, newLogger(!debug), askOptions{
		Model:    askModel,
		HTTPOnly: askHTTPOnly,
		Wait:     askWait,
	}, question)

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		return askErr
	}
	if askErr != nil {
		return askErr
	}

	if !askText && term.IsTerminal(int(os.Stdout.Fd())) {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || width <= 0 {
			width = 80
		}
		fmt.Fprintln(out, ui.RenderBody(res.Response, width, true))
		return nil
	}
	fmt.Fprintln(out, res.Response)
	return nil
}

// ask sends question through a fresh session and waits for the reply to
// finish. The controller chosen at send time is used to the end, so a
// stream that drops mid-reply reports its partial state rather than the
// HTTP log.
func ask(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts askOptions, question string) (askResult, error) {
	local := *cfg
	if err := applyModelFlag(&local, opts.Model); err != nil {
		return askResult{}, err
	}
	if opts.HTTPOnly {
		local.Features.Streaming = false
	}

	sel := newSelector(&local, logger)
	sel.Start(ctx)
	defer sel.Close()

	if local.Features.Streaming {
		if err := waitForStream(ctx, sel, opts.Wait); err != nil {
			return askResult{}, err
		}
	}

	res := askResult{Model: local.DefaultModel, Transport: sel.Transport()}
	ctl := sel.Active()
	if err := ctl.SendMessage(ctx, question, local.DefaultModel); err != nil {
		res.Error = err.Error()
		return res, exitcode.NoBackend(err.Error())
	}

	snap, err := waitForReply(ctx, sel, ctl)
	if err != nil {
		return res, err
	}
	if last, ok := snap.LastAssistant(); ok && snap.Err == "" {
		res.Response = last.Content
	}
	if snap.Err != "" {
		res.Error = snap.Err
		return res, exitcode.NoBackend(snap.Err)
	}
	return res, nil
}

// waitForStream gives the stream up to wait to connect. Returning without a
// connection is fine; the selector then routes over HTTP.
func waitForStream(ctx context.Context, sel *chat.Selector, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for sel.Transport() != chat.TransportStream {
		select {
		case <-sel.Changes():
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return exitcode.Cancel()
		}
	}
	return nil
}

func waitForReply(ctx context.Context, sel *chat.Selector, ctl chat.Controller) (chat.Snapshot, error) {
	for {
		snap := ctl.Snapshot()
		if !snap.Loading {
			return snap, nil
		}
		select {
		case <-sel.Changes():
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return snap, exitcode.Cancel()
			}
			return snap, ctx.Err()
		}
	}
}
