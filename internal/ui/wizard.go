package ui

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/models"
)

// getTTY opens the controlling terminal so the wizard works even when
// stdin or stdout are redirected.
func getTTY() (*os.File, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}

func validateHTTPBase(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateWSEndpoint(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return errors.New("must start with ws:// or wss://")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// RunSetupWizard asks for the backend endpoints, the streaming flag and
// the default model, starting from base. It returns the edited copy;
// the caller decides whether to save it.
func RunSetupWizard(base *config.Config) (*config.Config, error) {
	cfg := *base
	cfg.Models = append([]string(nil), base.Models...)

	modelChoices := make([]huh.Option[string], 0, len(models.Allowed))
	for _, id := range models.Allowed {
		modelChoices = append(modelChoices, huh.NewOption(id, id))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend API base").
				Description("Request/response endpoint host, e.g. http://localhost:8000").
				Value(&cfg.APIBase).
				Validate(validateHTTPBase),
			huh.NewConfirm().
				Title("Enable websocket streaming?").
				Value(&cfg.Features.Streaming),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Websocket endpoint").
				Value(&cfg.WSEndpoint).
				Validate(validateWSEndpoint),
		).WithHideFunc(func() bool { return !cfg.Features.Streaming }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default model").
				Options(modelChoices...).
				Value(&cfg.DefaultModel),
		),
	)

	tty, ttyErr := getTTY()
	if ttyErr == nil {
		defer tty.Close()
		form = form.WithInput(tty).WithOutput(tty)
		fmt.Fprintln(tty, "Welcome to DocuChat! Let's point it at your backend.")
		fmt.Fprintln(tty)
	}

	if err := form.Run(); err != nil {
		return nil, err
	}

	cfg.APIBase = strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	cfg.WSEndpoint = strings.TrimSpace(cfg.WSEndpoint)
	if !models.IsAllowed(cfg.DefaultModel) {
		cfg.DefaultModel = models.Default
	}
	return &cfg, nil
}
