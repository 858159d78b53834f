package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/i18n"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/rs/zerolog"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http error: status %d", e.Code)
	}
	return fmt.Sprintf("http error: status %d: %s", e.Code, e.Body)
}

// HTTPController sends each message as one POST and appends the reply.
type HTTPController struct {
	cfg      *config.Config
	client   *http.Client
	endpoint string
	log      zerolog.Logger
	conv     *conversation
}

type HTTPOption func(*HTTPController)

// WithHTTPClient replaces the default client. Its timeout is left alone.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPController) { h.client = c }
}

// WithHTTPClock sets the clock used for message ids and timestamps.
func WithHTTPClock(now func() time.Time) HTTPOption {
	return func(h *HTTPController) { h.conv = newConversation(now, "") }
}

func NewHTTPController(cfg *config.Config, logger zerolog.Logger, opts ...HTTPOption) *HTTPController {
	h := &HTTPController{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		endpoint: cfg.ChatURL(),
		log:      logger.With().Str("component", "http").Logger(),
		conv:     newConversation(nil, ""),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SendMessage blocks until the request settles. On failure the error is
// recorded in the snapshot, a localized error message is appended to the
// log, and the error is returned.
func (h *HTTPController) SendMessage(ctx context.Context, text, model string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	model = models.Resolve(model, h.cfg.DefaultModel)

	h.conv.update(func(s *convState) {
		s.append(RoleUser, text, false)
		s.loading = true
		s.err = ""
	})

	reply, err := h.post(ctx, ChatRequest{Message: text, Model: model})

	h.conv.update(func(s *convState) {
		s.loading = false
		if err != nil {
			s.err = err.Error()
			s.append(RoleAssistant, i18n.T("error")+": "+s.err, false)
			return
		}
		s.append(RoleAssistant, reply.Response, false)
	})
	if err != nil {
		h.log.Warn().Err(err).Str("model", model).Msg("chat request failed")
		return err
	}
	h.log.Debug().Str("model", model).Str("conversation_id", reply.ConversationID).Msg("chat request completed")
	return nil
}

func (h *HTTPController) post(ctx context.Context, body ChatRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func (h *HTTPController) ClearMessages() {
	h.conv.clear()
}

func (h *HTTPController) Snapshot() Snapshot {
	return h.conv.snapshot()
}

func (h *HTTPController) Changes() <-chan struct{} {
	return h.conv.changes
}
