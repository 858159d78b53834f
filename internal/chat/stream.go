package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/i18n"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeTimeout = 10 * time.Second

// EventType names a connection-level notification from the stream.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventError        EventType = "error"
	// EventUnavailable means the stream cannot carry messages right now and
	// callers should use the request/response transport.
	EventUnavailable EventType = "unavailable"
)

type Event struct {
	Type EventType
	Err  error
}

// StreamController keeps one websocket open to the chat endpoint, streams
// assistant replies token by token into the log, and reconnects after
// unexpected closes.
type StreamController struct {
	cfg    *config.Config
	dialer *websocket.Dialer
	log    zerolog.Logger
	conv   *conversation

	mu            sync.Mutex
	conn          *websocket.Conn
	gen           uint64
	dialing       bool
	cancelDial    context.CancelFunc
	wantReconnect bool
	timer         *time.Timer
	attempts      int
	closed        bool
	subs          map[int]chan Event
	nextSub       int

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

type StreamOption func(*StreamController)

func WithDialer(d *websocket.Dialer) StreamOption {
	return func(c *StreamController) { c.dialer = d }
}

// WithStreamClock sets the clock used for message ids and timestamps.
func WithStreamClock(now func() time.Time) StreamOption {
	return func(c *StreamController) { c.conv = newConversation(now, StateDisconnected) }
}

func NewStreamController(cfg *config.Config, logger zerolog.Logger, opts ...StreamOption) *StreamController {
	c := &StreamController{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.RequestTimeout,
		},
		log:  logger.With().Str("component", "stream").Logger(),
		conv: newConversation(nil, StateDisconnected),
		subs: make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect starts opening the connection and returns immediately. It does
// nothing when streaming is disabled, after Close, or while a connection is
// open or being opened.
func (c *StreamController) Connect() {
	c.connect(false)
}

func (c *StreamController) connect(fromTimer bool) {
	if !c.cfg.Features.Streaming {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if fromTimer {
		c.timer = nil
		if !c.wantReconnect {
			return
		}
	}
	if c.closed || c.conn != nil || c.dialing {
		return
	}

	endpoint, err := normalizeWSURL(c.cfg.WSEndpoint)
	if err != nil {
		c.log.Error().Err(err).Str("endpoint", c.cfg.WSEndpoint).Msg("invalid stream endpoint")
		c.wantReconnect = false
		c.conv.update(func(s *convState) {
			s.conn = StateError
			s.err = i18n.T("wsCreateError")
		})
		c.publishLocked(Event{Type: EventError, Err: err})
		c.publishLocked(Event{Type: EventUnavailable, Err: err})
		return
	}

	c.wantReconnect = true
	c.dialing = true
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.conv.update(func(s *convState) { s.conn = StateConnecting })

	c.wg.Add(1)
	go c.run(ctx, cancel, endpoint, gen)
}

func (c *StreamController) run(ctx context.Context, cancel context.CancelFunc, endpoint string, gen uint64) {
	defer c.wg.Done()
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.dialing = false
	c.cancelDial = nil
	if err != nil {
		c.mu.Unlock()
		c.handleError(gen, err)
		c.handleClose(gen)
		return
	}
	c.conn = conn
	c.attempts = 0
	c.conv.update(func(s *convState) {
		s.conn = StateConnected
		s.err = ""
	})
	c.publishLocked(Event{Type: EventConnected})
	c.mu.Unlock()

	c.log.Debug().Str("endpoint", endpoint).Msg("stream connected")
	c.readLoop(conn, gen)
}

func (c *StreamController) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.handleError(gen, err)
			}
			c.handleClose(gen)
			return
		}
		c.handleFrame(gen, data)
	}
}

func (c *StreamController) handleFrame(gen uint64, data []byte) {
	f, err := ParseFrame(data)
	if err != nil {
		c.log.Warn().Err(err).Int("bytes", len(data)).Msg("ignoring malformed frame")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}

	switch f.Type {
	case FrameToken:
		c.conv.update(func(s *convState) {
			if tail := s.streamingTail(); tail != nil {
				tail.Content += f.Content
			}
		})
	case FrameEnd:
		c.conv.update(func(s *convState) {
			s.finalize()
			s.loading = false
		})
	case FrameError:
		msg := f.Error
		if msg == "" {
			msg = i18n.T("unknownError")
		}
		c.conv.update(func(s *convState) {
			s.err = msg
			s.loading = false
			s.finalize()
		})
	default:
		c.log.Debug().Str("type", string(f.Type)).Msg("ignoring unknown frame type")
	}
}

func (c *StreamController) handleError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.log.Warn().Err(err).Msg("stream transport error")
	c.conv.update(func(s *convState) {
		s.conn = StateError
		s.err = i18n.T("wsConnectionError")
	})
	c.publishLocked(Event{Type: EventError, Err: err})
}

// handleClose runs once per connection attempt, after a failed dial or when
// the read loop ends. It schedules a single reconnect when one is wanted.
func (c *StreamController) handleClose(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.dialing = false
	c.conv.update(func(s *convState) {
		s.conn = StateDisconnected
		s.finalize()
		s.loading = false
	})
	c.publishLocked(Event{Type: EventDisconnected})

	if !c.wantReconnect || c.closed {
		return
	}
	if limit := c.cfg.MaxReconnectAttempts; limit > 0 && c.attempts >= limit {
		c.wantReconnect = false
		c.log.Warn().Int("attempts", c.attempts).Msg("giving up on stream reconnect")
		c.publishLocked(Event{Type: EventUnavailable, Err: ErrNotConnected})
		return
	}
	c.attempts++
	c.log.Debug().Int("attempt", c.attempts).Dur("delay", c.cfg.ReconnectDelay).Msg("scheduling stream reconnect")
	c.timer = time.AfterFunc(c.cfg.ReconnectDelay, func() { c.connect(true) })
}

// Disconnect closes the connection and cancels any pending reconnect. It is
// safe to call repeatedly and before any Connect.
func (c *StreamController) Disconnect() {
	c.mu.Lock()
	c.wantReconnect = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	active := conn != nil || c.dialing
	c.conn = nil
	c.dialing = false
	c.gen++

	var stale bool
	c.conv.read(func(s *convState) { stale = s.conn != StateDisconnected })
	if active || stale {
		c.conv.update(func(s *convState) {
			s.conn = StateDisconnected
			s.finalize()
			s.loading = false
		})
		c.publishLocked(Event{Type: EventDisconnected})
	}
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// SendMessage writes one frame and returns without waiting for the reply.
// The reply arrives as token frames appended to an assistant placeholder.
func (c *StreamController) SendMessage(ctx context.Context, text, model string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	model = models.Resolve(model, c.cfg.DefaultModel)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		reason := ErrNotConnected
		switch {
		case c.closed:
			reason = errControllerShutdown
		case !c.cfg.Features.Streaming:
			reason = ErrStreamingDisabled
		}
		c.conv.update(func(s *convState) { s.err = i18n.T("wsNotConnected") })
		c.publishLocked(Event{Type: EventUnavailable, Err: reason})
		c.mu.Unlock()
		return reason
	}
	gen := c.gen
	c.conv.update(func(s *convState) {
		s.finalize()
		s.append(RoleUser, text, false)
		s.append(RoleAssistant, "", true)
		s.loading = true
		s.err = ""
	})
	c.mu.Unlock()

	err := c.writeFrame(ctx, conn, ChatRequest{Message: text, Model: model})
	if err == nil {
		return nil
	}

	c.log.Warn().Err(err).Msg("stream send failed")
	c.mu.Lock()
	if gen == c.gen {
		c.conv.update(func(s *convState) {
			s.err = i18n.T("sendFailed")
			s.loading = false
			s.finalize()
		})
	}
	c.publishLocked(Event{Type: EventUnavailable, Err: err})
	c.mu.Unlock()
	return fmt.Errorf("send frame: %w", err)
}

func (c *StreamController) writeFrame(ctx context.Context, conn *websocket.Conn, req ChatRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteJSON(req)
}

func (c *StreamController) ClearMessages() {
	c.conv.clear()
}

func (c *StreamController) Snapshot() Snapshot {
	return c.conv.snapshot()
}

func (c *StreamController) Changes() <-chan struct{} {
	return c.conv.changes
}

// Connected reports whether a connection is currently open.
func (c *StreamController) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Subscribe returns a channel of connection events and a function that
// stops the subscription. Events are dropped for subscribers that fall
// behind; Snapshot always has the current state.
func (c *StreamController) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

func (c *StreamController) publishLocked(ev Event) {
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.log.Warn().Str("event", string(ev.Type)).Msg("dropping stream event for slow subscriber")
		}
	}
}

// Close disconnects, waits for connection goroutines to exit and ends all
// subscriptions. The controller cannot be reconnected afterwards.
func (c *StreamController) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
	c.wg.Wait()

	c.mu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()
}

// normalizeWSURL accepts ws, wss, http and https URLs (or a bare host) and
// returns the websocket form.
func normalizeWSURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", errors.New("stream endpoint is required")
	}
	if !strings.Contains(value, "://") {
		value = "ws://" + value
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported stream scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("stream endpoint %q has no host", raw)
	}
	return parsed.String(), nil
}
