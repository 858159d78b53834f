package chat

import (
	"context"
	"sync"

	"github.com/docuchat/docuchat/internal/config"
	"github.com/rs/zerolog"
)

// Transport names the controller a Selector is routing to.
type Transport string

const (
	TransportHTTP   Transport = "http"
	TransportStream Transport = "ws"
)

// Selector routes messages to the stream controller while it is connected
// and to the HTTP controller otherwise. The two conversation logs are kept
// separate; switching transports does not move or resend messages.
type Selector struct {
	cfg    *config.Config
	http   *HTTPController
	stream *StreamController
	log    zerolog.Logger

	mu              sync.RWMutex
	preferStreaming bool

	changes chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func NewSelector(cfg *config.Config, httpCtl *HTTPController, streamCtl *StreamController, logger zerolog.Logger) *Selector {
	return &Selector{
		cfg:     cfg,
		http:    httpCtl,
		stream:  streamCtl,
		log:     logger.With().Str("component", "selector").Logger(),
		changes: make(chan struct{}, 1),
	}
}

// Start subscribes to stream events, begins connecting when streaming is
// enabled, and forwards change signals from both controllers. Calling it
// more than once has no effect.
func (s *Selector) Start(ctx context.Context) {
	s.once.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.done = make(chan struct{})
		events, unsubscribe := s.stream.Subscribe()
		go s.watch(ctx, events, unsubscribe)
		if s.cfg.Features.Streaming {
			s.stream.Connect()
		}
	})
}

func (s *Selector) watch(ctx context.Context, events <-chan Event, unsubscribe func()) {
	defer close(s.done)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.onEvent(ev)
			s.notify()
		case <-s.http.Changes():
			s.notify()
		case <-s.stream.Changes():
			s.notify()
		}
	}
}

func (s *Selector) onEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.preferStreaming
	switch ev.Type {
	case EventConnected:
		s.preferStreaming = s.cfg.Features.Streaming
	case EventDisconnected, EventError, EventUnavailable:
		s.preferStreaming = false
	}
	if prev != s.preferStreaming {
		s.log.Info().Bool("streaming", s.preferStreaming).Str("event", string(ev.Type)).Msg("transport changed")
	}
}

func (s *Selector) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Active returns the controller new messages go to.
func (s *Selector) Active() Controller {
	if s.Transport() == TransportStream {
		return s.stream
	}
	return s.http
}

func (s *Selector) Transport() Transport {
	s.mu.RLock()
	prefer := s.preferStreaming
	s.mu.RUnlock()
	if prefer && s.stream.Connected() {
		return TransportStream
	}
	return TransportHTTP
}

// SendMessage delegates to the active controller. When the stream rejects a
// message the selector switches to HTTP for the next one; the rejected
// message itself is not resent.
func (s *Selector) SendMessage(ctx context.Context, text, model string) error {
	return s.Active().SendMessage(ctx, text, model)
}

func (s *Selector) ClearMessages() {
	s.Active().ClearMessages()
}

// Snapshot is the active controller's state. With streaming enabled the
// connection state always comes from the stream, even while routing over
// HTTP.
func (s *Selector) Snapshot() Snapshot {
	snap := s.Active().Snapshot()
	if s.cfg.Features.Streaming {
		snap.Connection = s.stream.Snapshot().Connection
	}
	return snap
}

// Changes signals whenever either controller changes or the active
// transport switches.
func (s *Selector) Changes() <-chan struct{} {
	return s.changes
}

// Stream exposes the stream controller for connection status display.
func (s *Selector) Stream() *StreamController {
	return s.stream
}

// Close stops the watcher and shuts the stream controller down.
func (s *Selector) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.stream.Close()
}
