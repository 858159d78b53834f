// Package chat owns the conversation log and the two transports that feed
// it: a request/response HTTP controller and a streaming websocket
// controller, with a Selector choosing between them.
package chat

import (
	"context"
	"errors"
)

// Controller is one transport's view of a conversation.
type Controller interface {
	// SendMessage submits text with the given model. Whitespace-only text is
	// ignored and returns nil.
	SendMessage(ctx context.Context, text, model string) error
	// ClearMessages empties the log and the error. It is idempotent.
	ClearMessages()
	Snapshot() Snapshot
	// Changes signals after every state change. Signals coalesce.
	Changes() <-chan struct{}
}

var (
	ErrNotConnected       = errors.New("stream is not connected")
	ErrStreamingDisabled  = errors.New("streaming is disabled")
	errControllerShutdown = errors.New("stream controller closed")
)
