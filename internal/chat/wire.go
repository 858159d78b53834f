package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ChatRequest is the body of a request/response call and the payload of an
// outbound streaming frame.
type ChatRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

// ChatResponse is the request/response reply. Unknown fields are ignored.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversationId,omitempty"`
	Model          string `json:"model,omitempty"`
}

// FrameType is the discriminator of an inbound streaming frame.
type FrameType string

const (
	FrameToken FrameType = "token"
	FrameEnd   FrameType = "end"
	FrameError FrameType = "error"
)

// Frame is the JSON envelope sent server->client over the stream.
type Frame struct {
	Type FrameType `json:"type"`

	// token
	Content string `json:"content,omitempty"`

	// error
	Error string `json:"error,omitempty"`

	// end
	Usage *Usage `json:"usage,omitempty"`
}

type Usage struct {
	TokensIn  int `json:"tokens_in"`
	TokensOut int `json:"tokens_out"`
}

var errMissingFrameType = errors.New("frame has no type")

// ParseFrame decodes one inbound frame. Unknown types decode fine and are
// left for the caller to ignore.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, errMissingFrameType
	}
	return f, nil
}
