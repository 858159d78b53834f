package chat

import (
	"strconv"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// timestampLayout is ISO-8601 with millisecond precision in UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Message is one entry in a conversation log.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Streaming bool   `json:"streaming,omitempty"`
}

// Time parses the message timestamp. It returns the zero time for messages
// that were not created by a controller.
func (m Message) Time() time.Time {
	t, err := time.Parse(timestampLayout, m.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ConnState is the streaming connection state. The request/response
// controller always reports the empty state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

// Snapshot is a copy of a controller's observable state.
type Snapshot struct {
	Messages   []Message
	Loading    bool
	Err        string
	Connection ConnState
}

// LastAssistant returns the most recent assistant message.
func (s Snapshot) LastAssistant() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// LastUser returns the most recent user message.
func (s Snapshot) LastUser() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// idSource hands out message ids based on the wall clock in milliseconds.
// Two messages created in the same millisecond still get distinct,
// increasing ids.
type idSource struct {
	now  func() time.Time
	last int64
}

func (s *idSource) next() (string, time.Time) {
	now := s.now()
	ms := now.UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return strconv.FormatInt(ms, 10), now
}
