package chat

import (
	"slices"
	"sync"
	"time"
)

// conversation is the state shared by both controllers: an append-only
// message log plus the loading and error indicators. Every mutation goes
// through update so observers are always told about it.
type conversation struct {
	mu      sync.Mutex
	st      convState
	changes chan struct{}
}

type convState struct {
	messages []Message
	loading  bool
	err      string
	conn     ConnState
	ids      idSource
}

func newConversation(now func() time.Time, conn ConnState) *conversation {
	if now == nil {
		now = time.Now
	}
	return &conversation{
		st:      convState{conn: conn, ids: idSource{now: now}},
		changes: make(chan struct{}, 1),
	}
}

func (c *conversation) update(fn func(s *convState)) {
	c.mu.Lock()
	fn(&c.st)
	c.mu.Unlock()
	c.notify()
}

// read runs fn under the lock without signalling a change.
func (c *conversation) read(fn func(s *convState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.st)
}

// notify coalesces change signals; a slow reader sees one pending signal
// and then reads the latest snapshot.
func (c *conversation) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *conversation) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Messages:   slices.Clone(c.st.messages),
		Loading:    c.st.loading,
		Err:        c.st.err,
		Connection: c.st.conn,
	}
}

func (c *conversation) clear() {
	c.update(func(s *convState) {
		s.messages = nil
		s.err = ""
	})
}

func (s *convState) append(role Role, content string, streaming bool) Message {
	id, at := s.ids.next()
	msg := Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: at.UTC().Format(timestampLayout),
		Streaming: streaming,
	}
	s.messages = append(s.messages, msg)
	return msg
}

// streamingTail returns the last message if it is still receiving tokens.
func (s *convState) streamingTail() *Message {
	if len(s.messages) == 0 {
		return nil
	}
	last := &s.messages[len(s.messages)-1]
	if !last.Streaming {
		return nil
	}
	return last
}

// finalize clears the streaming flag on the tail message, if any.
func (s *convState) finalize() bool {
	if tail := s.streamingTail(); tail != nil {
		tail.Streaming = false
		return true
	}
	return false
}
