package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/docuchat/docuchat/internal/i18n"
	"github.com/docuchat/docuchat/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func newConnectedStream(t *testing.T) (*StreamController, *testutil.WSServer) {
	t.Helper()
	ws := testutil.NewWSServer(t)
	c := NewStreamController(testConfig("", ws.URL(), true), zerolog.Nop())
	t.Cleanup(c.Close)

	c.Connect()
	ws.WaitConn(t, waitFor)
	require.Eventually(t, func() bool { return c.Snapshot().Connection == StateConnected }, waitFor, 5*time.Millisecond)
	return c, ws
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for stream event")
		return Event{}
	}
}

func TestStreamConnectDisabledIsNoop(t *testing.T) {
	ws := testutil.NewWSServer(t)
	c := NewStreamController(testConfig("", ws.URL(), false), zerolog.Nop())
	defer c.Close()

	c.Connect()
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, ws.Connections())
	assert.Equal(t, StateDisconnected, c.Snapshot().Connection)
}

func TestStreamConnectPublishesEvent(t *testing.T) {
	ws := testutil.NewWSServer(t)
	c := NewStreamController(testConfig("", ws.URL(), true), zerolog.Nop())
	defer c.Close()

	events, stop := c.Subscribe()
	defer stop()

	c.Connect()
	c.Connect()
	assert.Equal(t, EventConnected, nextEvent(t, events).Type)
	assert.True(t, c.Connected())
	ws.WaitConn(t, waitFor)
	assert.Equal(t, 1, ws.Connections(), "second Connect while connecting must not dial again")
}

func TestStreamHappyPath(t *testing.T) {
	c, ws := newConnectedStream(t)

	require.NoError(t, c.SendMessage(context.Background(), "سلام", "gpt-4o-mini"))

	var req ChatRequest
	require.NoError(t, json.Unmarshal(ws.Next(t, waitFor), &req))
	assert.Equal(t, ChatRequest{Message: "سلام", Model: "gpt-4o-mini"}, req)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Equal(t, RoleAssistant, snap.Messages[1].Role)
	assert.True(t, snap.Messages[1].Streaming)
	assert.Empty(t, snap.Messages[1].Content)
	assert.True(t, snap.Loading)

	ws.Send(t, Frame{Type: FrameToken, Content: "سلام"})
	ws.Send(t, Frame{Type: FrameToken, Content: " دنیا"})
	require.Eventually(t, func() bool {
		msgs := c.Snapshot().Messages
		return msgs[len(msgs)-1].Content == "سلام دنیا"
	}, waitFor, 5*time.Millisecond)

	ws.Send(t, Frame{Type: FrameEnd})
	require.Eventually(t, func() bool { return !c.Snapshot().Loading }, waitFor, 5*time.Millisecond)

	snap = c.Snapshot()
	assert.False(t, snap.Messages[1].Streaming)
	assert.Equal(t, "سلام دنیا", snap.Messages[1].Content)
	assert.Empty(t, snap.Err)
}

func TestStreamTokenWithoutPlaceholderIsDropped(t *testing.T) {
	c, ws := newConnectedStream(t)

	ws.Send(t, Frame{Type: FrameToken, Content: "stray"})
	ws.SendRaw(t, `{"type":"end"}`)
	require.Eventually(t, func() bool { return c.Snapshot().Connection == StateConnected }, waitFor, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	assert.Empty(t, c.Snapshot().Messages)
}

func TestStreamTokenAfterEndIsDropped(t *testing.T) {
	c, ws := newConnectedStream(t)
	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))
	ws.Next(t, waitFor)

	ws.Send(t, Frame{Type: FrameToken, Content: "a"})
	ws.Send(t, Frame{Type: FrameEnd})
	require.Eventually(t, func() bool { return !c.Snapshot().Loading }, waitFor, 5*time.Millisecond)

	ws.Send(t, Frame{Type: FrameToken, Content: "late"})
	time.Sleep(30 * time.Millisecond)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	last := snap.Messages[1]
	assert.Equal(t, "a", last.Content)
	assert.False(t, last.Streaming)
	assert.False(t, snap.Loading)
}

func TestStreamMalformedFramesIgnored(t *testing.T) {
	c, ws := newConnectedStream(t)
	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))
	ws.Next(t, waitFor)

	ws.SendRaw(t, `not json`)
	ws.SendRaw(t, `{"content":"no type"}`)
	ws.SendRaw(t, `{"type":"start","session_id":3}`)
	ws.Send(t, Frame{Type: FrameToken, Content: "ok"})

	require.Eventually(t, func() bool {
		msgs := c.Snapshot().Messages
		return msgs[len(msgs)-1].Content == "ok"
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateConnected, c.Snapshot().Connection)
	assert.True(t, c.Snapshot().Loading)
}

func TestStreamErrorFrame(t *testing.T) {
	c, ws := newConnectedStream(t)
	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))
	ws.Next(t, waitFor)

	ws.Send(t, Frame{Type: FrameToken, Content: "par"})
	ws.Send(t, Frame{Type: FrameError, Error: "model overloaded"})

	require.Eventually(t, func() bool { return c.Snapshot().Err == "model overloaded" }, waitFor, 5*time.Millisecond)
	snap := c.Snapshot()
	assert.False(t, snap.Loading)
	assert.False(t, snap.Messages[len(snap.Messages)-1].Streaming)
	assert.Equal(t, "par", snap.Messages[len(snap.Messages)-1].Content)
	assert.Equal(t, StateConnected, snap.Connection)
}

func TestStreamWhitespaceKeepsState(t *testing.T) {
	c, ws := newConnectedStream(t)
	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))
	ws.Next(t, waitFor)
	ws.Send(t, Frame{Type: FrameError, Error: "model overloaded"})
	require.Eventually(t, func() bool { return c.Snapshot().Err == "model overloaded" }, waitFor, 5*time.Millisecond)

	before := c.Snapshot()
	for _, text := range []string{"", "   ", "\n\t "} {
		require.NoError(t, c.SendMessage(context.Background(), text, ""))
	}

	ws.ExpectNoMessage(t, 50*time.Millisecond)
	assert.Equal(t, before, c.Snapshot())
	assert.Equal(t, "model overloaded", c.Snapshot().Err)
}

func TestStreamSendWhenNotConnected(t *testing.T) {
	ws := testutil.NewWSServer(t)
	c := NewStreamController(testConfig("", ws.URL(), true), zerolog.Nop())
	defer c.Close()

	events, stop := c.Subscribe()
	defer stop()

	err := c.SendMessage(context.Background(), "hello", "")
	require.ErrorIs(t, err, ErrNotConnected)

	snap := c.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Equal(t, i18n.T("wsNotConnected"), snap.Err)
	assert.False(t, snap.Loading)
	assert.Equal(t, EventUnavailable, nextEvent(t, events).Type)
}

func TestStreamSendDisabled(t *testing.T) {
	c := NewStreamController(testConfig("", "ws://127.0.0.1:1/ws/chat", false), zerolog.Nop())
	defer c.Close()

	require.ErrorIs(t, c.SendMessage(context.Background(), "hello", ""), ErrStreamingDisabled)
	require.NoError(t, c.SendMessage(context.Background(), "   ", ""))
}

func TestStreamReconnectsAfterDrop(t *testing.T) {
	c, ws := newConnectedStream(t)
	events, stop := c.Subscribe()
	defer stop()

	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))
	ws.Next(t, waitFor)
	ws.Send(t, Frame{Type: FrameToken, Content: "half"})
	require.Eventually(t, func() bool {
		msgs := c.Snapshot().Messages
		return msgs[len(msgs)-1].Content == "half"
	}, waitFor, 5*time.Millisecond)

	ws.Drop()

	assert.Equal(t, EventError, nextEvent(t, events).Type)
	assert.Equal(t, EventDisconnected, nextEvent(t, events).Type)

	snap := c.Snapshot()
	assert.False(t, snap.Loading, "connection loss releases loading")
	assert.False(t, snap.Messages[len(snap.Messages)-1].Streaming, "connection loss finalizes the streaming message")
	assert.Equal(t, i18n.T("wsConnectionError"), snap.Err)

	ws.WaitConn(t, waitFor)
	assert.Equal(t, EventConnected, nextEvent(t, events).Type)
	assert.Equal(t, 2, ws.Connections())
	assert.Empty(t, c.Snapshot().Err)
}

func TestStreamDisconnectStopsReconnect(t *testing.T) {
	c, ws := newConnectedStream(t)
	events, stop := c.Subscribe()
	defer stop()

	c.Disconnect()
	assert.Equal(t, EventDisconnected, nextEvent(t, events).Type)
	assert.Equal(t, StateDisconnected, c.Snapshot().Connection)
	assert.False(t, c.Connected())

	c.Disconnect()
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 1, ws.Connections())
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after second Disconnect: %v", ev.Type)
	default:
	}
}

func TestStreamDisconnectBeforeConnect(t *testing.T) {
	c := NewStreamController(testConfig("", "ws://127.0.0.1:1/ws/chat", true), zerolog.Nop())
	defer c.Close()

	c.Disconnect()
	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.Snapshot().Connection)
}

func TestStreamDisconnectCancelsPendingReconnect(t *testing.T) {
	cfg := testConfig("", "", true)
	cfg.ReconnectDelay = 100 * time.Millisecond
	ws := testutil.NewWSServer(t)
	cfg.WSEndpoint = ws.URL()

	c := NewStreamController(cfg, zerolog.Nop())
	defer c.Close()
	c.Connect()
	ws.WaitConn(t, waitFor)
	require.Eventually(t, c.Connected, waitFor, 5*time.Millisecond)

	ws.Drop()
	require.Eventually(t, func() bool { return !c.Connected() }, waitFor, 5*time.Millisecond)
	c.Disconnect()

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, ws.Connections())
}

func TestStreamBoundedReconnect(t *testing.T) {
	cfg := testConfig("", "ws://127.0.0.1:1/ws/chat", true)
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectAttempts = 2

	c := NewStreamController(cfg, zerolog.Nop())
	defer c.Close()
	events, stop := c.Subscribe()
	defer stop()

	c.Connect()

	var errorsSeen int
	for {
		ev := nextEvent(t, events)
		if ev.Type == EventError {
			errorsSeen++
		}
		if ev.Type == EventUnavailable {
			break
		}
	}
	assert.Equal(t, 3, errorsSeen, "initial dial plus two reconnects")
	assert.Equal(t, StateDisconnected, c.Snapshot().Connection)
}

func TestStreamInvalidEndpoint(t *testing.T) {
	c := NewStreamController(testConfig("", "ftp://example.com/chat", true), zerolog.Nop())
	defer c.Close()
	events, stop := c.Subscribe()
	defer stop()

	c.Connect()
	assert.Equal(t, EventError, nextEvent(t, events).Type)
	assert.Equal(t, EventUnavailable, nextEvent(t, events).Type)
	assert.Equal(t, StateError, c.Snapshot().Connection)
	assert.Equal(t, i18n.T("wsCreateError"), c.Snapshot().Err)
}

func TestStreamCloseEndsSubscriptions(t *testing.T) {
	c, _ := newConnectedStream(t)
	events, _ := c.Subscribe()

	c.Close()
	for range events {
	}

	err := c.SendMessage(context.Background(), "late", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrStreamingDisabled))

	c.Connect()
	assert.False(t, c.Connected())
}

func TestStreamNewSendFinalizesDanglingMessage(t *testing.T) {
	c, ws := newConnectedStream(t)

	require.NoError(t, c.SendMessage(context.Background(), "first", ""))
	ws.Next(t, waitFor)
	require.NoError(t, c.SendMessage(context.Background(), "second", ""))
	ws.Next(t, waitFor)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 4)
	streaming := 0
	for _, m := range snap.Messages {
		if m.Streaming {
			streaming++
		}
	}
	assert.Equal(t, 1, streaming)
	assert.True(t, snap.Messages[3].Streaming)
}

func TestStreamClearMessages(t *testing.T) {
	c, ws := newConnectedStream(t)
	require.NoError(t, c.SendMessage(context.Background(), "hi", ""))
	ws.Next(t, waitFor)

	c.ClearMessages()
	assert.Empty(t, c.Snapshot().Messages)
	c.ClearMessages()
	assert.Empty(t, c.Snapshot().Messages)
}

func TestStreamMessageIDsFromClock(t *testing.T) {
	ws := testutil.NewWSServer(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewStreamController(testConfig("", ws.URL(), true), zerolog.Nop(),
		WithStreamClock(fixedClock(at)),
		WithDialer(&websocket.Dialer{HandshakeTimeout: time.Second}),
	)
	defer c.Close()

	c.Connect()
	ws.WaitConn(t, waitFor)
	require.Eventually(t, c.Connected, waitFor, 5*time.Millisecond)

	require.NoError(t, c.SendMessage(context.Background(), "one", ""))
	require.NoError(t, c.SendMessage(context.Background(), "two", ""))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, strconv.FormatInt(at.UnixMilli(), 10), snap.Messages[0].ID)
	var prev int64
	for _, m := range snap.Messages {
		id, err := strconv.ParseInt(m.ID, 10, 64)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
		assert.Equal(t, "2024-03-01T12:00:00.000Z", m.Timestamp)
	}
	assert.False(t, snap.Messages[1].Streaming, "the first placeholder is finalized by the second send")
	assert.True(t, snap.Messages[3].Streaming)
}

func TestNormalizeWSURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ws://localhost:8000/ws/chat", want: "ws://localhost:8000/ws/chat"},
		{in: "wss://chat.example.com/ws/chat", want: "wss://chat.example.com/ws/chat"},
		{in: "http://localhost:8000/ws/chat", want: "ws://localhost:8000/ws/chat"},
		{in: "https://chat.example.com/ws", want: "wss://chat.example.com/ws"},
		{in: "localhost:8000/ws/chat", want: "ws://localhost:8000/ws/chat"},
		{in: "", wantErr: true},
		{in: "ftp://x/y", wantErr: true},
		{in: "ws:///nohost", wantErr: true},
	}
	for _, tc := range tests {
		got, err := normalizeWSURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("normalizeWSURL(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		require.NoError(t, err)
		if got != tc.want {
			t.Fatalf("normalizeWSURL(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}
