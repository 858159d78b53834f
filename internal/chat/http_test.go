package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/i18n"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(apiBase, wsEndpoint string, streaming bool) *config.Config {
	cfg := config.Default()
	cfg.APIBase = apiBase
	cfg.WSEndpoint = wsEndpoint
	cfg.Features.Streaming = streaming
	cfg.RequestTimeout = 5 * time.Second
	cfg.ReconnectDelay = 50 * time.Millisecond
	return cfg
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestHTTPSendSuccess(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/demo", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"سلام! چطور می‌توانم کمک کنم؟","conversationId":"c1","model":"gpt-4o","extra":true}`))
	}))
	defer srv.Close()

	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop())
	require.NoError(t, h.SendMessage(context.Background(), "سلام", "gpt-4o"))

	assert.Equal(t, ChatRequest{Message: "سلام", Model: "gpt-4o"}, got)

	snap := h.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "سلام", snap.Messages[0].Content)
	assert.Equal(t, RoleAssistant, snap.Messages[1].Role)
	assert.Equal(t, "سلام! چطور می‌توانم کمک کنم؟", snap.Messages[1].Content)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Err)
	assert.Empty(t, snap.Connection)
	for _, m := range snap.Messages {
		assert.False(t, m.Streaming)
		assert.False(t, m.Time().IsZero(), "timestamp %q should parse", m.Timestamp)
	}
}

func TestHTTPWhitespaceIsNoop(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop())
	for _, text := range []string{"", "   ", "\n\t "} {
		require.NoError(t, h.SendMessage(context.Background(), text, ""))
	}

	assert.Zero(t, hits.Load())
	snap := h.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Loading)
}

func TestHTTPCustomClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := &http.Client{Timeout: 50 * time.Millisecond}
	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop(), WithHTTPClient(client))

	err := h.SendMessage(context.Background(), "hi", "")
	require.Error(t, err)

	snap := h.Snapshot()
	assert.False(t, snap.Loading)
	assert.NotEmpty(t, snap.Err)
	require.Len(t, snap.Messages, 2)
	assert.True(t, strings.HasPrefix(snap.Messages[1].Content, i18n.T("error")+": "))
}

func TestHTTPServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop())
	err := h.SendMessage(context.Background(), "hi", "")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)

	snap := h.Snapshot()
	assert.Contains(t, snap.Err, "500")
	assert.False(t, snap.Loading)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, RoleAssistant, snap.Messages[1].Role)
	assert.True(t, strings.HasPrefix(snap.Messages[1].Content, i18n.T("error")+": "), snap.Messages[1].Content)
	assert.Contains(t, snap.Messages[1].Content, "500")
}

func TestHTTPTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := NewHTTPController(testConfig(url, "", false), zerolog.Nop())
	require.Error(t, h.SendMessage(context.Background(), "hi", ""))

	snap := h.Snapshot()
	assert.NotEmpty(t, snap.Err)
	assert.False(t, snap.Loading)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, i18n.T("error")+": "+snap.Err, snap.Messages[1].Content)
}

func TestHTTPUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop())
	require.Error(t, h.SendMessage(context.Background(), "hi", ""))
	assert.False(t, h.Snapshot().Loading)
	assert.NotEmpty(t, h.Snapshot().Err)
}

func TestHTTPModelResolution(t *testing.T) {
	models := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		models <- req.Model
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, "", false)
	cfg.DefaultModel = "gpt-4o-mini"
	h := NewHTTPController(cfg, zerolog.Nop())

	require.NoError(t, h.SendMessage(context.Background(), "a", ""))
	assert.Equal(t, "gpt-4o-mini", <-models)

	require.NoError(t, h.SendMessage(context.Background(), "b", "not-a-model"))
	assert.Equal(t, "gpt-4o-mini", <-models)

	require.NoError(t, h.SendMessage(context.Background(), "c", "gpt-4o"))
	assert.Equal(t, "gpt-4o", <-models)
}

func TestHTTPLoadingWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"response":"done"}`))
	}))
	defer srv.Close()

	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- h.SendMessage(context.Background(), "wait", "") }()

	require.Eventually(t, func() bool { return h.Snapshot().Loading }, time.Second, 5*time.Millisecond)
	snap := h.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, h.Snapshot().Loading)
	assert.Len(t, h.Snapshot().Messages, 2)
}

func TestHTTPErrorClearedOnNextSend(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop())
	require.Error(t, h.SendMessage(context.Background(), "one", ""))
	assert.Contains(t, h.Snapshot().Err, "502")

	fail.Store(false)
	require.NoError(t, h.SendMessage(context.Background(), "two", ""))
	assert.Empty(t, h.Snapshot().Err)
	assert.Len(t, h.Snapshot().Messages, 4)
}

func TestHTTPClearMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop())
	_ = h.SendMessage(context.Background(), "hi", "")
	require.NotEmpty(t, h.Snapshot().Messages)

	h.ClearMessages()
	snap := h.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.Empty(t, snap.Err)

	h.ClearMessages()
	assert.Empty(t, h.Snapshot().Messages)
}

func TestHTTPMessageIDsUniqueWithinMillisecond(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop(), WithHTTPClock(fixedClock(at)))
	for i := 0; i < 3; i++ {
		require.NoError(t, h.SendMessage(context.Background(), "x", ""))
	}

	snap := h.Snapshot()
	require.Len(t, snap.Messages, 6)
	var prev int64
	for _, m := range snap.Messages {
		id, err := strconv.ParseInt(m.ID, 10, 64)
		require.NoError(t, err)
		assert.Greater(t, id, prev, "ids must increase")
		prev = id
		assert.Equal(t, "2024-03-01T12:00:00.000Z", m.Timestamp)
	}
	assert.Equal(t, strconv.FormatInt(at.UnixMilli(), 10), snap.Messages[0].ID)
}

func TestHTTPChangesSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	h := NewHTTPController(testConfig(srv.URL, "", false), zerolog.Nop())
	require.NoError(t, h.SendMessage(context.Background(), "hi", ""))

	select {
	case <-h.Changes():
	default:
		t.Fatal("expected a pending change signal")
	}
}
