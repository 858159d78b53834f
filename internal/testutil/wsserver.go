package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// WSServer is a scripted websocket peer for client tests. Every inbound text
// message is delivered on Received; tests push frames with Send.
type WSServer struct {
	srv      *httptest.Server
	received chan []byte
	accepted chan struct{}

	mu    sync.Mutex
	conns []*websocket.Conn
	total int
}

func NewWSServer(t *testing.T) *WSServer {
	t.Helper()
	s := &WSServer{
		received: make(chan []byte, 64),
		accepted: make(chan struct{}, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.total++
		s.mu.Unlock()
		select {
		case s.accepted <- struct{}{}:
		default:
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.received <- data
		}
	}))
	t.Cleanup(s.Close)
	return s
}

// URL is the ws:// address of the server.
func (s *WSServer) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// WaitConn blocks until the next connection is accepted.
func (s *WSServer) WaitConn(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-s.accepted:
	case <-time.After(timeout):
		t.Fatalf("no websocket connection within %s", timeout)
	}
}

// Next returns the next message the client sent.
func (s *WSServer) Next(t *testing.T, timeout time.Duration) []byte {
	t.Helper()
	select {
	case data := <-s.received:
		return data
	case <-time.After(timeout):
		t.Fatalf("no websocket message within %s", timeout)
		return nil
	}
}

// ExpectNoMessage fails if the client sends anything within wait.
func (s *WSServer) ExpectNoMessage(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case data := <-s.received:
		t.Fatalf("unexpected websocket message: %s", data)
	case <-time.After(wait):
	}
}

// Connections is the number of connections accepted so far.
func (s *WSServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Send writes v as JSON to the most recent connection.
func (s *WSServer) Send(t *testing.T, v any) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no websocket connection to send on")
	}
	if err := s.conns[len(s.conns)-1].WriteJSON(v); err != nil {
		t.Fatalf("send: %v", err)
	}
}

// SendRaw writes data verbatim as a text message.
func (s *WSServer) SendRaw(t *testing.T, data string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		t.Fatal("no websocket connection to send on")
	}
	if err := s.conns[len(s.conns)-1].WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		t.Fatalf("send raw: %v", err)
	}
}

// Drop closes every open connection without a close handshake.
func (s *WSServer) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *WSServer) Close() {
	s.Drop()
	s.srv.CloseClientConnections()
	s.srv.Close()
}
