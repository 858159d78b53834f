// Package serve implements the development backend: a small HTTP and
// websocket server speaking the same chat protocol the client controllers
// expect, backed by an echo responder or an OpenAI-compatible API.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	maxMessageBytes = 64 << 10
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second

	// WSPath is where the websocket chat endpoint is mounted.
	WSPath = "/ws/chat"
)

// Frame error texts sent to websocket clients.
const (
	errInvalidJSON    = "Invalid JSON"
	errMissingMessage = "Missing 'message' field"
)

type errorBody struct {
	Error string `json:"error"`
}

// Server is the development chat backend.
type Server struct {
	cfg       *config.Config
	responder Responder
	log       zerolog.Logger
	limiter   *ipLimiter

	// Version is reported by the health endpoint.
	Version string
	// Profiling mounts net/http/pprof under /debug.
	Profiling bool
}

func NewServer(cfg *config.Config, responder Responder, logger zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		responder: responder,
		log:       logger.With().Str("component", "serve").Logger(),
		limiter:   newIPLimiter(cfg.Serve.RateLimit, cfg.Serve.RateBurst),
		Version:   "dev",
	}
}

// Handler builds the router. Chat routes are mounted at the configured
// chat path so a client using the same config file finds them.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if s.Profiling {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Get(s.cfg.ChatPath, s.handleDemo)
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.middleware)
		r.Post(s.cfg.ChatPath, s.handleChat)
		r.Get(WSPath, s.handleWS)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Serve.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.limiter.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().
		Str("addr", s.cfg.Serve.Addr).
		Str("provider", s.cfg.Serve.Provider).
		Str("chat_path", s.cfg.ChatPath).
		Msg("dev backend listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   s.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "chat demo"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errInvalidJSON})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: errMissingMessage})
		return
	}
	req.Model = models.Sanitize(req.Model)

	var reply strings.Builder
	err := s.responder.Respond(r.Context(), req, func(token string) error {
		reply.WriteString(token)
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("model", req.Model).Msg("responder failed")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "upstream error"})
		return
	}

	chatMessages.WithLabelValues("http", req.Model).Inc()
	writeJSON(w, http.StatusOK, chat.ChatResponse{
		Response:       reply.String(),
		ConversationID: uuid.NewString(),
		Model:          req.Model,
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrade(w, r)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	wsConnections.Inc()
	defer wsConnections.Dec()

	log := s.log.With().Str("session", uuid.NewString()).Logger()
	log.Info().Str("remote_addr", r.RemoteAddr).Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("websocket read failed")
			} else {
				log.Info().Msg("websocket closed")
			}
			return
		}

		var req chat.ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if werr := writeFrame(conn, chat.Frame{Type: chat.FrameError, Error: errInvalidJSON}); werr != nil {
				return
			}
			continue
		}
		if strings.TrimSpace(req.Message) == "" {
			if werr := writeFrame(conn, chat.Frame{Type: chat.FrameError, Error: errMissingMessage}); werr != nil {
				return
			}
			continue
		}
		req.Model = models.Sanitize(req.Model)

		if err := s.streamReply(ctx, conn, req); err != nil {
			log.Warn().Err(err).Msg("websocket write failed")
			return
		}
	}
}

// streamReply writes token frames followed by end, or an error frame if
// the responder fails. Only write failures are returned.
func (s *Server) streamReply(ctx context.Context, conn *websocket.Conn, req chat.ChatRequest) error {
	var writeErr error
	tokensOut := 0
	err := s.responder.Respond(ctx, req, func(token string) error {
		if err := writeFrame(conn, chat.Frame{Type: chat.FrameToken, Content: token}); err != nil {
			writeErr = err
			return err
		}
		tokensOut++
		return nil
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		s.log.Error().Err(err).Str("model", req.Model).Msg("responder failed")
		return writeFrame(conn, chat.Frame{Type: chat.FrameError, Error: err.Error()})
	}

	chatMessages.WithLabelValues("ws", req.Model).Inc()
	return writeFrame(conn, chat.Frame{
		Type: chat.FrameEnd,
		Usage: &chat.Usage{
			TokensIn:  len(strings.Fields(req.Message)),
			TokensOut: tokensOut,
		},
	})
}

func upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return upgrader.Upgrade(w, r, nil)
}

func writeFrame(conn *websocket.Conn, f chat.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	wsFramesSent.WithLabelValues(string(f.Type)).Inc()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
