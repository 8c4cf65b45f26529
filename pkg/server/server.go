package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/seeker/pkg/usecase/chat"
	"github.com/m-mizutani/seeker/pkg/utils/logging"
)

const (
	defaultWriteTimeout = 10 * time.Second
	readHeaderTimeout   = 5 * time.Second
	shutdownTimeout     = 10 * time.Second
)

// Server bridges WebSocket connections to agent sessions. Each connection
// owns exactly one session.
type Server struct {
	manager      *chat.Manager
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

type Option func(*Server)

// WithCheckOrigin replaces the origin check of the upgrader. The default
// accepts same-host origins only.
func WithCheckOrigin(f func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = f
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.writeTimeout = d
	}
}

func New(manager *chat.Manager, opts ...Option) *Server {
	s := &Server{
		manager:      manager,
		writeTimeout: defaultWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": s.manager.Len(),
		})
	})
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.From(ctx)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		logger.Warn("failed to upgrade connection", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	session, err := s.manager.Create(ctx)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(s.writeTimeout))
		return
	}
	logger = logger.With("session_id", session.ID(), "remote", r.RemoteAddr)
	logger.Info("websocket connected")

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		s.pump(conn, session, logger)
		// the session is gone; unblock the reader below
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", "error", err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		if err := session.Submit(ctx, text); err != nil {
			logger.Info("session no longer accepts input", "error", err)
			break
		}
	}

	// finishes the request in flight before returning
	if _, ok := s.manager.Get(session.ID()); ok {
		if err := s.manager.Destroy(ctx, session.ID()); err != nil {
			logger.Warn("failed to destroy session", "error", err)
		}
	}
	<-pumped
	logger.Info("websocket disconnected")
}

// pump writes events until the session closes its stream. After the first
// write failure the remaining events are drained and dropped so the
// session never blocks on a dead connection.
func (s *Server) pump(conn *websocket.Conn, session *chat.Session, logger *slog.Logger) {
	broken := false
	for ev := range session.Events() {
		if broken {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err == nil {
			err = conn.WriteJSON(ev)
			if err == nil {
				continue
			}
			logger.Debug("failed to send event", "type", ev.Type, "error", err)
		}
		broken = true
	}
}

// Serve listens on addr and serves until ctx is canceled, then shuts the
// HTTP server down and closes the remaining sessions.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return goerr.Wrap(err, "failed to listen", goerr.V("addr", addr))
	}
	return s.ServeListener(ctx, listener)
}

func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	logger := logging.From(ctx)
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return logging.With(context.WithoutCancel(ctx), logger)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", "addr", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return goerr.Wrap(err, "server stopped unexpectedly")
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		// hijacked websocket connections are not tracked by Shutdown
		if err := s.manager.Close(shutdownCtx); err != nil {
			logger.Warn("failed to close sessions", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "failed to shutdown server")
		}
		logger.Info("server stopped")
		return nil
	}
}
