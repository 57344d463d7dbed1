package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultMaxMessageSize is enough for SDP with embedded candidates.
const DefaultMaxMessageSize = 64 * 1024

// ServerOptions configures the HTTP surface of the coordinator.
type ServerOptions struct {
	Addr string

	// AllowedOrigins restricts browser origins. Empty allows all, and
	// requests without an Origin header are always accepted.
	AllowedOrigins []string

	MaxMessageSize int64
}

// Server exposes a Hub over HTTP: /ws for signaling, /health and /stats.
type Server struct {
	hub      *Hub
	opts     ServerOptions
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates the HTTP server for hub.
func NewServer(hub *Hub, opts ServerOptions, logger *slog.Logger) *Server {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{hub: hub, opts: opts, logger: logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  int(opts.MaxMessageSize),
		WriteBufferSize: int(opts.MaxMessageSize),
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ServeWs)
	mux.HandleFunc("/health", healthCheckHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting signaling server", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ServeWs upgrades the request and serves the connection until it closes.
func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("failed to upgrade connection", "error", err)
		return
	}

	c := NewConn(s.hub, ws, s.opts.MaxMessageSize, s.logger)
	s.logger.Debug("member connected", "member", c.ID(), "remote", r.RemoteAddr)
	go c.Serve()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.hub.Stats())
}
