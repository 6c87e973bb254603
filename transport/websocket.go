// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seed-foundation/seed/session"
)

const (
	// writeWait bounds a single frame or control write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may go without any inbound
	// traffic before its read deadline fires. Pongs and data frames
	// both refresh it.
	pongWait = 60 * time.Second

	// pingPeriod is the transport keepalive cadence. Must be under
	// pongWait or healthy connections time out.
	pingPeriod = (pongWait * 9) / 10
)

// Core is the slice of the session hub the adapter needs.
type Core interface {
	ConnectionEstablished(stream session.FrameStream, credential []byte) (session.SessionID, error)
	Frame(id session.SessionID, frame []byte) error
	TransportClosed(id session.SessionID)
}

// Config describes a WebSocket server.
type Config struct {
	// Addr is the listen address, host:port. Required for
	// ListenAndServe; Handler-only use may leave it empty.
	Addr string

	// Path is the upgrade endpoint. Empty means "/ws".
	Path string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// MaxFrameBytes is the per-message read limit. Zero means the
	// wire default.
	MaxFrameBytes int

	// Logger receives accept/close events. Nil discards them.
	Logger *slog.Logger
}

// Server upgrades WebSocket connections and pumps their frames into
// the session core.
type Server struct {
	cfg      Config
	core     Core
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds a server over core. It does not listen yet.
func NewServer(cfg Config, core Core) (*Server, error) {
	if core == nil {
		return nil, errors.New("transport: core must not be nil")
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, errors.New("transport: cert and key files must be set together")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:    cfg,
		core:   core,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}, nil
}

// Handler returns the HTTP handler serving the upgrade endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleUpgrade)
	return mux
}

// ListenAndServe serves until ctx is done, then stops accepting and
// closes the listener. Live connections are left to the session
// core's own shutdown, which closes their streams and unwinds the
// read pumps.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	server := &http.Server{Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	s.logger.Info("transport listening",
		"addr", listener.Addr().String(),
		"path", s.cfg.Path,
		"tls", s.cfg.CertFile != "")

	if s.cfg.CertFile != "" {
		err = server.ServeTLS(listener, s.cfg.CertFile, s.cfg.KeyFile)
	} else {
		err = server.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound listen address, empty before ListenAndServe.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleUpgrade runs as the connection's read pump: the handler
// goroutine reads frames until the connection dies or the session is
// gone. Writes happen on the actor's goroutine through the stream.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	stream := newStream(conn)
	credential := []byte(r.URL.Query().Get("token"))

	id, err := s.core.ConnectionEstablished(stream, credential)
	if err != nil {
		s.logger.Warn("connection refused", "remote", r.RemoteAddr, "error", err)
		stream.closeWithReason(websocket.CloseTryAgainLater, "server unavailable")
		return
	}
	s.logger.Debug("connection accepted", "remote", r.RemoteAddr, "session", string(id))

	go stream.pingLoop()
	s.readPump(conn, id)
}

func (s *Server) readPump(conn *websocket.Conn, id session.SessionID) {
	limit := s.cfg.MaxFrameBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	conn.SetReadLimit(int64(limit))
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "session", string(id), "error", err)
			}
			s.core.TransportClosed(id)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := s.core.Frame(id, frame); err != nil {
			// The session is gone; the conn has no owner left.
			conn.Close()
			return
		}
	}
}

// wsStream adapts one gorilla connection to session.FrameStream.
// gorilla allows a single concurrent writer, so every write (frames,
// pings, the close handshake) goes through mu.
type wsStream struct {
	conn *websocket.Conn

	mu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

var _ session.FrameStream = (*wsStream)(nil)

func newStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn, done: make(chan struct{})}
}

// WriteFrame sends one text frame. The deadline is the earlier of the
// transport write bound and ctx's own deadline.
func (ws *wsStream) WriteFrame(ctx context.Context, frame []byte) error {
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.conn.SetWriteDeadline(deadline)
	if err := ws.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close runs the close handshake and drops the connection. Safe to
// call concurrently with WriteFrame and more than once.
func (ws *wsStream) Close() error {
	ws.closeWithReason(websocket.CloseNormalClosure, "")
	return nil
}

func (ws *wsStream) closeWithReason(code int, reason string) {
	ws.closeOnce.Do(func() {
		close(ws.done)
		ws.mu.Lock()
		ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
		ws.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason))
		ws.mu.Unlock()
		ws.conn.Close()
	})
}

// pingLoop keeps the connection's read deadline fed on the peer side.
// Exits when the stream closes; a failed ping closes the connection,
// which unwinds the read pump and reaches the core as a transport
// failure.
func (ws *wsStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ws.done:
			return
		case <-ticker.C:
			ws.mu.Lock()
			ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := ws.conn.WriteMessage(websocket.PingMessage, nil)
			ws.mu.Unlock()
			if err != nil {
				ws.conn.Close()
				return
			}
		}
	}
}
