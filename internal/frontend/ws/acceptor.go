// Package ws is the WebSocket transport: it upgrades HTTP requests, decodes
// inbound events, pumps outbound frames and serves the lobby directory.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/room"
	"github.com/cory-johannsen/duel/internal/game/session"
	"github.com/cory-johannsen/duel/internal/gameserver"
)

// Handler receives decoded client events. *gameserver.Service implements it.
type Handler interface {
	Attach(sessionID string, out *session.Outbox)
	JoinLobby(connID, sessionID, name string) error
	CreateRoom(connID string, req gameserver.CreateRoomRequest) error
	JoinRoom(connID string, req gameserver.JoinRoomRequest) error
	MakeMove(connID string, req gameserver.MoveRequest) error
	PlayAgain(connID, roomID string) error
	LeaveRoom(connID string) error
	SendMessage(connID string, raw json.RawMessage) error
	Disconnect(connID string)
	Directory() []room.Listing
}

// MatchLister returns recently finished matches, newest first.
type MatchLister interface {
	Recent(ctx context.Context, limit int) ([]room.Result, error)
}

// Acceptor serves the WebSocket endpoint and the HTTP directory.
type Acceptor struct {
	cfg      config.TransportConfig
	handler  Handler
	matches  MatchLister
	logger   *zap.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	listener net.Listener
	conns    map[*Conn]struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopping bool
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; handler and logger must be non-nil.
// matches may be nil (the match history endpoint answers 404).
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.TransportConfig, handler Handler, matches MatchLister, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:     cfg,
		handler: handler,
		matches: matches,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
	a.server = &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// Router returns the HTTP routes served by the acceptor.
func (a *Acceptor) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", a.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.serveHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms", a.serveRooms).Methods(http.MethodGet)
	r.HandleFunc("/api/matches", a.serveMatches).Methods(http.MethodGet)
	return r
}

// ListenAndServe starts the HTTP listener and serves until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = !a.stopping
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down, closes every live connection and waits for
// their pumps to exit.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		return
	}
	a.stopping = true
	a.running = false
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}

	// Hijacked WebSocket connections are not tracked by http.Server.
	a.mu.Lock()
	live := make([]*Conn, 0, len(a.conns))
	for c := range a.conns {
		live = append(live, c)
	}
	a.mu.Unlock()
	for _, c := range live {
		c.close()
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

func (a *Acceptor) isStopping() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopping
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// track registers c for shutdown. It refuses once Stop has begun, so no
// connection is added to wg after Stop starts waiting on it.
func (a *Acceptor) track(c *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopping {
		return false
	}
	a.conns[c] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(c *Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, c)
}

// serveWS upgrades a handshake carrying ?sessionId= and runs the connection.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if err := ValidateSessionID(sessionID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if a.isStopping() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	raw, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConn(raw, sessionID, a.cfg, a.handler, a.logger)
	if !a.track(c) {
		_ = raw.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second),
		)
		_ = raw.Close()
		return
	}
	go func() {
		defer a.wg.Done()
		defer a.untrack(c)
		start := time.Now()
		a.logger.Info("client connected",
			zap.String("connection_id", c.ID()),
			zap.String("session_id", sessionID),
			zap.String("remote_addr", r.RemoteAddr),
		)
		c.run()
		a.logger.Info("client disconnected",
			zap.String("connection_id", c.ID()),
			zap.Duration("duration", time.Since(start)),
		)
	}()
}
