package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/session"
)

// Conn is one accepted WebSocket connection.
type Conn struct {
	id        string
	sessionID string
	ws        *websocket.Conn
	out       *session.Outbox
	cfg       config.TransportConfig
	handler   Handler
	logger    *zap.Logger
	closeOnce sync.Once
}

func newConn(raw *websocket.Conn, sessionID string, cfg config.TransportConfig, handler Handler, logger *zap.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:        id,
		sessionID: sessionID,
		ws:        raw,
		out:       session.NewOutbox(id, cfg.SendBuffer),
		cfg:       cfg,
		handler:   handler,
		logger:    logger.With(zap.String("connection_id", id)),
	}
}

// ID returns the connection id assigned at upgrade.
func (c *Conn) ID() string {
	return c.id
}

// run attaches the connection, pumps frames both ways and reports the loss of
// the connection to the handler. It blocks until both pumps exit.
func (c *Conn) run() {
	c.handler.Attach(c.sessionID, c.out)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	c.readPump()
	c.handler.Disconnect(c.id)
	c.out.Close()
	<-done
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
}

// readPump decodes inbound frames until the peer goes away or stays silent
// past the read timeout.
func (c *Conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		c.logger.Debug("setting read deadline", zap.Error(err))
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		kind, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.dispatch(msg)
	}
}

// writePump drains the outbox to the socket and sends keepalive pings.
// A closed outbox ends the connection with a normal close frame.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.out.Frames():
			if !ok {
				_ = c.ws.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				)
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}
