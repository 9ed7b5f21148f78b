package gameserver

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/game/room"
	"github.com/cory-johannsen/duel/internal/game/session"
)

// Dispatcher fans encoded frames out to connection outboxes.
// All methods are safe for concurrent use.
//
// A connection whose outbox overflows is dropped: its outbox is closed so the
// transport tears the connection down instead of silently skipping frames.
type Dispatcher struct {
	mu       sync.RWMutex
	outboxes map[string]*session.Outbox // connectionID → outbox
	logger   *zap.Logger
}

// NewDispatcher creates an empty Dispatcher.
//
// Precondition: logger must be non-nil.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		outboxes: make(map[string]*session.Outbox),
		logger:   logger,
	}
}

// Register attaches an outbox under its connection id.
func (d *Dispatcher) Register(out *session.Outbox) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outboxes[out.ConnectionID()] = out
}

// Unregister detaches connID without closing its outbox.
func (d *Dispatcher) Unregister(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.outboxes, connID)
}

// Close detaches connID and closes its outbox.
func (d *Dispatcher) Close(connID string) {
	d.mu.Lock()
	out, ok := d.outboxes[connID]
	delete(d.outboxes, connID)
	d.mu.Unlock()
	if ok {
		out.Close()
	}
}

// Len returns the number of attached connections.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.outboxes)
}

// Send delivers one event to a single connection.
func (d *Dispatcher) Send(connID, event string, data any) {
	frame, ok := d.encode(event, data)
	if !ok {
		return
	}
	d.push([]string{connID}, frame)
}

// SendRoom delivers one event to the live connections of r's members, skipping
// the member whose session id is excludeSession.
func (d *Dispatcher) SendRoom(r *room.Room, excludeSession, event string, data any) {
	var targets []string
	for _, m := range r.Members() {
		if m.SessionID == excludeSession || !m.Connected {
			continue
		}
		targets = append(targets, m.ConnectionID)
	}
	if len(targets) == 0 {
		return
	}
	frame, ok := d.encode(event, data)
	if !ok {
		return
	}
	d.push(targets, frame)
}

// SendLobby delivers one event to every attached connection.
func (d *Dispatcher) SendLobby(event string, data any) {
	frame, ok := d.encode(event, data)
	if !ok {
		return
	}
	d.mu.RLock()
	targets := make([]string, 0, len(d.outboxes))
	for id := range d.outboxes {
		targets = append(targets, id)
	}
	d.mu.RUnlock()
	d.push(targets, frame)
}

func (d *Dispatcher) encode(event string, data any) ([]byte, bool) {
	frame, err := Encode(event, data)
	if err != nil {
		d.logger.Error("encoding outbound event", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return frame, true
}

func (d *Dispatcher) push(targets []string, frame []byte) {
	for _, id := range targets {
		d.mu.RLock()
		out, ok := d.outboxes[id]
		d.mu.RUnlock()
		if !ok {
			continue
		}
		if err := out.Push(frame); err != nil {
			d.logger.Warn("push to connection failed, dropping connection",
				zap.String("connection_id", id),
				zap.Error(err),
			)
			d.Close(id)
		}
	}
}
