// Package session tracks durable player sessions across reconnecting
// transport connections.
package session

import (
	"fmt"
	"sync"
)

// DefaultOutboxSize is the buffer used when NewOutbox is given a non-positive size.
const DefaultOutboxSize = 64

// Outbox routes encoded frames from the coordinator to one connection's
// write pump.
type Outbox struct {
	connID string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection.
//
// Precondition: connID must be non-empty.
// Postcondition: Returns an Outbox with an open frame channel.
func NewOutbox(connID string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = DefaultOutboxSize
	}
	return &Outbox{
		connID: connID,
		frames: make(chan []byte, bufferSize),
	}
}

// ConnectionID returns the connection this outbox feeds.
func (o *Outbox) ConnectionID() string {
	return o.connID
}

// Push enqueues one frame without blocking.
//
// Postcondition: The frame is enqueued, or an error is returned if the outbox
// is closed or its buffer is full.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.connID)
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.connID)
	}
}

// Frames returns the read-only frame channel drained by the write pump.
// The channel is closed by Close.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close closes the frame channel. Calling Close more than once is a no-op.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
