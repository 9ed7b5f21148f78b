package testutil

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cory-johannsen/duel/internal/gameserver"
)

// WSClient is a WebSocket test client speaking the JSON envelope protocol.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// WebSocketURL converts an httptest base URL into the /ws endpoint for sessionID.
func WebSocketURL(baseURL, sessionID string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/ws?sessionId=" + url.QueryEscape(sessionID)
}

// DialWS connects to rawURL and returns a test client.
//
// Precondition: rawURL must be a ws:// URL with a listening server.
// Postcondition: Returns a connected WSClient or fails the test.
func DialWS(t *testing.T, rawURL string) *WSClient {
	t.Helper()
	start := time.Now()

	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v [%s]", rawURL, err, time.Since(start))
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return &WSClient{conn: conn, t: t}
}

// Send writes one envelope carrying event and data.
//
// Postcondition: The frame is written or the test fails.
func (c *WSClient) Send(event string, data any) {
	c.t.Helper()
	frame, err := gameserver.Encode(event, data)
	if err != nil {
		c.t.Fatalf("encoding %s: %v", event, err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("sending %s: %v", event, err)
	}
}

// Expect reads frames until one carries event and returns its data. Frames
// for other events are discarded.
//
// Postcondition: Returns the payload of the first matching frame, or fails on timeout.
func (c *WSClient) Expect(event string, timeout time.Duration) json.RawMessage {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	var seen []string
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %s: saw %v, error: %v", event, seen, err)
		}
		var env gameserver.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			c.t.Fatalf("decoding frame %q: %v", msg, err)
		}
		if env.Event == event {
			return env.Data
		}
		seen = append(seen, env.Event)
	}
}

// Drain reads until the connection fails and returns the terminal error.
func (c *WSClient) Drain(timeout time.Duration) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	_ = c.conn.Close()
}
