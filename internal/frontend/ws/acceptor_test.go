package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/game/engine"
	"github.com/cory-johannsen/duel/internal/game/grace"
	"github.com/cory-johannsen/duel/internal/game/random"
	"github.com/cory-johannsen/duel/internal/game/room"
	"github.com/cory-johannsen/duel/internal/game/session"
	"github.com/cory-johannsen/duel/internal/gameserver"
	"github.com/cory-johannsen/duel/internal/testutil"
)

const wait = 2 * time.Second

func testTransport() config.TransportConfig {
	return config.TransportConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    time.Second,
		PingInterval:    time.Second,
		MaxMessageBytes: 4096,
		SendBuffer:      64,
	}
}

type stubMatches struct {
	results []room.Result
	err     error
	limit   int
}

func (s *stubMatches) Recent(_ context.Context, limit int) ([]room.Result, error) {
	s.limit = limit
	return s.results, s.err
}

func newTestService(t *testing.T, window time.Duration) *gameserver.Service {
	t.Helper()
	logger := zaptest.NewLogger(t)
	svc := gameserver.NewService(
		gameserver.Config{GraceWindow: window, DefaultGameType: engine.TicTacToeType},
		session.NewManager(),
		room.NewRegistry(engine.DefaultRegistry(), bcrypt.MinCost),
		grace.NewScheduler(),
		gameserver.NewDispatcher(logger),
		&random.Fixed{Values: []int{0}},
		nil,
		logger,
	)
	t.Cleanup(svc.Close)
	return svc
}

func newTestServer(t *testing.T, svc *gameserver.Service, matches MatchLister) (*Acceptor, *httptest.Server) {
	t.Helper()
	acc := NewAcceptor(testTransport(), svc, matches, zaptest.NewLogger(t))
	srv := httptest.NewServer(acc.Router())
	t.Cleanup(srv.Close)
	return acc, srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *testutil.WSClient {
	t.Helper()
	return testutil.DialWS(t, testutil.WebSocketURL(srv.URL, sessionID))
}

func TestHandshakeRejectsMissingSessionID(t *testing.T) {
	_, srv := newTestServer(t, newTestService(t, time.Second), nil)
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMatchOverWebSocket(t *testing.T) {
	svc := newTestService(t, time.Second)
	_, srv := newTestServer(t, svc, nil)

	alice := dial(t, srv, "s-alice")
	alice.Send(gameserver.EventJoinLobby, "Alice")
	alice.Expect(gameserver.EventLobbyJoined, wait)
	alice.Expect(gameserver.EventRoomsUpdate, wait)

	alice.Send(gameserver.EventCreateRoom, gameserver.CreateRoomRequest{GameType: engine.TicTacToeType})
	var created room.View
	require.NoError(t, json.Unmarshal(alice.Expect(gameserver.EventRoomJoined, wait), &created))
	require.NotEmpty(t, created.ID)

	bob := dial(t, srv, "s-bob")
	bob.Send(gameserver.EventJoinLobby, map[string]string{"name": "Bob"})
	bob.Expect(gameserver.EventLobbyJoined, wait)

	bob.Send(gameserver.EventJoinRoom, gameserver.JoinRoomRequest{RoomID: created.ID})
	var started room.View
	require.NoError(t, json.Unmarshal(alice.Expect(gameserver.EventGameStart, wait), &started))
	bob.Expect(gameserver.EventGameStart, wait)
	assert.Equal(t, room.StatusPlaying, started.Status)
	require.Len(t, started.Players, 2)

	alice.Send(gameserver.EventMakeMove, gameserver.MoveRequest{RoomID: created.ID, Index: 4})
	var update room.View
	require.NoError(t, json.Unmarshal(bob.Expect(gameserver.EventUpdateGame, wait), &update))
	require.NotNil(t, update.Board[4])
	assert.Equal(t, "X", *update.Board[4])
}

func TestReconnectRestoresRoom(t *testing.T) {
	svc := newTestService(t, 5*time.Second)
	_, srv := newTestServer(t, svc, nil)

	alice := dial(t, srv, "s-alice")
	alice.Send(gameserver.EventJoinLobby, "Alice")
	alice.Expect(gameserver.EventLobbyJoined, wait)
	alice.Send(gameserver.EventCreateRoom, nil)
	var created room.View
	require.NoError(t, json.Unmarshal(alice.Expect(gameserver.EventRoomJoined, wait), &created))

	bob := dial(t, srv, "s-bob")
	bob.Send(gameserver.EventJoinLobby, "Bob")
	bob.Expect(gameserver.EventLobbyJoined, wait)
	bob.Send(gameserver.EventJoinRoom, gameserver.JoinRoomRequest{RoomID: created.ID})
	alice.Expect(gameserver.EventGameStart, wait)
	bob.Expect(gameserver.EventGameStart, wait)

	bob.Close()
	alice.Expect(gameserver.EventPlayerDisconnected, wait)

	bobAgain := dial(t, srv, "s-bob")
	var view room.View
	require.NoError(t, json.Unmarshal(bobAgain.Expect(gameserver.EventGameStart, wait), &view))
	assert.Equal(t, created.ID, view.ID)
	alice.Expect(gameserver.EventPlayerReconnected, wait)
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestServer(t, newTestService(t, time.Second), nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRoomsEndpointListsDirectory(t *testing.T) {
	svc := newTestService(t, time.Second)
	_, srv := newTestServer(t, svc, nil)

	alice := dial(t, srv, "s-alice")
	alice.Send(gameserver.EventJoinLobby, "Alice")
	alice.Expect(gameserver.EventLobbyJoined, wait)
	alice.Send(gameserver.EventCreateRoom, nil)
	alice.Expect(gameserver.EventRoomJoined, wait)

	resp, err := http.Get(srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listings []room.Listing
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listings))
	require.Len(t, listings, 1)
	assert.Equal(t, room.StatusWaiting, listings[0].View.Status)
}

func TestMatchesEndpointDisabled(t *testing.T) {
	_, srv := newTestServer(t, newTestService(t, time.Second), nil)
	resp, err := http.Get(srv.URL + "/api/matches")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMatchesEndpoint(t *testing.T) {
	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	matches := &stubMatches{results: []room.Result{{
		RoomID:     "r1",
		GameType:   engine.TicTacToeType,
		Winner:     "X",
		WinnerName: "Alice",
		PlayerX:    "Alice",
		PlayerO:    "Bob",
		FinishedAt: finished,
	}}}
	_, srv := newTestServer(t, newTestService(t, time.Second), matches)

	resp, err := http.Get(srv.URL + "/api/matches?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, matches.limit)

	var views []MatchView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "Alice", views[0].WinnerName)
	assert.True(t, finished.Equal(views[0].FinishedAt))
}

func TestMatchesEndpointLimits(t *testing.T) {
	matches := &stubMatches{}
	_, srv := newTestServer(t, newTestService(t, time.Second), matches)

	resp, err := http.Get(srv.URL + "/api/matches")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, defaultMatchLimit, matches.limit)

	for _, bad := range []string{"0", "101", "abc"} {
		resp, err := http.Get(srv.URL + "/api/matches?limit=" + bad)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", bad)
	}
}

func TestMatchesEndpointStoreFailure(t *testing.T) {
	matches := &stubMatches{err: errors.New("db down")}
	_, srv := newTestServer(t, newTestService(t, time.Second), matches)
	resp, err := http.Get(srv.URL + "/api/matches")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAcceptorStartAndStop(t *testing.T) {
	acc := NewAcceptor(testTransport(), newTestService(t, time.Second), nil, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()

	require.Eventually(t, func() bool {
		return acc.IsRunning() && acc.Addr() != ""
	}, 2*time.Second, 10*time.Millisecond)

	c := testutil.DialWS(t, "ws://"+acc.Addr()+"/ws?sessionId=s1")
	c.Send(gameserver.EventJoinLobby, "Alice")
	c.Expect(gameserver.EventLobbyJoined, wait)

	acc.Stop()
	assert.False(t, acc.IsRunning())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not stop")
	}

	err := c.Drain(2 * time.Second)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection was not closed by Stop")
	}
}

func TestStoppedAcceptorRefusesConnections(t *testing.T) {
	acc, srv := newTestServer(t, newTestService(t, time.Second), nil)
	acc.Stop()

	_, resp, err := websocket.DefaultDialer.Dial(testutil.WebSocketURL(srv.URL, "s-late"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTrackRefusedAfterStop(t *testing.T) {
	acc := NewAcceptor(testTransport(), newTestService(t, time.Second), nil, zaptest.NewLogger(t))
	c := &Conn{}
	assert.True(t, acc.track(c))
	acc.untrack(c)
	acc.wg.Done()

	acc.Stop()
	assert.False(t, acc.track(&Conn{}))
	assert.Empty(t, acc.conns)

	waited := make(chan struct{})
	go func() {
		acc.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("refused connection was counted in the wait group")
	}
}
