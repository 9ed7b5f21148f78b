package room

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/duel/internal/game/engine"
)

var (
	alice = Participant{ConnectionID: "c-alice", SessionID: "s-alice", DisplayName: "Alice"}
	bob   = Participant{ConnectionID: "c-bob", SessionID: "s-bob", DisplayName: "Bob"}
	carol = Participant{ConnectionID: "c-carol", SessionID: "s-carol", DisplayName: "Carol"}
)

func newTestRegistry() *Registry {
	return NewRegistry(engine.DefaultRegistry(), bcrypt.MinCost)
}

func playingRoom(t *testing.T) (*Registry, *Room) {
	t.Helper()
	g := newTestRegistry()
	r, err := g.Create(alice, engine.TicTacToeType, Options{})
	require.NoError(t, err)
	_, err = g.Join(r.ID, bob, "")
	require.NoError(t, err)
	return g, r
}

func TestRegistry_CreateSeatsHostAsX(t *testing.T) {
	g := newTestRegistry()
	r, err := g.Create(alice, engine.TicTacToeType, Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusWaiting, r.Status())
	members := r.Members()
	require.Len(t, members, 1)
	assert.Equal(t, engine.SymbolX, members[0].Symbol)
	assert.True(t, members[0].Connected)

	got, ok := g.Get(r.ID)
	require.True(t, ok)
	assert.Same(t, r, got)
	assert.Equal(t, 1, g.Count())
}

func TestRegistry_CreateUniqueIDs(t *testing.T) {
	g := newTestRegistry()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		r, err := g.Create(alice, engine.TicTacToeType, Options{})
		require.NoError(t, err)
		require.False(t, seen[r.ID])
		seen[r.ID] = true
	}
}

func TestRegistry_CreateErrors(t *testing.T) {
	g := newTestRegistry()

	_, err := g.Create(alice, "chess", Options{})
	assert.True(t, errors.Is(err, ErrUnknownGameType))

	_, err = g.Create(alice, engine.TicTacToeType, Options{IsPrivate: true})
	assert.True(t, errors.Is(err, ErrAccessCodeRequired))

	_, err = g.Create(Participant{}, engine.TicTacToeType, Options{})
	assert.Error(t, err)
	assert.Equal(t, 0, g.Count())
}

func TestRegistry_JoinStartsMatch(t *testing.T) {
	_, r := playingRoom(t)
	assert.Equal(t, StatusPlaying, r.Status())
	members := r.Members()
	require.Len(t, members, 2)
	assert.Equal(t, engine.SymbolO, members[1].Symbol)
	assert.Equal(t, "s-bob", members[1].SessionID)
}

func TestRegistry_JoinValidationOrder(t *testing.T) {
	g, full := playingRoom(t)

	_, err := g.Join("missing", carol, "")
	assert.True(t, errors.Is(err, ErrRoomNotFound))

	// A playing room reports not-joinable before full.
	_, err = g.Join(full.ID, carol, "")
	assert.True(t, errors.Is(err, ErrRoomNotJoinable))
}

func TestRegistry_JoinFullWaitingRoom(t *testing.T) {
	g := newTestRegistry()
	r, err := g.Create(alice, engine.TicTacToeType, Options{})
	require.NoError(t, err)
	r.members = append(r.members, seat(bob, engine.SymbolO))

	_, err = g.Join(r.ID, carol, "")
	assert.True(t, errors.Is(err, ErrRoomFull))
}

func TestRegistry_PrivateRoomCode(t *testing.T) {
	g := newTestRegistry()
	r, err := g.Create(alice, engine.TicTacToeType, Options{IsPrivate: true, Code: "1234"})
	require.NoError(t, err)
	assert.NotContains(t, string(r.access.hash), "1234")

	_, err = g.Join(r.ID, bob, "9999")
	assert.True(t, errors.Is(err, ErrAccessDenied))
	_, err = g.Join(r.ID, bob, "")
	assert.True(t, errors.Is(err, ErrAccessDenied))
	assert.Len(t, r.Members(), 1)
	assert.Equal(t, StatusWaiting, r.Status())

	_, err = g.Join(r.ID, bob, "1234")
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, r.Status())
}

func TestRegistry_PrivateCodeComparesEveryByte(t *testing.T) {
	g := newTestRegistry()
	code := strings.Repeat("a", 72)
	r, err := g.Create(alice, engine.TicTacToeType, Options{IsPrivate: true, Code: code})
	require.NoError(t, err)

	_, err = g.Join(r.ID, bob, code+"WRONG-SUFFIX")
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, StatusWaiting, r.Status())

	_, err = g.Join(r.ID, bob, code)
	require.NoError(t, err)
}

func TestRegistry_PrivateCodeOfAnyLength(t *testing.T) {
	g := newTestRegistry()
	code := strings.Repeat("long-code-", 20)
	r, err := g.Create(alice, engine.TicTacToeType, Options{IsPrivate: true, Code: code})
	require.NoError(t, err)

	assert.False(t, r.CheckCode(code[:len(code)-1]))
	assert.False(t, r.CheckCode(code+"x"))
	assert.True(t, r.CheckCode(code))
}

func TestRegistry_CreateWithPrehashedCode(t *testing.T) {
	g := newTestRegistry()
	access, err := g.HashAccessCode("1234")
	require.NoError(t, err)
	assert.False(t, access.IsZero())

	r, err := g.Create(alice, engine.TicTacToeType, Options{IsPrivate: true, Access: access})
	require.NoError(t, err)
	assert.True(t, r.CheckCode("1234"))

	_, err = g.HashAccessCode("")
	assert.ErrorIs(t, err, ErrAccessCodeRequired)
}

func TestRegistry_AdmitUsesPriorCheck(t *testing.T) {
	g := newTestRegistry()
	r, err := g.Create(alice, engine.TicTacToeType, Options{IsPrivate: true, Code: "1234"})
	require.NoError(t, err)

	_, err = g.Admit(r.ID, bob, false)
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = g.Admit("missing", bob, false)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = g.Admit(r.ID, bob, true)
	require.NoError(t, err)
	_, err = g.Admit(r.ID, carol, true)
	assert.ErrorIs(t, err, ErrRoomNotJoinable)
}

func TestProperty_AccessCodeMatchesOnlyItself(t *testing.T) {
	g := newTestRegistry()
	rapid.Check(t, func(t *rapid.T) {
		code := rapid.StringN(1, 120, -1).Draw(t, "code")
		other := rapid.StringN(1, 120, -1).Draw(t, "other")
		access, err := g.HashAccessCode(code)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if !access.Matches(code) {
			t.Fatalf("code %q does not match itself", code)
		}
		if other != code && access.Matches(other) {
			t.Fatalf("code %q matched %q", code, other)
		}
	})
}

func TestRegistry_PublicRoomIgnoresCode(t *testing.T) {
	g := newTestRegistry()
	r, err := g.Create(alice, engine.TicTacToeType, Options{Code: "ignored"})
	require.NoError(t, err)
	_, err = g.Join(r.ID, bob, "anything")
	assert.NoError(t, err)
}

func TestRegistry_Remove(t *testing.T) {
	g, r := playingRoom(t)
	removed, ok := g.Remove(r.ID)
	require.True(t, ok)
	assert.Same(t, r, removed)
	_, ok = g.Remove(r.ID)
	assert.False(t, ok)
	_, ok = g.Get(r.ID)
	assert.False(t, ok)
}

func TestRegistry_ListOrderedByCreation(t *testing.T) {
	g := newTestRegistry()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		g.now = func() time.Time { return at }
		r, err := g.Create(alice, engine.TicTacToeType, Options{})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	var got []string
	for _, r := range g.List() {
		got = append(got, r.ID)
	}
	assert.Equal(t, ids, got)
}

func TestRoom_ApplyMove(t *testing.T) {
	_, r := playingRoom(t)

	require.NoError(t, r.ApplyMove("s-alice", 0))
	assert.True(t, errors.Is(r.ApplyMove("s-alice", 1), ErrIllegalMove), "not alice's turn")
	assert.True(t, errors.Is(r.ApplyMove("s-bob", 0), ErrIllegalMove), "occupied")
	assert.True(t, errors.Is(r.ApplyMove("s-carol", 1), ErrIllegalMove), "not a member")
	require.NoError(t, r.ApplyMove("s-bob", 3))
	assert.Equal(t, engine.SymbolX, r.State().Board[0])
	assert.Equal(t, engine.SymbolO, r.State().Board[3])
}

func TestRoom_ApplyMoveRejectedWhileWaiting(t *testing.T) {
	g := newTestRegistry()
	r, err := g.Create(alice, engine.TicTacToeType, Options{})
	require.NoError(t, err)
	assert.True(t, errors.Is(r.ApplyMove("s-alice", 0), ErrIllegalMove))
}

func winTopRow(t *testing.T, r *Room) {
	t.Helper()
	for _, m := range []struct {
		sid string
		idx int
	}{{"s-alice", 0}, {"s-bob", 3}, {"s-alice", 1}, {"s-bob", 4}, {"s-alice", 2}} {
		require.NoError(t, r.ApplyMove(m.sid, m.idx))
	}
}

func TestRoom_FinishAndResult(t *testing.T) {
	_, r := playingRoom(t)
	_, ok := r.Result(time.Now())
	assert.False(t, ok)

	winTopRow(t, r)
	assert.Equal(t, StatusFinished, r.Status())
	assert.True(t, errors.Is(r.ApplyMove("s-bob", 8), ErrIllegalMove))

	now := time.Now()
	res, ok := r.Result(now)
	require.True(t, ok)
	assert.Equal(t, Result{
		RoomID:     r.ID,
		GameType:   engine.TicTacToeType,
		Winner:     "X",
		WinnerName: "Alice",
		PlayerX:    "Alice",
		PlayerO:    "Bob",
		FinishedAt: now,
	}, res)
}

func TestRoom_Reset(t *testing.T) {
	_, r := playingRoom(t)
	winTopRow(t, r)
	id := r.ID

	require.NoError(t, r.Reset(engine.SymbolO))
	assert.Equal(t, StatusPlaying, r.Status())
	assert.Equal(t, id, r.ID)
	st := r.State()
	assert.Equal(t, engine.SymbolO, st.Turn)
	for _, c := range st.Board {
		assert.Equal(t, engine.SymbolNone, c)
	}
	assert.Len(t, r.Members(), 2)
}

func TestRoom_ResetRequiresTwoMembers(t *testing.T) {
	g := newTestRegistry()
	r, err := g.Create(alice, engine.TicTacToeType, Options{})
	require.NoError(t, err)
	assert.True(t, errors.Is(r.Reset(engine.SymbolX), ErrMatchNotReady))
	assert.Equal(t, StatusWaiting, r.Status())
}

func TestRoom_DisconnectAndRebind(t *testing.T) {
	_, r := playingRoom(t)
	require.NoError(t, r.ApplyMove("s-alice", 4))

	assert.True(t, r.MarkDisconnected("s-bob"))
	m, ok := r.Member("s-bob")
	require.True(t, ok)
	assert.False(t, m.Connected)
	assert.Empty(t, m.ConnectionID)
	assert.Equal(t, engine.SymbolX, r.State().Board[4], "board retained")

	assert.True(t, r.Rebind("s-bob", "c-bob-2"))
	m, _ = r.Member("s-bob")
	assert.True(t, m.Connected)
	assert.Equal(t, "c-bob-2", m.ConnectionID)
	assert.Equal(t, engine.SymbolO, m.Symbol)

	assert.False(t, r.Rebind("s-carol", "x"))
	assert.False(t, r.MarkDisconnected("s-carol"))
}

func TestRoom_Others(t *testing.T) {
	_, r := playingRoom(t)
	others := r.Others("s-alice")
	require.Len(t, others, 1)
	assert.Equal(t, "s-bob", others[0].SessionID)
	assert.Len(t, r.Others("s-carol"), 2)
}

func TestProject_WaitingRoom(t *testing.T) {
	g := newTestRegistry()
	r, err := g.Create(alice, engine.TicTacToeType, Options{IsPrivate: true, Code: "1234"})
	require.NoError(t, err)

	v := Project(r)
	assert.Equal(t, r.ID, v.ID)
	assert.Equal(t, StatusWaiting, v.Status)
	assert.True(t, v.IsPrivate)
	require.Len(t, v.Players, 1)
	assert.Equal(t, "c-alice", *v.Players[0].ID)
	assert.Len(t, v.Board, 9)
	for _, c := range v.Board {
		assert.Nil(t, c)
	}
	assert.Nil(t, v.Winner)
	assert.Nil(t, v.WinnerName)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "1234")
	assert.NotContains(t, string(raw), "s-alice")
}

func TestProject_TurnIsLiveConnection(t *testing.T) {
	_, r := playingRoom(t)
	v := Project(r)
	require.NotNil(t, v.Turn)
	assert.Equal(t, "c-alice", *v.Turn)
	assert.Equal(t, StatusPlaying, v.Status)

	require.NoError(t, r.ApplyMove("s-alice", 0))
	v = Project(r)
	assert.Equal(t, "c-bob", *v.Turn)
	assert.Equal(t, "X", *v.Board[0])
}

func TestProject_DisconnectedTurnHolderIsNull(t *testing.T) {
	_, r := playingRoom(t)
	r.MarkDisconnected("s-alice")
	v := Project(r)
	assert.Nil(t, v.Turn)
	assert.Nil(t, v.Players[0].ID)
	assert.False(t, v.Players[0].Connected)

	r.Rebind("s-alice", "c-alice-2")
	v = Project(r)
	require.NotNil(t, v.Turn)
	assert.Equal(t, "c-alice-2", *v.Turn)
}

func TestProject_WinnerAndDraw(t *testing.T) {
	_, r := playingRoom(t)
	winTopRow(t, r)
	v := Project(r)
	assert.Equal(t, StatusFinished, v.Status)
	assert.Equal(t, "X", *v.Winner)
	assert.Equal(t, "Alice", *v.WinnerName)

	over := GameOverOf(v)
	assert.Equal(t, v.Board, over.Board)
	assert.Equal(t, "Alice", *over.WinnerName)

	require.NoError(t, r.Reset(engine.SymbolX))
	for _, m := range []struct {
		sid string
		idx int
	}{
		{"s-alice", 0}, {"s-bob", 1}, {"s-alice", 2},
		{"s-bob", 4}, {"s-alice", 3}, {"s-bob", 5},
		{"s-alice", 7}, {"s-bob", 6}, {"s-alice", 8},
	} {
		require.NoError(t, r.ApplyMove(m.sid, m.idx))
	}
	v = Project(r)
	assert.Equal(t, engine.Draw, *v.Winner)
	assert.Nil(t, v.WinnerName)
}

func TestDirectory_EncodesPairs(t *testing.T) {
	g, r := playingRoom(t)
	raw, err := json.Marshal(Directory(g.List()))
	require.NoError(t, err)

	var decoded []Listing
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, r.ID, decoded[0].RoomID)
	assert.Equal(t, r.ID, decoded[0].View.ID)

	var generic [][]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	require.Len(t, generic[0], 2)
}

// TestProperty_ProjectionNeverLeaksSessions projects rooms after random moves
// and disconnects and checks no player id is a session id.
func TestProperty_ProjectionNeverLeaksSessions(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		g := newTestRegistry()
		r, err := g.Create(alice, engine.TicTacToeType, Options{})
		if err != nil {
			rt.Fatal(err)
		}
		if rapid.Bool().Draw(rt, "join") {
			if _, err := g.Join(r.ID, bob, ""); err != nil {
				rt.Fatal(err)
			}
		}
		for i := rapid.IntRange(0, 12).Draw(rt, "steps"); i > 0; i-- {
			sid := rapid.SampledFrom([]string{"s-alice", "s-bob"}).Draw(rt, "sid")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_ = r.ApplyMove(sid, rapid.IntRange(0, 8).Draw(rt, "idx"))
			case 1:
				r.MarkDisconnected(sid)
			case 2:
				r.Rebind(sid, "c-"+sid)
			}
		}
		v := Project(r)
		if _, err := json.Marshal(v); err != nil {
			rt.Fatal(err)
		}
		for _, sid := range []string{"s-alice", "s-bob"} {
			for _, p := range v.Players {
				if p.ID != nil && *p.ID == sid {
					rt.Fatalf("session id %s leaked", sid)
				}
			}
		}
		if len(v.Players) < MaxMembers && v.Status != StatusWaiting {
			rt.Fatalf("status %s with %d players", v.Status, len(v.Players))
		}
	})
}
