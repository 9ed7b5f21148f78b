// Package room owns match rooms: their membership, lifecycle and the
// client-facing projection of their state.
package room

import (
	"fmt"
	"time"

	"github.com/cory-johannsen/duel/internal/game/engine"
)

// MaxMembers is the number of participants in a match.
const MaxMembers = 2

// Status is the room-level lifecycle status.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Participant identifies a session entering a room.
type Participant struct {
	ConnectionID string
	SessionID    string
	DisplayName  string
}

// Membership is one participant's seat in a room.
//
// Invariant: Symbol never changes after the seat is created.
type Membership struct {
	ConnectionID string
	SessionID    string
	DisplayName  string
	Symbol       engine.Symbol
	Connected    bool
}

// Options are the creation-time settings of a room.
//
// A private room takes Access when it is set, otherwise Code is hashed.
type Options struct {
	IsPrivate bool
	Code      string
	Access    AccessCode
}

// Room is one match. Rooms are not safe for concurrent use; callers serialize
// every access through their own mutation path.
//
// Invariant: 1 <= len(members) <= MaxMembers; status moves waiting→playing→finished
// and only returns to playing via Reset.
type Room struct {
	ID        string
	GameType  string
	IsPrivate bool
	CreatedAt time.Time

	members  []*Membership
	status   Status
	access   AccessCode
	engine   engine.Engine
}

// Status returns the room-level status.
func (r *Room) Status() Status {
	return r.status
}

// Members returns a copy of the seats in join order.
func (r *Room) Members() []Membership {
	out := make([]Membership, len(r.members))
	for i, m := range r.members {
		out[i] = *m
	}
	return out
}

// Member returns the seat held by sessionID.
func (r *Room) Member(sessionID string) (Membership, bool) {
	if m := r.member(sessionID); m != nil {
		return *m, true
	}
	return Membership{}, false
}

func (r *Room) member(sessionID string) *Membership {
	for _, m := range r.members {
		if m.SessionID == sessionID {
			return m
		}
	}
	return nil
}

// Others returns every seat not held by sessionID.
func (r *Room) Others(sessionID string) []Membership {
	var out []Membership
	for _, m := range r.members {
		if m.SessionID != sessionID {
			out = append(out, *m)
		}
	}
	return out
}

// State returns the engine snapshot.
func (r *Room) State() engine.State {
	return r.engine.State()
}

// CheckCode reports whether code opens the room. Public rooms accept any code.
// It reads only fields fixed at creation and may run concurrently with other
// access to the room.
func (r *Room) CheckCode(code string) bool {
	if !r.IsPrivate {
		return true
	}
	return r.access.Matches(code)
}

// ApplyMove places the mover's symbol at index.
//
// Precondition: status must be playing and sessionID must hold a seat.
// Postcondition: Returns ErrIllegalMove when the engine rejects the move.
// Status becomes finished when the move ends the match.
func (r *Room) ApplyMove(sessionID string, index int) error {
	if r.status != StatusPlaying {
		return fmt.Errorf("room %s is %s: %w", r.ID, r.status, ErrIllegalMove)
	}
	m := r.member(sessionID)
	if m == nil {
		return fmt.Errorf("session is not a member of room %s: %w", r.ID, ErrIllegalMove)
	}
	if !r.engine.MakeMove(index, m.Symbol) {
		return fmt.Errorf("move %d by %s: %w", index, m.Symbol, ErrIllegalMove)
	}
	if r.engine.State().Status == engine.StatusFinished {
		r.status = StatusFinished
	}
	return nil
}

// Reset starts a new match between the same members with start to move.
//
// Precondition: the room must hold two members.
// Postcondition: board empty, status playing, membership and id unchanged.
func (r *Room) Reset(start engine.Symbol) error {
	if len(r.members) < MaxMembers {
		return fmt.Errorf("room %s: %w", r.ID, ErrMatchNotReady)
	}
	r.engine.Reset(start)
	r.status = StatusPlaying
	return nil
}

// Rebind points sessionID's seat at a new live connection.
//
// Postcondition: Returns false when sessionID holds no seat.
func (r *Room) Rebind(sessionID, connID string) bool {
	m := r.member(sessionID)
	if m == nil {
		return false
	}
	m.ConnectionID = connID
	m.Connected = true
	return true
}

// MarkDisconnected clears the live connection of sessionID's seat. The seat and
// board are retained.
//
// Postcondition: Returns false when sessionID holds no seat.
func (r *Room) MarkDisconnected(sessionID string) bool {
	m := r.member(sessionID)
	if m == nil {
		return false
	}
	m.ConnectionID = ""
	m.Connected = false
	return true
}

// Result summarizes a finished match.
type Result struct {
	RoomID     string
	GameType   string
	Winner     string
	WinnerName string
	PlayerX    string
	PlayerO    string
	FinishedAt time.Time
}

// Result returns the outcome of a finished match.
//
// Postcondition: Returns false unless the room status is finished.
func (r *Room) Result(now time.Time) (Result, bool) {
	if r.status != StatusFinished {
		return Result{}, false
	}
	st := r.engine.State()
	res := Result{
		RoomID:     r.ID,
		GameType:   r.GameType,
		Winner:     st.Winner,
		FinishedAt: now,
	}
	for _, m := range r.members {
		switch m.Symbol {
		case engine.SymbolX:
			res.PlayerX = m.DisplayName
		case engine.SymbolO:
			res.PlayerO = m.DisplayName
		}
		if string(m.Symbol) == st.Winner {
			res.WinnerName = m.DisplayName
		}
	}
	return res, true
}
