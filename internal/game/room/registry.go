package room

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/duel/internal/game/engine"
)

// Registry tracks every live room.
// The room map is safe for concurrent use; the rooms it hands out are not.
//
// Invariant: room ids are unique for the lifetime of the process.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	engines  *engine.Registry
	codeCost int
	now      func() time.Time
}

// NewRegistry creates an empty Registry.
//
// Precondition: engines must be non-nil; codeCost must be a valid bcrypt cost.
func NewRegistry(engines *engine.Registry, codeCost int) *Registry {
	return &Registry{
		rooms:    make(map[string]*Room),
		engines:  engines,
		codeCost: codeCost,
		now:      time.Now,
	}
}

// Create opens a waiting room with host seated as X.
//
// Precondition: host.SessionID must be non-empty.
// Postcondition: Returns ErrUnknownGameType when gameType has no engine and
// ErrAccessCodeRequired for a private room without a code.
func (g *Registry) Create(host Participant, gameType string, opts Options) (*Room, error) {
	if host.SessionID == "" {
		return nil, fmt.Errorf("host session id must be non-empty")
	}
	eng, ok := g.engines.New(gameType)
	if !ok {
		return nil, fmt.Errorf("game type %q: %w", gameType, ErrUnknownGameType)
	}
	access := opts.Access
	if opts.IsPrivate && access.IsZero() {
		a, err := g.HashAccessCode(opts.Code)
		if err != nil {
			return nil, err
		}
		access = a
	}
	if !opts.IsPrivate {
		access = AccessCode{}
	}

	r := &Room{
		ID:        uuid.NewString(),
		GameType:  gameType,
		IsPrivate: opts.IsPrivate,
		CreatedAt: g.now(),
		members:   []*Membership{seat(host, engine.SymbolX)},
		status:    StatusWaiting,
		access:    access,
		engine:    eng,
	}

	g.mu.Lock()
	g.rooms[r.ID] = r
	g.mu.Unlock()
	return r, nil
}

func seat(p Participant, sym engine.Symbol) *Membership {
	return &Membership{
		ConnectionID: p.ConnectionID,
		SessionID:    p.SessionID,
		DisplayName:  p.DisplayName,
		Symbol:       sym,
		Connected:    p.ConnectionID != "",
	}
}

// Join seats guest as O and starts the match, checking code itself.
//
// Postcondition: On success status is playing and the room has two members.
func (g *Registry) Join(roomID string, guest Participant, code string) (*Room, error) {
	granted := true
	if r, ok := g.Get(roomID); ok {
		granted = r.CheckCode(code)
	}
	return g.Admit(roomID, guest, granted)
}

// Admit seats guest as O and starts the match. granted is the result of a
// CheckCode the caller made beforehand, outside any lock it holds.
//
// Validation order: the room exists, is waiting, has a free seat, and is
// granted when private.
//
// Postcondition: On success status is playing and the room has two members.
func (g *Registry) Admit(roomID string, guest Participant, granted bool) (*Room, error) {
	g.mu.RLock()
	r, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("room %q: %w", roomID, ErrRoomNotFound)
	}
	if r.status != StatusWaiting {
		return nil, fmt.Errorf("room %q: %w", roomID, ErrRoomNotJoinable)
	}
	if len(r.members) >= MaxMembers {
		return nil, fmt.Errorf("room %q: %w", roomID, ErrRoomFull)
	}
	if r.IsPrivate && !granted {
		return nil, fmt.Errorf("room %q: %w", roomID, ErrAccessDenied)
	}
	r.members = append(r.members, seat(guest, engine.SymbolO))
	r.status = StatusPlaying
	return r, nil
}

// Get returns the room with the given id.
func (g *Registry) Get(roomID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// Remove destroys the room with the given id.
//
// Postcondition: Returns the removed room, or false when it did not exist.
func (g *Registry) Remove(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if ok {
		delete(g.rooms, roomID)
	}
	return r, ok
}

// List returns every room ordered by creation time.
func (g *Registry) List() []*Room {
	g.mu.RLock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of live rooms.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}
