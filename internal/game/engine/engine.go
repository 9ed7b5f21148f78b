// Package engine defines the pluggable turn-based rules contract embedded in
// every room, the registry mapping a game type to its constructor, and the
// tic-tac-toe reference ruleset.
package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Symbol is the mark a participant places on the board.
type Symbol string

const (
	// SymbolNone marks an empty cell or an absent turn/winner.
	SymbolNone Symbol = ""
	// SymbolX is held by the first member of a room.
	SymbolX Symbol = "X"
	// SymbolO is held by the second member of a room.
	SymbolO Symbol = "O"
)

// Draw is the winner value reported when the board fills with no completed line.
const Draw = "draw"

// Other returns the opposing symbol. SymbolNone maps to SymbolNone.
func (s Symbol) Other() Symbol {
	switch s {
	case SymbolX:
		return SymbolO
	case SymbolO:
		return SymbolX
	default:
		return SymbolNone
	}
}

// Valid reports whether s is one of the two playable symbols.
func (s Symbol) Valid() bool {
	return s == SymbolX || s == SymbolO
}

// Status is the engine-level match status.
type Status string

const (
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// State is the serializable snapshot of an engine.
//
// Winner is "" while unfinished, "X" or "O" for a completed line, or Draw.
type State struct {
	Board  []Symbol
	Status Status
	Turn   Symbol
	Winner string
}

// Engine encapsulates the rules of one two-player perfect-information turn game.
//
// Implementations are not safe for concurrent use; the room lifecycle serializes
// every call.
type Engine interface {
	// MakeMove places symbol at index.
	//
	// Postcondition: Returns true and advances the match only when the cell is
	// empty, the match is playing and symbol holds the turn.
	MakeMove(index int, symbol Symbol) bool
	// Reset reinitializes the board with start holding the first turn.
	Reset(start Symbol)
	// State returns a snapshot that shares no memory with the engine.
	State() State
}

// Factory constructs a fresh Engine ready for play.
type Factory func() Engine

// Registry maps game-type keys to engine constructors.
// All methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	names     map[string]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		names:     make(map[string]string),
	}
}

// Register adds a game type.
//
// Precondition: gameType must be non-empty; f must be non-nil.
// Postcondition: Returns an error if gameType is already registered.
func (r *Registry) Register(gameType, displayName string, f Factory) error {
	if gameType == "" {
		return fmt.Errorf("game type must not be empty")
	}
	if f == nil {
		return fmt.Errorf("game type %q: factory must not be nil", gameType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[gameType]; exists {
		return fmt.Errorf("game type %q already registered", gameType)
	}
	if displayName == "" {
		displayName = gameType
	}
	r.factories[gameType] = f
	r.names[gameType] = displayName
	return nil
}

// New constructs an engine for gameType.
//
// Postcondition: Returns (engine, true) when gameType is registered, or (nil, false).
func (r *Registry) New(gameType string) (Engine, bool) {
	r.mu.RLock()
	f, ok := r.factories[gameType]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// Has reports whether gameType is registered.
func (r *Registry) Has(gameType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[gameType]
	return ok
}

// DisplayName returns the human-readable name of gameType, or "" when unknown.
func (r *Registry) DisplayName(gameType string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[gameType]
}

// Types returns the registered game types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
