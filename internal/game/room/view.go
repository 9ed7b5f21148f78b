package room

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/duel/internal/game/engine"
)

// PlayerView is the client-facing projection of a seat.
type PlayerView struct {
	ID        *string `json:"id"`
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Connected bool    `json:"connected"`
}

// View is the client-facing projection of a room. It never carries the
// access code or any session id.
type View struct {
	ID         string       `json:"id"`
	GameType   string       `json:"gameType"`
	Players    []PlayerView `json:"players"`
	Board      []*string    `json:"board"`
	Turn       *string      `json:"turn"`
	Status     Status       `json:"status"`
	Winner     *string      `json:"winner"`
	WinnerName *string      `json:"winnerName"`
	IsPrivate  bool         `json:"isPrivate"`
}

// GameOver is the payload announcing a finished match.
type GameOver struct {
	Winner     *string   `json:"winner"`
	WinnerName *string   `json:"winnerName"`
	Board      []*string `json:"board"`
}

// Project derives the client-facing view of r. It has no side effects.
//
// Postcondition: Turn is the live connection of the seat holding the turn
// symbol, or nil when that seat is disconnected or absent. Status reads
// waiting while fewer than MaxMembers seats are filled.
func Project(r *Room) View {
	st := r.engine.State()

	v := View{
		ID:        r.ID,
		GameType:  r.GameType,
		Players:   make([]PlayerView, 0, len(r.members)),
		Board:     make([]*string, len(st.Board)),
		Status:    r.status,
		IsPrivate: r.IsPrivate,
	}
	for _, m := range r.members {
		v.Players = append(v.Players, PlayerView{
			ID:        optional(m.ConnectionID),
			Name:      m.DisplayName,
			Symbol:    string(m.Symbol),
			Connected: m.Connected,
		})
		if m.Symbol == st.Turn && m.Connected {
			v.Turn = optional(m.ConnectionID)
		}
		if st.Winner != "" && string(m.Symbol) == st.Winner {
			v.WinnerName = optional(m.DisplayName)
		}
	}
	for i, c := range st.Board {
		v.Board[i] = optional(string(c))
	}
	if len(r.members) < MaxMembers {
		v.Status = StatusWaiting
	}
	if st.Status == engine.StatusFinished {
		v.Winner = optional(st.Winner)
	}
	return v
}

// GameOverOf extracts the game_over payload from a view.
func GameOverOf(v View) GameOver {
	return GameOver{Winner: v.Winner, WinnerName: v.WinnerName, Board: v.Board}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Listing is one lobby directory entry, encoded as a [roomId, view] pair.
type Listing struct {
	RoomID string
	View   View
}

// MarshalJSON implements json.Marshaler.
func (l Listing) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{l.RoomID, l.View})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Listing) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("listing: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &l.RoomID); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &l.View)
}

// Directory projects every room into lobby listings, preserving order.
func Directory(rooms []*Room) []Listing {
	out := make([]Listing, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, Listing{RoomID: r.ID, View: Project(r)})
	}
	return out
}
