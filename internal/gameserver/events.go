package gameserver

import (
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventJoinLobby   = "join_lobby"
	EventCreateRoom  = "create_room"
	EventJoinRoom    = "join_room"
	EventMakeMove    = "make_move"
	EventPlayAgain   = "play_again"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
)

// Outbound event names.
const (
	EventLobbyJoined        = "lobby_joined"
	EventRoomsUpdate        = "rooms_update"
	EventRoomJoined         = "room_joined"
	EventGameStart          = "game_start"
	EventUpdateGame         = "update_game"
	EventGameOver           = "game_over"
	EventGameReset          = "game_reset"
	EventJoinError          = "join_error"
	EventPlayerLeft         = "player_left"
	EventPlayerDisconnected = "player_disconnected_temporary"
	EventPlayerReconnected  = "player_reconnected"
	EventChatMessage        = "chat_message"
)

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps data in an Envelope and serializes it.
//
// Postcondition: data == nil yields an envelope without a data field.
func Encode(event string, data any) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// CreateRoomRequest is the create_room payload.
type CreateRoomRequest struct {
	GameType  string `json:"gameType"`
	IsPrivate bool   `json:"isPrivate"`
	Code      string `json:"code"`
}

// JoinRoomRequest is the join_room payload.
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// MoveRequest is the make_move payload.
type MoveRequest struct {
	RoomID string `json:"roomId"`
	Index  int    `json:"index"`
}

// JoinError is the join_error payload.
type JoinError struct {
	Message   string `json:"message"`
	IsPrivate bool   `json:"isPrivate,omitempty"`
}

// Presence is the payload of player_disconnected_temporary and player_reconnected.
type Presence struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}
