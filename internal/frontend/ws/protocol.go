package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/gameserver"
)

// MaxSessionIDLength bounds the handshake sessionId.
const MaxSessionIDLength = 128

// ValidateSessionID checks a handshake sessionId: 1 to MaxSessionIDLength
// printable characters.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("sessionId is required")
	}
	if !utf8.ValidString(id) || utf8.RuneCountInString(id) > MaxSessionIDLength {
		return fmt.Errorf("sessionId must be at most %d characters", MaxSessionIDLength)
	}
	for _, r := range id {
		if !unicode.IsPrint(r) {
			return errors.New("sessionId must be printable")
		}
	}
	return nil
}

// dispatch decodes one inbound envelope and forwards it to the handler.
// Malformed frames are logged and dropped.
func (c *Conn) dispatch(msg []byte) {
	var env gameserver.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Debug("malformed frame", zap.Error(err))
		return
	}
	if err := c.route(env); err != nil {
		c.logger.Debug("event not applied",
			zap.String("event", env.Event),
			zap.Error(err),
		)
	}
}

func (c *Conn) route(env gameserver.Envelope) error {
	switch env.Event {
	case gameserver.EventJoinLobby:
		name, err := decodeName(env.Data)
		if err != nil {
			return err
		}
		return c.handler.JoinLobby(c.id, c.sessionID, name)

	case gameserver.EventCreateRoom:
		req, err := decodeCreateRoom(env.Data)
		if err != nil {
			return err
		}
		return c.handler.CreateRoom(c.id, req)

	case gameserver.EventJoinRoom:
		var req gameserver.JoinRoomRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return fmt.Errorf("decoding join_room: %w", err)
		}
		return c.handler.JoinRoom(c.id, req)

	case gameserver.EventMakeMove:
		req, err := decodeMove(env.Data)
		if err != nil {
			return err
		}
		return c.handler.MakeMove(c.id, req)

	case gameserver.EventPlayAgain:
		roomID, err := decodeRoomID(env.Data)
		if err != nil {
			return err
		}
		return c.handler.PlayAgain(c.id, roomID)

	case gameserver.EventLeaveRoom:
		return c.handler.LeaveRoom(c.id)

	case gameserver.EventSendMessage:
		return c.handler.SendMessage(c.id, env.Data)

	default:
		return fmt.Errorf("unknown event %q", env.Event)
	}
}

// decodeName accepts either a bare string or {"name": ...}.
func decodeName(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return name, nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("decoding join_lobby: %w", err)
	}
	return obj.Name, nil
}

// decodeCreateRoom accepts an object, a bare game type string, or nothing.
func decodeCreateRoom(data json.RawMessage) (gameserver.CreateRoomRequest, error) {
	var req gameserver.CreateRoomRequest
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req.GameType); err == nil {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decoding create_room: %w", err)
	}
	return req, nil
}

func decodeMove(data json.RawMessage) (gameserver.MoveRequest, error) {
	var raw struct {
		RoomID string `json:"roomId"`
		Index  *int   `json:"index"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return gameserver.MoveRequest{}, fmt.Errorf("decoding make_move: %w", err)
	}
	if raw.Index == nil {
		return gameserver.MoveRequest{}, errors.New("make_move missing index")
	}
	return gameserver.MoveRequest{RoomID: raw.RoomID, Index: *raw.Index}, nil
}

// decodeRoomID accepts either a bare room id string or {"roomId": ...}.
func decodeRoomID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, nil
	}
	var obj struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", fmt.Errorf("decoding room id: %w", err)
	}
	return obj.RoomID, nil
}
