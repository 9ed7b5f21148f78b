package gameserver

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxChatTextRunes bounds the text of a single chat message.
const MaxChatTextRunes = 500

// ChatMessage is the subset of a send_message payload the server inspects.
// The payload itself is relayed verbatim.
type ChatMessage struct {
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// ParseChatMessage validates a send_message payload.
//
// Postcondition: Returns an error when roomId or text is missing or text
// exceeds MaxChatTextRunes.
func ParseChatMessage(raw json.RawMessage) (ChatMessage, error) {
	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ChatMessage{}, fmt.Errorf("decoding chat message: %w", err)
	}
	if msg.RoomID == "" {
		return ChatMessage{}, fmt.Errorf("chat message missing roomId")
	}
	if msg.Text == "" {
		return ChatMessage{}, fmt.Errorf("chat message missing text")
	}
	if utf8.RuneCountInString(msg.Text) > MaxChatTextRunes {
		return ChatMessage{}, fmt.Errorf("chat message exceeds %d characters", MaxChatTextRunes)
	}
	return msg, nil
}

// SendMessage validates raw and relays it to the other members of its room.
//
// Precondition: the session bound to connID must be a member of the named room.
func (s *Service) SendMessage(connID string, raw json.RawMessage) error {
	msg, err := ParseChatMessage(raw)
	if err != nil {
		s.logger.Debug("rejecting chat message", zap.String("connection_id", connID), zap.Error(err))
		return err
	}
	return s.RelayChat(connID, msg.RoomID, raw)
}
