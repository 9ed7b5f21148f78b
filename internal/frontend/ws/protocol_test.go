package ws

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/duel/internal/gameserver"
)

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("abc-123"))
	assert.NoError(t, ValidateSessionID(strings.Repeat("a", MaxSessionIDLength)))
	assert.Error(t, ValidateSessionID(""))
	assert.Error(t, ValidateSessionID(strings.Repeat("a", MaxSessionIDLength+1)))
	assert.Error(t, ValidateSessionID("bad\nid"))
	assert.Error(t, ValidateSessionID(string([]byte{0xff, 0xfe})))
}

func TestDecodeName(t *testing.T) {
	name, err := decodeName(json.RawMessage(`"Alice"`))
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	name, err = decodeName(json.RawMessage(`{"name":"Bob"}`))
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)

	name, err = decodeName(nil)
	require.NoError(t, err)
	assert.Empty(t, name)

	_, err = decodeName(json.RawMessage(`42`))
	assert.Error(t, err)
}

func TestDecodeCreateRoom(t *testing.T) {
	req, err := decodeCreateRoom(json.RawMessage(`{"gameType":"tictactoe","isPrivate":true,"code":"1234"}`))
	require.NoError(t, err)
	assert.Equal(t, gameserver.CreateRoomRequest{GameType: "tictactoe", IsPrivate: true, Code: "1234"}, req)

	req, err = decodeCreateRoom(json.RawMessage(`"tictactoe"`))
	require.NoError(t, err)
	assert.Equal(t, "tictactoe", req.GameType)
	assert.False(t, req.IsPrivate)

	req, err = decodeCreateRoom(nil)
	require.NoError(t, err)
	assert.Empty(t, req.GameType)

	_, err = decodeCreateRoom(json.RawMessage(`[1]`))
	assert.Error(t, err)
}

func TestDecodeMoveRequiresIndex(t *testing.T) {
	req, err := decodeMove(json.RawMessage(`{"roomId":"r1","index":0}`))
	require.NoError(t, err)
	assert.Equal(t, gameserver.MoveRequest{RoomID: "r1", Index: 0}, req)

	_, err = decodeMove(json.RawMessage(`{"roomId":"r1"}`))
	assert.Error(t, err)

	_, err = decodeMove(json.RawMessage(`{"roomId":"r1","index":"4"}`))
	assert.Error(t, err)
}

func TestDecodeRoomID(t *testing.T) {
	id, err := decodeRoomID(json.RawMessage(`"r1"`))
	require.NoError(t, err)
	assert.Equal(t, "r1", id)

	id, err = decodeRoomID(json.RawMessage(`{"roomId":"r2"}`))
	require.NoError(t, err)
	assert.Equal(t, "r2", id)

	_, err = decodeRoomID(json.RawMessage(`true`))
	assert.Error(t, err)
}

func TestProperty_DecodeMoveKeepsIndex(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		idx := rapid.IntRange(-100, 100).Draw(t, "index")
		raw, err := json.Marshal(map[string]any{"roomId": "r", "index": idx})
		if err != nil {
			t.Fatal(err)
		}
		req, err := decodeMove(raw)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if req.Index != idx {
			t.Fatalf("index %d decoded as %d", idx, req.Index)
		}
	})
}
