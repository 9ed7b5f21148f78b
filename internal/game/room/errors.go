package room

import "errors"

var (
	// ErrRoomNotFound is returned when a room id does not resolve.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a room already holds two members.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomNotJoinable is returned when a room is no longer waiting for an opponent.
	ErrRoomNotJoinable = errors.New("room is already playing")
	// ErrAccessDenied is returned when a private room's access code does not match.
	ErrAccessDenied = errors.New("invalid room code")
	// ErrUnknownGameType is returned when no engine is registered for a game type.
	ErrUnknownGameType = errors.New("unknown game type")
	// ErrAccessCodeRequired is returned when a private room is created without a code.
	ErrAccessCodeRequired = errors.New("private rooms require an access code")
	// ErrAlreadyInRoom is returned when a session that is already a member tries to create or join.
	ErrAlreadyInRoom = errors.New("already in a room")
	// ErrMatchNotReady is returned when a reset is requested with fewer than two members.
	ErrMatchNotReady = errors.New("match needs two players")
	// ErrIllegalMove is returned when the engine rejects a move or the mover is not a member.
	ErrIllegalMove = errors.New("illegal move")
)
