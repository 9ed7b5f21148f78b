package gameserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/game/grace"
	"github.com/cory-johannsen/duel/internal/game/random"
	"github.com/cory-johannsen/duel/internal/game/room"
	"github.com/cory-johannsen/duel/internal/game/session"
)

// DefaultDisplayName is used when join_lobby carries no name.
const DefaultDisplayName = "Player"

// Config holds the match settings of a Service.
type Config struct {
	// GraceWindow is how long a disconnected member keeps their seat.
	GraceWindow time.Duration
	// IdleWindow is how long a disconnected session outlives its room.
	// Zero means GraceWindow.
	IdleWindow time.Duration
	// DefaultGameType is used when create_room names no game type.
	DefaultGameType string
}

// Service coordinates sessions, rooms and grace timers.
//
// Every mutation of the session and room registries runs under mu, including
// grace-timer expiry, so events for one room are emitted in mutation order.
type Service struct {
	mu       sync.Mutex
	cfg      Config
	sessions *session.Manager
	rooms    *room.Registry
	grace    *grace.Scheduler
	dispatch *Dispatcher
	random   random.Source
	history  *HistoryWriter
	now      func() time.Time
	logger   *zap.Logger

	// hashCode and checkCode run bcrypt and are never called with mu held.
	hashCode  func(code string) (room.AccessCode, error)
	checkCode func(r *room.Room, code string) bool
}

// NewService creates a Service with the given dependencies.
//
// Precondition: sessions, rooms, sched, dispatch, src and logger must be non-nil.
// history may be nil (finished matches are not recorded).
func NewService(
	cfg Config,
	sessions *session.Manager,
	rooms *room.Registry,
	sched *grace.Scheduler,
	dispatch *Dispatcher,
	src random.Source,
	history *HistoryWriter,
	logger *zap.Logger,
) *Service {
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = cfg.GraceWindow
	}
	return &Service{
		cfg:      cfg,
		sessions: sessions,
		rooms:    rooms,
		grace:    sched,
		dispatch: dispatch,
		random:   src,
		history:  history,
		now:      time.Now,
		logger:   logger,

		hashCode:  rooms.HashAccessCode,
		checkCode: (*room.Room).CheckCode,
	}
}

// Attach registers a newly accepted connection. When sessionID names a known
// session the session is resumed: its grace timer is cancelled, its seat is
// rebound, and the connection is brought up to date.
//
// Precondition: out must be a fresh outbox for a connection id not yet attached.
// Postcondition: The connection receives lobby broadcasts until Disconnect.
func (s *Service) Attach(sessionID string, out *session.Outbox) {
	s.mu.Lock()
	defer s.mu.Unlock()

	connID := out.ConnectionID()
	s.dispatch.Register(out)

	if sessionID == "" {
		return
	}
	b, err := s.sessions.Resume(connID, sessionID)
	if err != nil {
		s.logger.Debug("connection attached without known session",
			zap.String("connection_id", connID),
		)
		return
	}
	s.resumeLocked(b, connID)

	if r, ok := s.currentRoomLocked(b.Session); ok {
		view := room.Project(r)
		s.dispatch.Send(connID, EventGameStart, view)
		s.dispatch.Send(connID, EventUpdateGame, view)
	} else {
		s.dispatch.Send(connID, EventLobbyJoined, nil)
	}
	s.dispatch.Send(connID, EventRoomsUpdate, s.directoryLocked())
}

// resumeLocked applies the side effects of rebinding a known session to connID.
// Caller must hold s.mu.
func (s *Service) resumeLocked(b session.Binding, connID string) {
	sess := b.Session
	if b.Superseded != "" {
		s.logger.Info("connection superseded by resume",
			zap.String("session_id", sess.SessionID),
			zap.String("connection_id", b.Superseded),
		)
		s.dispatch.Close(b.Superseded)
	}
	if s.grace.Cancel(sess.SessionID) {
		s.logger.Info("session resumed within grace window",
			zap.String("session_id", sess.SessionID),
			zap.String("room_id", sess.RoomID),
		)
	}
	r, ok := s.currentRoomLocked(sess)
	if !ok {
		return
	}
	if m, _ := r.Member(sess.SessionID); m.Connected && m.ConnectionID == connID {
		return
	}
	r.Rebind(sess.SessionID, connID)
	s.dispatch.SendRoom(r, sess.SessionID, EventPlayerReconnected, Presence{
		PlayerID: connID,
		Name:     sess.DisplayName,
	})
}

// currentRoomLocked resolves the session's room, clearing a stale reference.
// Caller must hold s.mu.
func (s *Service) currentRoomLocked(sess session.PlayerSession) (*room.Room, bool) {
	if sess.RoomID == "" {
		return nil, false
	}
	r, ok := s.rooms.Get(sess.RoomID)
	if !ok {
		s.sessions.ClearRoom(sess.SessionID)
		return nil, false
	}
	if _, member := r.Member(sess.SessionID); !member {
		s.sessions.ClearRoom(sess.SessionID)
		return nil, false
	}
	return r, true
}

// JoinLobby registers or resumes sessionID on connID under name.
//
// Postcondition: The connection receives lobby_joined followed by rooms_update.
func (s *Service) JoinLobby(connID, sessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultDisplayName
	}
	b, err := s.sessions.RegisterOrResume(connID, sessionID, name)
	if err != nil {
		return fmt.Errorf("joining lobby: %w", err)
	}
	if b.Resumed {
		s.resumeLocked(b, connID)
	}
	s.logger.Info("player joined lobby",
		zap.String("session_id", sessionID),
		zap.String("connection_id", connID),
		zap.String("name", name),
		zap.Bool("resumed", b.Resumed),
	)
	s.dispatch.Send(connID, EventLobbyJoined, nil)
	s.dispatch.Send(connID, EventRoomsUpdate, s.directoryLocked())
	return nil
}

// CreateRoom opens a room hosted by the session bound to connID.
//
// Postcondition: On success the host receives room_joined and the lobby
// receives rooms_update. On failure the host receives join_error.
func (s *Service) CreateRoom(connID string, req CreateRoomRequest) error {
	opts := room.Options{IsPrivate: req.IsPrivate}
	var hashErr error
	if req.IsPrivate && req.Code != "" {
		opts.Access, hashErr = s.hashCode(req.Code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.createLocked(connID, req.GameType, opts, hashErr)
	if err != nil {
		s.sendJoinError(connID, err)
		return err
	}
	s.dispatch.Send(connID, EventRoomJoined, room.Project(r))
	s.broadcastLobbyLocked()
	return nil
}

func (s *Service) createLocked(connID, gameType string, opts room.Options, hashErr error) (*room.Room, error) {
	sess, err := s.sessionLocked(connID)
	if err != nil {
		return nil, err
	}
	if _, in := s.currentRoomLocked(sess); in {
		return nil, room.ErrAlreadyInRoom
	}
	if hashErr != nil {
		return nil, fmt.Errorf("creating room: %w", hashErr)
	}
	if gameType == "" {
		gameType = s.cfg.DefaultGameType
	}
	r, err := s.rooms.Create(participant(sess), gameType, opts)
	if err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}
	if err := s.sessions.SetRoom(sess.SessionID, r.ID); err != nil {
		s.rooms.Remove(r.ID)
		return nil, err
	}
	s.logger.Info("room created",
		zap.String("room_id", r.ID),
		zap.String("game_type", gameType),
		zap.String("session_id", sess.SessionID),
		zap.Bool("private", r.IsPrivate),
	)
	return r, nil
}

// JoinRoom seats the session bound to connID in an existing room.
//
// Postcondition: On success both members receive game_start and the lobby
// receives rooms_update. On failure the joiner receives join_error.
func (s *Service) JoinRoom(connID string, req JoinRoomRequest) error {
	granted := s.grantAccess(req.RoomID, req.Code)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.joinLocked(connID, req.RoomID, granted)
	if err != nil {
		s.sendJoinError(connID, err)
		return err
	}
	s.dispatch.SendRoom(r, "", EventGameStart, room.Project(r))
	s.broadcastLobbyLocked()
	return nil
}

// grantAccess checks code against roomID without holding mu. Rooms that are
// missing or public are granted; Admit reports their state under mu.
func (s *Service) grantAccess(roomID, code string) bool {
	r, ok := s.rooms.Get(roomID)
	if !ok || !r.IsPrivate {
		return true
	}
	return s.checkCode(r, code)
}

func (s *Service) joinLocked(connID, roomID string, granted bool) (*room.Room, error) {
	sess, err := s.sessionLocked(connID)
	if err != nil {
		return nil, err
	}
	if _, in := s.currentRoomLocked(sess); in {
		return nil, room.ErrAlreadyInRoom
	}
	r, err := s.rooms.Admit(roomID, participant(sess), granted)
	if err != nil {
		return nil, fmt.Errorf("joining room: %w", err)
	}
	if err := s.sessions.SetRoom(sess.SessionID, r.ID); err != nil {
		return nil, err
	}
	s.logger.Info("room joined",
		zap.String("room_id", r.ID),
		zap.String("session_id", sess.SessionID),
	)
	return r, nil
}

// MakeMove applies a move by the session bound to connID.
//
// Postcondition: A legal move is followed by update_game to the room, or by
// game_over plus a lobby rooms_update when it ends the match. Illegal or stale
// moves emit nothing.
func (s *Service) MakeMove(connID string, req MoveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, r, err := s.memberRoomLocked(connID, req.RoomID)
	if err != nil {
		s.logger.Debug("ignoring move", zap.String("connection_id", connID), zap.Error(err))
		return err
	}
	if err := r.ApplyMove(sess.SessionID, req.Index); err != nil {
		s.logger.Debug("illegal move",
			zap.String("room_id", r.ID),
			zap.String("session_id", sess.SessionID),
			zap.Int("index", req.Index),
			zap.Error(err),
		)
		return err
	}

	view := room.Project(r)
	if r.Status() != room.StatusFinished {
		s.dispatch.SendRoom(r, "", EventUpdateGame, view)
		return nil
	}
	s.dispatch.SendRoom(r, "", EventGameOver, room.GameOverOf(view))
	s.broadcastLobbyLocked()
	if res, ok := r.Result(s.now()); ok {
		s.logger.Info("match finished",
			zap.String("room_id", r.ID),
			zap.String("winner", res.Winner),
		)
		if s.history != nil {
			s.history.Record(res)
		}
	}
	return nil
}

// PlayAgain resets the match in roomID with a random starting symbol.
//
// Precondition: the session bound to connID must be a member of roomID.
// Postcondition: The room receives game_reset and the lobby rooms_update.
func (s *Service) PlayAgain(connID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, r, err := s.memberRoomLocked(connID, roomID)
	if err != nil {
		s.logger.Debug("ignoring reset", zap.String("connection_id", connID), zap.Error(err))
		return err
	}
	if err := r.Reset(random.StartingSymbol(s.random)); err != nil {
		s.logger.Debug("reset rejected", zap.String("room_id", roomID), zap.Error(err))
		return err
	}
	s.dispatch.SendRoom(r, "", EventGameReset, room.Project(r))
	s.broadcastLobbyLocked()
	return nil
}

// LeaveRoom destroys the room of the session bound to connID. A session with
// no room is left untouched.
func (s *Service) LeaveRoom(connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessionLocked(connID)
	if err != nil {
		return err
	}
	if sess.RoomID == "" {
		return nil
	}
	s.logger.Info("player left room",
		zap.String("room_id", sess.RoomID),
		zap.String("session_id", sess.SessionID),
	)
	s.destroyRoomLocked(sess.RoomID, sess.SessionID)
	return nil
}

// RelayChat forwards msg verbatim as chat_message to the other members of
// roomID.
//
// Precondition: the session bound to connID must be a member of roomID.
func (s *Service) RelayChat(connID, roomID string, msg json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, r, err := s.memberRoomLocked(connID, roomID)
	if err != nil {
		s.logger.Debug("ignoring chat", zap.String("connection_id", connID), zap.Error(err))
		return err
	}
	s.dispatch.SendRoom(r, sess.SessionID, EventChatMessage, msg)
	return nil
}

// Disconnect handles the loss of connID. A session without a room is dropped;
// a room member keeps their seat for the grace window.
func (s *Service) Disconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dispatch.Unregister(connID)
	sess, ok := s.sessions.Detach(connID)
	if !ok {
		return
	}
	r, in := s.currentRoomLocked(sess)
	if !in {
		s.sessions.Drop(sess.SessionID)
		s.logger.Debug("session dropped on disconnect", zap.String("session_id", sess.SessionID))
		return
	}

	r.MarkDisconnected(sess.SessionID)
	s.dispatch.SendRoom(r, sess.SessionID, EventPlayerDisconnected, Presence{
		PlayerID: connID,
		Name:     sess.DisplayName,
	})
	sid := sess.SessionID
	s.grace.Schedule(sid, s.cfg.GraceWindow, func(token uint64) {
		s.expire(sid, token)
	})
	s.logger.Info("player disconnected, grace window started",
		zap.String("session_id", sid),
		zap.String("room_id", r.ID),
		zap.Duration("grace_window", s.cfg.GraceWindow),
	)
}

// expire forfeits sessionID's seat when token is still its current timer.
func (s *Service) expire(sessionID string, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.grace.Claim(sessionID, token) {
		return
	}
	sess, ok := s.sessions.Get(sessionID)
	if !ok || sess.RoomID == "" {
		return
	}
	s.logger.Info("grace window expired, forfeiting",
		zap.String("session_id", sessionID),
		zap.String("room_id", sess.RoomID),
	)
	s.destroyRoomLocked(sess.RoomID, sessionID)
}

// destroyRoomLocked removes roomID, releases every member and notifies the
// members other than departed. Caller must hold s.mu.
func (s *Service) destroyRoomLocked(roomID, departed string) {
	r, ok := s.rooms.Remove(roomID)
	if !ok {
		s.releaseLocked(departed)
		return
	}
	for _, m := range r.Members() {
		s.releaseLocked(m.SessionID)
	}
	s.dispatch.SendRoom(r, departed, EventPlayerLeft, nil)
	s.broadcastLobbyLocked()
}

// releaseLocked returns sessionID to the lobby. A session with no live
// connection is kept for the idle window, so a reconnect still lands in the
// lobby, and is dropped when that window ends. Caller must hold s.mu.
func (s *Service) releaseLocked(sessionID string) {
	s.grace.Cancel(sessionID)
	s.sessions.ClearRoom(sessionID)
	sess, ok := s.sessions.Get(sessionID)
	if !ok || sess.Connected() {
		return
	}
	s.grace.Schedule(sessionID, s.cfg.IdleWindow, func(token uint64) {
		s.expireIdle(sessionID, token)
	})
}

// expireIdle drops sessionID when token is still its current timer and the
// session is still roomless and disconnected.
func (s *Service) expireIdle(sessionID string, token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.grace.Claim(sessionID, token) {
		return
	}
	sess, ok := s.sessions.Get(sessionID)
	if !ok || sess.Connected() || sess.RoomID != "" {
		return
	}
	s.sessions.Drop(sessionID)
	s.logger.Debug("idle session dropped", zap.String("session_id", sessionID))
}

// Directory returns the lobby listing.
func (s *Service) Directory() []room.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.directoryLocked()
}

func (s *Service) directoryLocked() []room.Listing {
	return room.Directory(s.rooms.List())
}

func (s *Service) broadcastLobbyLocked() {
	s.dispatch.SendLobby(EventRoomsUpdate, s.directoryLocked())
}

// Close stops every outstanding grace timer.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grace.StopAll()
}

func (s *Service) sessionLocked(connID string) (session.PlayerSession, error) {
	sess, ok := s.sessions.ByConnection(connID)
	if !ok {
		return session.PlayerSession{}, fmt.Errorf("connection %s: %w", connID, session.ErrUnknownSession)
	}
	return sess, nil
}

// memberRoomLocked resolves connID's session and requires it to sit in roomID.
func (s *Service) memberRoomLocked(connID, roomID string) (session.PlayerSession, *room.Room, error) {
	sess, err := s.sessionLocked(connID)
	if err != nil {
		return session.PlayerSession{}, nil, err
	}
	r, ok := s.currentRoomLocked(sess)
	if !ok || r.ID != roomID {
		return session.PlayerSession{}, nil, fmt.Errorf("room %q: %w", roomID, room.ErrRoomNotFound)
	}
	return sess, r, nil
}

func (s *Service) sendJoinError(connID string, err error) {
	s.logger.Debug("join rejected", zap.String("connection_id", connID), zap.Error(err))
	s.dispatch.Send(connID, EventJoinError, JoinError{
		Message:   joinErrorMessage(err),
		IsPrivate: errors.Is(err, room.ErrAccessDenied),
	})
}

// joinErrorMessage maps err to the client-facing message of its sentinel.
func joinErrorMessage(err error) string {
	for _, known := range []error{
		room.ErrRoomNotFound,
		room.ErrRoomNotJoinable,
		room.ErrRoomFull,
		room.ErrAccessDenied,
		room.ErrUnknownGameType,
		room.ErrAccessCodeRequired,
		room.ErrAlreadyInRoom,
		session.ErrUnknownSession,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "unable to join room"
}

func participant(sess session.PlayerSession) room.Participant {
	return room.Participant{
		ConnectionID: sess.ConnectionID,
		SessionID:    sess.SessionID,
		DisplayName:  sess.DisplayName,
	}
}
