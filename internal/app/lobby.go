package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

const defaultParticipantPoll = 5 * time.Second

// LobbyOption customizes a Lobby.
type LobbyOption func(*Lobby)

func WithLobbyClock(clock clockwork.Clock) LobbyOption {
	return func(l *Lobby) { l.clock = clock }
}

func WithLobbyLogger(logger *zap.SugaredLogger) LobbyOption {
	return func(l *Lobby) { l.logger = logger }
}

// WithParticipantPoll sets how often WatchParticipants refreshes the list.
func WithParticipantPoll(d time.Duration) LobbyOption {
	return func(l *Lobby) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// Lobby covers everything before a session: listing, joining and waiting.
type Lobby struct {
	api      API
	rooms    *RoomSnapshotStore
	resolver *ReconnectionResolver
	identity domain.Identity

	clock        clockwork.Clock
	logger       *zap.SugaredLogger
	pollInterval time.Duration
}

func NewLobby(api API, rooms *RoomSnapshotStore, resolver *ReconnectionResolver, identity domain.Identity, opts ...LobbyOption) *Lobby {
	l := &Lobby{
		api:          api,
		rooms:        rooms,
		resolver:     resolver,
		identity:     identity,
		clock:        clockwork.NewRealClock(),
		logger:       logging.DefaultLogger(),
		pollInterval: defaultParticipantPoll,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Refresh fetches the full room list and seeds the snapshot store with it.
func (l *Lobby) Refresh(ctx context.Context) ([]domain.Room, error) {
	rooms, err := l.api.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return l.rooms.Seed(rooms), nil
}

// Join validates and performs a room join. Hosts cannot join their own room and private
// rooms need a password. The room's start time is cached for the waiting countdown.
func (l *Lobby) Join(ctx context.Context, roomID int64, password string) (domain.Room, error) {
	room, ok := l.rooms.Get(roomID)
	if !ok || room.Provisional {
		info, err := l.api.RoomInfo(ctx, roomID)
		if err != nil {
			return domain.Room{}, fmt.Errorf("load room: %w", err)
		}
		l.rooms.Seed([]domain.Room{info.Room})
		room = info.Room
		if merged, found := l.rooms.Get(roomID); found {
			room = merged
		}
	}

	if l.identity.UserID != 0 && room.HostID == l.identity.UserID {
		return room, domain.ErrHostCannotJoin
	}
	if !room.IsPublic() && password == "" {
		return room, domain.ErrPasswordRequired
	}

	if err := l.api.JoinRoom(ctx, roomID, password); err != nil {
		return room, fmt.Errorf("join room: %w", err)
	}
	if room.StartTime != nil {
		l.resolver.RememberStartTime(ctx, roomID, *room.StartTime)
	}
	l.logger.Infow("joined room", "room_id", roomID, "user_id", l.identity.UserID)
	return room, nil
}

func (l *Lobby) Leave(ctx context.Context, roomID int64) error {
	if err := l.api.LeaveRoom(ctx, roomID); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	l.resolver.ForgetStartTime(ctx, roomID)
	l.logger.Infow("left room", "room_id", roomID, "user_id", l.identity.UserID)
	return nil
}

// WatchParticipants calls fn with the participant list now and on every poll interval
// until ctx is done. Failed polls are logged and skipped.
func (l *Lobby) WatchParticipants(ctx context.Context, roomID int64, fn func([]domain.Participant)) error {
	poll := func() {
		participants, err := l.api.Participants(ctx, roomID)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Warnw("poll participants failed", "room_id", roomID, "error", err)
			}
			return
		}
		fn(participants)
	}

	poll()
	ticker := l.clock.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			poll()
		}
	}
}

// Status returns the participant's progress in each room.
func (l *Lobby) Status(ctx context.Context, roomIDs []int64) ([]domain.RoomProgress, error) {
	progress, err := l.api.MyStatus(ctx, roomIDs)
	if err != nil {
		return nil, fmt.Errorf("load status: %w", err)
	}
	return progress, nil
}

// Countdown renders the time until the room's start. The cached start time is used when the
// room record does not carry one.
func (l *Lobby) Countdown(ctx context.Context, room domain.Room) (string, bool) {
	start := room.StartTime
	if start == nil {
		cached, ok := l.resolver.StartTime(ctx, room.ID)
		if !ok {
			return "", false
		}
		start = &cached
	}
	return FormatCountdown(*start, l.clock.Now()), true
}
