package app

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

// ApplySnapshot merges a partial room broadcast into known rooms. Only fields the snapshot
// carries are overwritten; rooms missing from the snapshot are kept; new rooms are
// appended to order as provisional entries. Entries without an id are skipped. known is not
// modified.
func ApplySnapshot(known map[int64]domain.Room, order []int64, incoming []domain.PartialRoom) (map[int64]domain.Room, []int64) {
	merged := make(map[int64]domain.Room, len(known)+len(incoming))
	for id, room := range known {
		merged[id] = room
	}
	nextOrder := append([]int64(nil), order...)

	for _, partial := range incoming {
		if partial.ID == 0 {
			continue
		}
		existing, ok := merged[partial.ID]
		if !ok {
			existing = domain.Room{ID: partial.ID, Provisional: true}
			nextOrder = append(nextOrder, partial.ID)
		}
		merged[partial.ID] = mergePartial(existing, partial)
	}
	return merged, nextOrder
}

func mergePartial(room domain.Room, p domain.PartialRoom) domain.Room {
	if p.Title != nil {
		room.Title = *p.Title
	}
	if p.Status != nil {
		room.Status = room.Status.Advance(*p.Status)
	}
	if p.ParticipantCount != nil {
		room.ParticipantCount = *p.ParticipantCount
	}
	if p.Countdown != nil {
		c := *p.Countdown
		room.Countdown = &c
	}
	if p.IsPublic != nil {
		room.Visibility = domain.VisibilityPrivate
		if *p.IsPublic {
			room.Visibility = domain.VisibilityPublic
		}
	}
	if p.CoverPhotoURL != nil {
		room.CoverPhotoURL = *p.CoverPhotoURL
	}
	return room
}

// mergeFull folds a fetched full record into what is known. Empty fields in the fetched
// record do not erase known ones and status never regresses.
func mergeFull(known, fetched domain.Room) domain.Room {
	status := known.Status.Advance(fetched.Status)
	merged := fetched
	if merged.Code == "" {
		merged.Code = known.Code
	}
	if merged.Visibility == "" {
		merged.Visibility = known.Visibility
	}
	if merged.CoverPhotoURL == "" {
		merged.CoverPhotoURL = known.CoverPhotoURL
	}
	if merged.StartTime == nil {
		merged.StartTime = known.StartTime
	}
	if merged.Countdown == nil {
		merged.Countdown = known.Countdown
	}
	if merged.Title == "" {
		merged.Title = known.Title
	}
	merged.Status = status
	merged.Provisional = false
	return merged
}

// RoomSnapshotStore keeps a stable, insertion-ordered room collection fed by repeated
// partial broadcasts.
type RoomSnapshotStore struct {
	mu     sync.RWMutex
	rooms  map[int64]domain.Room
	order  []int64
	feed   *broadcaster[[]domain.Room]
	logger *zap.SugaredLogger
}

func NewRoomSnapshotStore(logger *zap.SugaredLogger) *RoomSnapshotStore {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &RoomSnapshotStore{
		rooms:  make(map[int64]domain.Room),
		feed:   newBroadcaster[[]domain.Room](),
		logger: logger,
	}
}

// Seed folds fully fetched room records into the store.
func (s *RoomSnapshotStore) Seed(rooms []domain.Room) []domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range rooms {
		known, ok := s.rooms[room.ID]
		if !ok {
			s.order = append(s.order, room.ID)
		}
		s.rooms[room.ID] = mergeFull(known, room)
	}
	return s.publishLocked()
}

// Apply merges one partial broadcast and returns the resulting ordered list.
func (s *RoomSnapshotStore) Apply(incoming []domain.PartialRoom) []domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms, s.order = ApplySnapshot(s.rooms, s.order, incoming)
	return s.publishLocked()
}

// Rooms returns the rooms in order of first appearance.
func (s *RoomSnapshotStore) Rooms() []domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *RoomSnapshotStore) Get(roomID int64) (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

// Filter returns rooms whose title or code contains query, case-insensitively.
func (s *RoomSnapshotStore) Filter(query string) []domain.Room {
	rooms := s.Rooms()
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return rooms
	}
	matched := rooms[:0]
	for _, room := range rooms {
		if strings.Contains(strings.ToLower(room.Title), query) || strings.Contains(strings.ToLower(room.Code), query) {
			matched = append(matched, room)
		}
	}
	return matched
}

// Subscribe returns a channel of ordered room lists. The caller must invoke cancel.
func (s *RoomSnapshotStore) Subscribe() (<-chan []domain.Room, func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed.subscribe(s.listLocked())
}

// Watch feeds room-list broadcasts from transport into the store until ctx is done.
func (s *RoomSnapshotStore) Watch(ctx context.Context, transport PushTransport) error {
	snapshots, cancel, err := transport.SubscribeRooms(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	s.logger.Infow("watching room list")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snapshot, ok := <-snapshots:
			if !ok {
				s.logger.Warnw("room list stream closed")
				return domain.ErrTransport
			}
			s.Apply(snapshot)
		}
	}
}

func (s *RoomSnapshotStore) listLocked() []domain.Room {
	rooms := make([]domain.Room, 0, len(s.order))
	for _, id := range s.order {
		rooms = append(rooms, s.rooms[id])
	}
	return rooms
}

func (s *RoomSnapshotStore) publishLocked() []domain.Room {
	rooms := s.listLocked()
	s.feed.publish(rooms)
	return rooms
}
