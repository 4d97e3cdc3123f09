package app

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

// ReconnectionResolver reads provisional progress from the durable store on session
// (re)entry. Values it returns are overwritten once the server answers. Absence of data,
// and store failures, fall through to the default initial state.
type ReconnectionResolver struct {
	store  LocalStore
	logger *zap.SugaredLogger
}

func NewReconnectionResolver(store LocalStore, logger *zap.SugaredLogger) *ReconnectionResolver {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &ReconnectionResolver{store: store, logger: logger}
}

// StartTime returns the cached absolute start time of a room.
func (r *ReconnectionResolver) StartTime(ctx context.Context, roomID int64) (time.Time, bool) {
	raw, ok := r.get(ctx, StartTimeKey(roomID))
	if !ok {
		return time.Time{}, false
	}
	t, ok := domain.ParseTimestamp(raw)
	if !ok {
		r.logger.Debugw("ignoring unparseable start time", "room_id", roomID, "value", raw)
	}
	return t, ok
}

// RememberStartTime caches a room's start time for later countdown display.
func (r *ReconnectionResolver) RememberStartTime(ctx context.Context, roomID int64, start time.Time) {
	if err := r.store.Set(ctx, StartTimeKey(roomID), start.Format(time.RFC3339)); err != nil {
		r.logger.Warnw("cache start time failed", "room_id", roomID, "error", err)
	}
}

// ForgetStartTime drops a room's cached start time once it can no longer be shown.
func (r *ReconnectionResolver) ForgetStartTime(ctx context.Context, roomID int64) {
	err := r.store.Delete(ctx, StartTimeKey(roomID))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		r.logger.Warnw("forget start time failed", "room_id", roomID, "error", err)
	}
}

// SelectionFor returns the option stored for a question by an earlier submit.
func (r *ReconnectionResolver) SelectionFor(ctx context.Context, roomID, questionID int64) (int, bool) {
	raw, ok := r.get(ctx, ProgressKey(roomID, questionID))
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		r.logger.Debugw("ignoring unparseable stored selection", "room_id", roomID, "question_id", questionID, "value", raw)
		return 0, false
	}
	return idx, true
}

func (r *ReconnectionResolver) get(ctx context.Context, key string) (string, bool) {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warnw("read local store failed", "key", key, "error", err)
		}
		return "", false
	}
	return raw, true
}
