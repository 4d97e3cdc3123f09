package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

// LeaderboardFeed keeps the latest leaderboard for one scope. Each snapshot replaces the
// rows wholesale; rows are never merged or re-sorted.
type LeaderboardFeed struct {
	api       API
	transport PushTransport
	scope     domain.LeaderboardScope
	logger    *zap.SugaredLogger

	mu     sync.RWMutex
	rows   []domain.LeaderboardRow
	pushed bool
	feed   *broadcaster[[]domain.LeaderboardRow]
}

func NewLeaderboardFeed(api API, transport PushTransport, scope domain.LeaderboardScope, logger *zap.SugaredLogger) *LeaderboardFeed {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &LeaderboardFeed{
		api:       api,
		transport: transport,
		scope:     scope,
		logger:    logger.With("room_id", scope.RoomID),
		feed:      newBroadcaster[[]domain.LeaderboardRow](),
	}
}

// Run subscribes to pushed snapshots, fetches the initial rows and applies both until ctx
// is done or the stream closes. A fetched result arriving after the first push is dropped.
func (f *LeaderboardFeed) Run(ctx context.Context) error {
	snapshots, cancel, err := f.transport.SubscribeLeaderboard(ctx, f.scope)
	if err != nil {
		return err
	}
	defer cancel()

	fetched := make(chan []domain.LeaderboardRow, 1)
	go func() {
		rows, err := f.api.Leaderboard(ctx, f.scope)
		if err != nil {
			f.logger.Warnw("fetch leaderboard failed", "error", err)
			return
		}
		fetched <- rows
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rows := <-fetched:
			f.applyFetched(rows)
		case rows, ok := <-snapshots:
			if !ok {
				f.logger.Warnw("leaderboard stream closed")
				return domain.ErrTransport
			}
			f.applyPushed(rows)
		}
	}
}

func (f *LeaderboardFeed) applyFetched(rows []domain.LeaderboardRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushed {
		f.logger.Debugw("dropping fetched leaderboard, push already applied")
		return
	}
	f.replaceLocked(rows)
}

func (f *LeaderboardFeed) applyPushed(rows []domain.LeaderboardRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = true
	f.replaceLocked(rows)
}

func (f *LeaderboardFeed) replaceLocked(rows []domain.LeaderboardRow) {
	f.rows = append([]domain.LeaderboardRow(nil), rows...)
	f.feed.publish(f.copyLocked())
}

// Rows returns the current rows in server order.
func (f *LeaderboardFeed) Rows() []domain.LeaderboardRow {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.copyLocked()
}

func (f *LeaderboardFeed) copyLocked() []domain.LeaderboardRow {
	return append([]domain.LeaderboardRow(nil), f.rows...)
}

// Subscribe returns a channel of leaderboard snapshots. The caller must invoke cancel.
func (f *LeaderboardFeed) Subscribe() (<-chan []domain.LeaderboardRow, func()) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.feed.subscribe(f.copyLocked())
}
