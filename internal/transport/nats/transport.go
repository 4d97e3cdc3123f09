package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

const (
	SubjectRooms             = "quiz.rooms.snapshot"
	SubjectGlobalLeaderboard = "quiz.leaderboard.global"
)

func GameSubject(roomID int64) string {
	return fmt.Sprintf("quiz.rooms.%d.game", roomID)
}

func LeaderboardSubject(scope domain.LeaderboardScope) string {
	if scope.Global() {
		return SubjectGlobalLeaderboard
	}
	return fmt.Sprintf("quiz.leaderboard.room.%d", scope.RoomID)
}

// Config holds connection settings for the NATS transport.
type Config struct {
	URL           string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Transport receives snapshots published on NATS subjects. Each message body is the bare
// snapshot payload.
type Transport struct {
	nc     *nats.Conn
	logger *zap.SugaredLogger
}

func Connect(ctx context.Context, cfg Config) (*Transport, error) {
	logger := logging.FromContext(ctx).Named("nats")
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Errorw("NATS error", "error", err)
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to NATS: %w", domain.ErrTransport, err)
	}
	return &Transport{nc: nc, logger: logger}, nil
}

func (t *Transport) Close() {
	t.nc.Close()
}

func (t *Transport) SubscribeRooms(ctx context.Context) (<-chan []domain.PartialRoom, func(), error) {
	return subscribe[[]domain.PartialRoom](ctx, t, SubjectRooms)
}

func (t *Transport) SubscribeGame(ctx context.Context, roomID int64) (<-chan domain.GameEvent, func(), error) {
	return subscribe[domain.GameEvent](ctx, t, GameSubject(roomID))
}

func (t *Transport) SubscribeLeaderboard(ctx context.Context, scope domain.LeaderboardScope) (<-chan []domain.LeaderboardRow, func(), error) {
	return subscribe[[]domain.LeaderboardRow](ctx, t, LeaderboardSubject(scope))
}

func subscribe[T any](ctx context.Context, t *Transport, subject string) (<-chan T, func(), error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := t.nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: subscribe %s: %w", domain.ErrTransport, subject, err)
	}

	ctx, stop := context.WithCancel(ctx)
	out := make(chan T)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pump(ctx, msgs, out, t.logger.With("subject", subject))
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			stop()
			<-done
		})
	}
	return out, cancel, nil
}

// pump decodes messages in arrival order into out and closes it when ctx is done.
func pump[T any](ctx context.Context, msgs <-chan *nats.Msg, out chan<- T, logger *zap.SugaredLogger) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-msgs:
			var v T
			if err := json.Unmarshal(msg.Data, &v); err != nil {
				logger.Warnw("dropping malformed message", "error", err)
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}
}
