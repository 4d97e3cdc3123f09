package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 30 * time.Second
	maxMessageSize      = 1 << 20
)

// Client is a push transport over websockets. Every subscription owns one connection,
// announces itself with a single message and then receives envelopes of one type in order.
type Client struct {
	url    string
	token  string
	dialer *websocket.Dialer
	logger *zap.SugaredLogger

	writeTimeout time.Duration
	readTimeout  time.Duration
	pingInterval time.Duration
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeouts overrides write deadline, read deadline and ping period.
func WithTimeouts(write, read, ping time.Duration) Option {
	return func(c *Client) {
		c.writeTimeout, c.readTimeout, c.pingInterval = write, read, ping
	}
}

func NewClient(url, token string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		token:        token,
		dialer:       websocket.DefaultDialer,
		logger:       logging.DefaultLogger(),
		writeTimeout: defaultWriteTimeout,
		readTimeout:  defaultReadTimeout,
		pingInterval: defaultPingInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type roomPayload struct {
	RoomID int64 `json:"roomId"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (c *Client) SubscribeRooms(ctx context.Context) (<-chan []domain.PartialRoom, func(), error) {
	return subscribe[[]domain.PartialRoom](ctx, c, outbound{Type: "subscribe_rooms"}, "rooms_snapshot", nil)
}

// SubscribeGame joins a room's game stream. Server "error" envelopes are delivered as
// events carrying Error.
func (c *Client) SubscribeGame(ctx context.Context, roomID int64) (<-chan domain.GameEvent, func(), error) {
	onError := func(raw json.RawMessage) (domain.GameEvent, bool) {
		var p errorPayload
		if err := json.Unmarshal(raw, &p); err != nil || p.Message == "" {
			return domain.GameEvent{Error: "game error"}, true
		}
		return domain.GameEvent{Error: p.Message}, true
	}
	return subscribe(ctx, c, outbound{Type: "join_game", Payload: roomPayload{RoomID: roomID}}, "game_state", onError)
}

func (c *Client) SubscribeLeaderboard(ctx context.Context, scope domain.LeaderboardScope) (<-chan []domain.LeaderboardRow, func(), error) {
	if scope.Global() {
		return subscribe[[]domain.LeaderboardRow](ctx, c, outbound{Type: "subscribe_global_leaderboard"}, "global_leaderboard_snapshot", nil)
	}
	hello := outbound{Type: "subscribe_leaderboard", Payload: roomPayload{RoomID: scope.RoomID}}
	return subscribe[[]domain.LeaderboardRow](ctx, c, hello, "leaderboard_snapshot", nil)
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// subscribe dials, sends hello and pumps envelopes of type want into the returned channel
// until ctx is done, cancel is called or the connection drops. The channel is then closed.
func subscribe[T any](ctx context.Context, c *Client, hello outbound, want string, onError func(json.RawMessage) (T, bool)) (<-chan T, func(), error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: dial %s: %w", domain.ErrTransport, c.url, err)
	}
	id := uuid.NewString()
	logger := c.logger.With("connection_id", id, "stream", want)

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: send %s: %w", domain.ErrTransport, hello.Type, err)
	}
	logger.Debugw("subscribed", "hello", hello.Type)

	ctx, stop := context.WithCancel(ctx)
	out := make(chan T)
	readerDone := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				deadline := time.Now().Add(c.writeTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
					logger.Debugw("ping failed", "error", err)
					stop()
				}
			}
		}
	}()

	go func() {
		defer close(readerDone)
		defer close(out)
		defer stop()

		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		})

		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warnw("connection lost", "error", err)
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))

			var v T
			switch {
			case env.Type == want:
				if err := json.Unmarshal(env.Payload, &v); err != nil {
					logger.Warnw("dropping malformed payload", "type", env.Type, "error", err)
					continue
				}
			case env.Type == "error" && onError != nil:
				var ok bool
				if v, ok = onError(env.Payload); !ok {
					continue
				}
			default:
				logger.Debugw("ignoring message", "type", env.Type)
				continue
			}

			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			<-readerDone
			logger.Debugw("unsubscribed")
		})
	}
	return out, cancel, nil
}
