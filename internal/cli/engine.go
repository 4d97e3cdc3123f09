package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/auth"
	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/bolt"
	"quiz-session-engine/internal/infra/memory"
	"quiz-session-engine/internal/infra/postgres"
	redisstore "quiz-session-engine/internal/infra/redis"
	"quiz-session-engine/internal/logging"
	natstransport "quiz-session-engine/internal/transport/nats"
	"quiz-session-engine/internal/transport/rest"
	"quiz-session-engine/internal/transport/ws"
)

// engine holds the collaborators every participant command shares.
type engine struct {
	cfg       config.Config
	identity  domain.Identity
	api       *rest.Client
	transport app.PushTransport
	store     app.LocalStore
	questions app.QuestionSource
	rooms     *app.RoomSnapshotStore
	resolver  *app.ReconnectionResolver

	closers []func()
}

func newEngine(ctx context.Context, cfg config.Config) (*engine, error) {
	logger := logging.FromContext(ctx)

	identity, err := auth.IdentityFromToken(cfg.API.Token)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}
	e := &engine{cfg: cfg, identity: identity}

	restOpts := []rest.Option{
		rest.WithHTTPClient(&http.Client{Timeout: config.Duration(cfg.API.Timeout, 10*time.Second)}),
		rest.WithLogger(logger.Named("rest")),
	}
	if cfg.API.Retries > 0 {
		restOpts = append(restOpts, rest.WithRetries(uint64(cfg.API.Retries), 200*time.Millisecond))
	}
	e.api = rest.NewClient(cfg.API.BaseURL, identity.Token, restOpts...)

	if err := e.openTransport(ctx); err != nil {
		e.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Store.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		e.closers = append(e.closers, func() { _ = redisClient.Close() })
	}

	if err := e.openStore(ctx, redisClient); err != nil {
		e.Close()
		return nil, err
	}

	questionTTL := config.Duration(cfg.Cache.QuestionTTL, 10*time.Minute)
	if redisClient != nil {
		e.questions = redisstore.NewQuestionCache(redisClient, e.api, questionTTL)
	} else {
		cache, err := memory.NewQuestionCache(e.api, cfg.Cache.Size, questionTTL, clockwork.NewRealClock())
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("question cache: %w", err)
		}
		e.questions = cache
	}

	e.rooms = app.NewRoomSnapshotStore(logger.Named("rooms"))
	e.resolver = app.NewReconnectionResolver(e.store, logger.Named("resolver"))
	logger.Debugw("engine ready", "user_id", identity.UserID,
		"transport", cfg.Transport.Kind, "store", cfg.Store.Backend)
	return e, nil
}

func (e *engine) openTransport(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	switch e.cfg.Transport.Kind {
	case "nats":
		natsCfg := natstransport.DefaultConfig()
		if e.cfg.Transport.NATSURL != "" {
			natsCfg.URL = e.cfg.Transport.NATSURL
		}
		t, err := natstransport.Connect(ctx, natsCfg)
		if err != nil {
			return err
		}
		e.transport = t
		e.closers = append(e.closers, t.Close)
	default:
		e.transport = ws.NewClient(e.cfg.Transport.WSURL, e.identity.Token, ws.WithLogger(logger.Named("ws")))
	}
	return nil
}

func (e *engine) openStore(ctx context.Context, redisClient *redis.Client) error {
	switch e.cfg.Store.Backend {
	case "bolt":
		store, err := bolt.Open(ctx, e.cfg.Store.BoltPath)
		if err != nil {
			return fmt.Errorf("open bolt store: %w", err)
		}
		e.store = store
		e.closers = append(e.closers, func() { _ = store.Close(context.Background()) })
	case "redis":
		e.store = redisstore.NewLocalStore(redisClient, config.Duration(e.cfg.Store.Redis.TTL, 24*time.Hour))
	case "postgres":
		if err := runMigrations(ctx, e.cfg.Store.Postgres.URL); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, e.cfg.Store.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		e.store = postgres.NewProgressStore(pool)
		e.closers = append(e.closers, pool.Close)
	default:
		e.store = memory.NewLocalStore()
	}
	return nil
}

func (e *engine) lobby(ctx context.Context) *app.Lobby {
	return app.NewLobby(e.api, e.rooms, e.resolver, e.identity,
		app.WithLobbyLogger(logging.FromContext(ctx).Named("lobby")),
		app.WithParticipantPoll(config.Duration(e.cfg.Session.ParticipantPoll, 5*time.Second)),
	)
}

func (e *engine) controller(ctx context.Context, hook func(app.Transition)) *app.Controller {
	logger := logging.FromContext(ctx)
	submitter := app.NewAnswerSubmitter(e.api, e.store, e.identity, logger.Named("submitter"))
	opts := []app.ControllerOption{
		app.WithLogger(logger.Named("session")),
		app.WithSettleDelay(config.Duration(e.cfg.Session.SettleDelay, 800*time.Millisecond)),
		app.WithDefaultTimePerQuestion(e.cfg.Session.DefaultTimePerQuestion),
		app.WithQuestionSource(e.questions),
	}
	if hook != nil {
		opts = append(opts, app.WithTransitionHook(hook))
	}
	return app.NewController(e.api, e.transport, submitter, e.resolver, e.identity, opts...)
}

// Close releases connections in reverse order of opening.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
