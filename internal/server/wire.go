package server

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"zvision-console/internal/auth"
	"zvision-console/internal/backend"
	"zvision-console/internal/config"
	"zvision-console/internal/detection"
	"zvision-console/internal/hub"
	"zvision-console/internal/metrics"
	"zvision-console/internal/middleware"
	"zvision-console/internal/session"
)

// sweepEvery is how often idle anonymous gates are dropped.
const sweepEvery = 5 * time.Minute

// App is a wired console ready to serve.
type App struct {
	Handler  http.Handler
	Registry *session.Registry
	Hub      *hub.Hub
	Board    *detection.Board
	Metrics  *metrics.Metrics
	// LoginLimiter is stopped by Close.
	LoginLimiter *middleware.RateLimiter

	closers []func()
}

// Close stops background work and releases storage connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// OpenRedis connects to Redis when an address is configured. A nil client means Redis is
// not in use.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, func(), error) {
	if cfg.Addr == "" {
		return nil, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, func() {}, err
	}
	return rdb, func() { _ = rdb.Close() }, nil
}

// OpenStorage picks durable credential storage: Redis, then the state file, then memory.
func OpenStorage(ctx context.Context, cfg config.Config, log *zap.Logger) (session.Storage, func(), error) {
	rdb, closeRedis, err := OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if rdb != nil {
		log.Info("credential storage", zap.String("kind", "redis"), zap.String("addr", cfg.Redis.Addr))
		return session.NewRedisStorage(rdb, cfg.SessionTTL), closeRedis, nil
	}
	if cfg.StateFile != "" {
		fs, err := session.OpenFileStorage(cfg.StateFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info("credential storage", zap.String("kind", "file"), zap.String("path", cfg.StateFile))
		return fs, func() {}, nil
	}
	log.Warn("credential storage is in memory; sessions will not survive a restart")
	return session.NewMemoryStorage(), func() {}, nil
}

// Build wires the console from configuration.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	storage, closeStorage, err := OpenStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app, err := Assemble(AssembleOptions{Config: cfg, Storage: storage, Logger: log})
	if err != nil {
		closeStorage()
		return nil, err
	}
	app.closers = append([]func(){closeStorage}, app.closers...)
	app.startSweeper(cfg.SessionTTL)
	return app, nil
}

type AssembleOptions struct {
	Config  config.Config
	Storage session.Storage
	Logger  *zap.Logger
	// RequestID overrides request id generation in tests.
	RequestID func() string
}

// Assemble builds the console around the given storage without starting background work.
func Assemble(opts AssembleOptions) (*App, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	m := metrics.New()
	h := hub.New()
	client := backend.New(backend.Options{
		BaseURL:  cfg.BackendURL,
		Timeout:  cfg.BackendTimeout,
		Observer: m.ObserveBackend,
	})

	registry := session.NewRegistry(session.RegistryOptions{
		Storage:       opts.Storage,
		Authenticator: client,
		Logger:        log.Named("session"),
		Notify: func(sid string, ev session.Event) {
			if ev.Type == session.EventExpired {
				m.ForcedLogouts.Inc()
			}
			if err := h.Publish(sid, hub.Message{Type: string(ev.Type)}); err != nil {
				log.Warn("publish session event", zap.Error(err))
			}
		},
	})

	board := detection.NewBoard()
	board.OnChange = func(cameraID string, st detection.State) {
		if err := h.Publish("", hub.Message{Type: "detection", CameraID: cameraID, Body: st}); err != nil {
			log.Warn("publish detection change", zap.Error(err))
		}
	}

	tokens := auth.DefaultTokenConfig(cfg.ConsoleSecret)
	if cfg.SessionTTL > 0 {
		tokens.Expiry = cfg.SessionTTL
	}
	loginLimit := cfg.LoginRateLimit
	if loginLimit <= 0 {
		loginLimit = 10
	}
	limiter := middleware.NewRateLimiter(loginLimit, time.Minute)

	cookies := session.DefaultCookiePolicy()
	cookies.ForceSecure = cfg.CookieSecure

	router := NewRouter(Deps{
		Backend:      client,
		Registry:     registry,
		Board:        board,
		Hub:          h,
		Metrics:      m,
		Logger:       log,
		TokenConfig:  tokens,
		Cookies:      cookies,
		LoginLimiter: limiter,
		RequestID:    opts.RequestID,
	})

	return &App{
		Handler:      router,
		Registry:     registry,
		Hub:          h,
		Board:        board,
		Metrics:      m,
		LoginLimiter: limiter,
		closers:      []func(){limiter.Stop},
	}, nil
}

func (a *App) startSweeper(idle time.Duration) {
	if idle <= 0 {
		idle = time.Hour
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				a.Registry.Sweep(idle)
			}
		}
	}()
	a.closers = append(a.closers, func() { close(done) })
}
