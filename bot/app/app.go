// Package app assembles the reservation bot from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/reservebot/bot/availability"
	"github.com/m3rciful/reservebot/bot/config"
	"github.com/m3rciful/reservebot/bot/conversation"
	"github.com/m3rciful/reservebot/bot/handlers"
	"github.com/m3rciful/reservebot/bot/storage"
	"github.com/m3rciful/reservebot/bot/sweeper"
	"github.com/m3rciful/reservebot/core/bootstrap"
	"github.com/m3rciful/reservebot/core/logger"
	coretelegram "github.com/m3rciful/reservebot/core/telegram"
	"github.com/m3rciful/reservebot/core/telegram/router"
	tgsender "github.com/m3rciful/reservebot/core/telegram/sender"
)

// App holds the wired components of a running bot.
type App struct {
	cfg   *config.Config
	store config.Store
	infra *bootstrap.Result
	redis *redis.Client

	states       storage.StateStore
	reservations storage.ReservationStore
	machine      *conversation.Machine
	handlers     *handlers.Handlers
	sweeper      *sweeper.Sweeper
}

// Bootstrap initializes logging, storage and the conversation for cfg.
// The memory backend keeps reservations in memory too and skips Postgres entirely.
func Bootstrap(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	store, err := cfg.Store.Build()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, store: store}
	inMemory := cfg.State.Backend == config.BackendMemory

	var checks []bootstrap.Check
	if cfg.State.Backend == config.BackendRedis {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		checks = append(checks, bootstrap.Check{
			Name: "redis",
			Run:  func(ctx context.Context) error { return a.redis.Ping(ctx).Err() },
		})
	}

	infra, err := bootstrap.Run(bootstrap.Options{
		Config:       cfg.CoreConfig(),
		Database:     cfg.Database,
		SkipDatabase: inMemory,
		Checks:       checks,
	})
	if err != nil {
		_ = a.closeRedis()
		return nil, err
	}
	a.infra = infra

	a.states, a.reservations = a.buildStores(infra.DB)
	a.machine = conversation.New(a.states, a.reservations, availability.New(store, a.reservations), store)
	a.handlers = handlers.New(a.machine, store.Location)

	if cfg.State.Backend != config.BackendRedis && cfg.State.SweepSchedule != "" && cfg.State.TTL > 0 {
		a.sweeper, err = sweeper.New(a.states, cfg.State.SweepSchedule, cfg.State.TTL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	logger.Info(context.Background(), logger.CompApp, "bootstrap",
		slog.String("status", "ok"),
		slog.String("state_backend", cfg.State.Backend),
		slog.String("capacity_scope", string(store.Scope)),
		slog.Int("max_per_slot", store.MaxPerSlot),
		slog.Bool("atomic_insert", store.AtomicInsert),
		slog.String("timezone", store.Location.String()),
		slog.Bool("sweeper", a.sweeper != nil),
	)
	return a, nil
}

func (a *App) buildStores(db *sqlx.DB) (storage.StateStore, storage.ReservationStore) {
	switch a.cfg.State.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStateStore(), storage.NewMemoryReservationStore()
	case config.BackendRedis:
		return storage.NewRedisStateStore(a.redis, a.cfg.Redis.KeyPrefix, a.cfg.State.TTL), storage.NewPostgresReservationStore(db)
	default:
		return storage.NewPostgresStateStore(db), storage.NewPostgresReservationStore(db)
	}
}

// TelegramRunOptions builds the registry, routes and lifecycle hooks for the Telegram runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()

	reg := coretelegram.NewRegistry()
	if err := a.handlers.Register(reg); err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       core.Telegram.AdminID,
		OnAdminReject: a.handlers.OnAdminReject,
	})
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))

	return coretelegram.RunOptions{
		Config:   core,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			QueueSize:    256,
			Workers:      4,
			MaxRetries:   3,
			RetryBackoff: time.Second,
		},
		Middlewares: coretelegram.DefaultMiddlewares(core, a.handlers.OnRateLimited),
		Routes:      routes,
		OnStart: func(context.Context, coretelegram.Runtime) error {
			if a.sweeper != nil {
				a.sweeper.Start()
			}
			return nil
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			if a.sweeper != nil {
				stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				a.sweeper.Stop(stopCtx)
			}
			return nil
		},
	}, nil
}

// Close releases the database pool and the Redis client.
func (a *App) Close() error {
	var errs []error
	if a.infra != nil {
		if err := a.infra.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if err := a.closeRedis(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) closeRedis() error {
	if a.redis == nil {
		return nil
	}
	err := a.redis.Close()
	a.redis = nil
	return err
}
