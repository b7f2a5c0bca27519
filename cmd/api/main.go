package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/mythicmate/internal/api/http"
	"github.com/spec-kit/mythicmate/internal/api/http/handlers"
	"github.com/spec-kit/mythicmate/internal/auth"
	"github.com/spec-kit/mythicmate/internal/config"
	"github.com/spec-kit/mythicmate/internal/domain"
	"github.com/spec-kit/mythicmate/internal/events"
	"github.com/spec-kit/mythicmate/internal/gateway"
	"github.com/spec-kit/mythicmate/internal/group"
	"github.com/spec-kit/mythicmate/internal/observability"
	"github.com/spec-kit/mythicmate/internal/persistence"
	"github.com/spec-kit/mythicmate/internal/repository"
	"github.com/spec-kit/mythicmate/internal/service"
	"github.com/spec-kit/mythicmate/internal/worker"
)

func main() {
	fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			observability.NewMetrics,
			newDispatcher,
			newStores,
			newRunRepository,
			newLeaderboardCache,
			newRegistry,
			newBridge,
			newReactionRouter,
			newReminderScheduler,
			newGroupService,
			newStatsService,
			newNotificationService,
			newSweeper,
			newTokenManager,
			auth.NewAuthMiddleware,
			newHealthHandler,
			handlers.NewGroupsHandler,
			handlers.NewStatsHandler,
			handlers.NewGatewayHandler,
			newFiberServer,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			bindGateway,
			startEventWorkers,
			registerRoutes,
			startServer,
		),
	).Run()
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

func newDispatcher(logger *zap.Logger) events.Dispatcher {
	return events.NewInMemoryDispatcher(logger)
}

// stores holds the optional backing stores. Only the ones the stats driver
// and cache need are opened.
type stores struct {
	postgres *persistence.Postgres
	sqlite   *persistence.SQLite
	redis    *persistence.Redis
}

func newStores(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{}
	switch cfg.Stats.Driver {
	case config.StatsDriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		st.postgres = pg
	case config.StatsDriverSQLite:
		db, err := persistence.NewSQLite(cfg.SQLite, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		st.sqlite = db
	}
	if cfg.Stats.Driver != config.StatsDriverNone && cfg.Redis.Addr != "" {
		st.redis = persistence.NewRedis(cfg.Redis, logger)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			st.redis.Close()
			st.sqlite.Close()
			st.postgres.Close()
			return nil
		},
	})
	return st, nil
}

func newRunRepository(cfg *config.Config, st *stores) (repository.RunRepository, error) {
	switch {
	case st.postgres != nil:
		return repository.NewRunRepository(st.postgres.PoolHandle()), nil
	case st.sqlite != nil:
		return repository.NewSQLiteRunRepository(st.sqlite.Handle())
	case cfg.Stats.Driver == config.StatsDriverNone:
		return repository.NoopRunRepository{}, nil
	}
	return nil, errors.New("no stats store configured")
}

func newLeaderboardCache(st *stores) repository.LeaderboardCache {
	if st.redis == nil {
		return repository.NewRedisLeaderboardCache(nil)
	}
	return repository.NewRedisLeaderboardCache(st.redis.Client)
}

func newRegistry(cfg *config.Config) *group.Registry {
	return group.NewRegistry(cfg.Coordinator.LaneBuffer)
}

func newBridge(cfg *config.Config, logger *zap.Logger) *gateway.Bridge {
	return gateway.NewBridge(cfg.Gateway.CallTimeout, logger.Named("gateway"))
}

func newReactionRouter(cfg *config.Config, registry *group.Registry, bridge *gateway.Bridge, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *service.ReactionRouter {
	return service.NewReactionRouter(service.RouterConfig{
		BotIdentity:        domain.Identity(cfg.Coordinator.BotUserID),
		PromotionNoticeTTL: cfg.Coordinator.PromotionNoticeTTL,
		FallbackTTL:        cfg.Coordinator.ReminderFallbackTTL,
		JobTimeout:         cfg.Gateway.CallTimeout * 3,
	}, service.RouterDependencies{
		Registry:   registry,
		Platform:   bridge,
		Dispatcher: dispatcher,
		Logger:     logger.Named("router"),
		Metrics:    metrics,
	})
}

func newReminderScheduler(cfg *config.Config, bridge *gateway.Bridge, logger *zap.Logger, metrics *observability.Metrics) *service.ReminderScheduler {
	return service.NewReminderScheduler(service.ReminderConfig{
		Lead:        cfg.Coordinator.ReminderLead,
		FallbackTTL: cfg.Coordinator.ReminderFallbackTTL,
	}, nil, bridge, logger.Named("reminder"), metrics)
}

func newGroupService(cfg *config.Config, registry *group.Registry, bridge *gateway.Bridge, router *service.ReactionRouter, reminders *service.ReminderScheduler, dispatcher events.Dispatcher, logger *zap.Logger) *service.GroupService {
	return service.NewGroupService(service.GroupConfig{
		Capacities: cfg.Coordinator.Capacities(),
		MaxBackups: cfg.Coordinator.MaxBackupsPerRole,
		MaxAge:     cfg.Coordinator.GroupMaxAge,
	}, service.GroupDependencies{
		Registry:   registry,
		Platform:   bridge,
		Router:     router,
		Reminders:  reminders,
		Dispatcher: dispatcher,
		Logger:     logger.Named("groups"),
	})
}

func newStatsService(cfg *config.Config, runs repository.RunRepository, cache repository.LeaderboardCache, dispatcher events.Dispatcher, logger *zap.Logger) *service.StatsService {
	return service.NewStatsService(service.StatsConfig{
		CacheTTL: cfg.Stats.CacheTTL(),
	}, service.StatsDependencies{
		Runs:       runs,
		Cache:      cache,
		Dispatcher: dispatcher,
		Logger:     logger.Named("stats"),
	})
}

func newNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *service.NotificationService {
	return service.NewNotificationService(dispatcher, logger.Named("events"), metrics)
}

func newSweeper(cfg *config.Config, groups *service.GroupService, logger *zap.Logger) *worker.Sweeper {
	return worker.NewSweeper(cfg.Coordinator.SweepSchedule, groups, logger.Named("sweeper"))
}

func newTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
}

func newHealthHandler(cfg *config.Config, st *stores, bridge *gateway.Bridge) *handlers.HealthHandler {
	checks := map[string]handlers.Pinger{}
	if st.postgres != nil {
		checks["postgres"] = st.postgres
	}
	if st.sqlite != nil {
		checks["sqlite"] = st.sqlite
	}
	if st.redis != nil {
		checks["redis"] = st.redis
	}
	return handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks, bridge.Connected)
}

func newFiberServer(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	return app
}

func bindGateway(bridge *gateway.Bridge, router *service.ReactionRouter, groups *service.GroupService) {
	bridge.Bind(router, groups)
}

func startEventWorkers(notifications *service.NotificationService, stats *service.StatsService) {
	worker.StartEventWorkers(notifications, stats)
}

func registerRoutes(
	app *fiber.App,
	health *handlers.HealthHandler,
	groups *handlers.GroupsHandler,
	stats *handlers.StatsHandler,
	gw *handlers.GatewayHandler,
	authMiddleware *auth.AuthMiddleware,
) {
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         health,
		Groups:         groups,
		Stats:          stats,
		Gateway:        gw,
		AuthMiddleware: authMiddleware,
	})
}

// startServer runs the HTTP server and the sweeper. On stop it refuses new
// work first, then drops live groups and waits for background jobs.
func startServer(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	app *fiber.App,
	cfg *config.Config,
	logger *zap.Logger,
	sweeper *worker.Sweeper,
	groups *service.GroupService,
	reminders *service.ReminderScheduler,
	stats *service.StatsService,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := sweeper.Start(); err != nil {
				return err
			}
			go func() {
				logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
				if err := app.Listen(cfg.App.Addr()); err != nil {
					logger.Error("fiber listen", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := app.ShutdownWithContext(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			sweeper.Stop()
			dropped := groups.Drain()
			reminders.Wait()
			stats.Wait()
			logger.Info("shutdown complete", zap.Int("dropped_groups", dropped))
			return nil
		},
	})
}
