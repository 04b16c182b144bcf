package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/learnhub/internal/api"
	"github.com/charlesng35/learnhub/internal/app"
	"github.com/charlesng35/learnhub/internal/app/maintenance"
	iauth "github.com/charlesng35/learnhub/internal/auth"
	"github.com/charlesng35/learnhub/internal/cache"
	"github.com/charlesng35/learnhub/internal/changefeed"
	"github.com/charlesng35/learnhub/internal/database"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/monitoring"
	"github.com/charlesng35/learnhub/internal/monitoring/checks"
	"github.com/charlesng35/learnhub/internal/notifications"
	"github.com/charlesng35/learnhub/internal/realtime"
	"github.com/charlesng35/learnhub/internal/reminders"
	"github.com/charlesng35/learnhub/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Store         cache.Store
	Redis         *cache.RedisStore
	Feed          *changefeed.Feed[models.Notification]
	Notifications *notifications.Service
	Reminders     *reminders.Service
	Hub           *realtime.Hub
	Bridge        *realtime.Bridge
	Cleaner       *maintenance.Cleaner
	Health        *monitoring.HealthManager
	Router        *gin.Engine
}

// bootstrapRuntime initialises the database, durable store, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Store = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to the database store", zap.Error(err))
			stack.Redis = nil
		} else {
			stack.Store = stack.Redis
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Feed = changefeed.New[models.Notification](notifications.Table,
		changefeed.WithBuffer(cfg.Notifications.FeedBuffer),
	)

	stack.Notifications, err = notifications.NewService(stack.DB, stack.Feed)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	stack.Hub = realtime.NewHub(
		realtime.WithAllowedOrigins(cfg.Realtime.AllowedOrigins...),
		realtime.WithSendBuffer(cfg.Realtime.SendBuffer),
	)
	stack.Bridge = realtime.NewBridge(stack.Hub, stack.Feed)

	stack.Reminders, err = reminders.NewService(stack.DB,
		reminders.WithBroadcaster(stack.Hub),
		reminders.WithHideExpired(cfg.Reminders.HideExpired),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise reminder service: %w", err)
	}

	// Redis expires keys itself; only the database store needs sweeping.
	var purger maintenance.CachePurger
	if stack.Redis == nil {
		purger = dbStore
	}
	stack.Cleaner = maintenance.NewCleaner(stack.Notifications, purger,
		maintenance.WithRetentionDays(cfg.Notifications.RetentionDays),
		maintenance.WithNotificationSchedule(cfg.Notifications.CleanupSchedule),
		maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Health = newHealthManager(cfg, stack)

	stack.Router, err = api.NewRouter(api.Dependencies{
		JWT:            jwtSvc,
		Notifications:  stack.Notifications,
		Reminders:      stack.Reminders,
		Store:          stack.Store,
		Hub:            stack.Hub,
		Health:         stack.Health,
		WriteRateLimit: cfg.Server.WriteRateLimit,
		FallbackData:   cfg.Features.FallbackData.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func newHealthManager(cfg *app.Config, stack *runtimeStack) *monitoring.HealthManager {
	var redis checks.RedisPinger
	if stack.Redis != nil {
		redis = stack.Redis
	}

	manager := monitoring.NewHealthManager(0)
	manager.Register(
		checks.Database(stack.DB, 0),
		checks.Redis(redis, cfg.Cache.Redis.Enabled, cfg.Cache.Redis.Timeout),
		checks.ChangeFeed(stack.Feed),
		checks.Maintenance(stack.Cleaner, 0, nil),
	)
	return manager
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown", zap.Error(ctx.Err()))
		}
	}

	if s.Bridge != nil {
		s.Bridge.Close()
	}
	if s.Hub != nil {
		s.Hub.Close()
	}
	if s.Notifications != nil {
		s.Notifications.Cleanup()
	}
	if s.Feed != nil {
		s.Feed.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOpenConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}
