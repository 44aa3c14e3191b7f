package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/SAP-F-2025/exam-session-service/internal/cache"
	"github.com/SAP-F-2025/exam-session-service/internal/config"
	"github.com/SAP-F-2025/exam-session-service/internal/events"
	"github.com/SAP-F-2025/exam-session-service/internal/handlers"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories"
	"github.com/SAP-F-2025/exam-session-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/exam-session-service/internal/services"
	"github.com/SAP-F-2025/exam-session-service/internal/utils"
	"github.com/SAP-F-2025/exam-session-service/internal/validator"
	"github.com/SAP-F-2025/exam-session-service/pkg"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const cacheKeyPrefix = "exam-session:"

func main() {
	app := fx.New(
		fx.NopLogger,

		// Core
		fx.Provide(
			config.LoadConfig,
			NewLogger,
			NewDatabase,
			NewCacheService,
			NewEventPublisher,
		),

		// Repositories and services
		fx.Provide(
			postgres.NewRepository,
			validator.New,
			func(store cache.CacheService, cfg *config.Config, logger *slog.Logger) *cache.PackageContentCache {
				return cache.NewPackageContentCache(store, cfg.PackageCacheTTL, logger)
			},
			func(repo repositories.Repository, contents *cache.PackageContentCache, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator) services.TestSessionService {
				return services.NewTestSessionService(repo, contents, publisher, logger, v)
			},
			func(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, v *validator.Validator) services.RecordService {
				return services.NewRecordService(repo, publisher, logger, v)
			},
			func(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger) services.MaintenanceService {
				return services.NewMaintenanceService(repo, publisher, logger)
			},
		),

		// HTTP
		fx.Provide(
			NewHandlerManager,
			NewGinEngine,
		),

		fx.Invoke(StartServer),
	)

	app.Run()
}

func NewLogger(cfg *config.Config) *slog.Logger {
	logger := utils.NewLogger(cfg.LogFormat, cfg.LogLevel).With("service", "exam-session-service")
	slog.SetDefault(logger)
	return logger
}

func NewDatabase(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	if err := pkg.Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("Database ready")

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

// NewCacheService uses Redis when REDIS_URL is reachable and falls back to
// an in-process cache otherwise.
func NewCacheService(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) cache.CacheService {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, using in-memory package cache")
		return cache.NewMemoryCache(logger)
	}

	client, err := pkg.NewRedisClient(context.Background(), cfg)
	if err != nil {
		logger.Warn("Redis unavailable, using in-memory package cache", "error", err)
		return cache.NewMemoryCache(logger)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return cache.NewRedisCache(client, cacheKeyPrefix, logger)
}

func NewEventPublisher(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (events.EventPublisher, error) {
	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

func NewHandlerManager(
	cfg *config.Config,
	sessions services.TestSessionService,
	records services.RecordService,
	maintenance services.MaintenanceService,
	logger *slog.Logger,
) *handlers.HandlerManager {
	return handlers.NewHandlerManager(sessions, records, maintenance, handlers.RouterConfig{
		JWTSecret:     cfg.JWTSecret,
		CronSecret:    cfg.CronSecret,
		RetentionDays: cfg.RetentionDays,
	}, utils.NewSlogLogger(logger))
}

func NewGinEngine(cfg *config.Config, hm *handlers.HandlerManager, logger *slog.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.LoggerMiddleware(utils.NewSlogLogger(logger)))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", handlers.SessionTokenHeader, "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	hm.SetupRoutes(r)
	return r
}

func StartServer(lc fx.Lifecycle, cfg *config.Config, router *gin.Engine, logger *slog.Logger, shutdowner fx.Shutdowner) {
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Exam session service starting", "port", cfg.Port, "environment", cfg.Environment)
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Server ListenAndServe failed", "error", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Server shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

