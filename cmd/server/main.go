package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	groupbuyapp "github.com/groupbuy/backend/internal/application/groupbuy"
	"github.com/groupbuy/backend/internal/domain/groupbuy"
	"github.com/groupbuy/backend/internal/infrastructure/auth"
	"github.com/groupbuy/backend/internal/infrastructure/cache"
	"github.com/groupbuy/backend/internal/infrastructure/config"
	"github.com/groupbuy/backend/internal/infrastructure/event"
	"github.com/groupbuy/backend/internal/infrastructure/logger"
	"github.com/groupbuy/backend/internal/infrastructure/notification"
	"github.com/groupbuy/backend/internal/infrastructure/persistence"
	"github.com/groupbuy/backend/internal/infrastructure/scheduler"
	"github.com/groupbuy/backend/internal/infrastructure/telemetry"
	"github.com/groupbuy/backend/internal/interfaces/http/handler"
	"github.com/groupbuy/backend/internal/interfaces/http/middleware"
	"github.com/groupbuy/backend/internal/interfaces/http/router"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
)

func main() {
	// .env is optional; real deployments pass the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry comes first so the logger can tee into the OTLP log bridge
	bootLog := zap.NewNop()
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		panic("Failed to initialize log exporter: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if logsProvider.IsEnabled() {
		logCfg.ExtraCores = append(logCfg.ExtraCores, logsProvider.ZapCore(logger.ParseLevel(cfg.Log.Level)))
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting group-buy backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("pricing_policy", cfg.GroupBuy.PricingPolicy),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter("groupbuy")

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := plugin.Register(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	// Redis is optional; without it the stores fall back to memory
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}
	stores := cache.NewStores(redisClient,
		cache.WithLogger(log),
		cache.WithRedisChatNotify(cfg.Chat.RedisNotify),
	)

	// Repositories
	groupRepo := persistence.NewGormGroupOrderRepository(db.DB)
	chatRepo := persistence.NewGormChatMessageRepository(db.DB)
	reminderLog := persistence.NewGormReminderLog(db.DB)
	catalog := persistence.NewGormProductCatalog(db.DB)

	// Notifications
	renderer, err := notification.NewRenderer(language.English)
	if err != nil {
		log.Fatal("Failed to parse notification templates", zap.Error(err))
	}
	dispatcher := notification.NewLogDispatcher(renderer, log)

	eventBus := event.NewInMemoryEventBus(log)
	statusNotifier := groupbuyapp.NewStatusChangeNotifier(groupRepo, dispatcher, log)
	eventBus.Subscribe(statusNotifier, statusNotifier.EventTypes()...)

	// Services
	policy, err := groupbuy.ParsePricingPolicy(cfg.GroupBuy.PricingPolicy)
	if err != nil {
		log.Fatal("Invalid pricing policy", zap.Error(err))
	}
	windows, err := parseReminderWindows(cfg.GroupBuy.ReminderWindows)
	if err != nil {
		log.Fatal("Invalid reminder windows", zap.Error(err))
	}

	metrics, err := telemetry.NewGroupBuyMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create group-buy metrics", zap.Error(err))
	}

	service := groupbuyapp.NewService(groupRepo, catalog, eventBus, stores.Idempotency, groupbuyapp.ServiceConfig{
		Policy:         policy,
		IdempotencyTTL: cfg.GroupBuy.IdempotencyTTL,
	}, log)
	service.SetMetrics(metrics)

	chatService := groupbuyapp.NewChatService(groupRepo, chatRepo, stores.Chat, groupbuyapp.ChatConfig{
		Enabled:           cfg.Chat.Enabled,
		BatchSize:         cfg.Chat.BatchSize,
		PollInterval:      cfg.Chat.PollInterval,
		HeartbeatInterval: cfg.Chat.HeartbeatInterval,
		MaxClients:        cfg.Chat.MaxClients,
	}, log)
	chatService.SetMetrics(metrics)

	sweeper := groupbuyapp.NewSweeper(service, reminderLog, dispatcher, windows, log)
	sweeper.SetTimeout(cfg.GroupBuy.SweepTimeout)

	jwtService := auth.NewJWTService(cfg.JWT)
	chatTokens := auth.NewChatTokenService(cfg.Chat.TokenSecret, cfg.Chat.TokenTTL)

	// Background workers
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	var sweepScheduler *scheduler.SweepScheduler
	if cfg.GroupBuy.SweepEnabled {
		sweepScheduler, err = scheduler.NewSweepScheduler(scheduler.SweepSchedulerConfig{
			Interval:   cfg.GroupBuy.SweepInterval,
			Timeout:    cfg.GroupBuy.SweepTimeout,
			RunOnStart: true,
		}, sweeper, log)
		if err != nil {
			log.Fatal("Invalid sweep scheduler configuration", zap.Error(err))
		}
		if err := sweepScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start sweep scheduler", zap.Error(err))
		}
	}

	workers, workerCtx := errgroup.WithContext(ctx)
	if hub, ok := stores.Chat.(*cache.RedisChatNotifier); ok {
		workers.Go(func() error { return hub.Run(workerCtx) })
	}

	// HTTP
	middleware.SetupValidator()
	engine := newEngine(cfg, log, meter, redisClient)

	apiRouter := router.NewRouter(engine, router.WithAPIVersion("v1"))
	for _, registrar := range router.GroupBuyRoutes(router.GroupBuyHandlers{
		Public: handler.NewGroupOrderHandler(service, chatTokens),
		Admin:  handler.NewAdminGroupOrderHandler(service, sweeper),
		Chat:   handler.NewChatHandler(chatService),
		Cron:   handler.NewCronHandler(sweeper, cfg.GroupBuy.CronSecret),
	}, router.GroupBuyAuth{
		JWT:        jwtService,
		ChatTokens: chatTokens,
		Logger:     log,
	}) {
		apiRouter.Register(registrar)
	}
	apiRouter.Setup()
	router.RegisterHealth(engine, handler.NewHealthHandler(db, chatService))

	// WriteTimeout stays 0 when unset so chat streams are not cut off
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
		BaseContext:    func(_ net.Listener) context.Context { return ctx },
	}

	workers.Go(func() error {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	workers.Go(func() error {
		<-workerCtx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		if sweepScheduler != nil {
			if err := sweepScheduler.Stop(shutdownCtx); err != nil {
				log.Error("Error stopping sweep scheduler", zap.Error(err))
			}
		}
		if err := eventBus.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
		if err := stores.Close(); err != nil {
			log.Error("Error closing stores", zap.Error(err))
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis", zap.Error(err))
			}
		}
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
		shutdownTelemetry(shutdownCtx, log, tracerProvider, meterProvider, logsProvider)
		return nil
	})

	if err := workers.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Server exited gracefully")
}

// newEngine builds the gin engine with the global middleware chain
func newEngine(cfg *config.Config, log *zap.Logger, meter metric.Meter, redisClient *redis.Client) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(middleware.HTTPMetrics(meter, log))

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	secure := middleware.DefaultSecurityConfig()
	secure.HSTSEnabled = cfg.App.Env == "production"
	engine.Use(middleware.SecureWithConfig(secure))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		var limiter middleware.Limiter
		if redisClient != nil {
			limiter = middleware.NewRedisRateLimiter(redisClient, cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		} else {
			limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		}
		engine.Use(middleware.RateLimit(limiter, log))
	}
	return engine
}

func parseReminderWindows(raw []string) ([]groupbuy.ReminderWindow, error) {
	windows := make([]groupbuy.ReminderWindow, 0, len(raw))
	for _, r := range raw {
		w, err := groupbuy.ParseReminderWindow(r)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownTelemetry(ctx context.Context, log *zap.Logger, providers ...shutdowner) {
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			log.Warn("Error shutting down telemetry provider", zap.Error(err))
		}
	}
}
