package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wallet-watch/agent/database"
	"wallet-watch/agent/internal/bot"
	"wallet-watch/agent/internal/dispatch"
	"wallet-watch/agent/internal/handlers"
	"wallet-watch/agent/internal/monitor"
	"wallet-watch/agent/internal/pricing"
	"wallet-watch/agent/internal/providers"
	"wallet-watch/shared/config"
	"wallet-watch/shared/env"
	"wallet-watch/shared/logger"
	"wallet-watch/shared/notifications"
	"wallet-watch/shared/tracing"
	"wallet-watch/shared/utils"
)

func startHeartbeat(ctx context.Context, appLogger *logger.Logger) {
	go func() {
		ticker := time.NewTicker(8 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				appLogger.Info("Heartbeat: Program running...")
			case <-ctx.Done():
				return
			}
		}
	}()
}

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Fatalf("FATAL: Failed to load environment variables: %v", err)
	}
	log.Println("INFO: Environment variables loaded via shared/env.")

	cfg, err := config.LoadConfig(env.ConfigPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load %s: %v", env.ConfigPath, err)
	}

	appLogger, err := logger.NewLogger(logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	appLogger.Info("Application logger initialized successfully.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.Insecure)
	if err != nil {
		appLogger.Error("Tracing disabled: exporter could not be created", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	dsn := cfg.Database.URL
	if dsn == "" {
		if dsn, err = utils.GetDatabaseDSN(); err != nil {
			appLogger.Fatal("Essential database connection variables are missing", zap.Error(err))
		}
	}

	appLogger.Info("Running database migrations...")
	if err := database.MigrateDatabase(dsn, appLogger); err != nil {
		appLogger.Fatal("Database migration failed", zap.Error(err))
	}

	appLogger.Info("Connecting to database...")
	db, err := database.ConnectToDatabase(ctx, dsn, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, appLogger)
	if err != nil {
		appLogger.Fatal("Database connection failed", zap.Error(err))
	}
	appLogger.Info("Database connection established successfully.")

	watches := database.NewWatchStore(db)
	alerts := database.NewAlertStore(db)
	prefs := database.NewPreferenceStore(db)

	var telegram *notifications.TelegramSender
	if cfg.Telegram.BotToken != "" {
		telegram, err = notifications.NewTelegramSender(ctx, cfg.Telegram.BotToken, notifications.Options{
			RateLimit: cfg.Telegram.RateLimit,
			Burst:     cfg.Telegram.Burst,
			OpsChatID: cfg.Telegram.OpsChatID,
		})
		if err != nil {
			appLogger.Error("Failed to initialize Telegram Bot, proceeding without Telegram features", zap.Error(err))
			telegram = nil
		} else if cfg.Logging.Telegram {
			appLogger.SetForwarder(telegram)
			appLogger.Info("Warn and error logs are forwarded to the ops chat", zap.Int64("chatID", cfg.Telegram.OpsChatID))
		}
	}

	var priceCache pricing.Cache = pricing.NewMemoryCache()
	if cfg.Pricing.RedisURL != "" {
		redisCache, err := pricing.NewRedisCache(ctx, cfg.Pricing.RedisURL)
		if err != nil {
			appLogger.Warn("Redis price cache unavailable, using in-memory cache", zap.Error(err))
		} else {
			defer redisCache.Close()
			priceCache = redisCache
			appLogger.Info("Using Redis price cache")
		}
	}
	oracle := pricing.NewOracle(pricing.Options{
		CoinGeckoURL: cfg.Pricing.CoinGeckoURL,
		BinanceURL:   cfg.Pricing.BinanceURL,
		CacheTTL:     cfg.Pricing.CacheTTL,
		Timeout:      cfg.Pricing.Timeout,
	}, priceCache, appLogger)

	var sender dispatch.MessageSender
	if telegram != nil {
		sender = telegram
	}
	dispatcher := dispatch.NewDispatcher(prefs, sender, dispatch.Options{
		WhaleFeedChatIDs: cfg.Dispatch.WhaleFeedChatIDs,
		WebhookTimeout:   cfg.Dispatch.WebhookTimeout,
	}, appLogger)

	registry := providers.NewRegistry(cfg, appLogger)
	fetcher := monitor.NewFetcher(registry, cfg.ProviderTimeout, appLogger)
	classifier := monitor.NewClassifier(cfg.Classification.WhaleUSD, cfg.Classification.ExchangeAddresses)
	detector := monitor.NewDetector(alerts, oracle, classifier)
	orchestrator := monitor.NewOrchestrator(watches, alerts, fetcher, detector, dispatcher, monitor.Options{
		Concurrency:     cfg.Monitor.Concurrency,
		JobTimeout:      cfg.Monitor.JobTimeout,
		DispatchTimeout: cfg.Monitor.DispatchTimeout,
	}, appLogger)

	appLogger.Info("Setting up web server...")
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestLogger(appLogger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", cfg.App.OwnerHeader}
	router.Use(cors.New(corsConfig))

	handlers.RegisterRoutes(router, appLogger)
	handlers.RegisterAPIRoutes(router, handlers.API{
		Monitor:       orchestrator,
		MonitorSecret: cfg.Monitor.Secret,
		OwnerHeader:   cfg.App.OwnerHeader,
		Alerts:        alerts,
		Watches:       watches,
		Preferences:   prefs,
	}, appLogger)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info("Starting web server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Could not start web server.", zap.Error(err))
		}
	}()

	startHeartbeat(ctx, appLogger)

	if telegram != nil && cfg.Telegram.EnableCommands {
		commandBot := bot.New(prefs, alerts, telegram, appLogger)
		go func() {
			if err := commandBot.StartListening(ctx, telegram.Bot()); err != nil {
				appLogger.Error("Telegram command listener stopped", zap.Error(err))
			}
		}()
	} else {
		appLogger.Warn("Telegram Bot listener not started because bot initialization failed or was disabled.")
	}

	appLogger.Info("Application startup complete. Waiting for monitor triggers...")
	<-ctx.Done()

	appLogger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Error("Tracing shutdown failed", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	appLogger.Info("Shutdown complete.")
}
