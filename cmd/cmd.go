package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"parking-bot/internal/access"
	"parking-bot/internal/config"
	"parking-bot/internal/dialogue"
	"parking-bot/internal/handlers"
	"parking-bot/internal/metrics"
	"parking-bot/internal/middleware"
	"parking-bot/internal/ratelimit"
	"parking-bot/internal/repository"
	"parking-bot/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	if err := repository.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	log.Info().Msg("Database connection established")

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	moderatorRepo := repository.NewModeratorRepository(db)
	stores := services.Stores{
		Users:         userRepo,
		Spots:         repository.NewSpotRepository(db),
		Messages:      repository.NewMessageRepository(db),
		GuestPasses:   repository.NewGuestPassRepository(db),
		Reminders:     repository.NewReminderRepository(db),
		Announcements: repository.NewAnnouncementRepository(db),
		Moderators:    moderatorRepo,
		Stats:         repository.NewStatsRepository(db),
		Snapshots:     repository.NewSnapshotRepository(db),
	}

	// Dialogue states
	var states dialogue.Store = dialogue.NewMemoryStore(cfg.Redis.StateTTL)
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(strings.TrimSpace(cfg.Redis.URL))
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		states = dialogue.NewRedisStore(rdb, cfg.Redis.StateTTL)
		log.Info().Msg("Dialogue states stored in redis")
	} else {
		log.Warn().Msg("REDIS_URL not set, dialogue states are kept in memory")
	}

	// Delivery channels
	wsHub := services.NewWSHub()
	var push services.PushSender
	if cfg.APNs.KeyFile != "" {
		apnsSender, err := services.NewAPNsSender(services.APNsConfig{
			KeyFile:    cfg.APNs.KeyFile,
			KeyID:      cfg.APNs.KeyID,
			TeamID:     cfg.APNs.TeamID,
			Topic:      cfg.APNs.Topic,
			Production: cfg.APNs.Production,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs sender")
		}
		push = apnsSender
	}
	notifier := services.NewDeliveryNotifier(wsHub, push, userRepo)

	// Backups
	var uploader services.ObjectUploader
	if cfg.AWS.S3Bucket != "" {
		s3Uploader, err := services.NewS3Uploader(context.Background(), services.S3Config{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 uploader")
		}
		uploader = s3Uploader
	}
	backups := services.NewBackupService(stores.Snapshots, uploader, notifier, cfg.Bot.AdminIDs)

	// Initialize services
	resolver := access.New(access.Config{
		AdminIDs:     cfg.Bot.AdminIDs,
		ModeratorIDs: cfg.Bot.ModeratorIDs,
	}, userRepo, moderatorRepo)
	tokenService := services.NewTokenService(cfg.JWT.Secret)
	bot := services.NewBot(services.BotDeps{
		Stores:   stores,
		Access:   resolver,
		States:   states,
		Limiter:  ratelimit.New(cfg.Bot.RateLimitMessages, cfg.Bot.RateLimitWindow()),
		Notifier: notifier,
		Backups:  backups,
		Username: cfg.Bot.Username,
	})

	sweeper, err := services.NewSweeper(services.SweeperConfig{
		GuestPasses: cfg.Cron.GuestPasses,
		FreeSpots:   cfg.Cron.FreeSpots,
		Reminders:   cfg.Cron.Reminders,
		Backup:      cfg.Cron.Backup,
	}, stores, notifier, backups)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule background jobs")
	}
	metrics.Register()

	// Initialize handlers
	updateHandler := handlers.NewUpdateHandler(bot)
	userHandler := handlers.NewUserHandler(tokenService, userRepo)
	wsHandler := handlers.NewWebSocketHandler(wsHub, tokenService, bot)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", metrics.Handler())

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Chat gateway routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.GatewayAuth(cfg.Bot.Token))
			r.Post("/updates", updateHandler.HandleUpdate)
			r.Post("/tokens", userHandler.IssueToken)
		})

		// Client routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(tokenService))
			r.Put("/push-token", userHandler.SetPushToken)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweeper.Start()

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Int("admins", len(cfg.Bot.AdminIDs)).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sweeper.Stop(ctx)
	wsHub.Close()

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yaml"
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
