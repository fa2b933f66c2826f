package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sbb/config"
	"sbb/handlers"
	"sbb/middleware"
	"sbb/models"
	"sbb/routes"
	"sbb/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.StringP("env-file", "e", ".env", "dotenv file to load before reading the environment")
	migrateOnly := pflag.Bool("migrate-only", false, "apply the schema and exit")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		bootLogger := config.NewLogger("info")
		bootLogger.Fatal().Err(err).Str("file", *envFile).Msg("failed to load env file")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLogger := config.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := config.InitDB(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := models.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	if *migrateOnly {
		logger.Info().Msg("migrations applied")
		return
	}

	// Initialize Redis
	redisClient, err := config.InitRedis(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	var cache services.QuestionCache
	if redisClient != nil {
		defer redisClient.Close()
		cache = services.NewRedisQuestionCache(redisClient, cfg.CacheTTL)
	} else {
		logger.Info().Msg("redis not configured, question cache disabled")
	}

	// Initialize WebSocket hub
	hub := services.NewHub(logger.With().Str("component", "hub").Logger())
	go hub.Run(ctx)

	// Initialize services
	forumService := services.NewForumService(db, cache, hub, logger.With().Str("component", "forum").Logger(), cfg.DBTimeout)
	authService := services.NewAuthService(db, cfg.JWTSecret)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	questionHandler := handlers.NewQuestionHandler(forumService)
	answerHandler := handlers.NewAnswerHandler(forumService)
	streamHandler := handlers.NewStreamHandler(hub, forumService)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger), middleware.CORS())

	routes.SetupRoutes(router, authHandler, questionHandler, answerHandler, streamHandler, authService)

	serve(ctx, cfg.Addr(), router, logger)
}

func serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
