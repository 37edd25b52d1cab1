package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wabridge/bridge-server-go/internal/bridge"
	"github.com/wabridge/bridge-server-go/internal/config"
	"github.com/wabridge/bridge-server-go/internal/database"
	"github.com/wabridge/bridge-server-go/internal/handler"
	"github.com/wabridge/bridge-server-go/internal/httputil"
	"github.com/wabridge/bridge-server-go/internal/jobs"
	"github.com/wabridge/bridge-server-go/internal/metrics"
	"github.com/wabridge/bridge-server-go/internal/middleware"
	"github.com/wabridge/bridge-server-go/internal/realtime"
	"github.com/wabridge/bridge-server-go/internal/redis"
	"github.com/wabridge/bridge-server-go/internal/repository"
	"github.com/wabridge/bridge-server-go/internal/service"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

const (
	signupLimitPerHour = 10
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, WebSocket and event-stream server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	isProduction := !cfg.IsDevelopment()
	httputil.ExposeInternalErrors(cfg.IsDevelopment())

	db, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()
	log.Info().Msg("database connected")

	if runMigrations, _ := cmd.Flags().GetBool("migrate"); runMigrations {
		if err := migrate(cmd.Context(), db); err != nil {
			return err
		}
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	profileRepo := repository.NewProfileRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	chatRepo := repository.NewChatRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)

	broker := realtime.NewBroker(redisClient)
	defer broker.Close()

	manager := bridge.NewManager(
		bridge.NewRegistry(),
		whatsapp.NewMeowFactory(cfg.AuthDataDir, config.HistoryPerChatCap, bridge.NewHistory(chatRepo, messageRepo)),
		bridge.NewStore(db, sessionRepo, chatRepo, messageRepo),
		broker,
		cfg.MaxSessions,
	)

	authService := service.NewAuthService(db, userRepo, profileRepo, redisClient, cfg.JWTSecret, cfg.AccessTokenTTL())
	chatService := service.NewChatService(chatRepo)
	messageService := service.NewMessageService(messageRepo)
	rateLimiter := service.NewRateLimiter(redisClient)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	socketAuthMiddleware := middleware.NewSocketAuthMiddleware(authService)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(rateLimiter, cfg.RateLimitPerMin)
	signupLimitMiddleware := middleware.NewIPRateLimitMiddleware(rateLimiter, signupLimitPerHour, time.Hour, "signup")
	loginLimiter := middleware.NewLoginRateLimiter()
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	authHandler := handler.NewAuthHandler(authService, authMiddleware.Handler, loginLimiter.Handler, signupLimitMiddleware.Handler)
	chatHandler := handler.NewChatHandler(chatService)
	messageHandler := handler.NewMessageHandler(messageService)
	statusHandler := handler.NewStatusHandler(sessionRepo, manager.Live, db)
	socketHandler := handler.NewSocketHandler(manager, broker, cfg.FrontendURL)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", statusHandler.Health)

		// Long-lived streams stay outside the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(socketAuthMiddleware.Handler)
			r.Get("/socket", socketHandler.ServeHTTP)
			r.Get("/events", eventsHandler.ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

			r.Mount("/auth", authHandler.Routes())

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.Handler)
				r.Use(rateLimitMiddleware.Handler)
				r.Mount("/chats", chatHandler.Routes())
				r.Mount("/messages", messageHandler.Routes())
				r.Get("/whatsapp/status", statusHandler.WhatsApp)
			})
		})
	})

	cleanupJob := jobs.NewCleanupJob(sessionRepo, manager.Live, jobs.CleanupOptions{
		Interval:         config.CleanupJobInterval,
		StaleAfter:       config.StaleSessionAfter,
		AuthDataDir:      cfg.AuthDataDir,
		ProfileRetention: cfg.AuthProfileRetention(),
	})
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("version", Version).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	manager.Shutdown(shutdownCtx)

	log.Info().Msg("server stopped")
	return nil
}
