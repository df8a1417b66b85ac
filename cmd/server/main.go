// Prepy voice practice server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/prepy-voice/internal/api"
	"github.com/ashureev/prepy-voice/internal/bridge"
	"github.com/ashureev/prepy-voice/internal/chat"
	"github.com/ashureev/prepy-voice/internal/config"
	"github.com/ashureev/prepy-voice/internal/identity"
	"github.com/ashureev/prepy-voice/internal/journal"
	"github.com/ashureev/prepy-voice/internal/metrics"
	"github.com/ashureev/prepy-voice/internal/middleware"
	"github.com/ashureev/prepy-voice/internal/store"
	"github.com/ashureev/prepy-voice/internal/sweeper"
	"github.com/ashureev/prepy-voice/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	chatClient := chat.NewClient(cfg.Chat.URL, cfg.Chat.Timeout, logger)
	defer chatClient.Close()
	slog.Info("Chat service configured", "url", cfg.Chat.URL, "timeout", cfg.Chat.Timeout)

	conversationLog, err := journal.NewLogger(journal.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation journal", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation journal", "error", closeErr)
		}
	}()

	m := metrics.New()

	// Initialize services.
	sm := bridge.NewSessionManager()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, sm, logger)
	sessionHandler := api.NewSessionHandler(baseHandler)
	configHandler := api.NewConfigHandler(cfg.ReviewPath)
	healthHandler := api.NewHealthHandler(repo, chatClient, cfg.Timeout.HealthCheck)
	wsHandler := bridge.NewWebSocketHandler(bridge.Config{
		Repo:            repo,
		Chat:            chatClient,
		Sessions:        sm,
		Metrics:         m,
		Journal:         conversationLog,
		ReviewPath:      cfg.ReviewPath,
		AllowedOrigin:   cfg.FrontendURL,
		IsDev:           cfg.IsDevelopment(),
		EventsPerSecond: cfg.Bridge.EventsPerSecond,
		EventBurst:      cfg.Bridge.EventBurst,
		Logger:          logger,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(middleware.DefaultCORSOptions(cfg.AllowedOrigins()...)))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", m.Handler())

	// Candidate routes use the anonymous identity cookie.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		sessionHandler.RegisterRoutes(r)
		configHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/practice", wsHandler.ServeHTTP)

		// Serve embedded frontend (SPA catch-all).
		r.Handle("/*", web.SPAHandler())
	})

	// Create server.
	// Bridge connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start stale session sweeper.
	sweeperDone := sweeper.Start(ctx, repo, sweeper.Config{
		TTL:      cfg.Sessions.TTL,
		Interval: cfg.Sessions.SweepInterval,
	}, m)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...", "live_bridges", sm.Count())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout.Shutdown)
	defer cancel()

	// Hijacked bridge connections are not tracked by Shutdown.
	sm.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-sweeperDone

	slog.Info("Server stopped successfully")
}
