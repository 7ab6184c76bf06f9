package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"booking/config"
	"booking/controllers"
	"booking/routes"
	"booking/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newStore(ctx, cfg.Store, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	slog.Info("Conversation store ready", "backend", cfg.Store.Backend)

	geocoder := services.NewGoogleGeocoder(cfg.Geocoding.APIKey, cfg.Geocoding.URL, cfg.Geocoding.Timeout)
	validator := services.NewLocationValidator(geocoder, cfg.Geocoding.DefaultCountry, logger)

	assistant := services.NewOpenAIAssistant(
		services.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL),
		cfg.OpenAI.AssistantID,
		services.RunLoopConfig{
			PollInterval:    cfg.OpenAI.PollInterval,
			MaxPollInterval: cfg.OpenAI.MaxPollInterval,
			Backoff:         cfg.OpenAI.PollBackoff,
			Timeout:         cfg.OpenAI.RunTimeout,
		},
		logger,
	)

	gatekeeper := services.NewGatekeeper(store, validator, assistant, logger)
	router := routes.SetupRouter(controllers.NewChatController(gatekeeper, logger), cfg.AllowedOrigins, logger)

	// Chat requests block while a run is polled.
	var writeTimeout time.Duration
	if cfg.OpenAI.RunTimeout > 0 {
		writeTimeout = cfg.OpenAI.RunTimeout + 30*time.Second
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := run(ctx, srv, serveErr); err != nil {
		slog.Error("Server stopped with error", "error", err)
		closeStore()
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

// run blocks until ctx is done or the server fails, then shuts srv down.
func run(ctx context.Context, srv *http.Server, serveErr <-chan error) error {
	select {
	case err, ok := <-serveErr:
		if ok && err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (services.ConversationStore, func(), error) {
	switch cfg.Backend {
	case config.StoreDynamoDB:
		client, err := services.NewDynamoDBClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, nil, err
		}
		return services.NewDynamoStore(client, cfg.DynamoDBTable, logger), func() {}, nil
	case config.StorePostgres:
		db, err := services.OpenPostgres(ctx, cfg.PostgresURI)
		if err != nil {
			return nil, nil, err
		}
		store := services.NewPostgresStore(db)
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Error("Failed to close postgres", "error", err)
			}
		}, nil
	case config.StoreMemory:
		return services.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
