package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"pollroom/internal/api"
	"pollroom/internal/broadcast"
	"pollroom/internal/config"
	"pollroom/internal/hub"
	"pollroom/internal/session"
	"pollroom/internal/websocket"
)

// Application wires all components in dependency order:
// Registry → Broadcast → Engine → Hub → Handler → API → HTTP.
type Application struct {
	config     *config.Config
	registry   *websocket.Registry
	engine     *session.Engine
	eventHub   *hub.Hub
	httpServer *http.Server
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := websocket.NewRegistry()
	router := broadcast.NewRouter(registry)

	engine := session.NewEngine(registry, router, session.Options{
		DefaultTimeLimit: cfg.Poll.DefaultTimeLimit,
		ChatHistoryLimit: cfg.Chat.HistoryLimit,
	})

	eventHub := hub.NewHub(engine, router)

	wsHandler := websocket.NewHandler(registry, eventHub, websocket.HandlerConfig{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})

	apiServer := api.NewServer(engine, registry)

	root := mux.NewRouter()
	root.HandleFunc("/ws", wsHandler.HandleWebSocket)
	root.PathPrefix("/").Handler(apiServer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      root,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		registry:   registry,
		engine:     engine,
		eventHub:   eventHub,
		httpServer: httpServer,
	}, nil
}

// Start brings the hub up, then accepts connections.
func (app *Application) Start(ctx context.Context) error {
	slog.Info("starting pollroom", "addr", app.httpServer.Addr)

	if err := app.eventHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.eventHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		slog.Info("pollroom started")
		return nil
	case <-ctx.Done():
		_ = app.eventHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse order: HTTP first, then the hub.
func (app *Application) Stop(ctx context.Context) error {
	slog.Info("shutting down pollroom")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}
	if err := app.eventHub.Stop(); err != nil {
		slog.Warn("event hub shutdown error", "error", err)
	}

	slog.Info("pollroom shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Optional .env for local development; real env vars win.
	_ = godotenv.Load()

	cfg := config.LoadWithPrecedence(os.Getenv("POLLROOM_CONFIG_FILE"))

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := app.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		slog.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return app.Stop(shutdownCtx)
	}
}
