package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mt5_dashboard/internal/api"
	"mt5_dashboard/internal/auth"
	"mt5_dashboard/internal/config"
	"mt5_dashboard/internal/dashboard"
	"mt5_dashboard/internal/logging"
	"mt5_dashboard/internal/poller"
	"mt5_dashboard/pkg/services/backend"
	"mt5_dashboard/pkg/services/telegram"
)

const tokenTTL = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dashboard:", err)
		os.Exit(1)
	}
}

func run() error {
	// До загрузки конфигурации пишем только в stdout
	bootLogger, _, err := logging.New("", slog.LevelInfo)
	if err != nil {
		return err
	}

	cfg, err := config.Load(bootLogger)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.LogFile, level)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logger.Info("=== MT5 Trading Bot Dashboard ===")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := backend.NewClient(backend.Options{
		BaseURL:     cfg.APIURL,
		Timeout:     cfg.RequestTimeout,
		LogBodySize: cfg.HTTPLogBody,
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("🔌 Trading bot backend", slog.String("url", client.BaseURL()))

	hub := api.NewHub(logger)
	go hub.Run(ctx)

	notifiers := dashboard.MultiNotifier{dashboard.LogNotifier{Logger: logger}, hub}

	if cfg.TelegramEnabled() {
		tg, err := telegram.New(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			// Панель работает и без Telegram
			logger.Error("Telegram notifier disabled", slog.Any("error", err))
		} else {
			go tg.Run(ctx)

			notifiers = append(notifiers, tg)
		}
	}

	session := dashboard.New(client, notifiers, logger)
	session.Subscribe(hub.PublishSnapshot)

	p := poller.New(client, session, poller.Options{
		StatusInterval:   cfg.StatusInterval,
		ActivityInterval: cfg.ActivityInterval,
		TradesLimit:      cfg.TradesLimit,
		LogsLimit:        cfg.LogsLimit,
	}, logger)
	session.AttachPoller(p)
	p.Start(ctx)
	defer p.Stop()

	var authService *auth.Service
	if cfg.AuthEnabled() {
		authService = auth.NewService(cfg.JWTSecret, tokenTTL, cfg.DashboardUser, cfg.DashboardPasswordHash)
	}

	handler := api.New(session, authService, hub, logger)

	// WriteTimeout не задан: websocket соединения живут долго,
	// а ответы REST ограничены таймаутом запроса к бэкенду
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("🚀 Server starting...", slog.String("address", cfg.Address))
		logger.Info(fmt.Sprintf("📡 API available at http://%s/api", cfg.Address))
		logger.Info(fmt.Sprintf("🏥 Health check at http://%s/health", cfg.Address))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}

		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	logger.Info("✅ Server stopped")

	return nil
}
