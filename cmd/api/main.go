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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jansunwai/assistant/internal/config"
	"github.com/jansunwai/assistant/internal/handler"
	geomodel "github.com/jansunwai/assistant/internal/model/geo"
	"github.com/jansunwai/assistant/internal/observability"
	"github.com/jansunwai/assistant/internal/service/chat"
	"github.com/jansunwai/assistant/internal/service/geo"
	"github.com/jansunwai/assistant/internal/service/intake"
	"github.com/jansunwai/assistant/internal/service/speech"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Info("no .env file loaded, using process environment", zap.Error(envErr))
	}

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	intakeClient, err := intake.NewClient(cfg.Backend.IntakeURL, cfg.Backend.IntakeTimeout, logger)
	if err != nil {
		return fmt.Errorf("create intake client: %w", err)
	}

	geoOpts := geomodel.Options{HighAccuracy: true, Timeout: cfg.Geo.Timeout, MaximumAge: cfg.Geo.MaximumAge}
	geoBridge := geo.NewBridge(geoOpts, logger.Named("geo"))
	locators := func(sessionID string) chat.Locator {
		return geoBridge.Helper(sessionID)
	}
	if cfg.Geo.StaticEnabled {
		static := geo.NewHelper(geo.StaticProvider{
			Latitude:  cfg.Geo.StaticLat,
			Longitude: cfg.Geo.StaticLng,
			Accuracy:  cfg.Geo.StaticAcc,
		}, geoOpts, logger.Named("geo"))
		locators = func(string) chat.Locator { return static }
		logger.Info("using static location", zap.Float64("lat", cfg.Geo.StaticLat), zap.Float64("lng", cfg.Geo.StaticLng))
	}

	chatService := chat.NewService(chat.Config{
		Timing: chat.Timing{
			EnterDelay:    cfg.Chat.EnterDelay,
			ExitDelay:     cfg.Chat.ExitDelay,
			ImageAckDelay: cfg.Chat.ImageAckDelay,
			SlowNotice:    cfg.Backend.SlowNotice,
			MaxImageBytes: cfg.Chat.MaxImageBytes,
		},
		Intake:   intakeClient,
		Locators: locators,
		OnRemove: geoBridge.Release,
		Logger:   logger,
	})

	speechService := speech.NewService(cfg.Speech.Model(), logger)
	if speechService.SynthesisEnabled() {
		logger.Info("speech synthesis enabled")
	} else {
		logger.Info("speech synthesis credentials not configured, text-to-speech disabled")
	}

	router := handler.NewRouter(chatService, speechService, geoBridge, handler.Options{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		CredentialCookies: cfg.Chat.CredentialCookies,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("chat gateway listening", zap.String("addr", srv.Addr), zap.String("intake_url", cfg.Backend.IntakeURL))
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := chatService.Shutdown(closeCtx); err != nil {
		logger.Warn("chat sessions did not drain", zap.Error(err))
	}
	logger.Info("chat gateway stopped")
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
