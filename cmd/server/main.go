package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/devaloi/courier/internal/client"
	"github.com/devaloi/courier/internal/config"
	"github.com/devaloi/courier/internal/conversation"
	"github.com/devaloi/courier/internal/delivery"
	"github.com/devaloi/courier/internal/handler"
	"github.com/devaloi/courier/internal/hub"
	"github.com/devaloi/courier/internal/identity"
	"github.com/devaloi/courier/internal/observability"
	"github.com/devaloi/courier/internal/relay"
	"github.com/devaloi/courier/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := observability.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialect, err := store.DialectFor(cfg.DBDriver)
	if err != nil {
		return err
	}
	s, err := store.Open(dialect, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer func() { err = multierr.Append(err, s.Close()) }()

	users, err := identity.NewSQLDirectory(s.DB(), s.Dialect())
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	sessions := identity.NewIssuer(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionTTL)

	opts := []hub.Option{hub.WithLogger(logger)}
	var rel *relay.Redis
	if cfg.RelayEnabled() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { err = multierr.Append(err, rdb.Close()) }()

		rel = relay.New(rdb, cfg.RedisChannel, logger)
		if err := rel.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		opts = append(opts, hub.WithRelay(rel))
	}

	h := hub.New(cfg.MaxRooms, opts...)
	go h.Run()
	defer h.Stop()

	if rel != nil {
		if err := rel.Subscribe(ctx, h); err != nil {
			return err
		}
	}

	api := handler.New(handler.Deps{
		Hub:           h,
		Conversations: conversation.NewService(s, users, logger),
		Accounts:      users,
		Sessions:      sessions,
		Events:        client.NewMux(h, delivery.NewRouter(s, h, logger)),
		Log:           logger,
		EventTimeout:  cfg.StoreTimeout,
		AllowedOrigin: cfg.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("courier listening",
			zap.String("addr", srv.Addr),
			zap.String("db_driver", dialect.Name),
			zap.Bool("relay", rel != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
