// Command storyforge-server starts the storyforge HTTP API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/walkiger/storyforge/internal/config"
	"github.com/walkiger/storyforge/internal/crypto"
	"github.com/walkiger/storyforge/internal/limiter"
	"github.com/walkiger/storyforge/internal/migrate"
	"github.com/walkiger/storyforge/internal/repository/postgres"
	httpserver "github.com/walkiger/storyforge/internal/server/http"
	"github.com/walkiger/storyforge/internal/service"
	"github.com/walkiger/storyforge/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main builds configuration, runs migrations, and serves HTTP until signalled.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.New(os.Args[1:])
	if err != nil {
		logger.Fatal("configuration", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)
	if cfg.SecretGenerated {
		logger.Warn("no signing secret supplied, generated one; tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	userRepo := postgres.NewUserRepo(db)

	hasher, err := crypto.NewPasswordHasher(crypto.DefaultParams())
	if err != nil {
		logger.Fatal("password hasher", zap.Error(err))
	}
	codec := token.NewCodec([]byte(cfg.SecretKey))
	authSvc := service.NewAuthService(userRepo, hasher, codec, cfg.AccessTTL)

	lim := limiter.NewMemory(map[string]int{
		"chat":  cfg.ChatRateLimitPerMinute,
		"image": cfg.ImageRateLimitPerMinute,
	}, cfg.TokenLimitPerMinute)

	app := httpserver.New(authSvc, userRepo, lim, logger, cfg.AllowedOrigins)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
