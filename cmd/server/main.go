package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jtarrant/relaychat/internal/config"
	"github.com/jtarrant/relaychat/internal/logging"
	"github.com/jtarrant/relaychat/internal/message"
	"github.com/jtarrant/relaychat/internal/presence"
	"github.com/jtarrant/relaychat/internal/ratelimit"
	"github.com/jtarrant/relaychat/internal/relay"
	"github.com/jtarrant/relaychat/internal/room"
	"github.com/jtarrant/relaychat/internal/server"
	"github.com/jtarrant/relaychat/internal/store"
	"github.com/jtarrant/relaychat/internal/ws"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := logging.New("info")
		fallback.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.LogLevel)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to redis")
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	st := store.NewRedis(rdb, logger)
	registry := presence.NewRegistry(st)
	history := message.NewLog(st, logger)
	limiter := ratelimit.New(cfg.MessageRateMax, cfg.MessageRateWindow.Std())
	rm := room.New(registry, history, st, limiter, logger)

	rl := relay.New(st, logger)
	if err := rl.Run(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("failed to start relay")
	}

	sessions := ws.NewManager(logger, ws.WithMaxSessions(cfg.MaxSessions))
	wsHandler := ws.NewHandler(rl, rm, sessions, logger)
	srv := server.New(cfg.Addr, rm, wsHandler, sessions, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()
	logger.Info().Str("addr", cfg.Addr).Msg("relay listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown error")
		}
		sessions.Shutdown()
		if err := rl.Close(); err != nil {
			logger.Warn().Err(err).Msg("relay close error")
		}
		rdb.Close()
	}
}
