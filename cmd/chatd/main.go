// Command chatd serves the realtime chat endpoint for the web
// application. It is stateless: any number of chatd processes can run
// behind a load balancer, sharing the database, the rate-limit
// counters and the fan-out channel.
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

	"github.com/joho/godotenv"

	"github.com/forkful/chat-service/chat"
	"github.com/forkful/chat-service/chat/validator"
	"github.com/forkful/chat-service/postgres"
	"github.com/forkful/chat-service/redis"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger); err != nil {
		logger.Error("Exiting", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := loadConfig()
	if cfg.PostgresDSN == "" || cfg.JWTSecret == "" {
		return errors.New("POSTGRES_DSN and JWT_SECRET are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	rdb, err := redis.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}

	srv := &chat.Server{
		Logger:  logger,
		DB:      pg,
		Limiter: rdb,
		Broker:  rdb,
		Tokens:  chat.NewTokenValidator(cfg.JWTSecret),
		Val:     validator.New(),
	}

	go func() {
		if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Chat worker stopped", "error", err.Error())
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", srv)

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("Listening", "addr", cfg.Addr)
	if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
