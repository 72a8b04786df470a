package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/talkwire/talkwire/internal/auth"
	"github.com/talkwire/talkwire/internal/broadcast"
	"github.com/talkwire/talkwire/internal/chat"
	"github.com/talkwire/talkwire/internal/config"
	"github.com/talkwire/talkwire/internal/data"
	"github.com/talkwire/talkwire/internal/db"
	"github.com/talkwire/talkwire/internal/middleware"
)

func main() {
	configPath := flag.String("config", "", "optional config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.MongoURI)
	if err != nil {
		sugar.Fatalw("failed to connect to DB", "err", err)
	}
	defer func() { _ = dbClient.Close(ctx) }()

	if err := dbClient.CreateIndexes(ctx); err != nil {
		sugar.Fatalw("failed to create indexes", "err", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		sugar.Fatalw("failed to connect to redis", "addr", cfg.RedisAddr, "err", err)
	}
	defer func() { _ = rdb.Close() }()

	// Token manager: rotated keys when JWT_KEYS is supplied, otherwise
	// the single JWT_SECRET.
	var tokens *auth.TokenManager
	keys, err := cfg.SigningKeys()
	if err != nil {
		sugar.Fatalw("invalid JWT_KEYS", "err", err)
	}
	if keys != nil {
		tokens = auth.NewTokenManagerFromKeys(keys, cfg.JWTActiveKid, cfg.TokenTTL)
	} else {
		tokens = auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	}

	counters := data.NewCountersStore(dbClient.CountersCollection())
	convs := data.NewConversationsStore(dbClient.ConversationsCollection(), counters)
	parts := data.NewParticipantsStore(dbClient.ParticipantsCollection())
	msgs := data.NewMessagesStore(dbClient.MessagesCollection(), counters)
	friends := data.NewFriendsStore(dbClient.FriendsCollection())
	users := data.NewUsersStore(dbClient.UsersCollection())

	broker := broadcast.NewRedisBroker(rdb, sugar)
	resolver := chat.NewResolver(convs, parts)
	coord := chat.NewCoordinator(convs, resolver, msgs, users, broker, sugar, cfg.MaxContentLen)
	svc := chat.NewConversationService(convs, parts, msgs, friends, users, sugar)

	limiter := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, time.Minute)
	defer limiter.Stop()

	srv := newServer(cfg, sugar, tokens, coord, svc, broker, limiter)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     srv.routes(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
	}

	go func() {
		sugar.Infow("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server exit", "err", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	sugar.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("shutdown failed", "err", err)
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
