package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/api"
	"github.com/fathima-sithara/messaging-service/internal/auth"
	"github.com/fathima-sithara/messaging-service/internal/config"
	"github.com/fathima-sithara/messaging-service/internal/kafka"
	"github.com/fathima-sithara/messaging-service/internal/metrics"
	"github.com/fathima-sithara/messaging-service/internal/presence"
	"github.com/fathima-sithara/messaging-service/internal/repository"
	"github.com/fathima-sithara/messaging-service/internal/service"
	"github.com/fathima-sithara/messaging-service/internal/utils"
	"github.com/fathima-sithara/messaging-service/internal/ws"
	"github.com/redis/go-redis/v9"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.App.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, err := repository.NewMongoClient(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("mongo connect", "err", err)
	}
	stores, err := repository.NewMongoStores(ctx, mongoClient.Database(cfg.Mongo.Database), cfg)
	if err != nil {
		logger.Fatalw("mongo stores", "err", err)
	}

	var rdb *redis.Client
	var mirror ws.PresenceMirror
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			logger.Fatalw("redis ping", "addr", cfg.Redis.Addr, "err", err)
		}
		m := presence.NewMirror(rdb, cfg.Redis.Prefix)
		if err := m.Reset(ctx); err != nil {
			logger.Warnw("reset presence mirror", "err", err)
		}
		mirror = m
	}

	var producer *kafka.Producer
	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		publisher = producer
	}

	jv, err := auth.NewJWTValidator(cfg.JWT)
	if err != nil {
		logger.Fatalw("jwt validator init", "err", err)
	}

	hub := ws.NewHub(stores.Users, mirror, logger)
	chat := service.NewChatService(stores.Conversations, stores.Messages, stores.Users, hub, publisher, logger, service.Options{
		MaxContentLength: cfg.Chat.MaxContentLength,
		DefaultPageSize:  cfg.Chat.DefaultPageSize,
		MaxPageSize:      cfg.Chat.MaxPageSize,
	})
	router := ws.NewRouter(chat, cfg.EventTimeout, logger)
	gateway := ws.NewServer(ctx, hub, router, ws.ClientConfig{
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		SendBuffer:     cfg.WS.SendBuffer,
		RateLimit:      cfg.WS.RateLimitPerSec,
		RateBurst:      cfg.WS.RateLimitBurst,
	}, logger)

	app := api.NewServer(api.Deps{
		Cfg:      cfg,
		Chat:     chat,
		Presence: hub,
		Users:    stores.Users,
		Resolver: auth.NewResolver(jv, stores.Users),
		Gateway:  gateway,
		Redis:    rdb,
		Log:      logger,
	})

	errs := make(chan error, 1)
	go func() {
		addr := ":" + cfg.App.PortString()
		logger.Infow("starting messaging service", "addr", addr, "env", cfg.App.Env)
		errs <- app.Listen(addr)
	}()

	select {
	case err := <-errs:
		logger.Errorw("server error", "err", err)
	case <-ctx.Done():
		logger.Infow("signal received, shutting down")
	}

	hub.CloseAll()
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		logger.Errorw("fiber shutdown", "err", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Errorw("kafka writer close", "err", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Errorw("redis close", "err", err)
		}
	}
	dctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := mongoClient.Disconnect(dctx); err != nil {
		logger.Errorw("mongo disconnect", "err", err)
	}
	logger.Infow("shutdown complete")
}
