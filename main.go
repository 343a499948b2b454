package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/api"
	"github.com/EggysOnCode/stackex/api/handlers"
	"github.com/EggysOnCode/stackex/config"
	"github.com/EggysOnCode/stackex/core/engine"
	"github.com/EggysOnCode/stackex/logger"
	"github.com/EggysOnCode/stackex/storage"
	"github.com/EggysOnCode/stackex/storage/memstore"
)

func main() {
	cfg := config.Load()
	log := logger.Get()
	defer log.Sync()

	// Substrate: Postgres normally, the in-memory store when
	// STACKEX_INMEM is set, for local development.
	var store engine.Store
	if os.Getenv("STACKEX_INMEM") != "" {
		log.Info("running on the in-memory store")
		store = memstore.New()
	} else {
		pgdb, err := storage.NewPgDB(cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal("failed to initialize postgres", zap.Error(err))
		}
		defer pgdb.Close()
		store = pgdb
	}

	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry)
	eng := engine.New(store, metrics, log)

	seedAdmin(store, cfg, log)

	// Messaging is optional: without a broker the producer is a no-op
	// and the market-data mirror stays off.
	var producer handlers.MessageProducer = handlers.NopProducer{}
	if cfg.RabbitMQ.Host != "" {
		conn, err := storage.CreateRmqpConnection(&cfg.RabbitMQ)
		if err != nil {
			log.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer conn.Close()

		rmqProducer, err := handlers.NewRabbitMQMessageProducer(conn, &cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal("failed to initialize producer", zap.Error(err))
		}
		defer rmqProducer.Close()
		producer = rmqProducer

		kvdb, err := storage.NewKvDB(cfg.KvdbPath, log)
		if err != nil {
			log.Fatal("failed to initialize kvdb", zap.Error(err))
		}
		defer kvdb.Close()

		mirror, err := storage.NewMarketDataMirror(conn, &cfg.RabbitMQ, kvdb, log)
		if err != nil {
			log.Fatal("failed to start market-data mirror", zap.Error(err))
		}
		defer mirror.Close()
	}

	server := api.NewServer(&api.Config{
		Port:     cfg.HTTPPort,
		Engine:   eng,
		Store:    store,
		Producer: producer,
		Registry: registry,
		Logger:   log,
	})

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()
	log.Info("stackex serving", zap.String("port", cfg.HTTPPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	log.Info("stackex stopped")
}

// seedAdmin makes sure the configured admin api key resolves to an
// ADMIN user, so a fresh deployment can list instruments and fund
// accounts right away.
func seedAdmin(store engine.Store, cfg *config.Config, log *zap.Logger) {
	if cfg.AdminAPIKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.Users().GetByAPIKey(ctx, cfg.AdminAPIKey); err == nil {
		return
	}

	admin := &engine.User{
		ID:        uuid.New(),
		Name:      "admin",
		Role:      engine.RoleAdmin,
		APIKey:    cfg.AdminAPIKey,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Users().Create(ctx, admin); err != nil {
		log.Warn("failed to seed admin user", zap.Error(err))
		return
	}
	log.Info("admin user seeded", zap.String("user", admin.ID.String()))
}
