package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chatdesk-backend/internal/api"
	"chatdesk-backend/internal/api/middleware"
	"chatdesk-backend/internal/api/router"
	"chatdesk-backend/internal/database"
	"chatdesk-backend/internal/env"
	"chatdesk-backend/internal/logger"
	"chatdesk-backend/internal/queue"
	"chatdesk-backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := env.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	closer, err := logger.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("logger setup failed")
	}
	defer closer.Close()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDatabase(ctx, cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("db init failed")
	}
	rdb, err := websocket.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	services, err := api.NewServices(cfg, db, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("services init failed")
	}

	queueManager := queue.NewRequestQueueManager(cfg.Server.QueueSize, cfg.Server.Workers)
	defer queueManager.Shutdown()

	server := api.NewAPIServer(api.Options{
		ListenAddr: cfg.Server.WidgetAddr,
		CORS:       middleware.WidgetCORS(),
		Config:     cfg,
		Queue:      queueManager,
		DB:         db,
		Services:   services,
		Publisher:  websocket.NewPublisher(rdb),
		Registry:   reg,
	},
		router.UtilsRoutes("/api/widget/v1"),
		router.WidgetRoutes("/api/widget/v1"),
	)

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("widget server stopped")
	}
}
