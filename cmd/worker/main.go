package main

import (
	"context"
	"os/signal"
	"syscall"

	"classattend/internal/attendance"
	"classattend/internal/config"
	"classattend/internal/logger"
	"classattend/internal/queue"
	"classattend/internal/store"
	"classattend/internal/worker"
)

// Worker consumes warnings.recompute messages and regenerates threshold
// warnings for the affected class.
func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" || cfg.StoreBackend == "memory" {
		log.Fatal().Msg("the standalone worker needs the redis queue and the postgres store; the api drains the memory queue itself")
	}

	backend, err := store.OpenBackend(ctx, cfg.StoreBackend, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer backend.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet, will keep polling")
	}

	att := attendance.NewService(backend.Store, log)
	w := worker.New(queue.NewRedisQueue(redisClient.Client, cfg.QueueKey), att, log)
	if err := w.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}
}
