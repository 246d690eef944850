package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/cloudinary"
	"classattend/internal/config"
	"classattend/internal/httpapi"
	"classattend/internal/httpmiddleware"
	"classattend/internal/logger"
	"classattend/internal/queue"
	"classattend/internal/store"
	"classattend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func run(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.OpenBackend(ctx, cfg.StoreBackend, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	health := map[string]httpapi.HealthCheck{"db": backend.Healthy}

	att := attendance.NewService(backend.Store, log)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// A separate worker process cannot see this queue, so drain it here.
		mem := queue.NewInMemory(64)
		go func() {
			if err := worker.New(mem, att, log).Run(ctx); err != nil {
				log.Error().Err(err).Msg("in-process worker failed")
			}
		}()
		q = mem
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		health["redis"] = redisClient.Healthy
	}

	authSvc := auth.NewService(backend.Store, auth.Config{
		Issuer:         cfg.JWTIssuer,
		SigningKey:     cfg.JWTSigningKey,
		AccessTTL:      cfg.AccessTTL,
		RefreshTTL:     cfg.RefreshTTL,
		LockAfterFails: cfg.LockAfterFails,
		LockDuration:   cfg.LockDuration,
	}, log)

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		_, err := authSvc.CreateUser(ctx, auth.NewUser{
			Username: cfg.AdminUsername,
			FullName: "Administrator",
			Role:     attendance.RoleAdmin,
			Password: cfg.AdminPassword,
		})
		if err != nil && !errors.Is(err, attendance.ErrConflict) {
			return err
		}
	}

	deps := httpapi.Deps{
		Attendance: att,
		Auth:       authSvc,
		Queue:      q,
		Limiter:    httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		Health:     health,
		SigningKey: cfg.JWTSigningKey,
		Issuer:     cfg.JWTIssuer,
		Logger:     log,
	}
	if cfg.Cloudinary.Enabled() {
		deps.Evidence = cloudinary.New(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		log.Info().Str("cloud", cfg.Cloudinary.CloudName).Msg("evidence uploads enabled")
	} else {
		log.Info().Msg("cloudinary not configured, evidence uploads disabled")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}
