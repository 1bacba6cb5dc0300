// SPDX-License-Identifier: MIT

// Command streamd is the realtime delivery daemon: it bridges pipeline
// events from Redis to authenticated WebSocket subscribers and exposes the
// session management API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/UnknownEngineOfficial/XTeam/internal/api"
	"github.com/UnknownEngineOfficial/XTeam/internal/auth"
	"github.com/UnknownEngineOfficial/XTeam/internal/config"
	"github.com/UnknownEngineOfficial/XTeam/internal/health"
	"github.com/UnknownEngineOfficial/XTeam/internal/hub"
	"github.com/UnknownEngineOfficial/XTeam/internal/log"
	"github.com/UnknownEngineOfficial/XTeam/internal/ratelimit"
	"github.com/UnknownEngineOfficial/XTeam/internal/revoke"
	"github.com/UnknownEngineOfficial/XTeam/internal/ws"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version,
	})
	logger := log.WithComponent("streamd")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.invalid").
			Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("daemon failed")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	// Redis is optional: without it the daemon falls back to in-process
	// stores, which is fine for single-node deployments.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn().
				Err(err).
				Str("addr", cfg.RedisAddr).
				Msg("redis unreachable at startup, continuing; stores will recover when it returns")
		} else {
			logger.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
		}
	}

	var bucketStore ratelimit.Store
	var revocations revoke.Store
	if redisClient != nil {
		bucketStore = ratelimit.NewRedisStore(redisClient, cfg.RequestsPerMinute, cfg.BucketRetention)
		revocations = revoke.NewRedisStore(redisClient)
	} else {
		bucketStore = ratelimit.NewMemoryStore(cfg.RequestsPerMinute, cfg.BucketRetention)
		memRevocations := revoke.NewMemoryStore(time.Minute)
		defer memRevocations.Stop()
		revocations = memRevocations
	}

	gate := ratelimit.NewGate(bucketStore, ratelimit.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		ExemptPaths:       cfg.ExemptPaths,
	})
	verifier := auth.NewVerifier(cfg.JWTSecret, revocations, nil)

	h := hub.New(cfg.QueueCapacity)
	streamServer := ws.NewServer(h, gate, verifier, nil, ws.ServerConfig{
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
		AllowedOrigins: cfg.AllowedOrigins,
		ClientKey:      api.ClientIP(cfg.TrustedProxies),
	})

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewRedisChecker(redisClient))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.New(cfg, gate, verifier, revocations, h, streamServer, hm).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if redisClient != nil {
		bridge := hub.NewBridge(redisClient, cfg.EventChannel, h)
		g.Go(func() error {
			err := bridge.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str(log.FieldEvent, "server.started").
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
