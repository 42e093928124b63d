package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/docflow/eventhub/config"
	"github.com/docflow/eventhub/providers"
	"github.com/docflow/eventhub/src/auth"
	"github.com/docflow/eventhub/src/bridge"
	"github.com/docflow/eventhub/src/hub"
	"github.com/docflow/eventhub/src/service"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.FromEnv()

	secret := cfg.AuthSecret
	if secret == "" {
		// Without a shared secret no client token can verify; every
		// connection stays anonymous.
		secret = uuid.New().String()
		logger.Warn().Msg("EVENTHUB_AUTH_SECRET not set, running with ephemeral secret")
	}
	authn, err := auth.New(auth.Config{Secret: secret, Algorithm: cfg.AuthAlgorithm})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid auth configuration")
	}

	h := hub.New(hub.Options{
		HeartbeatInterval: time.Duration(cfg.HeartbeatInterval) * time.Second,
		HeartbeatTimeout:  time.Duration(cfg.HeartbeatTimeout) * time.Second,
		CleanupInterval:   time.Duration(cfg.CleanupInterval) * time.Second,
		MaxConnections:    cfg.MaxConnections,
		SendConcurrency:   cfg.SendConcurrency,
	}, authn, logger)
	h.Start()

	svc := service.New(h, logger)

	// Redis ingest is optional: without it the hub still serves local
	// publishers through the HTTP publish route.
	ingest := bridge.NewRedisIngest(bridge.RedisConfigFromEnv(), svc, logger)
	if err := ingest.Start(); err != nil {
		logger.Warn().Err(err).Msg("redis ingest unavailable, running standalone")
		ingest = nil
	}

	app := fiber.New()
	srv := providers.NewServer(h, svc, cfg, logger)
	srv.RegisterRoutes(app)

	wsHandler := srv.FastHTTPHandler()
	appHandler := app.Handler()
	server := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			if string(ctx.Path()) == "/ws" {
				wsHandler(ctx)
				return
			}
			appHandler(ctx)
		},
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	if ingest != nil {
		if err := ingest.Stop(); err != nil {
			logger.Error().Err(err).Msg("ingest stop error")
		}
	}
	h.Stop()
}
