package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jt828/go-autometric/internal/bootstrap"
	"github.com/jt828/go-autometric/internal/config"
	"github.com/jt828/go-autometric/internal/server"
	"github.com/jt828/go-autometric/internal/upstream"
	"github.com/jt828/go-autometric/pkg/observability"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUTOMETRIC_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obs, err := bootstrap.InitializeObservability(cfg)
	if err != nil {
		panic(err)
	}
	log := obs.Logger()

	if err := obs.Start(ctx); err != nil {
		log.Error("failed to start observability", observability.Err(err))
	}

	idGen, err := bootstrap.InitializeSnowflake()
	if err != nil {
		log.Fatal("failed to initialize snowflake", observability.Err(err))
	}

	client := upstream.New(upstream.Options{
		Timeout:          cfg.Upstream.Timeout,
		MaxRetries:       cfg.Upstream.MaxRetries,
		RetryInterval:    cfg.Upstream.RetryInterval,
		FailureThreshold: cfg.Upstream.FailureThreshold,
		OpenTimeout:      cfg.Upstream.OpenTimeout,
		Logger:           log,
		Tracer:           obs.Tracer(),
	})

	srv, err := server.New(server.Options{
		Config:   cfg,
		Logger:   log,
		Tracer:   obs.Tracer(),
		IDs:      idGen,
		Upstream: client,
	})
	if err != nil {
		log.Fatal("failed to create server", observability.Err(err))
	}

	log.Info("serving stations", observability.Int("stations", len(cfg.Stations)))
	if err := srv.Run(ctx, 5*time.Second); err != nil {
		log.Error("http server stopped", observability.Err(err))
	}
	log.Info("http server stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := obs.Close(shutdownCtx); err != nil {
		log.Error("failed to close observability", observability.Err(err))
	}
}
