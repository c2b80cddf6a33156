// Command api serves the HTTP/JSON surface over components I
// (dispatch), J (fleet operations), and K (health), plus the
// WebSocket progress relay (component M). Bootstrap grounded on
// services/gateway/main.go and services/orchestrator/main.go
// (zerolog console output, godotenv, signal-driven shutdown,
// errgroup-based service fan-out).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/doai-fleet/farmctl/internal/api"
	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/config"
	"github.com/doai-fleet/farmctl/internal/dispatch"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/fleetsvc"
	"github.com/doai-fleet/farmctl/internal/health"
	"github.com/doai-fleet/farmctl/internal/progresshub"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("shutdown signal — stopping api")
		cancel()
	}()

	store, err := fleet.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer store.Close()

	b, err := broker.New(cfg.AMQPURL, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("connect rabbitmq")
	}
	defer b.Close()

	fleetSvc := fleetsvc.New(store)
	dispatchPlane := dispatch.New(b, store)
	healthSvc := health.New(store, b, fleetSvc, dispatchPlane, cfg.AutomationURL, "farmctl", "0.1.0", prometheus.DefaultRegisterer)
	hub := progresshub.New(log.Logger)

	srv := api.New(fleetSvc, dispatchPlane, healthSvc, log.Logger)
	router := srv.Router(cfg.CORSOrigins(), cfg.RateLimitPerMin)

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.HandleFunc("/ws/progress", hub.ServeWS)

	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return hub.RelayProgress(gctx, b, "api.progress-relay")
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.APIAddr).Msg("api online")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("api exited")
	}
}
