// Command worker runs one per host: it binds to that host's queue
// plus "default" and dispatches every delivery through internal/worker
// (component H), and runs an optional Telegram alert sink
// (internal/notify) alongside it for failed-task notifications. Broker
// subscribe/ack/nack loop scaffolding grounded on services/sandbox/
// main.go; bootstrap (zerolog, godotenv, signal handling) grounded on
// services/orchestrator/main.go.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/doai-fleet/farmctl/internal/adb"
	"github.com/doai-fleet/farmctl/internal/automation"
	"github.com/doai-fleet/farmctl/internal/broker"
	"github.com/doai-fleet/farmctl/internal/config"
	"github.com/doai-fleet/farmctl/internal/fleet"
	"github.com/doai-fleet/farmctl/internal/notify"
	"github.com/doai-fleet/farmctl/internal/worker"
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
	if cfg.HostNumber == "" {
		log.Fatal().Msg("HOST_NUMBER is required to start a worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("shutdown signal — stopping worker")
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

	pool := automation.NewSessionPool(cfg.AutomationURL, cfg.PortRangeLow, cfg.PortRangeHigh, cfg.MaxSessions, log.Logger)
	adbCtl := adb.New(cfg.ADBPath, time.Duration(cfg.ADBTimeoutSec)*time.Second)
	w := worker.New(pool, store, adbCtl, b, cfg.EvidenceBaseDir, cfg.MaxConcurrent, log.Logger)

	queue := cfg.Queue()
	deliveries, err := b.Subscribe(ctx, queue, "tasks.#")
	if err != nil {
		log.Fatal().Err(err).Msg("subscribe own queue")
	}
	defaultDeliveries, err := b.Subscribe(ctx, "default", "tasks.#")
	if err != nil {
		log.Fatal().Err(err).Msg("subscribe default queue")
	}

	alertSink := notify.New(cfg.TelegramBotToken, cfg.TelegramChatID, log.Logger)

	go consume(ctx, w, deliveries)
	go consume(ctx, w, defaultDeliveries)
	go sweepStaleSessions(ctx, pool, log.Logger)
	go func() {
		if err := alertSink.Run(ctx, b, "worker."+queue+".alerts"); err != nil {
			log.Warn().Err(err).Msg("alert sink stopped")
		}
	}()

	log.Info().Str("queue", queue).Msg("worker online")
	<-ctx.Done()
}

// consume runs the subscribe/ack loop: each delivery is fully handled
// (including its own retry/backoff) inside Dispatch before being
// acked, matching acks_late=true. The delivery is acked once Dispatch
// returns, whatever the outcome; a malformed or undecodable envelope
// is acked without any task-status write.
func consume(ctx context.Context, w *worker.Worker, deliveries <-chan broker.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.Dispatch(ctx, d.Body)
			d.Ack()
		}
	}
}

// sweepStaleSessions periodically reaps sessions whose liveness probe
// fails (SessionPool.CleanupStale) so a crashed or
// forgotten driver doesn't hold a port forever (spec.md §4.C).
func sweepStaleSessions(ctx context.Context, pool *automation.SessionPool, log zerolog.Logger) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := pool.CleanupStale(ctx); n > 0 {
				log.Info().Int("count", n).Msg("reaped stale sessions")
			}
		}
	}
}
