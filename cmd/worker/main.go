package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/jatango/liveshop/internal/checkout"
	"github.com/jatango/liveshop/internal/config"
	"github.com/jatango/liveshop/internal/events"
	"github.com/jatango/liveshop/internal/fulfillment"
	kafkax "github.com/jatango/liveshop/internal/kafka"
	"github.com/jatango/liveshop/internal/ledger"
	"github.com/jatango/liveshop/internal/logx"
	"github.com/jatango/liveshop/internal/orders"
	"github.com/jatango/liveshop/internal/postgres"
	"github.com/jatango/liveshop/internal/redisx"
	"github.com/jatango/liveshop/internal/reservation"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName+"-worker", cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pExpired := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicReservationExpired, 1024, log)
	pExpired.Start(ctx)

	sweep := &reservation.Service{
		Store:    &ledger.PGStore{DB: db},
		TTL:      cfg.ReservationTTL,
		Producer: pExpired,
		Service:  cfg.ServiceName + "-worker",
		Log:      log,
	}

	ful := &fulfillment.Service{
		Orders:      &orders.Repo{DB: db},
		Shipping:    checkout.EnvShipping(),
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-worker",
		Log:         log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, events.TopicOrderCommitted, cfg.WorkerConcurrency, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Dur("interval", cfg.SweepInterval).Msg("expiry sweep started")
		sweep.Sweep(gctx, cfg.SweepInterval)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("group", cfg.WorkerGroup).Msg("fulfillment consumer started")
		return cons.Start(gctx, ful.HandleOrderCommitted)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info().Msg("shutting down")
	case <-gctx.Done():
	}
	cancel()
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker exit")
	}
	pExpired.Close()
	pExpired.WaitClosed()
}
