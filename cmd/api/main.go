package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jatango/liveshop/internal/catalog"
	"github.com/jatango/liveshop/internal/checkout"
	"github.com/jatango/liveshop/internal/config"
	"github.com/jatango/liveshop/internal/events"
	"github.com/jatango/liveshop/internal/httpx"
	kafkax "github.com/jatango/liveshop/internal/kafka"
	"github.com/jatango/liveshop/internal/ledger"
	"github.com/jatango/liveshop/internal/logx"
	"github.com/jatango/liveshop/internal/orders"
	"github.com/jatango/liveshop/internal/postgres"
	"github.com/jatango/liveshop/internal/redisx"
	"github.com/jatango/liveshop/internal/reservation"
	"github.com/jatango/liveshop/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName, cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pOrders := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderCommitted, 1024, log)
	pOrders.Start(ctx)
	pSessions := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicSessionEnded, 1024, log)
	pSessions.Start(ctx)

	store := &ledger.PGStore{DB: db}
	catalogRepo := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	resSvc := &reservation.Service{
		Store:   store,
		TTL:     cfg.ReservationTTL,
		Service: cfg.ServiceName,
		Log:     log,
	}
	orch := &checkout.Orchestrator{
		Store:        store,
		Orders:       orderRepo,
		Prices:       catalogRepo,
		Reservations: resSvc,
		Processor:    checkout.EnvProcessor(),
		Shipping:     checkout.EnvShipping(),
		Redis:        rdb,
		Producer:     pOrders,
		Service:      cfg.ServiceName,
		Log:          log,
	}

	router := httpx.NewRouter()
	h := &httpx.Handlers{
		Catalog:      catalogRepo,
		Ledger:       store,
		Reservations: resSvc,
		Checkout:     orch,
		Sessions:     &session.Repo{DB: db},
		Hubs:         session.NewManager(rdb, log),
		Orders:       orderRepo,
		Producer:     pSessions,
		Service:      cfg.ServiceName,
		Log:          log,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pOrders.Close()
	pSessions.Close()
	cancel()
	pOrders.WaitClosed()
	pSessions.WaitClosed()
}
