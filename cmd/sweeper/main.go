package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ismartsell/go-pickup-orders/internal/config"
	"github.com/ismartsell/go-pickup-orders/internal/expiry"
	kafkax "github.com/ismartsell/go-pickup-orders/internal/kafka"
	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/orders"
	"github.com/ismartsell/go-pickup-orders/internal/postgres"
	"github.com/ismartsell/go-pickup-orders/internal/redisx"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
	"github.com/ismartsell/go-pickup-orders/internal/settlement"
)

// Worker background: sweep reservasi expired + consume event pembayaran.
func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if cfg.StoreDriver != "postgres" {
		log.Fatal("sweeper butuh STORE_DRIVER=postgres; driver memory sudah sweep in-process di api")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	repo := &orders.PostgresRepo{DB: db}
	led := &ledger.Postgres{DB: db}
	resv := &reservation.Postgres{DB: db}

	var gw settlement.Gateway = settlement.StubGateway{}
	if cfg.GatewayBaseURL != "" {
		gw = settlement.NewRestyGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	}

	ordersSvc := &orders.Service{
		Repo:           repo,
		Catalog:        &orders.PostgresCatalog{DB: db},
		Ledger:         led,
		Resv:           resv,
		Events:         prod,
		Producer:       cfg.ServiceName + "-sweeper",
		ReservationTTL: cfg.ReservationTTL,
	}
	settleSvc := &settlement.Service{
		Orders:   repo,
		Payments: &settlement.PostgresPaymentRepo{DB: db},
		Revenue:  &settlement.PostgresRevenueRepo{DB: db},
		Ledger:   led,
		Resv:     resv,
		Gateway:  gw,
		Events:   prod,
		Producer: cfg.ServiceName + "-settlement",
		RateBP:   cfg.CommissionRateBP,
	}

	sw := expiry.New(resv, led, ordersSvc, cfg.SweepInterval)
	sw.Start(ctx)

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.SettlementGroup, orders.TopicPaymentEvents, cfg.SettlementWorkers)
	sc := &settlement.Consumer{Settlement: settleSvc, Redis: rdb}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(log.Fields{
			"group":   cfg.SettlementGroup,
			"topic":   orders.TopicPaymentEvents,
			"workers": cfg.SettlementWorkers,
		}).Info("settlement consumer started")
		return cons.Start(gctx, sc.HandlePaymentEvent)
	})
	g.Go(func() error {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
			log.Info("shutting down...")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("worker exit")
	}
	cancel()
	sw.Close()
	sw.WaitClosed()
	prod.Close()
	prod.WaitClosed()
}
