package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ismartsell/go-pickup-orders/internal/config"
	"github.com/ismartsell/go-pickup-orders/internal/expiry"
	"github.com/ismartsell/go-pickup-orders/internal/httpx"
	kafkax "github.com/ismartsell/go-pickup-orders/internal/kafka"
	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/orders"
	"github.com/ismartsell/go-pickup-orders/internal/postgres"
	"github.com/ismartsell/go-pickup-orders/internal/redisx"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
	"github.com/ismartsell/go-pickup-orders/internal/settlement"
)

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores per driver
	var (
		repo     orders.Repo
		catalog  orders.Catalog
		led      ledger.Ledger
		resv     reservation.Store
		payments settlement.PaymentRepo
		revenue  settlement.RevenueRepo
	)
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.AutoMigrate {
			if err := postgres.MigrateUp(cfg.PostgresDSN); err != nil {
				log.WithError(err).Fatal("migrate")
			}
		}
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
		if err != nil {
			log.WithError(err).Fatal("db connect")
		}
		defer db.Close()
		repo = &orders.PostgresRepo{DB: db}
		catalog = &orders.PostgresCatalog{DB: db}
		led = &ledger.Postgres{DB: db}
		resv = &reservation.Postgres{DB: db}
		payments = &settlement.PostgresPaymentRepo{DB: db}
		revenue = &settlement.PostgresRevenueRepo{DB: db}
	case "memory":
		repo = orders.NewMemoryRepo()
		catalog = orders.NewMemoryCatalog()
		led = ledger.NewMemory()
		resv = reservation.NewMemory()
		payments = settlement.NewMemoryPaymentRepo()
		revenue = settlement.NewMemoryRevenueRepo()
	default:
		log.Fatalf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	var gw settlement.Gateway = settlement.StubGateway{}
	if cfg.GatewayBaseURL != "" {
		gw = settlement.NewRestyGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey)
	}

	ordersSvc := &orders.Service{
		Repo:           repo,
		Catalog:        catalog,
		Ledger:         led,
		Resv:           resv,
		Events:         prod,
		Producer:       cfg.ServiceName,
		ReservationTTL: cfg.ReservationTTL,
	}
	settleSvc := &settlement.Service{
		Orders:   repo,
		Payments: payments,
		Revenue:  revenue,
		Ledger:   led,
		Resv:     resv,
		Gateway:  gw,
		Events:   prod,
		Producer: cfg.ServiceName,
		RateBP:   cfg.CommissionRateBP,
	}

	// Driver memory tidak kelihatan dari proses lain, jadi sweeper expiry
	// jalan in-process. Deployment postgres pakai cmd/sweeper.
	var sw *expiry.Sweeper
	if cfg.StoreDriver == "memory" {
		sw = expiry.New(resv, led, ordersSvc, cfg.SweepInterval)
		sw.Start(ctx)
	}

	router := httpx.NewRouter(cfg.HTTPTimeout)
	oh := &httpx.OrdersHandler{Orders: ordersSvc, Settlement: settleSvc, Redis: rdb}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if sw != nil {
		sw.Close()
		sw.WaitClosed()
	}
	prod.Close()      // tutup inbox -> flush & close writer
	cancel()          // stop loop lain
	prod.WaitClosed() // drain
}
