package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ismartsell/go-pickup-orders/internal/config"
	"github.com/ismartsell/go-pickup-orders/internal/expiry"
	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/orders"
	"github.com/ismartsell/go-pickup-orders/internal/postgres"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
	"github.com/ismartsell/go-pickup-orders/internal/settlement"
)

// orderctl: tooling ops; semua command jalan langsung ke postgres.
func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "orderctl",
		Usage: "tooling ops untuk pickup orders",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "schema migration",
				Subcommands: []*cli.Command{
					{
						Name: "up",
						Action: func(c *cli.Context) error {
							cfg, err := config.Load()
							if err != nil {
								return err
							}
							return postgres.MigrateUp(cfg.PostgresDSN)
						},
					},
					{
						Name: "down",
						Action: func(c *cli.Context) error {
							cfg, err := config.Load()
							if err != nil {
								return err
							}
							return postgres.MigrateDown(cfg.PostgresDSN)
						},
					},
				},
			},
			{
				Name:  "add-product",
				Usage: "daftarkan product baru ke katalog",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "product id (default uuid)"},
					&cli.StringFlag{Name: "store", Required: true},
					&cli.StringFlag{Name: "seller", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.Int64Flag{Name: "price-cents", Required: true},
					&cli.Int64Flag{Name: "stock", Value: 0},
				},
				Action: addProduct,
			},
			{
				Name:  "restock",
				Usage: "tambah available stock product",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "product", Required: true},
					&cli.Int64Flag{Name: "qty", Required: true},
				},
				Action: restock,
			},
			{
				Name:   "sweep",
				Usage:  "jalankan satu putaran expiry sweep",
				Action: sweepOnce,
			},
			{
				Name:      "inspect",
				Usage:     "dump order + reservasi + payment sebagai JSON",
				ArgsUsage: "<order-id>",
				Action:    inspect,
			},
			{
				Name:   "check",
				Usage:  "cek konservasi stok: reserved di products vs total qty reservasi ACTIVE",
				Action: checkConservation,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("orderctl")
	}
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
}

func addProduct(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	id := c.String("id")
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := db.Exec(ctx, `
		INSERT INTO products(id, store_id, seller_id, name, price_cents, available)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		id, c.String("store"), c.String("seller"), c.String("name"),
		c.Int64("price-cents"), c.Int64("stock"),
	); err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func restock(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	led := &ledger.Postgres{DB: db}
	if err := led.Restock(ctx, c.String("product"), c.Int64("qty")); err != nil {
		return err
	}
	s, err := led.Stock(ctx, c.String("product"))
	if err != nil {
		return err
	}
	fmt.Printf("product=%s available=%d reserved=%d\n", s.ProductID, s.Available, s.Reserved)
	return nil
}

func sweepOnce(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	led := &ledger.Postgres{DB: db}
	resv := &reservation.Postgres{DB: db}
	svc := &orders.Service{
		Repo:    &orders.PostgresRepo{DB: db},
		Catalog: &orders.PostgresCatalog{DB: db},
		Ledger:  led,
		Resv:    resv,
	}
	st, err := expiry.New(resv, led, svc, 0).RunOnce(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("claimed=%d released=%d cancelled=%d skipped=%d\n", st.Claimed, st.Released, st.Cancelled, st.Skipped)
	return nil
}

func inspect(c *cli.Context) error {
	orderID := c.Args().First()
	if orderID == "" {
		return cli.Exit("usage: orderctl inspect <order-id>", 2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	o, err := (&orders.PostgresRepo{DB: db}).Get(ctx, orderID)
	if err != nil {
		return err
	}
	out := map[string]any{"order": o}
	if res, err := (&reservation.Postgres{DB: db}).Get(ctx, orderID); err == nil {
		out["reservation"] = res
	}
	if p, err := (&settlement.PostgresPaymentRepo{DB: db}).GetByOrder(ctx, orderID); err == nil {
		out["payment"] = p
	}

	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
	return nil
}

// checkConservation membandingkan counter reserved di products dengan jumlah
// qty reservasi ACTIVE. Satu statement = satu snapshot, jadi aman dijalankan
// sambil traffic hidup. Selisih berarti ada bug claim/release.
func checkConservation(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(ctx, `
		SELECT p.id, p.reserved, COALESCE(held.qty, 0)
		FROM products p
		LEFT JOIN (
			SELECT ri.product_id, SUM(ri.qty) AS qty
			FROM reservation_items ri
			JOIN reservations r ON r.order_id = ri.order_id AND r.status = 'ACTIVE'
			GROUP BY ri.product_id
		) held ON held.product_id = p.id
		WHERE p.reserved <> COALESCE(held.qty, 0)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	drift := 0
	for rows.Next() {
		var (
			id             string
			reserved, held int64
		)
		if err := rows.Scan(&id, &reserved, &held); err != nil {
			return err
		}
		drift++
		fmt.Printf("DRIFT product=%s ledger_reserved=%d active_held=%d\n", id, reserved, held)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if drift > 0 {
		return cli.Exit(fmt.Sprintf("%d product drift", drift), 1)
	}
	fmt.Println("ok: semua product konsisten")
	return nil
}
