package orders

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type PostgresRepo struct{ DB *pgxpool.Pool }

var _ Repo = (*PostgresRepo)(nil)

func (r *PostgresRepo) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin create order tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, buyer_id, store_id, status, payment_method, total_cents, reserved_until, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`,
		o.ID, o.BuyerID, o.StoreID, string(o.Status), string(o.PaymentMethod), o.TotalCents, o.ReservedUntil, o.CreatedAt,
	); err != nil {
		return errors.Wrap(err, "insert order")
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4)`,
			o.ID, it.ProductID, it.Qty, it.UnitPriceCents,
		); err != nil {
			return errors.Wrap(err, "insert order item")
		}
	}
	return errors.Wrap(tx.Commit(ctx), "commit create order tx")
}

const orderCols = `id, buyer_id, store_id, status, payment_method, total_cents, qr_token, reserved_until, created_at, updated_at`

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Order, error) {
	o, err := r.scanOne(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepo) GetByQRToken(ctx context.Context, token string) (*Order, error) {
	o, err := r.scanOne(r.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE qr_token=$1`, token))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepo) ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderCols+` FROM orders WHERE buyer_id=$1 ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	if err := r.loadItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2`, id, string(from), string(to))
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	return r.transitionMiss(ctx, id, to)
}

func (r *PostgresRepo) MarkReserved(ctx context.Context, id string, until time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, reserved_until=$3, updated_at=now()
		WHERE id=$1 AND status=$4`,
		id, string(StatusReserved), until, string(StatusPending))
	if err != nil {
		return errors.Wrap(err, "mark order reserved")
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	return r.transitionMiss(ctx, id, StatusReserved)
}

func (r *PostgresRepo) MarkReady(ctx context.Context, id string, qrToken string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, qr_token=$3, updated_at=now()
		WHERE id=$1 AND status=$4`,
		id, string(StatusReady), qrToken, string(StatusPaid))
	if err != nil {
		return errors.Wrap(err, "mark order ready")
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	return r.transitionMiss(ctx, id, StatusReady)
}

// transitionMiss: CAS tidak kena; baca state sekarang untuk error yang jelas.
func (r *PostgresRepo) transitionMiss(ctx context.Context, id string, to Status) error {
	var current string
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return errors.Wrap(err, "read order status")
	}
	return &InvalidTransitionError{OrderID: id, From: Status(current), To: to}
}

type rowScanner interface{ Scan(dest ...any) error }

func (r *PostgresRepo) scanOne(row rowScanner) (*Order, error) {
	var (
		o             Order
		status        string
		method        string
		qrToken       *string
		reservedUntil *time.Time
	)
	err := row.Scan(&o.ID, &o.BuyerID, &o.StoreID, &status, &method, &o.TotalCents, &qrToken, &reservedUntil, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan order")
	}
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(method)
	if qrToken != nil {
		o.QRToken = *qrToken
	}
	o.ReservedUntil = reservedUntil
	return &o, nil
}

func (r *PostgresRepo) loadItems(ctx context.Context, os []*Order) error {
	if len(os) == 0 {
		return nil
	}
	ids := make([]string, 0, len(os))
	byID := make(map[string]*Order, len(os))
	for _, o := range os {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, product_id, qty, unit_price_cents FROM order_items
		WHERE order_id = ANY($1) ORDER BY order_id, product_id`, ids)
	if err != nil {
		return errors.Wrap(err, "load order items")
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Qty, &it.UnitPriceCents); err != nil {
			return errors.Wrap(err, "scan order item")
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return errors.Wrap(rows.Err(), "iterate order items")
}

// PostgresCatalog membaca table products sebagai sumber data katalog.
type PostgresCatalog struct{ DB *pgxpool.Pool }

var _ Catalog = (*PostgresCatalog)(nil)

func (c *PostgresCatalog) Product(ctx context.Context, productID string) (CatalogProduct, error) {
	var p CatalogProduct
	err := c.DB.QueryRow(ctx, `
		SELECT id, store_id, seller_id, name, price_cents FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.StoreID, &p.SellerID, &p.Name, &p.PriceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return CatalogProduct{}, errors.Wrapf(ErrProductNotFound, "product %s", productID)
	}
	if err != nil {
		return CatalogProduct{}, errors.Wrap(err, "read product")
	}
	return p, nil
}
