package reservation

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/ismartsell/go-pickup-orders/internal/ledger"
)

// Postgres: klaim = satu statement UPDATE bersyarat, jadi atomik tanpa
// read-then-delete. Items reservasi immutable setelah create, aman dibaca
// di luar statement klaim.
type Postgres struct{ DB *pgxpool.Pool }

var _ Store = (*Postgres)(nil)

func (p *Postgres) Create(ctx context.Context, orderID string, items []ledger.Item, ttl time.Duration) (*Reservation, error) {
	tx, err := p.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin create tx")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	deadline := now.Add(ttl)
	if _, err := tx.Exec(ctx, `
		INSERT INTO reservations(order_id, status, deadline, created_at)
		VALUES ($1, 'ACTIVE', $2, $3)`, orderID, deadline, now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, errors.Wrap(err, "insert reservation")
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservation_items(order_id, product_id, qty)
			VALUES ($1, $2, $3)`, orderID, it.ProductID, it.Qty); err != nil {
			return nil, errors.Wrap(err, "insert reservation item")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit create tx")
	}
	return &Reservation{
		OrderID:   orderID,
		Items:     copyItems(items),
		Status:    StatusActive,
		CreatedAt: now,
		Deadline:  deadline,
	}, nil
}

func (p *Postgres) ClaimExpired(ctx context.Context, now time.Time) ([]*Reservation, error) {
	rows, err := p.DB.Query(ctx, `
		UPDATE reservations SET status='EXPIRED', resolved_at=$1
		WHERE status='ACTIVE' AND deadline <= $1
		RETURNING order_id, created_at, deadline, resolved_at`, now.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "claim expired reservations")
	}
	claimed, err := scanReservations(rows, StatusExpired)
	if err != nil {
		return nil, err
	}
	if err := p.loadItems(ctx, claimed); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (p *Postgres) ClaimForSettlement(ctx context.Context, orderID string) (*Reservation, error) {
	return p.claim(ctx, orderID, StatusSettled)
}

func (p *Postgres) ClaimForCancel(ctx context.Context, orderID string) (*Reservation, error) {
	return p.claim(ctx, orderID, StatusCancelled)
}

func (p *Postgres) claim(ctx context.Context, orderID string, to Status) (*Reservation, error) {
	r := &Reservation{OrderID: orderID, Status: to}
	err := p.DB.QueryRow(ctx, `
		UPDATE reservations SET status=$2, resolved_at=now()
		WHERE order_id=$1 AND status='ACTIVE'
		RETURNING created_at, deadline, resolved_at`, orderID, string(to)).
		Scan(&r.CreatedAt, &r.Deadline, &r.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// klaim kalah atau tidak ada; bedakan dari status yang tertinggal
		var status string
		serr := p.DB.QueryRow(ctx, `SELECT status FROM reservations WHERE order_id=$1`, orderID).Scan(&status)
		if errors.Is(serr, pgx.ErrNoRows) {
			return nil, &ReservationNotFoundError{OrderID: orderID}
		}
		if serr != nil {
			return nil, errors.Wrap(serr, "read reservation status")
		}
		switch Status(status) {
		case StatusExpired, StatusCancelled:
			return nil, &ReservationExpiredError{OrderID: orderID}
		default:
			return nil, &ReservationNotFoundError{OrderID: orderID}
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "claim reservation")
	}
	if err := p.loadItems(ctx, []*Reservation{r}); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *Postgres) Get(ctx context.Context, orderID string) (*Reservation, error) {
	r := &Reservation{OrderID: orderID}
	var status string
	err := p.DB.QueryRow(ctx, `
		SELECT status, created_at, deadline, resolved_at
		FROM reservations WHERE order_id=$1`, orderID).
		Scan(&status, &r.CreatedAt, &r.Deadline, &r.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ReservationNotFoundError{OrderID: orderID}
	}
	if err != nil {
		return nil, errors.Wrap(err, "read reservation")
	}
	r.Status = Status(status)
	if err := p.loadItems(ctx, []*Reservation{r}); err != nil {
		return nil, err
	}
	return r, nil
}

func (p *Postgres) ListActive(ctx context.Context) ([]*Reservation, error) {
	rows, err := p.DB.Query(ctx, `
		SELECT order_id, created_at, deadline, resolved_at
		FROM reservations WHERE status='ACTIVE' ORDER BY deadline`)
	if err != nil {
		return nil, errors.Wrap(err, "list active reservations")
	}
	out, err := scanReservations(rows, StatusActive)
	if err != nil {
		return nil, err
	}
	if err := p.loadItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanReservations(rows pgx.Rows, status Status) ([]*Reservation, error) {
	defer rows.Close()
	var out []*Reservation
	for rows.Next() {
		r := &Reservation{Status: status}
		if err := rows.Scan(&r.OrderID, &r.CreatedAt, &r.Deadline, &r.ResolvedAt); err != nil {
			return nil, errors.Wrap(err, "scan reservation")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate reservations")
}

func (p *Postgres) loadItems(ctx context.Context, rs []*Reservation) error {
	if len(rs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rs))
	byOrder := make(map[string]*Reservation, len(rs))
	for _, r := range rs {
		ids = append(ids, r.OrderID)
		byOrder[r.OrderID] = r
	}
	rows, err := p.DB.Query(ctx, `
		SELECT order_id, product_id, qty FROM reservation_items
		WHERE order_id = ANY($1) ORDER BY order_id, product_id`, ids)
	if err != nil {
		return errors.Wrap(err, "load reservation items")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			it      ledger.Item
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Qty); err != nil {
			return errors.Wrap(err, "scan reservation item")
		}
		if r, ok := byOrder[orderID]; ok {
			r.Items = append(r.Items, it)
		}
	}
	return errors.Wrap(rows.Err(), "iterate reservation items")
}
