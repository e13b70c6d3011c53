package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Postgres men-serialisasi mutasi per product lewat row lock
// (SELECT ... FOR UPDATE). Satu transaksi per mutasi, bukan per request.
type Postgres struct{ DB *pgxpool.Pool }

var _ Ledger = (*Postgres)(nil)

func (p *Postgres) Reserve(ctx context.Context, productID string, qty int64) error {
	return p.ReserveItems(ctx, []Item{{ProductID: productID, Qty: qty}})
}

// ReserveItems: lock row product urut ascending id -> cek available ->
// pindahkan ke reserved. Ada kekurangan di item mana pun berarti rollback
// total, tidak ada perubahan yang ter-commit.
func (p *Postgres) ReserveItems(ctx context.Context, items []Item) error {
	tx, err := p.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin reserve tx")
	}
	defer tx.Rollback(ctx)

	var insufficient []InsufficientItem
	for _, it := range sortItems(items) {
		var available int64
		err := tx.QueryRow(ctx, `SELECT available FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(ErrProductNotFound, "product %s", it.ProductID)
		}
		if err != nil {
			return errors.Wrap(err, "lock product row")
		}
		if available < it.Qty {
			insufficient = append(insufficient, InsufficientItem{
				ProductID: it.ProductID, Required: it.Qty, Available: available,
			})
			continue
		}
		if _, err := tx.Exec(ctx, `
			UPDATE products SET available = available - $2, reserved = reserved + $2, updated_at = now()
			WHERE id = $1`, it.ProductID, it.Qty); err != nil {
			return errors.Wrap(err, "move available to reserved")
		}
	}
	if len(insufficient) > 0 {
		return &StockInsufficientError{Items: insufficient} // rollback via defer
	}
	return errors.Wrap(tx.Commit(ctx), "commit reserve tx")
}

func (p *Postgres) Release(ctx context.Context, productID string, qty int64) error {
	ct, err := p.DB.Exec(ctx, `
		UPDATE products SET reserved = reserved - $2, available = available + $2, updated_at = now()
		WHERE id = $1 AND reserved >= $2`, productID, qty)
	if err != nil {
		return errors.Wrap(err, "release stock")
	}
	if ct.RowsAffected() != 1 {
		return errors.Errorf("release %d unit(s) of %s: row missing or reserved too low", qty, productID)
	}
	return nil
}

func (p *Postgres) Commit(ctx context.Context, productID string, qty int64) error {
	ct, err := p.DB.Exec(ctx, `
		UPDATE products SET reserved = reserved - $2, updated_at = now()
		WHERE id = $1 AND reserved >= $2`, productID, qty)
	if err != nil {
		return errors.Wrap(err, "commit stock")
	}
	if ct.RowsAffected() != 1 {
		return errors.Errorf("commit %d unit(s) of %s: row missing or reserved too low", qty, productID)
	}
	return nil
}

func (p *Postgres) ReleaseItems(ctx context.Context, items []Item) error {
	tx, err := p.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin release tx")
	}
	defer tx.Rollback(ctx)

	for _, it := range sortItems(items) {
		ct, err := tx.Exec(ctx, `
			UPDATE products SET reserved = reserved - $2, available = available + $2, updated_at = now()
			WHERE id = $1 AND reserved >= $2`, it.ProductID, it.Qty)
		if err != nil {
			return errors.Wrap(err, "release stock")
		}
		if ct.RowsAffected() != 1 {
			return errors.Errorf("release %d unit(s) of %s: row missing or reserved too low", it.Qty, it.ProductID)
		}
	}
	return errors.Wrap(tx.Commit(ctx), "commit release tx")
}

func (p *Postgres) CommitItems(ctx context.Context, items []Item) error {
	tx, err := p.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin commit tx")
	}
	defer tx.Rollback(ctx)

	for _, it := range sortItems(items) {
		ct, err := tx.Exec(ctx, `
			UPDATE products SET reserved = reserved - $2, updated_at = now()
			WHERE id = $1 AND reserved >= $2`, it.ProductID, it.Qty)
		if err != nil {
			return errors.Wrap(err, "commit stock")
		}
		if ct.RowsAffected() != 1 {
			return errors.Errorf("commit %d unit(s) of %s: row missing or reserved too low", it.Qty, it.ProductID)
		}
	}
	return errors.Wrap(tx.Commit(ctx), "commit stock tx")
}

func (p *Postgres) Restock(ctx context.Context, productID string, qty int64) error {
	ct, err := p.DB.Exec(ctx, `
		UPDATE products SET available = available + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return errors.Wrap(err, "restock")
	}
	if ct.RowsAffected() != 1 {
		return errors.Wrapf(ErrProductNotFound, "product %s", productID)
	}
	return nil
}

func (p *Postgres) Stock(ctx context.Context, productID string) (Stock, error) {
	s := Stock{ProductID: productID}
	err := p.DB.QueryRow(ctx, `SELECT available, reserved FROM products WHERE id=$1`, productID).
		Scan(&s.Available, &s.Reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, errors.Wrapf(ErrProductNotFound, "product %s", productID)
	}
	if err != nil {
		return Stock{}, errors.Wrap(err, "read stock")
	}
	return s, nil
}
