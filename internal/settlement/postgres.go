package settlement

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/ismartsell/go-pickup-orders/internal/orders"
)

type PostgresPaymentRepo struct{ DB *pgxpool.Pool }

var _ PaymentRepo = (*PostgresPaymentRepo)(nil)

func (r *PostgresPaymentRepo) Create(ctx context.Context, p *Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments(id, order_id, method, status, gross_cents, commission_cents, net_cents, provider_ref, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.OrderID, string(p.Method), string(p.Status), p.GrossCents, p.CommissionCents, p.NetCents,
		nullable(p.ProviderRef), p.CreatedAt, p.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePayment
		}
		return errors.Wrap(err, "insert payment")
	}
	return nil
}

func (r *PostgresPaymentRepo) GetByOrder(ctx context.Context, orderID string) (*Payment, error) {
	var (
		p           Payment
		method      string
		status      string
		providerRef *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_id, method, status, gross_cents, commission_cents, net_cents, provider_ref, created_at, completed_at
		FROM payments WHERE order_id=$1`, orderID).
		Scan(&p.ID, &p.OrderID, &method, &status, &p.GrossCents, &p.CommissionCents, &p.NetCents, &providerRef, &p.CreatedAt, &p.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "read payment")
	}
	p.Method = orders.PaymentMethod(method)
	p.Status = PaymentStatus(status)
	if providerRef != nil {
		p.ProviderRef = *providerRef
	}
	return &p, nil
}

func (r *PostgresPaymentRepo) Complete(ctx context.Context, id string, gross, commission, net int64, at time.Time) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments SET status=$2, gross_cents=$3, commission_cents=$4, net_cents=$5, completed_at=$6
		WHERE id=$1 AND status=$7`,
		id, string(PaymentCompleted), gross, commission, net, at, string(PaymentCreated))
	if err != nil {
		return errors.Wrap(err, "complete payment")
	}
	if ct.RowsAffected() != 1 {
		return errors.Errorf("payment %s is not in %s state", id, PaymentCreated)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type PostgresRevenueRepo struct{ DB *pgxpool.Pool }

var _ RevenueRepo = (*PostgresRevenueRepo)(nil)

func (r *PostgresRevenueRepo) Record(ctx context.Context, rev *PlatformRevenue) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO platform_revenues(id, order_id, commission_cents, rate_basis_points, recorded_at)
		VALUES ($1,$2,$3,$4,$5)`,
		rev.ID, rev.OrderID, rev.CommissionCents, rev.RateBasisPoints, rev.RecordedAt)
	return errors.Wrap(err, "record platform revenue")
}
