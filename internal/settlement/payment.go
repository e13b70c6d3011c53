// Package settlement memfinalisasi pembayaran: klaim reservasi, commit stok,
// hitung komisi platform, catat payment + revenue, order jadi PAID.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/ismartsell/go-pickup-orders/internal/orders"
)

type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "CREATED"
	PaymentCompleted PaymentStatus = "COMPLETED"
)

// Payment record: sekali COMPLETED nilainya tidak pernah dimutasi lagi;
// koreksi berarti record kompensasi baru, bukan update.
type Payment struct {
	ID              string               `json:"id"`
	OrderID         string               `json:"order_id"`
	Method          orders.PaymentMethod `json:"method"`
	Status          PaymentStatus        `json:"status"`
	GrossCents      int64                `json:"gross_cents"`
	CommissionCents int64                `json:"commission_cents"`
	NetCents        int64                `json:"net_cents"`
	ProviderRef     string               `json:"provider_ref,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
}

type PlatformRevenue struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"order_id"`
	CommissionCents int64     `json:"commission_cents"`
	RateBasisPoints int64     `json:"rate_basis_points"`
	RecordedAt      time.Time `json:"recorded_at"`
}

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrDuplicatePayment = errors.New("payment already exists for order")
)

type PaymentRepo interface {
	Create(ctx context.Context, p *Payment) error
	GetByOrder(ctx context.Context, orderID string) (*Payment, error)
	// Complete: CREATED -> COMPLETED dengan angka final, satu langkah.
	Complete(ctx context.Context, id string, gross, commission, net int64, at time.Time) error
}

type RevenueRepo interface {
	Record(ctx context.Context, r *PlatformRevenue) error
}
