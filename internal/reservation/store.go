// Package reservation menyimpan satu reservasi per order dengan deadline.
//
// Resolusi adalah status flip satu arah: ACTIVE -> EXPIRED | CANCELLED |
// SETTLED. Flip pertama menang (compare-and-swap), jalur lain gagal dengan
// error yang berbeda, jadi expiry dan settlement tidak pernah dua-duanya
// mengeksekusi reservasi yang sama.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ismartsell/go-pickup-orders/internal/ledger"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
	StatusSettled   Status = "SETTLED"
)

type Reservation struct {
	OrderID    string        `json:"order_id"`
	Items      []ledger.Item `json:"items"`
	Status     Status        `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	Deadline   time.Time     `json:"deadline"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
}

type Store interface {
	// Create mencatat reservasi baru; gagal kalau order sudah punya.
	Create(ctx context.Context, orderID string, items []ledger.Item, ttl time.Duration) (*Reservation, error)

	// ClaimExpired mengambil kepemilikan eksklusif semua reservasi yang lewat
	// deadline dalam satu langkah atomik. Yang sudah ter-klaim tidak akan
	// muncul lagi di pemanggilan berikutnya.
	ClaimExpired(ctx context.Context, now time.Time) ([]*Reservation, error)

	// ClaimForSettlement: ACTIVE -> SETTLED. ReservationExpiredError kalau
	// keburu di-klaim expiry/cancel, ReservationNotFoundError kalau tidak ada
	// atau sudah settled (double settlement).
	ClaimForSettlement(ctx context.Context, orderID string) (*Reservation, error)

	// ClaimForCancel: ACTIVE -> CANCELLED, pola error sama dengan settlement.
	ClaimForCancel(ctx context.Context, orderID string) (*Reservation, error)

	Get(ctx context.Context, orderID string) (*Reservation, error)
	ListActive(ctx context.Context) ([]*Reservation, error)
}

var ErrAlreadyExists = errors.New("reservation already exists for order")

// ReservationExpiredError: reservasi keburu diresolusi jalur expiry/cancel.
// Order sudah CANCELLED; pembayaran yang datang terlambat tidak di-retry.
type ReservationExpiredError struct{ OrderID string }

func (e *ReservationExpiredError) Error() string {
	return fmt.Sprintf("reservation for order %s already resolved by expiry/cancel", e.OrderID)
}

// ReservationNotFoundError: tidak ada reservasi live untuk order, misal
// attempt settlement kedua. Ditolak tanpa efek samping.
type ReservationNotFoundError struct{ OrderID string }

func (e *ReservationNotFoundError) Error() string {
	return fmt.Sprintf("no live reservation for order %s", e.OrderID)
}
