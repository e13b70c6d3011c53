package orders

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByQRToken(ctx context.Context, token string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)

	// UpdateStatus: compare-and-set status. Gagal dengan InvalidTransitionError
	// kalau status sekarang bukan `from` (ErrOrderNotFound kalau row hilang).
	UpdateStatus(ctx context.Context, id string, from, to Status) error

	// MarkReserved: PENDING -> RESERVED + set reserved_until, satu langkah.
	MarkReserved(ctx context.Context, id string, until time.Time) error

	// MarkReady: PAID -> READY + simpan qr token, satu langkah.
	MarkReady(ctx context.Context, id string, qrToken string) error
}

// Catalog adalah kolaborator eksternal yang menyuplai data product saat
// create order: harga untuk snapshot, store/seller untuk otorisasi.
type Catalog interface {
	Product(ctx context.Context, productID string) (CatalogProduct, error)
}
