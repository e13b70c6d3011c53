package orders

import "time"

type PaymentMethod string

const (
	MethodOnline PaymentMethod = "ONLINE"
	MethodCash   PaymentMethod = "CASH"
	MethodNone   PaymentMethod = "NONE"
)

type Order struct {
	ID            string        `json:"id"`
	BuyerID       string        `json:"buyer_id"`
	StoreID       string        `json:"store_id"`
	Status        Status        `json:"status"` // lihat status.go
	PaymentMethod PaymentMethod `json:"payment_method"`
	Items         []OrderItem   `json:"items"`
	TotalCents    int64         `json:"total_cents"`
	QRToken       string        `json:"qr_token,omitempty"`
	ReservedUntil *time.Time    `json:"reserved_until,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type OrderItem struct {
	OrderID   string `json:"-"`
	ProductID string `json:"product_id"`
	Qty       int64  `json:"qty"`
	// snapshot harga saat create; tidak pernah di-refresh dari katalog
	UnitPriceCents int64 `json:"unit_price_cents"`
}

// CatalogProduct adalah potongan data katalog yang dibutuhkan core:
// harga untuk snapshot + pemilik untuk otorisasi seller.
type CatalogProduct struct {
	ID         string
	StoreID    string
	SellerID   string
	Name       string
	PriceCents int64
}
