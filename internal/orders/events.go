package orders

import (
	"encoding/json"
	"time"

	"github.com/ismartsell/go-pickup-orders/internal/ledger"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderCancelled = "OrderCancelled"
	EventOrderPaid      = "OrderPaid"
	EventOrderReady     = "OrderReady"
	EventOrderDelivered = "OrderDelivered"

	// dikirim gateway/provider ke topic payments.events
	EventPaymentCompleted = "PaymentCompleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "pickup-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// ---- Payload tipe per event ----

type OrderCreatedPayload struct {
	OrderID       string      `json:"order_id"`
	BuyerID       string      `json:"buyer_id"`
	StoreID       string      `json:"store_id"`
	Items         []OrderItem `json:"items"`
	TotalCents    int64       `json:"total_cents"`
	ReservedUntil time.Time   `json:"reserved_until"`
}

const (
	CancelReasonBuyer   = "BUYER_CANCELLED"
	CancelReasonExpired = "RESERVATION_EXPIRED"
)

type OrderCancelledPayload struct {
	OrderID  string        `json:"order_id"`
	Reason   string        `json:"reason"` // BUYER_CANCELLED | RESERVATION_EXPIRED
	Released []ledger.Item `json:"released,omitempty"`
}

type OrderPaidPayload struct {
	OrderID         string `json:"order_id"`
	PaymentID       string `json:"payment_id"`
	GrossCents      int64  `json:"gross_cents"`
	CommissionCents int64  `json:"commission_cents"`
	NetCents        int64  `json:"net_cents"`
}

type OrderReadyPayload struct {
	OrderID string `json:"order_id"`
}

type OrderDeliveredPayload struct {
	OrderID     string    `json:"order_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// PaymentCompletedPayload: isi event dari gateway yang men-trigger settlement.
type PaymentCompletedPayload struct {
	OrderID     string `json:"order_id"`
	GrossCents  int64  `json:"gross_cents"`
	ProviderRef string `json:"provider_ref,omitempty"`
}
