package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id atau order_id:phase)
	KeyDedup = "dedup:%s:%s"

	// Lookup cepat QR pickup: qr:{token} -> order_id
	KeyQRToken = "qr:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 10 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLQRToken     = 24 * time.Hour
)
