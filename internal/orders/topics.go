package orders

const (
	TopicOrderCreated   = "orders.created"
	TopicOrderCancelled = "orders.cancelled"
	TopicOrderPaid      = "orders.paid"
	TopicOrderReady     = "orders.ready"
	TopicOrderDelivered = "orders.delivered"
	TopicPaymentEvents  = "payments.events"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
