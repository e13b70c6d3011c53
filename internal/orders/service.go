package orders

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ismartsell/go-pickup-orders/internal/kafka"
	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
)

// Publisher dipenuhi oleh kafka.Producer; nil berarti event di-skip
// (orderctl, test).
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Service menjalankan state machine order: semua mutasi lewat sini supaya
// guard transisi dan protokol klaim reservasi tidak bisa dilewati.
type Service struct {
	Repo     Repo
	Catalog  Catalog
	Ledger   ledger.Ledger
	Resv     reservation.Store
	Events   Publisher
	Producer string // nama service untuk envelope

	ReservationTTL time.Duration

	Now func() time.Time // test hook; nil -> time.Now
}

func (s *Service) clock() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type ItemInput struct {
	ProductID string `json:"product_id"`
	Qty       int64  `json:"qty"`
}

type CreateOrderInput struct {
	BuyerID string
	StoreID string
	Method  PaymentMethod
	Items   []ItemInput
}

// CreateOrder: snapshot harga -> order PENDING -> reserve semua item ->
// reservasi + RESERVED. Kekurangan stok di item mana pun membuat order
// FAILED tanpa reservasi parsial yang tersisa.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if in.BuyerID == "" || in.StoreID == "" || len(in.Items) == 0 {
		return nil, errors.New("buyer, store, dan items wajib diisi")
	}
	method := in.Method
	if method == "" {
		method = MethodNone
	}

	var (
		items []OrderItem
		toRes []ledger.Item
		total int64
	)
	for _, it := range in.Items {
		if it.Qty <= 0 {
			return nil, errors.Errorf("invalid qty for product %s", it.ProductID)
		}
		p, err := s.Catalog.Product(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p.StoreID != in.StoreID {
			return nil, errors.Errorf("product %s bukan milik store %s", it.ProductID, in.StoreID)
		}
		items = append(items, OrderItem{ProductID: it.ProductID, Qty: it.Qty, UnitPriceCents: p.PriceCents})
		toRes = append(toRes, ledger.Item{ProductID: it.ProductID, Qty: it.Qty})
		total += p.PriceCents * it.Qty
	}

	now := s.clock()
	o := &Order{
		ID:            uuid.NewString(),
		BuyerID:       in.BuyerID,
		StoreID:       in.StoreID,
		Status:        StatusPending,
		PaymentMethod: method,
		Items:         items,
		TotalCents:    total,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}
	if err := s.Repo.Create(ctx, o); err != nil {
		return nil, err
	}

	if err := s.Ledger.ReserveItems(ctx, toRes); err != nil {
		var ins *ledger.StockInsufficientError
		if errors.As(err, &ins) {
			if uerr := s.Repo.UpdateStatus(ctx, o.ID, StatusPending, StatusFailed); uerr != nil {
				return nil, uerr
			}
			o.Status = StatusFailed
		}
		return nil, err
	}

	res, err := s.Resv.Create(ctx, o.ID, toRes, s.ReservationTTL)
	if err != nil {
		// reservasi gagal tercatat: kembalikan stok, order FAILED
		_ = s.Ledger.ReleaseItems(ctx, toRes)
		_ = s.Repo.UpdateStatus(ctx, o.ID, StatusPending, StatusFailed)
		return nil, errors.Wrap(err, "create reservation")
	}

	if err := s.Repo.MarkReserved(ctx, o.ID, res.Deadline); err != nil {
		return nil, err
	}
	o.Status = StatusReserved
	o.ReservedUntil = &res.Deadline

	s.publish(ctx, TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		StoreID:       o.StoreID,
		Items:         o.Items,
		TotalCents:    o.TotalCents,
		ReservedUntil: res.Deadline,
	})
	return o, nil
}

// CancelOrder: pembatalan eksplisit oleh buyer. Klaim reservasi dulu supaya
// release stok tidak bisa dobel dengan jalur expiry.
func (s *Service) CancelOrder(ctx context.Context, orderID, actorID string) (*Order, error) {
	o, err := s.Repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID {
		return nil, ErrNotAllowed
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusCancelled}
	}

	res, err := s.Resv.ClaimForCancel(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.Ledger.ReleaseItems(ctx, res.Items); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateStatus(ctx, orderID, StatusReserved, StatusCancelled); err != nil {
		return nil, err
	}
	o.Status = StatusCancelled

	s.publish(ctx, TopicOrderCancelled, EventOrderCancelled, orderID, OrderCancelledPayload{
		OrderID: orderID, Reason: CancelReasonBuyer, Released: res.Items,
	})
	return o, nil
}

// CancelExpired dipanggil sweeper setelah ia meng-klaim reservasi dan
// me-release stok sendiri; di sini tinggal transisi order + event.
func (s *Service) CancelExpired(ctx context.Context, orderID string) error {
	if err := s.Repo.UpdateStatus(ctx, orderID, StatusReserved, StatusCancelled); err != nil {
		return err
	}
	s.publish(ctx, TopicOrderCancelled, EventOrderCancelled, orderID, OrderCancelledPayload{
		OrderID: orderID, Reason: CancelReasonExpired,
	})
	return nil
}

// MarkReady: seller menandai pesanan siap diambil; token pickup dibuat di
// transisi ini dan melekat ke order.
func (s *Service) MarkReady(ctx context.Context, orderID, actorID string) (*Order, error) {
	o, err := s.Repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(o.Items) == 0 {
		return nil, errors.Errorf("order %s has no items", orderID)
	}
	p, err := s.Catalog.Product(ctx, o.Items[0].ProductID)
	if err != nil {
		return nil, err
	}
	if p.SellerID != actorID {
		return nil, ErrNotAllowed
	}
	if !CanTransition(o.Status, StatusReady) {
		return nil, &InvalidTransitionError{OrderID: orderID, From: o.Status, To: StatusReady}
	}

	token := uuid.NewString()
	if err := s.Repo.MarkReady(ctx, orderID, token); err != nil {
		return nil, err
	}
	o.Status = StatusReady
	o.QRToken = token

	s.publish(ctx, TopicOrderReady, EventOrderReady, orderID, OrderReadyPayload{OrderID: orderID})
	return o, nil
}

// ConfirmDelivery memvalidasi token pickup dan menutup order.
func (s *Service) ConfirmDelivery(ctx context.Context, token string) (*Order, error) {
	o, err := s.Repo.GetByQRToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusDelivered) {
		return nil, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusDelivered}
	}
	if err := s.Repo.UpdateStatus(ctx, o.ID, StatusReady, StatusDelivered); err != nil {
		return nil, err
	}
	o.Status = StatusDelivered

	s.publish(ctx, TopicOrderDelivered, EventOrderDelivered, o.ID, OrderDeliveredPayload{
		OrderID: o.ID, DeliveredAt: s.clock(),
	})
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.Repo.Get(ctx, orderID)
}

func (s *Service) GetReservation(ctx context.Context, orderID string) (*reservation.Reservation, error) {
	return s.Resv.Get(ctx, orderID)
}

func (s *Service) ListOrders(ctx context.Context, buyerID string) ([]*Order, error) {
	return s.Repo.ListByBuyer(ctx, buyerID)
}

func (s *Service) publish(ctx context.Context, topic, eventType, correlationID string, payload any) {
	if s.Events == nil {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.clock(),
		Producer:      s.Producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Events.Publish(topic, PartitionKey(correlationID), kafkax.MustMarshal(env),
		kafkago.Header{Key: kafkax.HeaderEventType, Value: []byte(eventType)},
		kafkago.Header{Key: kafkax.HeaderEventVersion, Value: []byte("1")},
	)
}
