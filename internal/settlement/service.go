package settlement

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ismartsell/go-pickup-orders/internal/kafka"
	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/orders"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
)

// CommissionCents menghitung komisi platform dari gross (minor unit).
// Rate dalam basis point (100 = 1%), pembulatan half-up di presisi sen.
func CommissionCents(grossCents, rateBasisPoints int64) int64 {
	return (grossCents*rateBasisPoints + 5000) / 10000
}

type Service struct {
	Orders   orders.Repo
	Payments PaymentRepo
	Revenue  RevenueRepo
	Ledger   ledger.Ledger
	Resv     reservation.Store
	Gateway  Gateway
	Events   orders.Publisher
	Producer string
	RateBP   int64

	Now func() time.Time // test hook; nil -> time.Now
}

func (s *Service) clock() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// InitiatePayment mendaftarkan intent pembayaran untuk order RESERVED.
// Idempotent per order: payment yang sudah ada dikembalikan apa adanya.
// Jumlah selalu total order (snapshot saat create), bukan input caller.
func (s *Service) InitiatePayment(ctx context.Context, orderID string, method orders.PaymentMethod) (*Payment, error) {
	if p, err := s.Payments.GetByOrder(ctx, orderID); err == nil {
		return p, nil
	} else if !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}

	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orders.StatusReserved {
		return nil, &orders.InvalidTransitionError{OrderID: orderID, From: o.Status, To: orders.StatusPaid}
	}
	if method == "" {
		method = orders.MethodOnline
	}

	ref, err := s.Gateway.CreateIntent(ctx, orderID, o.TotalCents)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}

	p := &Payment{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		Method:      method,
		Status:      PaymentCreated,
		GrossCents:  o.TotalCents,
		ProviderRef: ref,
		CreatedAt:   s.clock(),
	}
	if err := s.Payments.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicatePayment) {
			// balapan initiate; yang menang yang dipakai
			return s.Payments.GetByOrder(ctx, orderID)
		}
		return nil, err
	}
	return p, nil
}

// CompletePayment: satu-satunya titik di mana ras payment-vs-expiry
// diputuskan, lewat klaim atomik reservasi. Kalah klaim berarti
// ReservationExpiredError (order sudah CANCELLED, stok sudah balik);
// klaim kedua untuk order yang sama berarti ReservationNotFoundError.
func (s *Service) CompletePayment(ctx context.Context, orderID string, grossCents int64) (*Payment, error) {
	if grossCents <= 0 {
		return nil, errors.Errorf("invalid gross amount %d for order %s", grossCents, orderID)
	}

	res, err := s.Resv.ClaimForSettlement(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// reserved -> terjual, permanen; tidak pernah balik ke available
	if err := s.Ledger.CommitItems(ctx, res.Items); err != nil {
		return nil, err
	}

	commission := CommissionCents(grossCents, s.RateBP)
	net := grossCents - commission
	now := s.clock()

	p, err := s.Payments.GetByOrder(ctx, orderID)
	switch {
	case errors.Is(err, ErrPaymentNotFound):
		// webhook datang tanpa initiate (mis. dicatat langsung oleh provider)
		p = &Payment{
			ID:              uuid.NewString(),
			OrderID:         orderID,
			Method:          orders.MethodOnline,
			Status:          PaymentCompleted,
			GrossCents:      grossCents,
			CommissionCents: commission,
			NetCents:        net,
			CreatedAt:       now,
			CompletedAt:     &now,
		}
		if cerr := s.Payments.Create(ctx, p); cerr != nil {
			return nil, cerr
		}
	case err != nil:
		return nil, err
	default:
		if cerr := s.Payments.Complete(ctx, p.ID, grossCents, commission, net, now); cerr != nil {
			return nil, cerr
		}
		p.Status = PaymentCompleted
		p.GrossCents = grossCents
		p.CommissionCents = commission
		p.NetCents = net
		p.CompletedAt = &now
	}

	if err := s.Revenue.Record(ctx, &PlatformRevenue{
		ID:              uuid.NewString(),
		OrderID:         orderID,
		CommissionCents: commission,
		RateBasisPoints: s.RateBP,
		RecordedAt:      now,
	}); err != nil {
		return nil, err
	}

	if err := s.Orders.UpdateStatus(ctx, orderID, orders.StatusReserved, orders.StatusPaid); err != nil {
		return nil, err
	}

	s.publish(ctx, orders.TopicOrderPaid, orders.EventOrderPaid, orderID, orders.OrderPaidPayload{
		OrderID:         orderID,
		PaymentID:       p.ID,
		GrossCents:      p.GrossCents,
		CommissionCents: p.CommissionCents,
		NetCents:        p.NetCents,
	})
	return p, nil
}

func (s *Service) GetPayment(ctx context.Context, orderID string) (*Payment, error) {
	return s.Payments.GetByOrder(ctx, orderID)
}

func (s *Service) publish(ctx context.Context, topic, eventType, correlationID string, payload any) {
	if s.Events == nil {
		return
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.clock(),
		Producer:      s.Producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Events.Publish(topic, orders.PartitionKey(correlationID), kafkax.MustMarshal(env),
		kafkago.Header{Key: kafkax.HeaderEventType, Value: []byte(eventType)},
		kafkago.Header{Key: kafkax.HeaderEventVersion, Value: []byte("1")},
	)
}
