package settlement

import (
	"context"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ismartsell/go-pickup-orders/internal/kafka"
	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/orders"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
)

// --- Setup ---

type fixture struct {
	svc  *Service
	repo *orders.MemoryRepo
	led  *ledger.Memory
	resv *reservation.Memory
	rev  *MemoryRevenueRepo
	pub  *mockPublisher
}

func setupSettlementTest(t *testing.T) fixture {
	fx := fixture{
		repo: orders.NewMemoryRepo(),
		led:  ledger.NewMemory(),
		resv: reservation.NewMemory(),
		rev:  NewMemoryRevenueRepo(),
		pub:  &mockPublisher{},
	}
	fx.led.Seed("kopi", 5)
	fx.svc = &Service{
		Orders:   fx.repo,
		Payments: NewMemoryPaymentRepo(),
		Revenue:  fx.rev,
		Ledger:   fx.led,
		Resv:     fx.resv,
		Gateway:  StubGateway{},
		Events:   fx.pub,
		Producer: "pickup-api",
		RateBP:   100,
	}
	return fx
}

// seedReservedOrder menaruh order RESERVED lengkap: stok ter-hold,
// reservasi ACTIVE, row order tercatat.
func seedReservedOrder(t *testing.T, fx fixture, orderID string) *orders.Order {
	t.Helper()
	ctx := context.Background()
	items := []ledger.Item{{ProductID: "kopi", Qty: 2}}
	require.NoError(t, fx.led.ReserveItems(ctx, items))
	_, err := fx.resv.Create(ctx, orderID, items, 30*time.Minute)
	require.NoError(t, err)

	now := time.Now().UTC()
	o := &orders.Order{
		ID:            orderID,
		BuyerID:       "buyer-1",
		StoreID:       "warung-1",
		Status:        orders.StatusReserved,
		PaymentMethod: orders.MethodOnline,
		Items:         []orders.OrderItem{{OrderID: orderID, ProductID: "kopi", Qty: 2, UnitPriceCents: 5000}},
		TotalCents:    10000,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, fx.repo.Create(ctx, o))
	return o
}

// expireReservation menirukan jalur sweeper: klaim expiry menang, stok
// dibalikin, order CANCELLED.
func expireReservation(t *testing.T, fx fixture, orderID string) {
	t.Helper()
	ctx := context.Background()
	claimed, err := fx.resv.ClaimExpired(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, fx.led.ReleaseItems(ctx, claimed[0].Items))
	require.NoError(t, fx.repo.UpdateStatus(ctx, orderID, orders.StatusReserved, orders.StatusCancelled))
}

// --- Tests ---

func TestCommissionCents(t *testing.T) {
	cases := []struct {
		gross, rate, want int64
	}{
		{10000, 100, 100},
		{9999, 100, 100},
		{50, 100, 1},
		{49, 100, 0},
		{10000, 250, 250},
		{333, 300, 10},
		{10000, 0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CommissionCents(tc.gross, tc.rate), "gross=%d rate=%d", tc.gross, tc.rate)
	}
}

func TestCompletePayment_SettlesOrder(t *testing.T) {
	fx := setupSettlementTest(t)
	ctx := context.Background()
	seedReservedOrder(t, fx, "o1")

	p, err := fx.svc.CompletePayment(ctx, "o1", 10000)

	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, p.Status)
	assert.Equal(t, int64(10000), p.GrossCents)
	assert.Equal(t, int64(100), p.CommissionCents)
	assert.Equal(t, int64(9900), p.NetCents)
	require.NotNil(t, p.CompletedAt)

	// unit reserved terjual permanen, tidak balik ke available
	s, _ := fx.led.Stock(ctx, "kopi")
	assert.Equal(t, int64(3), s.Available)
	assert.Equal(t, int64(0), s.Reserved)

	o, err := fx.repo.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)

	r, err := fx.resv.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusSettled, r.Status)

	rows := fx.rev.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, int64(100), rows[0].CommissionCents)
	assert.Equal(t, int64(100), rows[0].RateBasisPoints)

	ev := fx.pub.last(t)
	assert.Equal(t, orders.TopicOrderPaid, ev.Topic)
	payload, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](ev.Env.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(9900), payload.NetCents)
}

func TestCompletePayment_AfterInitiate(t *testing.T) {
	fx := setupSettlementTest(t)
	ctx := context.Background()
	seedReservedOrder(t, fx, "o1")

	created, err := fx.svc.InitiatePayment(ctx, "o1", orders.MethodOnline)
	require.NoError(t, err)
	assert.Equal(t, PaymentCreated, created.Status)
	assert.Equal(t, "stub-o1", created.ProviderRef)
	assert.Equal(t, int64(10000), created.GrossCents)

	done, err := fx.svc.CompletePayment(ctx, "o1", 10000)

	require.NoError(t, err)
	assert.Equal(t, created.ID, done.ID)
	assert.Equal(t, PaymentCompleted, done.Status)

	// record yang sama, bukan row baru
	stored, err := fx.svc.GetPayment(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, stored.ID)
	assert.Equal(t, "stub-o1", stored.ProviderRef)
}

func TestInitiatePayment_Idempotent(t *testing.T) {
	fx := setupSettlementTest(t)
	ctx := context.Background()
	seedReservedOrder(t, fx, "o1")

	p1, err := fx.svc.InitiatePayment(ctx, "o1", orders.MethodOnline)
	require.NoError(t, err)
	p2, err := fx.svc.InitiatePayment(ctx, "o1", orders.MethodOnline)
	require.NoError(t, err)

	assert.Equal(t, p1.ID, p2.ID)
}

func TestInitiatePayment_OrderNotReserved(t *testing.T) {
	fx := setupSettlementTest(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, fx.repo.Create(ctx, &orders.Order{
		ID:         "o1",
		BuyerID:    "buyer-1",
		StoreID:    "warung-1",
		Status:     orders.StatusPending,
		TotalCents: 10000,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	_, err := fx.svc.InitiatePayment(ctx, "o1", orders.MethodOnline)

	var invalid *orders.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, orders.StatusPending, invalid.From)
}

func TestCompletePayment_LateAfterExpiry(t *testing.T) {
	fx := setupSettlementTest(t)
	ctx := context.Background()
	seedReservedOrder(t, fx, "o1")
	expireReservation(t, fx, "o1")

	_, err := fx.svc.CompletePayment(ctx, "o1", 10000)

	var expired *reservation.ReservationExpiredError
	require.ErrorAs(t, err, &expired)

	// stok sudah balik dan tetap begitu; tidak ada payment/revenue tercatat
	s, _ := fx.led.Stock(ctx, "kopi")
	assert.Equal(t, int64(5), s.Available)
	assert.Equal(t, int64(0), s.Reserved)

	_, perr := fx.svc.GetPayment(ctx, "o1")
	assert.ErrorIs(t, perr, ErrPaymentNotFound)
	assert.Empty(t, fx.rev.Rows())

	o, _ := fx.repo.Get(ctx, "o1")
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.Empty(t, fx.pub.events)
}

func TestCompletePayment_Twice(t *testing.T) {
	fx := setupSettlementTest(t)
	ctx := context.Background()
	seedReservedOrder(t, fx, "o1")

	_, err := fx.svc.CompletePayment(ctx, "o1", 10000)
	require.NoError(t, err)

	_, err = fx.svc.CompletePayment(ctx, "o1", 10000)

	var notFound *reservation.ReservationNotFoundError
	require.ErrorAs(t, err, &notFound)

	// efek pertama tidak dobel
	s, _ := fx.led.Stock(ctx, "kopi")
	assert.Equal(t, int64(3), s.Available)
	assert.Equal(t, int64(0), s.Reserved)
	assert.Len(t, fx.rev.Rows(), 1)
}

func TestCompletePayment_InvalidAmount(t *testing.T) {
	fx := setupSettlementTest(t)
	ctx := context.Background()
	seedReservedOrder(t, fx, "o1")

	_, err := fx.svc.CompletePayment(ctx, "o1", 0)

	require.Error(t, err)

	// reservasi belum di-klaim, retry dengan jumlah benar masih bisa
	r, _ := fx.resv.Get(ctx, "o1")
	assert.Equal(t, reservation.StatusActive, r.Status)
}

func TestHandlePaymentEvent(t *testing.T) {
	fx := setupSettlementTest(t)
	ctx := context.Background()
	seedReservedOrder(t, fx, "o1")
	cons := &Consumer{Settlement: fx.svc}

	env := orders.Envelope{
		EventID:       "ev-1",
		EventType:     orders.EventPaymentCompleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "gateway",
		CorrelationID: "o1",
		Payload:       kafkax.MustMarshal(orders.PaymentCompletedPayload{OrderID: "o1", GrossCents: 10000}),
	}
	msg := kafkago.Message{Value: kafkax.MustMarshal(env)}

	require.NoError(t, cons.HandlePaymentEvent(ctx, msg))

	o, _ := fx.repo.Get(ctx, "o1")
	assert.Equal(t, orders.StatusPaid, o.Status)

	// kiriman ulang: klaim sudah resolved, handler selesai tanpa retry
	require.NoError(t, cons.HandlePaymentEvent(ctx, msg))
	assert.Len(t, fx.rev.Rows(), 1)
}

func TestHandlePaymentEvent_IgnoresOtherTypes(t *testing.T) {
	fx := setupSettlementTest(t)
	seedReservedOrder(t, fx, "o1")
	cons := &Consumer{Settlement: fx.svc}

	env := orders.Envelope{
		EventID:   "ev-x",
		EventType: orders.EventOrderCreated,
		Payload:   kafkax.MustMarshal(orders.OrderCreatedPayload{OrderID: "o1"}),
	}

	require.NoError(t, cons.HandlePaymentEvent(context.Background(), kafkago.Message{Value: kafkax.MustMarshal(env)}))

	o, _ := fx.repo.Get(context.Background(), "o1")
	assert.Equal(t, orders.StatusReserved, o.Status)
}

// --- Mocks ---

type publishedEvent struct {
	Topic string
	Env   orders.Envelope
}

type mockPublisher struct {
	events []publishedEvent
}

func (m *mockPublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) {
	var env orders.Envelope
	_ = kafkax.UnmarshalEnvelope(value, &env)
	m.events = append(m.events, publishedEvent{Topic: topic, Env: env})
}

func (m *mockPublisher) last(t *testing.T) publishedEvent {
	t.Helper()
	require.NotEmpty(t, m.events)
	return m.events[len(m.events)-1]
}
