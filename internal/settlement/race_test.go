package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ismartsell/go-pickup-orders/internal/expiry"
	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/orders"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
)

// Webhook pembayaran dan sweep expiry memperebutkan reservasi yang persis di
// deadline. Apapun urutan eksekusinya: tepat satu jalur menang, stok tetap
// konsisten, dan order berakhir PAID atau CANCELLED, tidak pernah dua-duanya.
// Tanpa publisher: mock event tidak aman lintas goroutine.
func TestCompletePayment_RacesExpirySweep(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		repo := orders.NewMemoryRepo()
		led := ledger.NewMemory()
		led.Seed("kopi", 5)
		resv := reservation.NewMemory()
		rev := NewMemoryRevenueRepo()

		svc := &Service{
			Orders:   repo,
			Payments: NewMemoryPaymentRepo(),
			Revenue:  rev,
			Ledger:   led,
			Resv:     resv,
			Gateway:  StubGateway{},
			RateBP:   100,
		}

		items := []ledger.Item{{ProductID: "kopi", Qty: 2}}
		require.NoError(t, led.ReserveItems(ctx, items))
		_, err := resv.Create(ctx, "o1", items, 0) // deadline = sekarang
		require.NoError(t, err)
		now := time.Now().UTC()
		require.NoError(t, repo.Create(ctx, &orders.Order{
			ID:            "o1",
			BuyerID:       "buyer-1",
			StoreID:       "warung-1",
			Status:        orders.StatusReserved,
			PaymentMethod: orders.MethodOnline,
			TotalCents:    10000,
			CreatedAt:     now,
			UpdatedAt:     now,
		}))

		sw := expiry.New(resv, led, &orders.Service{Repo: repo}, time.Minute)

		var (
			wg     sync.WaitGroup
			st     expiry.Stats
			payErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			st, _ = sw.RunOnce(ctx, time.Now().UTC().Add(time.Second))
		}()
		go func() {
			defer wg.Done()
			_, payErr = svc.CompletePayment(ctx, "o1", 10000)
		}()
		wg.Wait()

		s, err := led.Stock(ctx, "kopi")
		require.NoError(t, err)
		assert.Equal(t, int64(0), s.Reserved, "round %d", round)

		o, err := repo.Get(ctx, "o1")
		require.NoError(t, err)

		if payErr == nil {
			// settlement menang: unit terjual, order PAID, sweep tidak merilis apa pun
			assert.Equal(t, int64(3), s.Available, "round %d", round)
			assert.Equal(t, orders.StatusPaid, o.Status, "round %d", round)
			assert.Zero(t, st.Released, "round %d", round)
			assert.Len(t, rev.Rows(), 1, "round %d", round)
		} else {
			// expiry menang: stok balik, order CANCELLED, pembayaran ditolak final
			var expired *reservation.ReservationExpiredError
			require.ErrorAs(t, payErr, &expired, "round %d", round)
			assert.Equal(t, int64(5), s.Available, "round %d", round)
			assert.Equal(t, orders.StatusCancelled, o.Status, "round %d", round)
			assert.Equal(t, 1, st.Cancelled, "round %d", round)
			assert.Empty(t, rev.Rows(), "round %d", round)
		}
	}
}
