package expiry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
)

// --- Setup ---

func setupSweeperTest(t *testing.T) (*reservation.Memory, *ledger.Memory, *mockCanceller) {
	resv := reservation.NewMemory()
	led := ledger.NewMemory()
	led.Seed("kopi", 10)
	return resv, led, &mockCanceller{failOn: map[string]bool{}}
}

// seedExpired: reservasi dengan deadline sudah lewat + stok ter-hold.
func seedExpired(t *testing.T, resv *reservation.Memory, led *ledger.Memory, orderID string, qty int64) {
	t.Helper()
	ctx := context.Background()
	items := []ledger.Item{{ProductID: "kopi", Qty: qty}}
	require.NoError(t, led.ReserveItems(ctx, items))
	_, err := resv.Create(ctx, orderID, items, 0)
	require.NoError(t, err)
}

// --- Tests ---

func TestRunOnce_ReleasesAndCancels(t *testing.T) {
	resv, led, canc := setupSweeperTest(t)
	ctx := context.Background()
	seedExpired(t, resv, led, "late", 2)

	items := []ledger.Item{{ProductID: "kopi", Qty: 3}}
	require.NoError(t, led.ReserveItems(ctx, items))
	_, err := resv.Create(ctx, "fresh", items, time.Hour)
	require.NoError(t, err)

	sw := New(resv, led, canc, time.Minute)
	st, err := sw.RunOnce(ctx, time.Now().UTC())

	require.NoError(t, err)
	assert.Equal(t, Stats{Claimed: 1, Released: 1, Cancelled: 1}, st)
	assert.Equal(t, []string{"late"}, canc.called())

	// cuma hold order expired yang dibalikin
	s, _ := led.Stock(ctx, "kopi")
	assert.Equal(t, int64(7), s.Available)
	assert.Equal(t, int64(3), s.Reserved)

	r, err := resv.Get(ctx, "late")
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusExpired, r.Status)
	fresh, err := resv.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusActive, fresh.Status)
}

func TestRunOnce_SecondSweepNoop(t *testing.T) {
	resv, led, canc := setupSweeperTest(t)
	ctx := context.Background()
	seedExpired(t, resv, led, "late", 2)
	sw := New(resv, led, canc, time.Minute)

	_, err := sw.RunOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	st, err := sw.RunOnce(ctx, time.Now().UTC())

	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
	assert.Len(t, canc.called(), 1)

	s, _ := led.Stock(ctx, "kopi")
	assert.Equal(t, int64(10), s.Available)
	assert.Equal(t, int64(0), s.Reserved)
}

func TestRunOnce_ContinuesAfterCancelFailure(t *testing.T) {
	resv, led, canc := setupSweeperTest(t)
	ctx := context.Background()
	seedExpired(t, resv, led, "a", 1)
	seedExpired(t, resv, led, "b", 1)
	seedExpired(t, resv, led, "c", 1)
	canc.failOn["b"] = true

	sw := New(resv, led, canc, time.Minute)
	st, err := sw.RunOnce(ctx, time.Now().UTC())

	require.NoError(t, err)
	assert.Equal(t, 3, st.Claimed)
	assert.Equal(t, 3, st.Released)
	assert.Equal(t, 2, st.Cancelled)
	assert.Equal(t, 1, st.Skipped)

	// stok tetap dibalikin untuk semua, termasuk yang cancel-nya gagal
	s, _ := led.Stock(ctx, "kopi")
	assert.Equal(t, int64(10), s.Available)
	assert.Equal(t, int64(0), s.Reserved)
	assert.ElementsMatch(t, []string{"a", "c"}, canc.called())
}

func TestRunOnce_SkipsOnReleaseFailure(t *testing.T) {
	resv, led, canc := setupSweeperTest(t)
	ctx := context.Background()

	// reservasi tercatat tapi hold di ledger tidak ada; release pasti gagal
	_, err := resv.Create(ctx, "ghost", []ledger.Item{{ProductID: "kopi", Qty: 2}}, 0)
	require.NoError(t, err)

	sw := New(resv, led, canc, time.Minute)
	st, err := sw.RunOnce(ctx, time.Now().UTC())

	require.NoError(t, err)
	assert.Equal(t, Stats{Claimed: 1, Skipped: 1}, st)
	assert.Empty(t, canc.called())
}

func TestStartRunsUntilClosed(t *testing.T) {
	resv, led, canc := setupSweeperTest(t)
	seedExpired(t, resv, led, "late", 2)

	sw := New(resv, led, canc, 10*time.Millisecond)
	sw.Start(context.Background())

	require.Eventually(t, func() bool {
		return len(canc.called()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sw.Close()
	sw.WaitClosed()

	s, _ := led.Stock(context.Background(), "kopi")
	assert.Equal(t, int64(10), s.Available)
}

func TestDefaultInterval(t *testing.T) {
	sw := New(reservation.NewMemory(), ledger.NewMemory(), &mockCanceller{}, 0)
	assert.Equal(t, 5*time.Minute, sw.Interval)
}

// --- Mocks ---

type mockCanceller struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (m *mockCanceller) CancelExpired(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[orderID] {
		return errors.New("cancel failed")
	}
	m.calls = append(m.calls, orderID)
	return nil
}

func (m *mockCanceller) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
