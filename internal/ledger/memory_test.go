package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveMovesAvailableToReserved(t *testing.T) {
	led := NewMemory()
	led.Seed("p1", 10)
	ctx := context.Background()

	require.NoError(t, led.Reserve(ctx, "p1", 3))

	s, err := led.Stock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.Available)
	assert.Equal(t, int64(3), s.Reserved)
}

func TestReserveInsufficient(t *testing.T) {
	led := NewMemory()
	led.Seed("p1", 2)
	ctx := context.Background()

	err := led.Reserve(ctx, "p1", 3)

	var ins *StockInsufficientError
	require.ErrorAs(t, err, &ins)
	require.Len(t, ins.Items, 1)
	assert.Equal(t, "p1", ins.Items[0].ProductID)
	assert.Equal(t, int64(3), ins.Items[0].Required)
	assert.Equal(t, int64(2), ins.Items[0].Available)

	s, _ := led.Stock(ctx, "p1")
	assert.Equal(t, int64(2), s.Available)
	assert.Equal(t, int64(0), s.Reserved)
}

func TestReserveItems_AllOrNothing(t *testing.T) {
	led := NewMemory()
	led.Seed("a", 5)
	led.Seed("b", 1)
	led.Seed("c", 5)
	ctx := context.Background()

	err := led.ReserveItems(ctx, []Item{
		{ProductID: "c", Qty: 2},
		{ProductID: "a", Qty: 2},
		{ProductID: "b", Qty: 2},
	})

	var ins *StockInsufficientError
	require.ErrorAs(t, err, &ins)
	require.Len(t, ins.Items, 1)
	assert.Equal(t, "b", ins.Items[0].ProductID)

	// item yang sempat ter-reserve harus sudah dibalikin semua
	for _, id := range []string{"a", "b", "c"} {
		s, serr := led.Stock(ctx, id)
		require.NoError(t, serr)
		assert.Equal(t, int64(0), s.Reserved, "product %s", id)
	}
	sa, _ := led.Stock(ctx, "a")
	assert.Equal(t, int64(5), sa.Available)
}

func TestReserveItems_ReportsEveryShortage(t *testing.T) {
	led := NewMemory()
	led.Seed("a", 0)
	led.Seed("b", 10)
	led.Seed("c", 1)
	ctx := context.Background()

	err := led.ReserveItems(ctx, []Item{
		{ProductID: "a", Qty: 1},
		{ProductID: "b", Qty: 2},
		{ProductID: "c", Qty: 5},
	})

	var ins *StockInsufficientError
	require.ErrorAs(t, err, &ins)
	require.Len(t, ins.Items, 2)
	assert.Equal(t, "a", ins.Items[0].ProductID)
	assert.Equal(t, "c", ins.Items[1].ProductID)

	sb, _ := led.Stock(ctx, "b")
	assert.Equal(t, int64(10), sb.Available)
	assert.Equal(t, int64(0), sb.Reserved)
}

func TestCommitIsPermanent(t *testing.T) {
	led := NewMemory()
	led.Seed("p1", 5)
	ctx := context.Background()

	require.NoError(t, led.Reserve(ctx, "p1", 3))
	require.NoError(t, led.Commit(ctx, "p1", 3))

	s, _ := led.Stock(ctx, "p1")
	assert.Equal(t, int64(2), s.Available)
	assert.Equal(t, int64(0), s.Reserved)
}

func TestReleaseExceedsReserved(t *testing.T) {
	led := NewMemory()
	led.Seed("p1", 5)
	ctx := context.Background()

	require.NoError(t, led.Reserve(ctx, "p1", 2))
	require.Error(t, led.Release(ctx, "p1", 3))

	s, _ := led.Stock(ctx, "p1")
	assert.Equal(t, int64(2), s.Reserved)
	assert.Equal(t, int64(3), s.Available)
}

func TestReserveUnknownProduct(t *testing.T) {
	led := NewMemory()

	err := led.Reserve(context.Background(), "ghost", 1)

	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestConcurrentReserve_ExactlyOneWins(t *testing.T) {
	led := NewMemory()
	led.Seed("p1", 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = led.Reserve(ctx, "p1", 1)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		var ins *StockInsufficientError
		require.ErrorAs(t, err, &ins)
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	s, _ := led.Stock(ctx, "p1")
	assert.Equal(t, int64(0), s.Available)
	assert.Equal(t, int64(1), s.Reserved)
}

func TestConcurrentMutationsConserveUnits(t *testing.T) {
	led := NewMemory()
	led.Seed("p1", 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := led.Reserve(ctx, "p1", 1); err != nil {
				return
			}
			_ = led.Release(ctx, "p1", 1)
		}()
	}
	wg.Wait()

	s, _ := led.Stock(ctx, "p1")
	assert.Equal(t, int64(100), s.Available+s.Reserved)
	assert.Equal(t, int64(0), s.Reserved)
}

func TestRestockCreatesEntry(t *testing.T) {
	led := NewMemory()
	ctx := context.Background()

	require.NoError(t, led.Restock(ctx, "new", 7))

	s, err := led.Stock(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.Available)
}
