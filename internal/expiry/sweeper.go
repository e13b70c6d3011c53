// Package expiry menyapu reservasi yang lewat deadline: klaim eksklusif,
// kembalikan stok, batalkan order.
package expiry

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
)

// OrderCanceller dipenuhi oleh orders.Service.
type OrderCanceller interface {
	CancelExpired(ctx context.Context, orderID string) error
}

type Stats struct {
	Claimed   int
	Released  int
	Cancelled int
	Skipped   int
}

// Sweeper menjalankan loop ticker dengan lifecycle Start/Close/WaitClosed.
// Tiap tick satu batch; klaim yang sudah diambil tidak akan muncul lagi,
// jadi dua sweep beruntun tidak pernah memproses reservasi yang sama dua kali.
type Sweeper struct {
	Resv     reservation.Store
	Ledger   ledger.Ledger
	Orders   OrderCanceller
	Interval time.Duration

	Now func() time.Time // test hook; nil -> time.Now

	closeOnce sync.Once
	closeCh   chan struct{}
	doneCh    chan struct{}
}

func New(resv reservation.Store, led ledger.Ledger, orders OrderCanceller, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		Resv:     resv,
		Ledger:   led,
		Orders:   orders,
		Interval: interval,
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *Sweeper) clock() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)
		t := time.NewTicker(s.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closeCh:
				return
			case <-t.C:
				st, err := s.RunOnce(ctx, s.clock())
				if err != nil {
					log.WithError(err).Error("expiry sweep failed")
					continue
				}
				if st.Claimed > 0 {
					log.WithFields(log.Fields{
						"claimed":   st.Claimed,
						"cancelled": st.Cancelled,
						"skipped":   st.Skipped,
					}).Info("expiry sweep")
				}
			}
		}
	}()
}

func (s *Sweeper) Close()      { s.closeOnce.Do(func() { close(s.closeCh) }) }
func (s *Sweeper) WaitClosed() { <-s.doneCh }

// RunOnce memproses satu batch penuh. Gagal di satu order di-log dan
// di-skip; sisanya jalan terus.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (Stats, error) {
	claimed, err := s.Resv.ClaimExpired(ctx, now)
	if err != nil {
		return Stats{}, errors.Wrap(err, "claim expired reservations")
	}
	st := Stats{Claimed: len(claimed)}
	for _, res := range claimed {
		if err := s.Ledger.ReleaseItems(ctx, res.Items); err != nil {
			st.Skipped++
			log.WithFields(log.Fields{"order_id": res.OrderID}).WithError(err).Warn("release reserved stock")
			continue
		}
		st.Released++
		if err := s.Orders.CancelExpired(ctx, res.OrderID); err != nil {
			st.Skipped++
			log.WithFields(log.Fields{"order_id": res.OrderID}).WithError(err).Warn("cancel expired order")
			continue
		}
		st.Cancelled++
	}
	return st, nil
}
