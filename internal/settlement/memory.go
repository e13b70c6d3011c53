package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type MemoryPaymentRepo struct {
	mu      sync.Mutex
	byOrder map[string]*Payment
}

var _ PaymentRepo = (*MemoryPaymentRepo)(nil)

func NewMemoryPaymentRepo() *MemoryPaymentRepo {
	return &MemoryPaymentRepo{byOrder: make(map[string]*Payment)}
}

func (r *MemoryPaymentRepo) Create(ctx context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOrder[p.OrderID]; ok {
		return ErrDuplicatePayment
	}
	c := *p
	r.byOrder[p.OrderID] = &c
	return nil
}

func (r *MemoryPaymentRepo) GetByOrder(ctx context.Context, orderID string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byOrder[orderID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	c := *p
	return &c, nil
}

func (r *MemoryPaymentRepo) Complete(ctx context.Context, id string, gross, commission, net int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byOrder {
		if p.ID != id {
			continue
		}
		if p.Status != PaymentCreated {
			return errors.Errorf("payment %s is not in %s state", id, PaymentCreated)
		}
		p.Status = PaymentCompleted
		p.GrossCents = gross
		p.CommissionCents = commission
		p.NetCents = net
		p.CompletedAt = &at
		return nil
	}
	return ErrPaymentNotFound
}

type MemoryRevenueRepo struct {
	mu   sync.Mutex
	rows []PlatformRevenue
}

var _ RevenueRepo = (*MemoryRevenueRepo)(nil)

func NewMemoryRevenueRepo() *MemoryRevenueRepo { return &MemoryRevenueRepo{} }

func (r *MemoryRevenueRepo) Record(ctx context.Context, rev *PlatformRevenue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *rev)
	return nil
}

// Rows: snapshot untuk assert di test.
func (r *MemoryRevenueRepo) Rows() []PlatformRevenue {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PlatformRevenue, len(r.rows))
	copy(out, r.rows)
	return out
}
