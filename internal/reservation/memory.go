package reservation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ismartsell/go-pickup-orders/internal/ledger"
)

// Memory: driver in-memory untuk test dan mode dev. Satu mutex untuk semua
// klaim sudah cukup; klaim adalah operasi map pendek tanpa I/O.
type Memory struct {
	mu      sync.Mutex
	byOrder map[string]*Reservation
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{byOrder: make(map[string]*Reservation), now: time.Now}
}

func (m *Memory) Create(ctx context.Context, orderID string, items []ledger.Item, ttl time.Duration) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byOrder[orderID]; ok {
		return nil, ErrAlreadyExists
	}
	now := m.now().UTC()
	r := &Reservation{
		OrderID:   orderID,
		Items:     copyItems(items),
		Status:    StatusActive,
		CreatedAt: now,
		Deadline:  now.Add(ttl),
	}
	m.byOrder[orderID] = r
	return clone(r), nil
}

func (m *Memory) ClaimExpired(ctx context.Context, now time.Time) ([]*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []*Reservation
	for _, r := range m.byOrder {
		if r.Status != StatusActive || r.Deadline.After(now) {
			continue
		}
		at := now
		r.Status = StatusExpired
		r.ResolvedAt = &at
		claimed = append(claimed, clone(r))
	}
	// urutan map tidak stabil; urutkan by deadline biar batch deterministik
	sort.Slice(claimed, func(i, j int) bool {
		if claimed[i].Deadline.Equal(claimed[j].Deadline) {
			return claimed[i].OrderID < claimed[j].OrderID
		}
		return claimed[i].Deadline.Before(claimed[j].Deadline)
	})
	return claimed, nil
}

func (m *Memory) ClaimForSettlement(ctx context.Context, orderID string) (*Reservation, error) {
	return m.claim(orderID, StatusSettled)
}

func (m *Memory) ClaimForCancel(ctx context.Context, orderID string) (*Reservation, error) {
	return m.claim(orderID, StatusCancelled)
}

func (m *Memory) claim(orderID string, to Status) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byOrder[orderID]
	if !ok {
		return nil, &ReservationNotFoundError{OrderID: orderID}
	}
	switch r.Status {
	case StatusActive:
		at := m.now().UTC()
		r.Status = to
		r.ResolvedAt = &at
		return clone(r), nil
	case StatusExpired, StatusCancelled:
		return nil, &ReservationExpiredError{OrderID: orderID}
	default: // SETTLED
		return nil, &ReservationNotFoundError{OrderID: orderID}
	}
}

func (m *Memory) Get(ctx context.Context, orderID string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byOrder[orderID]
	if !ok {
		return nil, &ReservationNotFoundError{OrderID: orderID}
	}
	return clone(r), nil
}

func (m *Memory) ListActive(ctx context.Context) ([]*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Reservation
	for _, r := range m.byOrder {
		if r.Status == StatusActive {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

func copyItems(items []ledger.Item) []ledger.Item {
	out := make([]ledger.Item, len(items))
	copy(out, items)
	return out
}

func clone(r *Reservation) *Reservation {
	c := *r
	c.Items = copyItems(r.Items)
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}
