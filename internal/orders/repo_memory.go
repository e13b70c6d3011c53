package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryRepo untuk test dan mode dev satu proses.
type MemoryRepo struct {
	mu      sync.Mutex
	byID    map[string]*Order
	byToken map[string]string // qr_token -> order id
}

var _ Repo = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]*Order), byToken: make(map[string]string)}
}

func (r *MemoryRepo) Create(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[o.ID]; ok {
		return errors.Errorf("order %s already exists", o.ID)
	}
	r.byID[o.ID] = cloneOrder(o)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepo) GetByQRToken(ctx context.Context, token string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(r.byID[id]), nil
}

func (r *MemoryRepo) ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Order
	for _, o := range r.byID {
		if o.BuyerID == buyerID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != from {
		return &InvalidTransitionError{OrderID: id, From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepo) MarkReserved(ctx context.Context, id string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != StatusPending {
		return &InvalidTransitionError{OrderID: id, From: o.Status, To: StatusReserved}
	}
	o.Status = StatusReserved
	o.ReservedUntil = &until
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepo) MarkReady(ctx context.Context, id string, qrToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != StatusPaid {
		return &InvalidTransitionError{OrderID: id, From: o.Status, To: StatusReady}
	}
	o.Status = StatusReady
	o.QRToken = qrToken
	o.UpdatedAt = time.Now().UTC()
	r.byToken[qrToken] = id
	return nil
}

func cloneOrder(o *Order) *Order {
	c := *o
	c.Items = make([]OrderItem, len(o.Items))
	copy(c.Items, o.Items)
	if o.ReservedUntil != nil {
		t := *o.ReservedUntil
		c.ReservedUntil = &t
	}
	return &c
}

// MemoryCatalog: katalog statis untuk test/dev.
type MemoryCatalog struct {
	mu       sync.Mutex
	products map[string]CatalogProduct
}

var _ Catalog = (*MemoryCatalog)(nil)

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[string]CatalogProduct)}
}

func (c *MemoryCatalog) Seed(p CatalogProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *MemoryCatalog) Product(ctx context.Context, productID string) (CatalogProduct, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return CatalogProduct{}, errors.Wrapf(ErrProductNotFound, "product %s", productID)
	}
	return p, nil
}
