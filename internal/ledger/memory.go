package ledger

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type entry struct {
	mu        sync.Mutex
	available int64
	reserved  int64
}

// Memory adalah driver in-memory: satu mutex per product. Dipakai test dan
// mode dev satu proses (STORE_DRIVER=memory).
type Memory struct {
	mu      sync.RWMutex // guard map-nya saja, bukan isi entry
	entries map[string]*entry
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*entry)}
}

// Seed menaruh stok awal sebuah product. Untuk bootstrap test/dev.
func (m *Memory) Seed(productID string, available int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[productID] = &entry{available: available}
}

func (m *Memory) get(productID string) (*entry, bool) {
	m.mu.RLock()
	e, ok := m.entries[productID]
	m.mu.RUnlock()
	return e, ok
}

func (m *Memory) Reserve(ctx context.Context, productID string, qty int64) error {
	e, ok := m.get(productID)
	if !ok {
		return errors.Wrapf(ErrProductNotFound, "product %s", productID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.available < qty {
		return &StockInsufficientError{Items: []InsufficientItem{
			{ProductID: productID, Required: qty, Available: e.available},
		}}
	}
	e.available -= qty
	e.reserved += qty
	return nil
}

func (m *Memory) Release(ctx context.Context, productID string, qty int64) error {
	e, ok := m.get(productID)
	if !ok {
		return errors.Wrapf(ErrProductNotFound, "product %s", productID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reserved < qty {
		return errors.Errorf("release %d unit(s) of %s exceeds reserved %d", qty, productID, e.reserved)
	}
	e.reserved -= qty
	e.available += qty
	return nil
}

func (m *Memory) Commit(ctx context.Context, productID string, qty int64) error {
	e, ok := m.get(productID)
	if !ok {
		return errors.Wrapf(ErrProductNotFound, "product %s", productID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reserved < qty {
		return errors.Errorf("commit %d unit(s) of %s exceeds reserved %d", qty, productID, e.reserved)
	}
	e.reserved -= qty
	return nil
}

func (m *Memory) ReserveItems(ctx context.Context, items []Item) error {
	var (
		taken        []Item
		insufficient []InsufficientItem
	)
	for _, it := range sortItems(items) {
		err := m.Reserve(ctx, it.ProductID, it.Qty)
		if err == nil {
			taken = append(taken, it)
			continue
		}
		var ins *StockInsufficientError
		if errors.As(err, &ins) {
			// tetap lanjut scan supaya caller dapat daftar kekurangan lengkap
			insufficient = append(insufficient, ins.Items...)
			continue
		}
		m.rollback(ctx, taken)
		return err
	}
	if len(insufficient) > 0 {
		m.rollback(ctx, taken)
		return &StockInsufficientError{Items: insufficient}
	}
	return nil
}

func (m *Memory) rollback(ctx context.Context, taken []Item) {
	// release balik apa yang sempat ter-reserve di attempt yang sama;
	// tidak bisa gagal karena kita masih memegang unit-nya
	for _, t := range taken {
		_ = m.Release(ctx, t.ProductID, t.Qty)
	}
}

func (m *Memory) ReleaseItems(ctx context.Context, items []Item) error {
	for _, it := range sortItems(items) {
		if err := m.Release(ctx, it.ProductID, it.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) CommitItems(ctx context.Context, items []Item) error {
	for _, it := range sortItems(items) {
		if err := m.Commit(ctx, it.ProductID, it.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Restock(ctx context.Context, productID string, qty int64) error {
	m.mu.Lock()
	e, ok := m.entries[productID]
	if !ok {
		e = &entry{}
		m.entries[productID] = e
	}
	m.mu.Unlock()

	e.mu.Lock()
	e.available += qty
	e.mu.Unlock()
	return nil
}

func (m *Memory) Stock(ctx context.Context, productID string) (Stock, error) {
	e, ok := m.get(productID)
	if !ok {
		return Stock{}, errors.Wrapf(ErrProductNotFound, "product %s", productID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stock{ProductID: productID, Available: e.available, Reserved: e.reserved}, nil
}
