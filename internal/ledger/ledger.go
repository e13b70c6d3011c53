// Package ledger memegang counter available/reserved per product.
//
// Unit bergerak available -> reserved (Reserve), reserved -> available
// (Release), dan reserved -> terjual (Commit). Counter tidak boleh negatif;
// setiap mutasi adalah satu langkah atomik per product.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

type Item struct {
	ProductID string `json:"product_id"`
	Qty       int64  `json:"qty"`
}

type Stock struct {
	ProductID string `json:"product_id"`
	Available int64  `json:"available"`
	Reserved  int64  `json:"reserved"`
}

type Ledger interface {
	Reserve(ctx context.Context, productID string, qty int64) error
	Release(ctx context.Context, productID string, qty int64) error
	Commit(ctx context.Context, productID string, qty int64) error

	// ReserveItems: semua line item ter-reserve atau tidak sama sekali.
	// Item diproses urut ascending product id supaya lock order deterministik
	// antar order yang bersaing.
	ReserveItems(ctx context.Context, items []Item) error
	ReleaseItems(ctx context.Context, items []Item) error
	CommitItems(ctx context.Context, items []Item) error

	Restock(ctx context.Context, productID string, qty int64) error
	Stock(ctx context.Context, productID string) (Stock, error)
}

var ErrProductNotFound = errors.New("ledger: product not found")

// StockInsufficientError: satu atau lebih item tidak bisa di-reserve.
// Setelah error ini tidak ada reservasi parsial yang tersisa.
type StockInsufficientError struct {
	Items []InsufficientItem
}

type InsufficientItem struct {
	ProductID string `json:"product_id"`
	Required  int64  `json:"required"`
	Available int64  `json:"available"`
}

func (e *StockInsufficientError) Error() string {
	if len(e.Items) == 1 {
		it := e.Items[0]
		return fmt.Sprintf("insufficient stock for product %s: need %d, available %d", it.ProductID, it.Required, it.Available)
	}
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Items))
}

func sortItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
