package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrNotAllowed      = errors.New("actor not allowed for this order")
)

// InvalidTransitionError: operasi menarget state yang tidak diizinkan dari
// state sekarang. Order tidak berubah; caller harus re-fetch.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}
