package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/ismartsell/go-pickup-orders/internal/ledger"
	"github.com/ismartsell/go-pickup-orders/internal/orders"
	"github.com/ismartsell/go-pickup-orders/internal/redisx"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
	"github.com/ismartsell/go-pickup-orders/internal/settlement"
)

// OrdersHandler: semua route pickup order. Redis boleh nil (test); cache dan
// idempotency fast path otomatis di-skip.
type OrdersHandler struct {
	Orders     *orders.Service
	Settlement *settlement.Service
	Redis      *redis.Client
}

type CreateOrderReq struct {
	BuyerID string               `json:"buyer_id"`
	StoreID string               `json:"store_id"`
	Method  orders.PaymentMethod `json:"payment_method"`
	Items   []orders.ItemInput   `json:"items"`
}

type CreateOrderResp struct {
	OrderID       string        `json:"order_id"`
	Status        orders.Status `json:"status"`
	TotalCents    int64         `json:"total_cents"`
	ReservedUntil *time.Time    `json:"reserved_until,omitempty"`
	Idempotent    bool          `json:"idempotent,omitempty"`
}

type OrderDetailResp struct {
	Order       *orders.Order            `json:"order"`
	Reservation *reservation.Reservation `json:"reservation,omitempty"`
	Payment     *settlement.Payment      `json:"payment,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/ready", h.markReady)
	r.Post("/orders/{id}/payments", h.initiatePayment)
	r.Post("/payments/webhook", h.paymentWebhook)
	r.Post("/qr/validate", h.validateQR)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
}

// errStatus memetakan error domain ke kode HTTP. Konflik stok dan transisi
// invalid sama-sama 409; reservasi yang keburu resolved 410 supaya caller tahu
// retry tidak ada gunanya.
func errStatus(err error) int {
	var (
		insufficient *ledger.StockInsufficientError
		transition   *orders.InvalidTransitionError
		expired      *reservation.ReservationExpiredError
		noResv       *reservation.ReservationNotFoundError
	)
	switch {
	case errors.As(err, &insufficient), errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &expired):
		return http.StatusGone
	case errors.As(err, &noResv),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, ledger.ErrProductNotFound),
		errors.Is(err, settlement.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrNotAllowed):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, st orders.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]any{"status": st, "updated_at": time.Now().UTC()})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.BuyerID == "" {
		req.BuyerID = r.Header.Get("X-User-ID")
	}
	if req.BuyerID == "" || req.StoreID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency via Redis; DB tetap sumber kebenaran.
	idemKey := ""
	if k := r.Header.Get("X-Idempotency-Key"); k != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderCreate, k)
		if id, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && id != "" {
			if o, gerr := h.Orders.GetOrder(ctx, id); gerr == nil {
				writeJSON(w, http.StatusOK, orderResp(o, true))
				return
			}
		}
	}

	o, err := h.Orders.CreateOrder(ctx, orders.CreateOrderInput{
		BuyerID: req.BuyerID,
		StoreID: req.StoreID,
		Method:  req.Method,
		Items:   req.Items,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if idemKey != "" {
		_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}
	h.cacheStatus(ctx, o.ID, o.Status)

	writeJSON(w, http.StatusCreated, orderResp(o, false))
}

func orderResp(o *orders.Order, idempotent bool) CreateOrderResp {
	return CreateOrderResp{
		OrderID:       o.ID,
		Status:        o.Status,
		TotalCents:    o.TotalCents,
		ReservedUntil: o.ReservedUntil,
		Idempotent:    idempotent,
	}
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := r.URL.Query().Get("buyer_id")
	if buyerID == "" {
		buyerID = r.Header.Get("X-User-ID")
	}
	if buyerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing buyer_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.Orders.ListOrders(ctx, buyerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": os})
}

// getOrder mengembalikan view gabungan order + reservasi + payment. Reservasi
// dan payment opsional: order PENDING/FAILED memang belum punya keduanya.
func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	detail := OrderDetailResp{Order: o}
	if res, rerr := h.Orders.GetReservation(ctx, orderID); rerr == nil {
		detail.Reservation = res
	}
	if p, perr := h.Settlement.GetPayment(ctx, orderID); perr == nil {
		detail.Payment = p
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) fallback DB
	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status, "updated_at": o.UpdatedAt})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	actor := r.Header.Get("X-User-ID")
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-User-ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.CancelOrder(ctx, orderID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "status": o.Status})
}

func (h *OrdersHandler) markReady(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	actor := r.Header.Get("X-User-ID")
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing X-User-ID"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.MarkReady(ctx, orderID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	if h.Redis != nil && o.QRToken != "" {
		_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyQRToken, o.QRToken), o.ID, redisx.TTLQRToken).Err()
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "status": o.Status, "qr_token": o.QRToken})
}
