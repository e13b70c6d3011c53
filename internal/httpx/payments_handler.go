package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ismartsell/go-pickup-orders/internal/orders"
	"github.com/ismartsell/go-pickup-orders/internal/redisx"
)

type InitiatePaymentReq struct {
	Method orders.PaymentMethod `json:"payment_method"`
}

// PaymentWebhookReq: bentuk push dari payment gateway. EventID dipakai untuk
// dedup retry gateway.
type PaymentWebhookReq struct {
	EventID     string `json:"event_id"`
	OrderID     string `json:"order_id"`
	GrossCents  int64  `json:"gross_cents"`
	ProviderRef string `json:"provider_ref"`
}

type ValidateQRReq struct {
	Token string `json:"token"`
}

func (h *OrdersHandler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req InitiatePaymentReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // body opsional, default ONLINE
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Settlement.InitiatePayment(ctx, orderID, req.Method)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *OrdersHandler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req PaymentWebhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.OrderID == "" || req.GrossCents <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Dedup retry gateway; proses dulu, tandai sukses belakangan supaya retry
	// setelah error tetap jalan.
	dedupKey := ""
	if req.EventID != "" && h.Redis != nil {
		dedupKey = fmt.Sprintf(redisx.KeyDedup, "webhook", req.EventID)
		if ok, _ := redisx.Exists(ctx, h.Redis, dedupKey); ok {
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	p, err := h.Settlement.CompletePayment(ctx, req.OrderID, req.GrossCents)
	if err != nil {
		writeError(w, err)
		return
	}

	if dedupKey != "" {
		_ = h.Redis.Set(ctx, dedupKey, "1", redisx.TTLDedup).Err()
	}
	h.cacheStatus(ctx, req.OrderID, orders.StatusPaid)
	writeJSON(w, http.StatusOK, p)
}

func (h *OrdersHandler) validateQR(w http.ResponseWriter, r *http.Request) {
	var req ValidateQRReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing token"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.ConfirmDelivery(ctx, req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	if h.Redis != nil {
		_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyQRToken, req.Token)).Err()
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "status": o.Status})
}
