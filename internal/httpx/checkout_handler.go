package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jatango/liveshop/internal/checkout"
)

type confirmReq struct {
	IntentID string        `json:"intent_id"`
	Cart     checkout.Cart `json:"cart"`
	RateID   string        `json:"rate_id,omitempty"`
}

func (h *Handlers) createIntent(w http.ResponseWriter, r *http.Request) {
	var cart checkout.Cart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if cart.BuyerID == "" || cart.SellerID == "" || len(cart.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	// Processor round-trip gets its own deadline, distinct from the hold TTL.
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	intent, err := h.Checkout.CreateIntent(ctx, cart)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"intent_id":     intent.IntentID,
		"client_secret": intent.ClientSecret,
	})
}

func (h *Handlers) rates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CartID string           `json:"cart_id"`
		From   checkout.Address `json:"from"`
		To     checkout.Address `json:"to"`
		Parcel checkout.Parcel  `json:"parcel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rates, err := h.Checkout.Rates(ctx, req.CartID, req.From, req.To, req.Parcel)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

func (h *Handlers) confirmOrder(w http.ResponseWriter, r *http.Request) {
	var req confirmReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.IntentID == "" || len(req.Cart.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	ord, err := h.Checkout.ConfirmOrder(ctx, req.IntentID, req.Cart, req.RateID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":    ord.ID,
		"total_cents": ord.TotalCents,
	})
}

// abandonCheckout releases the cart's holds right away instead of waiting for
// the expiry sweep.
func (h *Handlers) abandonCheckout(w http.ResponseWriter, r *http.Request) {
	var cart checkout.Cart
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.Checkout.Abandon(ctx, cart)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ord, err := h.Orders.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":    ord.ID,
		"status":      ord.Status,
		"total_cents": ord.TotalCents,
		"tracking":    ord.Tracking,
	})
}
