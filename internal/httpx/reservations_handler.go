package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jatango/liveshop/internal/catalog"
)

type reserveReq struct {
	CartItemID string           `json:"cart_item_id"`
	ProductID  string           `json:"product_id"`
	Selector   catalog.Selector `json:"selector"`
	Qty        int              `json:"qty"`
}

type reserveResp struct {
	ReservationID string    `json:"reservation_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (h *Handlers) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	holder := identity(r)
	if holder == "" || req.CartItemID == "" || req.ProductID == "" || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Reservations.Reserve(ctx, holder, req.CartItemID, req.ProductID, req.Selector, req.Qty)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reserveResp{ReservationID: res.ID, ExpiresAt: res.ExpiresAt})
}

func (h *Handlers) touchReservation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	until, err := h.Reservations.Touch(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{"expires_at": until})
}

func (h *Handlers) releaseReservation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Reservations.Release(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
