package httpx

import (
	"context"
	"net/http"
	"time"

	"encoding/json"

	"github.com/go-chi/chi/v5"

	"github.com/jatango/liveshop/internal/catalog"
)

func (h *Handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sellerID := r.URL.Query().Get("seller")
	if sellerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing seller"})
		return
	}
	ps, err := h.Catalog.ListBySeller(ctx, sellerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *Handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.CreateProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if in.SellerID == "" || in.Name == "" || in.PriceCents < 0 || in.Stock < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id, err := h.Catalog.Create(ctx, in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// archiveVariant hides a sold-out or discontinued variant from selection;
// existing orders keep referencing it.
func (h *Handlers) archiveVariant(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Catalog.ArchiveVariant(ctx, chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) availability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q := r.URL.Query()
	sel := catalog.Selector{
		ColorID:   q.Get("color"),
		SizeID:    q.Get("size"),
		VariantID: q.Get("variant"),
	}
	qty, err := h.Ledger.Availability(ctx, chi.URLParam(r, "id"), sel)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available": qty})
}
