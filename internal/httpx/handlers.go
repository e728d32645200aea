package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jatango/liveshop/internal/catalog"
	"github.com/jatango/liveshop/internal/checkout"
	kafkax "github.com/jatango/liveshop/internal/kafka"
	"github.com/jatango/liveshop/internal/ledger"
	"github.com/jatango/liveshop/internal/orders"
	"github.com/jatango/liveshop/internal/reservation"
	"github.com/jatango/liveshop/internal/session"
)

// headerIdentity names the authenticated caller; auth mechanics live at the
// edge, upstream of this service.
const headerIdentity = "X-User-Id"

type Handlers struct {
	Catalog      *catalog.Repo
	Ledger       ledger.Store
	Reservations *reservation.Service
	Checkout     *checkout.Orchestrator
	Sessions     *session.Repo
	Hubs         *session.Manager
	Orders       *orders.Repo
	Producer     *kafkax.Producer // session.ended
	Service      string
	Log          zerolog.Logger
}

func (h *Handlers) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{id}/availability", h.availability)
	r.Delete("/variants/{id}", h.archiveVariant)

	r.Post("/reservations", h.reserve)
	r.Post("/reservations/{id}/touch", h.touchReservation)
	r.Delete("/reservations/{id}", h.releaseReservation)

	r.Post("/sessions", h.startSession)
	r.Post("/sessions/{id}/end", h.endSession)
	r.Put("/sessions/{id}/carousel", h.setCarousel)
	r.Get("/sessions/{id}/ws", h.sessionWS)

	r.Post("/checkout/intent", h.createIntent)
	r.Post("/checkout/rates", h.rates)
	r.Post("/checkout/confirm", h.confirmOrder)
	r.Post("/checkout/abandon", h.abandonCheckout)

	r.Get("/orders/{id}", h.getOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the domain taxonomy onto status codes. Out-of-stock and
// conflicts are 409, lapsed holds 410, declines 402; everything recoverable
// carries the reason through to the client.
func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrOutOfStock):
		code = http.StatusConflict
	case errors.Is(err, ledger.ErrReservationExpired):
		code = http.StatusGone
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, session.ErrSessionEnded):
		code = http.StatusConflict
	case errors.Is(err, checkout.ErrPaymentDeclined):
		code = http.StatusPaymentRequired
	case errors.Is(err, catalog.ErrNotSellable), errors.Is(err, catalog.ErrSelectorRequired):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, orders.ErrNotFound),
		errors.Is(err, session.ErrNotFound):
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func identity(r *http.Request) string { return r.Header.Get(headerIdentity) }
