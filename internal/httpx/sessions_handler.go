package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jatango/liveshop/internal/events"
	kafkax "github.com/jatango/liveshop/internal/kafka"
	"github.com/jatango/liveshop/internal/session"
)

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request) {
	broadcaster := identity(r)
	if broadcaster == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing identity"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.Sessions.Create(ctx, broadcaster)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.Hubs.Open(s.ID, s.BroadcasterID)
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": s.ID})
}

func (h *Handlers) endSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.Sessions.Get(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if identity(r) != s.BroadcasterID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "broadcaster only"})
		return
	}
	if err := h.Sessions.End(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	peak, _ := h.Hubs.Close(id)
	h.publishSessionEnded(s, peak)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) setCarousel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Products []session.ProductRef `json:"products"`
		Visible  bool                 `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	hub, ok := h.Hubs.Lookup(id)
	if !ok {
		writeErr(w, session.ErrNotFound)
		return
	}
	if identity(r) != hub.BroadcasterID {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "broadcaster only"})
		return
	}
	hub.SetCarousel(req.Products, req.Visible)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) sessionWS(w http.ResponseWriter, r *http.Request) {
	hub, ok := h.Hubs.Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeErr(w, session.ErrNotFound)
		return
	}
	who := identity(r)
	if who == "" {
		who = r.URL.Query().Get("identity")
	}
	hub.ServeWS(w, r, who)
}

func (h *Handlers) publishSessionEnded(s session.Session, peak int) {
	if h.Producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventSessionEnded,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		CorrelationID: s.ID,
		Payload: kafkax.MustMarshal(events.SessionEndedPayload{
			SessionID:     s.ID,
			BroadcasterID: s.BroadcasterID,
			PeakViewers:   peak,
		}),
	}
	h.Producer.Publish(events.PartitionKey(s.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventSessionEnded)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
