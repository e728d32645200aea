// Package reservation grants and maintains short-lived inventory holds on
// behalf of shopper carts.
package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jatango/liveshop/internal/catalog"
	"github.com/jatango/liveshop/internal/events"
	kafkax "github.com/jatango/liveshop/internal/kafka"
	"github.com/jatango/liveshop/internal/ledger"
	"github.com/jatango/liveshop/internal/metrics"
)

type Service struct {
	Store    ledger.Store
	TTL      time.Duration
	Producer *kafkax.Producer // reservation.expired; nil disables publishing
	Service  string
	Log      zerolog.Logger
	Now      func() time.Time // defaults to time.Now
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Reserve places a hold for one cart item. Calling it again for the same
// (holder, cart item) replaces the prior hold, which is how a quantity change
// in the cart is expressed.
func (s *Service) Reserve(ctx context.Context, holderID, cartItemID, productID string, sel catalog.Selector, qty int) (ledger.Reservation, error) {
	now := s.now().UTC()
	r, err := s.Store.Reserve(ctx, ledger.Reservation{
		ID:         uuid.NewString(),
		HolderID:   holderID,
		CartItemID: cartItemID,
		ProductID:  productID,
		Selector:   sel,
		Qty:        qty,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.TTL),
	})
	if err != nil {
		metrics.ReservationsDenied.Inc()
		return ledger.Reservation{}, err
	}
	metrics.ReservationsGranted.Inc()
	s.Log.Debug().
		Str("reservation_id", r.ID).
		Str("product_id", productID).
		Int("qty", qty).
		Time("expires_at", r.ExpiresAt).
		Msg("hold granted")
	return r, nil
}

// Touch extends a live hold by one TTL; used while the holder is actively in
// checkout so a slow payment flow does not outlive its own inventory.
func (s *Service) Touch(ctx context.Context, reservationID string) (time.Time, error) {
	until := s.now().UTC().Add(s.TTL)
	if err := s.Store.Touch(ctx, reservationID, until); err != nil {
		return time.Time{}, err
	}
	return until, nil
}

func (s *Service) Release(ctx context.Context, reservationID string) error {
	return s.Store.Release(ctx, reservationID)
}

// Sweep runs the expiry loop until the context is cancelled. Expired holds
// flip to released under a state guard, so a commit that got there first is
// never undone.
func (s *Service) Sweep(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	expired, err := s.Store.ExpireDue(ctx, s.now().UTC())
	if err != nil {
		s.Log.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	for _, r := range expired {
		metrics.ReservationsExpired.Inc()
		s.Log.Info().
			Str("reservation_id", r.ID).
			Str("product_id", r.ProductID).
			Int("qty", r.Qty).
			Msg("hold expired")
		s.publishExpired(r)
	}
}

func (s *Service) publishExpired(r ledger.Reservation) {
	if s.Producer == nil {
		return
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventReservationExpired,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.Service,
		CorrelationID: r.ID,
		Payload: kafkax.MustMarshal(events.ReservationExpiredPayload{
			ReservationID: r.ID,
			HolderID:      r.HolderID,
			ProductID:     r.ProductID,
			Selector:      r.Selector,
			Qty:           r.Qty,
		}),
	}
	s.Producer.Publish(events.PartitionKey(r.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventReservationExpired)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
