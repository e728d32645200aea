// Package checkout drives the pay, confirm, commit sequence that turns
// reservations plus a successful payment into a durable order, exactly once.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/jatango/liveshop/internal/catalog"
	"github.com/jatango/liveshop/internal/events"
	kafkax "github.com/jatango/liveshop/internal/kafka"
	"github.com/jatango/liveshop/internal/ledger"
	"github.com/jatango/liveshop/internal/metrics"
	"github.com/jatango/liveshop/internal/orders"
	"github.com/jatango/liveshop/internal/redisx"
	"github.com/jatango/liveshop/internal/reservation"
)

// Cart is an explicit context object for one shopper's checkout; nothing
// about the current cart lives in package state, so concurrent sessions
// cannot cross-talk.
type Cart struct {
	ID      string `json:"id"`
	BuyerID string `json:"buyer_id"`
	// One seller per payment intent.
	SellerID string     `json:"seller_id"`
	Items    []CartItem `json:"items"`
}

type CartItem struct {
	CartItemID    string           `json:"cart_item_id"`
	ProductID     string           `json:"product_id"`
	Selector      catalog.Selector `json:"selector"`
	Qty           int              `json:"qty"`
	ReservationID string           `json:"reservation_id"`
}

type OrderLookup interface {
	GetByIntentID(ctx context.Context, intentID string) (orders.Order, error)
}

// Pricer reads the current unit price for the intent amount. The figure sent
// to the processor is indicative; the binding price is captured again inside
// the commit transaction.
type Pricer interface {
	PriceCents(ctx context.Context, productID string) (int, error)
}

type Orchestrator struct {
	Store        ledger.Store
	Orders       OrderLookup
	Prices       Pricer
	Reservations *reservation.Service
	Processor    PaymentProcessor
	Shipping     RateProvider
	Redis        *redis.Client
	Producer     *kafkax.Producer // order.committed; nil disables publishing
	Service      string
	Log          zerolog.Logger
}

// CreateIntent obtains a client-usable payment secret for the cart. The
// ledger is not touched, but every hold is refreshed so it survives the time
// the shopper spends on the payment sheet.
func (o *Orchestrator) CreateIntent(ctx context.Context, cart Cart) (Intent, error) {
	if len(cart.Items) == 0 {
		return Intent{}, errors.New("checkout: empty cart")
	}

	amount := 0
	g, gctx := errgroup.WithContext(ctx)
	for _, it := range cart.Items {
		it := it
		g.Go(func() error {
			_, err := o.Reservations.Touch(gctx, it.ReservationID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Intent{}, fmt.Errorf("refresh holds: %w", err)
	}
	for _, it := range cart.Items {
		r, err := o.Store.Get(ctx, it.ReservationID)
		if err != nil {
			return Intent{}, err
		}
		p, err := o.Prices.PriceCents(ctx, r.ProductID)
		if err != nil {
			return Intent{}, err
		}
		amount += p * it.Qty
	}

	return o.Processor.CreateIntent(ctx, amount, cart.BuyerID, cart.SellerID)
}

// Rates fetches carrier rates for the cart, cached in Redis for the rest of
// the checkout so repeated sheet openings do not re-hit the carrier.
func (o *Orchestrator) Rates(ctx context.Context, cartID string, from, to Address, parcel Parcel) ([]Rate, error) {
	key := fmt.Sprintf(redisx.KeyRateCache, cartID)
	if o.Redis != nil {
		if raw, err := o.Redis.Get(ctx, key).Result(); err == nil && raw != "" {
			var rates []Rate
			if err := json.Unmarshal([]byte(raw), &rates); err == nil {
				return rates, nil
			}
		}
	}

	rates, err := o.Shipping.Rates(ctx, from, to, parcel)
	if err != nil {
		return nil, err
	}
	if o.Redis != nil {
		if raw, err := json.Marshal(rates); err == nil {
			_ = o.Redis.Set(ctx, key, raw, redisx.TTLRateCache).Err()
		}
	}
	return rates, nil
}

// ConfirmOrder is the commit step, idempotent on the intent id. It
// re-validates every hold before asking the processor for the outcome, then
// commits all holds and the order in one transaction; any failure leaves the
// cart's reservations untouched so the shopper can retry.
func (o *Orchestrator) ConfirmOrder(ctx context.Context, intentID string, cart Cart, rateID string) (orders.Order, error) {
	// Fast path: a retried confirm for an already-committed intent.
	if existing, ok := o.existingOrder(ctx, intentID); ok {
		return existing, nil
	}

	// Re-validate liveness first: confirming a payment for holds that
	// already lapsed would take money for inventory we no longer hold.
	now := time.Now()
	ids := make([]string, 0, len(cart.Items))
	for _, it := range cart.Items {
		r, err := o.Store.Get(ctx, it.ReservationID)
		if err != nil {
			return orders.Order{}, err
		}
		if !r.Live(now) {
			return orders.Order{}, fmt.Errorf("%w: %s", ledger.ErrReservationExpired, r.ID)
		}
		ids = append(ids, r.ID)
	}

	res, err := o.Processor.ConfirmResult(ctx, intentID)
	if err != nil {
		return orders.Order{}, fmt.Errorf("processor confirm: %w", err)
	}
	if !res.Succeeded {
		return orders.Order{}, fmt.Errorf("%w: %s", ErrPaymentDeclined, res.Reason)
	}

	committed, err := o.Store.CommitAll(ctx, ids, orders.Order{
		IntentID:   intentID,
		PaymentRef: res.PaymentRef,
		BuyerID:    cart.BuyerID,
		SellerID:   cart.SellerID,
		Status:     orders.StatusPaid,
	})
	if err != nil {
		// A concurrent confirm for the same intent may have won the race;
		// return its order instead of failing the retry.
		if errors.Is(err, ledger.ErrConflict) {
			if existing, ok := o.existingOrder(ctx, intentID); ok {
				return existing, nil
			}
		}
		return orders.Order{}, err
	}

	metrics.OrdersCommitted.Inc()
	if o.Redis != nil {
		key := fmt.Sprintf(redisx.KeyIdemConfirm, intentID)
		_ = o.Redis.Set(ctx, key, committed.ID, redisx.TTLIdempotency).Err()
	}
	o.publishCommitted(committed, rateID)
	o.Log.Info().
		Str("order_id", committed.ID).
		Str("intent_id", intentID).
		Int("total_cents", committed.TotalCents).
		Msg("order committed")
	return committed, nil
}

// Abandon releases the cart's holds immediately for responsiveness; without
// it the expiry sweep reclaims them anyway.
func (o *Orchestrator) Abandon(ctx context.Context, cart Cart) {
	for _, it := range cart.Items {
		if err := o.Reservations.Release(ctx, it.ReservationID); err != nil {
			o.Log.Warn().Err(err).Str("reservation_id", it.ReservationID).Msg("release on abandon failed")
		}
	}
}

func (o *Orchestrator) existingOrder(ctx context.Context, intentID string) (orders.Order, bool) {
	if o.Redis != nil {
		key := fmt.Sprintf(redisx.KeyIdemConfirm, intentID)
		if id, err := o.Redis.Get(ctx, key).Result(); err == nil && id != "" {
			if ord, err := o.Orders.GetByIntentID(ctx, intentID); err == nil {
				return ord, true
			}
		}
	}
	// Redis is a shortcut only; the orders table is the truth.
	if ord, err := o.Orders.GetByIntentID(ctx, intentID); err == nil {
		return ord, true
	}
	return orders.Order{}, false
}

func (o *Orchestrator) publishCommitted(ord orders.Order, rateID string) {
	if o.Producer == nil {
		return
	}
	items := make([]events.OrderItemPayload, 0, len(ord.Items))
	for _, it := range ord.Items {
		items = append(items, events.OrderItemPayload{
			ProductID:  it.ProductID,
			Selector:   it.Selector,
			Qty:        it.Qty,
			PriceCents: it.PriceCents,
		})
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventOrderCommitted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      o.Service,
		CorrelationID: ord.ID,
		Payload: kafkax.MustMarshal(events.OrderCommittedPayload{
			OrderID:    ord.ID,
			IntentID:   ord.IntentID,
			BuyerID:    ord.BuyerID,
			SellerID:   ord.SellerID,
			Items:      items,
			TotalCents: ord.TotalCents,
			RateID:     rateID,
		}),
	}
	o.Producer.Publish(events.PartitionKey(ord.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventOrderCommitted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
