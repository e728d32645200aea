// Package fulfillment consumes committed orders and buys carrier labels.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/jatango/liveshop/internal/checkout"
	"github.com/jatango/liveshop/internal/events"
	"github.com/jatango/liveshop/internal/orders"
	"github.com/jatango/liveshop/internal/redisx"
)

type Service struct {
	Orders      *orders.Repo
	Shipping    checkout.RateProvider
	Redis       *redis.Client
	ServiceName string
	Log         zerolog.Logger
}

// HandleOrderCommitted is the consumer handler for order.committed. Label
// purchase is retried by the broker on failure, so every step before the ACK
// has to tolerate replays.
func (s *Service) HandleOrderCommitted(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != events.EventOrderCommitted {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "fulfillment", env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}

	var p events.OrderCommittedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}
	if p.RateID == "" {
		// Card-on-web flow: the seller buys the label from the dashboard.
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
		return nil
	}

	label, err := s.Shipping.BuyLabel(ctx, p.RateID)
	if err != nil {
		return fmt.Errorf("buy label for order %s: %w", p.OrderID, err)
	}

	err = s.Orders.SetShipped(ctx, p.OrderID, label.TrackingNumber, label.LabelURL)
	if err != nil && !errors.Is(err, orders.ErrInvalidTransition) {
		return err
	}
	// Invalid transition means a replay already shipped it; ACK either way.
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	s.Log.Info().
		Str("order_id", p.OrderID).
		Str("tracking", label.TrackingNumber).
		Msg("label bought, order shipped")
	return nil
}
