package events

import (
	"encoding/json"
	"time"

	"github.com/jatango/liveshop/internal/catalog"
)

const (
	EventReservationExpired = "ReservationExpired"
	EventOrderCommitted     = "OrderCommitted"
	EventSessionEnded       = "SessionEnded"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type ReservationExpiredPayload struct {
	ReservationID string           `json:"reservation_id"`
	HolderID      string           `json:"holder_id"`
	ProductID     string           `json:"product_id"`
	Selector      catalog.Selector `json:"selector"`
	Qty           int              `json:"qty"`
}

type OrderItemPayload struct {
	ProductID  string           `json:"product_id"`
	Selector   catalog.Selector `json:"selector"`
	Qty        int              `json:"qty"`
	PriceCents int              `json:"price_cents"`
}

type OrderCommittedPayload struct {
	OrderID    string             `json:"order_id"`
	IntentID   string             `json:"intent_id"`
	BuyerID    string             `json:"buyer_id"`
	SellerID   string             `json:"seller_id"`
	Items      []OrderItemPayload `json:"items"`
	TotalCents int                `json:"total_cents"`
	RateID     string             `json:"rate_id,omitempty"`
}

type SessionEndedPayload struct {
	SessionID     string `json:"session_id"`
	BroadcasterID string `json:"broadcaster_id"`
	PeakViewers   int    `json:"peak_viewers"`
}
