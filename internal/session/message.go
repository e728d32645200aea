package session

import "time"

// Wire message types. carousel_update is a full snapshot, not a diff: a later
// update wholly replaces the viewer's carousel, which is what makes reordered
// or repeated delivery self-correcting.
const (
	TypeCarouselUpdate  = "carousel_update"
	TypeCarouselRequest = "carousel_request"
	TypeChatMessage     = "chat_message"
)

type ProductRef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
}

// Message is the tagged union carried on the realtime channel; Type decides
// which fields are meaningful.
type Message struct {
	Type string `json:"type"`

	// carousel_update
	Products []ProductRef `json:"products,omitempty"`
	Visible  bool         `json:"visible,omitempty"`

	// chat_message; Seq and SentAt are server-assigned
	ID         string    `json:"id,omitempty"`
	SenderID   string    `json:"sender_id,omitempty"`
	SenderName string    `json:"sender_name,omitempty"`
	Body       string    `json:"body,omitempty"`
	Seq        int64     `json:"seq,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}
