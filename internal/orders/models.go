package orders

import (
	"time"

	"github.com/jatango/liveshop/internal/catalog"
)

type Order struct {
	ID         string
	IntentID   string
	PaymentRef string
	BuyerID    string
	SellerID   string
	Status     Status
	Items      []Item
	TotalCents int
	Tracking   string
	LabelURL   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Item locks the unit price at commit time; price edits after commit never
// touch existing orders.
type Item struct {
	ID         string
	OrderID    string
	ProductID  string
	Selector   catalog.Selector
	Qty        int
	PriceCents int
}
