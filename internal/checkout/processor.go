package checkout

import (
	"context"
	"errors"
)

// ErrPaymentDeclined wraps the processor's verbatim decline reason; the
// shopper may simply retry.
var ErrPaymentDeclined = errors.New("checkout: payment declined")

type Intent struct {
	IntentID     string
	ClientSecret string
}

type ConfirmResult struct {
	PaymentRef string
	Succeeded  bool
	// Reason carries the processor's decline text untouched.
	Reason string
}

// PaymentProcessor is the external processor boundary. The client completes
// payment with the processor directly; this service never sees card data.
type PaymentProcessor interface {
	CreateIntent(ctx context.Context, amountCents int, buyerID, sellerID string) (Intent, error)
	ConfirmResult(ctx context.Context, intentID string) (ConfirmResult, error)
}
