package checkout

import "context"

type Address struct {
	Name     string `json:"name"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Postcode string `json:"postcode"`
}

type Parcel struct {
	WeightOz float64 `json:"weight_oz"`
}

type Rate struct {
	RateID      string `json:"rate_id"`
	Carrier     string `json:"carrier"`
	ServiceName string `json:"service_name"`
	AmountCents int    `json:"amount_cents"`
}

type Label struct {
	TrackingNumber string `json:"tracking_number"`
	LabelURL       string `json:"label_url"`
}

// RateProvider is the carrier-rate collaborator.
type RateProvider interface {
	Rates(ctx context.Context, from, to Address, parcel Parcel) ([]Rate, error)
	BuyLabel(ctx context.Context, rateID string) (Label, error)
}
