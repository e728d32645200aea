package catalog

import "time"

// Product is a sellable item. Stock may live at one of three granularities:
// per variant (color x size), per color/size axis, or on the product itself.
// Exactly one granularity is authoritative at a time; see policy.go.
type Product struct {
	ID          string
	SellerID    string
	Name        string
	Description string
	PriceCents  int
	WeightOz    float64
	Stock       int
	Colors      []Color
	Sizes       []Size
	Variants    []Variant
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Color struct {
	ID       string
	Name     string
	Stock    int
	Archived bool
}

type Size struct {
	ID       string
	Name     string
	Stock    int
	Archived bool
}

type Variant struct {
	ID       string
	ColorID  string
	SizeID   string
	Stock    int
	Archived bool
}

// Selector names the stock bucket being reserved or sold: a variant, a single
// color or size axis value, or nothing for product-level stock.
type Selector struct {
	ColorID   string `json:"color_id,omitempty"`
	SizeID    string `json:"size_id,omitempty"`
	VariantID string `json:"variant_id,omitempty"`
}

func (s Selector) IsZero() bool {
	return s.ColorID == "" && s.SizeID == "" && s.VariantID == ""
}

// Key is a stable map/SQL grouping key for the bucket.
func (s Selector) Key() string {
	return s.ColorID + "|" + s.SizeID + "|" + s.VariantID
}
