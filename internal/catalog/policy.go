package catalog

import "errors"

// Granularity identifies which stock figures are authoritative for a product.
type Granularity int

const (
	GranularityProduct Granularity = iota
	GranularityColorSize
	GranularityVariant
)

var (
	ErrNotSellable      = errors.New("catalog: bucket is archived or does not exist")
	ErrSelectorRequired = errors.New("catalog: product granularity requires a selector")
)

// ResolveGranularity applies the precedence rule: variant rows (if any) win,
// then color/size rows, then product-level stock. Figures at the losing
// granularities are ignored entirely for availability math.
func ResolveGranularity(p *Product) Granularity {
	if len(p.Variants) > 0 {
		return GranularityVariant
	}
	if len(p.Colors) > 0 || len(p.Sizes) > 0 {
		return GranularityColorSize
	}
	return GranularityProduct
}

// NormalizeSelector resolves the selector to its canonical bucket so that a
// variant addressed by id and the same variant addressed by (color, size)
// count against one pool. Fails when the bucket is not sellable.
func NormalizeSelector(p *Product, sel Selector) (Selector, error) {
	switch ResolveGranularity(p) {
	case GranularityVariant:
		v, ok := findVariant(p, sel)
		if !ok || v.Archived {
			return Selector{}, ErrNotSellable
		}
		return Selector{VariantID: v.ID}, nil
	case GranularityColorSize:
		if sel.ColorID != "" {
			return Selector{ColorID: sel.ColorID}, nil
		}
		if sel.SizeID != "" {
			return Selector{SizeID: sel.SizeID}, nil
		}
		return Selector{}, ErrSelectorRequired
	default:
		return Selector{}, nil
	}
}

// AuthoritativeStock returns the stock figure for the bucket the selector
// names, at the product's resolved granularity. Archived buckets are not
// sellable. Every consumer (display, cart, checkout) must go through this one
// function so stock never diverges between screens.
func AuthoritativeStock(p *Product, sel Selector) (int, error) {
	if p.Archived {
		return 0, ErrNotSellable
	}
	switch ResolveGranularity(p) {
	case GranularityVariant:
		v, ok := findVariant(p, sel)
		if !ok || v.Archived {
			return 0, ErrNotSellable
		}
		return v.Stock, nil
	case GranularityColorSize:
		if sel.ColorID != "" {
			for _, c := range p.Colors {
				if c.ID == sel.ColorID {
					if c.Archived {
						return 0, ErrNotSellable
					}
					return c.Stock, nil
				}
			}
			return 0, ErrNotSellable
		}
		if sel.SizeID != "" {
			for _, s := range p.Sizes {
				if s.ID == sel.SizeID {
					if s.Archived {
						return 0, ErrNotSellable
					}
					return s.Stock, nil
				}
			}
			return 0, ErrNotSellable
		}
		return 0, ErrSelectorRequired
	default:
		return p.Stock, nil
	}
}

// findVariant matches by variant id when given, else by the color+size pair.
func findVariant(p *Product, sel Selector) (Variant, bool) {
	for _, v := range p.Variants {
		if sel.VariantID != "" {
			if v.ID == sel.VariantID {
				return v, true
			}
			continue
		}
		if sel.ColorID != "" && v.ColorID == sel.ColorID && v.SizeID == sel.SizeID {
			return v, true
		}
	}
	return Variant{}, false
}

// Availability floors at zero: reservations created before an admin stock
// correction may legitimately exceed the current figure.
func Availability(stock, activeReserved int) int {
	if a := stock - activeReserved; a > 0 {
		return a
	}
	return 0
}
