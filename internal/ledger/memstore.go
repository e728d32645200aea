package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jatango/liveshop/internal/catalog"
	"github.com/jatango/liveshop/internal/orders"
)

// MemStore keeps the whole ledger under one mutex. The lock is what makes
// Reserve's check-and-insert atomic, the same job the row lock does in the
// Postgres driver.
type MemStore struct {
	mu           sync.Mutex
	products     map[string]*catalog.Product
	reservations map[string]*Reservation
	byHolderItem map[string]string // holder|cartItem -> reservation id
	orders       map[string]orders.Order
	now          func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:     make(map[string]*catalog.Product),
		reservations: make(map[string]*Reservation),
		byHolderItem: make(map[string]string),
		orders:       make(map[string]orders.Order),
		now:          time.Now,
	}
}

// SetNow replaces the clock; tests use it to force expiry.
func (s *MemStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemStore) PutProduct(p *catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
}

func (s *MemStore) Product(id string) (*catalog.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func holderItemKey(holder, item string) string { return holder + "|" + item }

func (s *MemStore) Reserve(ctx context.Context, r Reservation) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[r.ProductID]
	if !ok {
		return Reservation{}, fmt.Errorf("%w: product %s", ErrNotFound, r.ProductID)
	}
	sel, err := catalog.NormalizeSelector(p, r.Selector)
	if err != nil {
		return Reservation{}, err
	}
	r.Selector = sel
	stock, err := catalog.AuthoritativeStock(p, sel)
	if err != nil {
		return Reservation{}, err
	}

	key := holderItemKey(r.HolderID, r.CartItemID)
	var prior *Reservation
	if id, ok := s.byHolderItem[key]; ok {
		prior = s.reservations[id]
		if prior.State == StateCommitted {
			return Reservation{}, ErrConflict
		}
	}

	reserved := s.liveReservedLocked(r.ProductID, r.Selector, prior)
	if catalog.Availability(stock, reserved) < r.Qty {
		return Reservation{}, fmt.Errorf("%w: product %s", ErrOutOfStock, r.ProductID)
	}

	if prior != nil {
		r.ID = prior.ID
	} else if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.State = StateActive
	stored := r
	s.reservations[r.ID] = &stored
	s.byHolderItem[key] = r.ID
	return r, nil
}

// liveReservedLocked sums active, unexpired holds on one bucket, optionally
// ignoring the hold being replaced.
func (s *MemStore) liveReservedLocked(productID string, sel catalog.Selector, skip *Reservation) int {
	now := s.now()
	total := 0
	for _, r := range s.reservations {
		if skip != nil && r.ID == skip.ID {
			continue
		}
		if r.ProductID == productID && r.Selector.Key() == sel.Key() && r.Live(now) {
			total += r.Qty
		}
	}
	return total
}

func (s *MemStore) Get(ctx context.Context, id string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return Reservation{}, ErrNotFound
	}
	return *r, nil
}

func (s *MemStore) Touch(ctx context.Context, id string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return ErrNotFound
	}
	if r.State != StateActive {
		return ErrConflict
	}
	if !r.ExpiresAt.After(s.now()) {
		return ErrReservationExpired
	}
	r.ExpiresAt = until
	return nil
}

func (s *MemStore) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return ErrNotFound
	}
	if r.State != StateActive {
		return nil // already released or committed
	}
	r.State = StateReleased
	return nil
}

func (s *MemStore) CommitAll(ctx context.Context, reservationIDs []string, skeleton orders.Order) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	held := make([]*Reservation, 0, len(reservationIDs))
	for _, id := range reservationIDs {
		r, ok := s.reservations[id]
		if !ok {
			return orders.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		switch {
		case r.State == StateCommitted:
			return orders.Order{}, fmt.Errorf("%w: %s", ErrConflict, id)
		case !r.Live(now):
			return orders.Order{}, fmt.Errorf("%w: %s", ErrReservationExpired, id)
		}
		held = append(held, r)
	}

	o := skeleton
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = now
	o.UpdatedAt = now
	for _, r := range held {
		p, ok := s.products[r.ProductID]
		if !ok {
			return orders.Order{}, fmt.Errorf("%w: product %s", ErrNotFound, r.ProductID)
		}
		o.Items = append(o.Items, orders.Item{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			ProductID:  r.ProductID,
			Selector:   r.Selector,
			Qty:        r.Qty,
			PriceCents: p.PriceCents, // commit-time price
		})
		o.TotalCents += p.PriceCents * r.Qty
	}

	// No hold failed its guard; flip them all and deduct stock. A hold whose
	// bucket was corrected below the held qty still commits (the stock was
	// claimed when the hold was granted); the deduction floors at zero.
	for _, r := range held {
		r.State = StateCommitted
		deductStock(s.products[r.ProductID], r.Selector, r.Qty)
	}
	s.orders[o.ID] = o
	return o, nil
}

func deductStock(p *catalog.Product, sel catalog.Selector, qty int) {
	switch catalog.ResolveGranularity(p) {
	case catalog.GranularityVariant:
		for i := range p.Variants {
			v := &p.Variants[i]
			if (sel.VariantID != "" && v.ID == sel.VariantID) ||
				(sel.VariantID == "" && v.ColorID == sel.ColorID && v.SizeID == sel.SizeID) {
				v.Stock = floorZero(v.Stock - qty)
				return
			}
		}
	case catalog.GranularityColorSize:
		if sel.ColorID != "" {
			for i := range p.Colors {
				if p.Colors[i].ID == sel.ColorID {
					p.Colors[i].Stock = floorZero(p.Colors[i].Stock - qty)
					return
				}
			}
		}
		for i := range p.Sizes {
			if p.Sizes[i].ID == sel.SizeID {
				p.Sizes[i].Stock = floorZero(p.Sizes[i].Stock - qty)
				return
			}
		}
	default:
		p.Stock = floorZero(p.Stock - qty)
	}
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func (s *MemStore) ExpireDue(ctx context.Context, now time.Time) ([]Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Reservation
	for _, r := range s.reservations {
		if r.State == StateActive && !r.ExpiresAt.After(now) {
			r.State = StateReleased
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *MemStore) Availability(ctx context.Context, productID string, sel catalog.Selector) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	nsel, err := catalog.NormalizeSelector(p, sel)
	if err != nil {
		return 0, err
	}
	stock, err := catalog.AuthoritativeStock(p, nsel)
	if err != nil {
		return 0, err
	}
	return catalog.Availability(stock, s.liveReservedLocked(productID, nsel, nil)), nil
}

// PriceCents satisfies checkout's Pricer against the in-memory catalog.
func (s *MemStore) PriceCents(ctx context.Context, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: product %s", ErrNotFound, productID)
	}
	return p.PriceCents, nil
}

// Order returns a committed order; tests use it to assert commit effects.
func (s *MemStore) Order(id string) (orders.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

// OrderByIntent mirrors the orders repo's idempotency lookup.
func (s *MemStore) OrderByIntent(intentID string) (orders.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.IntentID == intentID {
			return o, true
		}
	}
	return orders.Order{}, false
}
