// Package ledger is the single source of truth for availability. Availability
// is always derived on read as authoritative stock minus active holds; no
// decrement-on-reserve counter exists to drift out of sync with the
// reservation table.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jatango/liveshop/internal/catalog"
	"github.com/jatango/liveshop/internal/orders"
)

type State string

const (
	StateActive    State = "active"
	StateCommitted State = "committed"
	StateReleased  State = "released"
)

var (
	ErrOutOfStock         = errors.New("ledger: out of stock")
	ErrNotFound           = errors.New("ledger: reservation not found")
	ErrConflict           = errors.New("ledger: reservation not active")
	ErrReservationExpired = errors.New("ledger: reservation expired")
)

// Reservation is a time-bounded claim on one stock bucket. At most one
// reservation exists per (holder, cart item); re-reserving the same cart item
// replaces the hold instead of stacking a second one.
type Reservation struct {
	ID         string
	HolderID   string
	CartItemID string
	ProductID  string
	Selector   catalog.Selector
	Qty        int
	State      State
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func (r Reservation) Live(now time.Time) bool {
	return r.State == StateActive && r.ExpiresAt.After(now)
}

// Store is the ledger contract. The availability check and the hold insert
// must be one atomic step inside every driver: a read-then-insert sequence
// outside the driver would hand two racing holders the same last unit.
type Store interface {
	// Reserve grants the hold or fails with ErrOutOfStock. An existing
	// reservation for the same (holder, cart item) is replaced in the same
	// atomic step, keeping its id. Replacing a committed hold fails with
	// ErrConflict.
	Reserve(ctx context.Context, r Reservation) (Reservation, error)

	Get(ctx context.Context, id string) (Reservation, error)

	// Touch extends a live hold. Lapsed or non-active holds fail with
	// ErrReservationExpired / ErrConflict.
	Touch(ctx context.Context, id string, until time.Time) error

	// Release returns a hold's quantity to the pool. Idempotent: releasing a
	// released or committed hold is a no-op.
	Release(ctx context.Context, id string) error

	// CommitAll converts every named hold into a permanent stock deduction
	// and inserts the order with commit-time prices, all-or-nothing. A hold
	// that is no longer live aborts the whole commit: ErrReservationExpired
	// when it lapsed or was released, ErrConflict when already committed.
	// The skeleton carries ids and parties; items and total are filled from
	// the holds and the product table inside the same transaction.
	CommitAll(ctx context.Context, reservationIDs []string, skeleton orders.Order) (orders.Order, error)

	// ExpireDue releases every active hold whose expiry has passed and
	// returns them. State-guarded, so a concurrent commit always wins.
	ExpireDue(ctx context.Context, now time.Time) ([]Reservation, error)

	// Availability = authoritative stock at the selector's bucket minus the
	// sum of live holds on it. Never negative.
	Availability(ctx context.Context, productID string, sel catalog.Selector) (int, error)
}
