package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jatango/liveshop/internal/catalog"
	"github.com/jatango/liveshop/internal/orders"
)

func newStore(t *testing.T, stock int) *MemStore {
	t.Helper()
	s := NewMemStore()
	s.PutProduct(&catalog.Product{ID: "prod", PriceCents: 1500, Stock: stock})
	return s
}

func hold(holder, item string, qty int, ttl time.Duration) Reservation {
	now := time.Now().UTC()
	return Reservation{
		ID:         uuid.NewString(),
		HolderID:   holder,
		CartItemID: item,
		ProductID:  "prod",
		Qty:        qty,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestReserveGrantsAndDerivesAvailability(t *testing.T) {
	s := newStore(t, 5)
	ctx := context.Background()

	_, err := s.Reserve(ctx, hold("a", "i1", 2, time.Minute))
	require.NoError(t, err)

	avail, err := s.Availability(ctx, "prod", catalog.Selector{})
	require.NoError(t, err)
	assert.Equal(t, 3, avail)
}

func TestReserveDeniesBeyondStock(t *testing.T) {
	s := newStore(t, 5)
	ctx := context.Background()

	_, err := s.Reserve(ctx, hold("a", "i1", 5, time.Minute))
	require.NoError(t, err)

	_, err = s.Reserve(ctx, hold("b", "i1", 1, time.Minute))
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestReserveReplacesSameCartItem(t *testing.T) {
	s := newStore(t, 5)
	ctx := context.Background()

	first, err := s.Reserve(ctx, hold("a", "item", 2, time.Minute))
	require.NoError(t, err)

	// Quantity change in the cart: same cart item, new qty. The prior hold
	// must not count against the replacement.
	second, err := s.Reserve(ctx, hold("a", "item", 5, time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "replacement keeps the hold id")

	avail, err := s.Availability(ctx, "prod", catalog.Selector{})
	require.NoError(t, err)
	assert.Equal(t, 0, avail)
}

func TestConcurrentReserveStormNeverOversells(t *testing.T) {
	const stock = 7
	s := newStore(t, stock)
	ctx := context.Background()

	const callers = 50
	var wg sync.WaitGroup
	granted := make(chan int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r, err := s.Reserve(ctx, hold(uuid.NewString(), "item", 1, time.Minute))
			if err == nil {
				granted <- r.Qty
			} else if !errors.Is(err, ErrOutOfStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(granted)

	total := 0
	for q := range granted {
		total += q
	}
	assert.Equal(t, stock, total, "exactly the stock is granted across all racers")

	avail, err := s.Availability(ctx, "prod", catalog.Selector{})
	require.NoError(t, err)
	assert.Equal(t, 0, avail)
}

func TestLastUnitRace(t *testing.T) {
	s := NewMemStore()
	s.PutProduct(&catalog.Product{
		ID:         "prod",
		PriceCents: 900,
		Variants:   []catalog.Variant{{ID: "v", Stock: 1}},
	})
	ctx := context.Background()
	sel := catalog.Selector{VariantID: "v"}

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, holder := range []string{"a", "b"} {
		wg.Add(1)
		go func(hid string) {
			defer wg.Done()
			r := hold(hid, "item", 1, time.Minute)
			r.Selector = sel
			_, err := s.Reserve(ctx, r)
			results <- err
		}(holder)
	}
	wg.Wait()
	close(results)

	var oks, denials int
	for err := range results {
		switch {
		case err == nil:
			oks++
		case errors.Is(err, ErrOutOfStock):
			denials++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, oks)
	assert.Equal(t, 1, denials)
}

func TestExpiryFreesStockForOtherHolders(t *testing.T) {
	s := newStore(t, 5)
	ctx := context.Background()

	now := time.Now().UTC()
	clock := now
	s.SetNow(func() time.Time { return clock })

	r := hold("a", "i1", 2, 0)
	r.ExpiresAt = now.Add(time.Minute)
	_, err := s.Reserve(ctx, r)
	require.NoError(t, err)

	// Holder B cannot take 5 while A holds 2.
	_, err = s.Reserve(ctx, hold("b", "i1", 5, time.Minute))
	require.ErrorIs(t, err, ErrOutOfStock)

	// A's hold lapses and the sweep releases it.
	clock = now.Add(2 * time.Minute)
	expired, err := s.ExpireDue(ctx, clock)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, StateReleased, expired[0].State)

	b := hold("b", "i1", 5, time.Minute)
	b.ExpiresAt = clock.Add(time.Minute)
	b.CreatedAt = clock
	_, err = s.Reserve(ctx, b)
	assert.NoError(t, err, "expired hold's quantity is available again")
}

func TestCommitAllIsAllOrNothing(t *testing.T) {
	s := newStore(t, 10)
	ctx := context.Background()

	a, err := s.Reserve(ctx, hold("buyer", "i1", 2, time.Minute))
	require.NoError(t, err)
	b, err := s.Reserve(ctx, hold("buyer", "i2", 3, time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, b.ID))

	_, err = s.CommitAll(ctx, []string{a.ID, b.ID}, orders.Order{IntentID: "pi_1", Status: orders.StatusPaid})
	require.ErrorIs(t, err, ErrReservationExpired)

	// The healthy hold is untouched by the failed commit.
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StateActive, got.State)
}

func TestCommitAllDeductsStockAndPricesAtCommit(t *testing.T) {
	s := newStore(t, 10)
	ctx := context.Background()

	r, err := s.Reserve(ctx, hold("buyer", "i1", 2, time.Minute))
	require.NoError(t, err)

	// Price edit while the hold is open: the order locks the commit price.
	p, _ := s.Product("prod")
	p.PriceCents = 2000
	s.PutProduct(p)

	o, err := s.CommitAll(ctx, []string{r.ID}, orders.Order{IntentID: "pi_2", Status: orders.StatusPaid})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2000, o.Items[0].PriceCents)
	assert.Equal(t, 4000, o.TotalCents)

	got, _ := s.Product("prod")
	assert.Equal(t, 8, got.Stock, "commit converts the hold into a permanent deduction")

	avail, err := s.Availability(ctx, "prod", catalog.Selector{})
	require.NoError(t, err)
	assert.Equal(t, 8, avail)
}

func TestCommitWinsOverAdminStockCorrection(t *testing.T) {
	s := newStore(t, 5)
	ctx := context.Background()

	r, err := s.Reserve(ctx, hold("buyer", "i1", 4, time.Minute))
	require.NoError(t, err)

	// Admin corrects stock below the held qty; the hold already claimed
	// real inventory, so the commit still succeeds and the figure floors.
	p, _ := s.Product("prod")
	p.Stock = 1
	s.PutProduct(p)

	_, err = s.CommitAll(ctx, []string{r.ID}, orders.Order{IntentID: "pi_3", Status: orders.StatusPaid})
	require.NoError(t, err)

	got, _ := s.Product("prod")
	assert.Equal(t, 0, got.Stock)
}

func TestCommitBeatsConcurrentExpiry(t *testing.T) {
	s := newStore(t, 5)
	ctx := context.Background()

	now := time.Now().UTC()
	clock := now
	s.SetNow(func() time.Time { return clock })

	r := hold("buyer", "i1", 1, 0)
	r.ExpiresAt = now.Add(time.Minute)
	res, err := s.Reserve(ctx, r)
	require.NoError(t, err)

	_, err = s.CommitAll(ctx, []string{res.ID}, orders.Order{IntentID: "pi_4", Status: orders.StatusPaid})
	require.NoError(t, err)

	// The sweep runs late; the committed hold must not be released.
	clock = now.Add(2 * time.Minute)
	expired, err := s.ExpireDue(ctx, clock)
	require.NoError(t, err)
	assert.Empty(t, expired)

	got, err := s.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, got.State)
}

func TestDoubleCommitConflicts(t *testing.T) {
	s := newStore(t, 5)
	ctx := context.Background()

	r, err := s.Reserve(ctx, hold("buyer", "i1", 1, time.Minute))
	require.NoError(t, err)

	_, err = s.CommitAll(ctx, []string{r.ID}, orders.Order{IntentID: "pi_5", Status: orders.StatusPaid})
	require.NoError(t, err)

	_, err = s.CommitAll(ctx, []string{r.ID}, orders.Order{IntentID: "pi_5", Status: orders.StatusPaid})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := newStore(t, 5)
	ctx := context.Background()

	r, err := s.Reserve(ctx, hold("a", "i1", 1, time.Minute))
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, r.ID))
	require.NoError(t, s.Release(ctx, r.ID), "second release is a no-op")

	_, err = s.CommitAll(ctx, []string{r.ID}, orders.Order{IntentID: "pi_6", Status: orders.StatusPaid})
	require.ErrorIs(t, err, ErrReservationExpired)
	require.NoError(t, s.Release(ctx, r.ID), "release after failed commit stays a no-op")
}

func TestTouchExtendsOnlyLiveHolds(t *testing.T) {
	s := newStore(t, 5)
	ctx := context.Background()

	now := time.Now().UTC()
	clock := now
	s.SetNow(func() time.Time { return clock })

	r := hold("a", "i1", 1, 0)
	r.ExpiresAt = now.Add(time.Minute)
	res, err := s.Reserve(ctx, r)
	require.NoError(t, err)

	require.NoError(t, s.Touch(ctx, res.ID, now.Add(10*time.Minute)))

	clock = now.Add(20 * time.Minute)
	err = s.Touch(ctx, res.ID, clock.Add(time.Minute))
	assert.ErrorIs(t, err, ErrReservationExpired)
}
